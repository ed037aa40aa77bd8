package checklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"dealflow/authz"
	"dealflow/listing"
	"dealflow/pgtest"
)

type fakeRepo struct {
	records   map[string]Checklist
	byListing map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]Checklist{}, byListing: map[string]string{}}
}

func (r *fakeRepo) Insert(_ context.Context, _ pgx.Tx, c Checklist) (Checklist, error) {
	if _, ok := r.byListing[c.ListingID]; ok {
		return Checklist{}, ErrAlreadyExists
	}
	c.CreatedAt = time.Now()
	if c.BuyerItems == nil {
		c.BuyerItems = []Item{}
	}
	if c.SellerItems == nil {
		c.SellerItems = []Item{}
	}
	if c.BrokerItems == nil {
		c.BrokerItems = []Item{}
	}
	r.records[c.ID] = c
	r.byListing[c.ListingID] = c.ID
	return c, nil
}

func (r *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Checklist, error) {
	c, ok := r.records[id]
	if !ok {
		return Checklist{}, ErrNotFound
	}
	return c, nil
}

func (r *fakeRepo) GetByListing(_ context.Context, listingID string) (Checklist, error) {
	id, ok := r.byListing[listingID]
	if !ok {
		return Checklist{}, ErrNotFound
	}
	return r.records[id], nil
}

func (r *fakeRepo) GetByListingForUpdate(ctx context.Context, tx pgx.Tx, listingID string) (Checklist, error) {
	return r.GetByListing(ctx, listingID)
}

func (r *fakeRepo) Update(_ context.Context, _ pgx.Tx, c Checklist) (Checklist, error) {
	if _, ok := r.records[c.ID]; !ok {
		return Checklist{}, ErrNotFound
	}
	r.records[c.ID] = c
	return c, nil
}

type fakeListings struct {
	statuses map[string]listing.Status
}

func (f *fakeListings) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (listing.Listing, error) {
	status, ok := f.statuses[id]
	if !ok {
		return listing.Listing{}, listing.ErrNotFound
	}
	return listing.Listing{ID: id, Status: status}, nil
}

func newService(statuses map[string]listing.Status) (*Service, *fakeRepo) {
	repo := newFakeRepo()
	n := 0
	svc := NewService(&pgtest.Pool{}, repo, &fakeListings{statuses: statuses}, nil).WithIDGenerator(func() string {
		n++
		return string(rune('0' + n))
	})
	return svc, repo
}

var (
	broker = authz.Actor{UserID: "broker-1", Role: authz.RoleBroker}
	seller = authz.Actor{UserID: "seller-1", Role: authz.RoleSeller}
	buyer  = authz.Actor{UserID: "buyer-1", Role: authz.RoleBuyer}
)

func TestCreateForListing_RequiresContract(t *testing.T) {
	svc, _ := newService(map[string]listing.Status{"l1": listing.StatusActive})

	_, err := svc.CreateForListing(context.Background(), broker, "l1")
	if !errors.Is(err, ErrListingNotUnderContract) {
		t.Fatalf("expected ErrListingNotUnderContract, got %v", err)
	}
}

func TestCreateForListing_UniquePerListing(t *testing.T) {
	svc, _ := newService(map[string]listing.Status{"l1": listing.StatusUnderContract})
	ctx := context.Background()

	if _, err := svc.CreateForListing(ctx, broker, "l1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateForListing(ctx, broker, "l1"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateForListing_ClosedListing(t *testing.T) {
	svc, _ := newService(map[string]listing.Status{"l1": listing.StatusClosed})

	_, err := svc.CreateForListing(context.Background(), broker, "l1")
	if !errors.Is(err, listing.ErrClosed) {
		t.Fatalf("expected listing.ErrClosed, got %v", err)
	}
}

func TestToggleItem_RoleOwnership(t *testing.T) {
	svc, _ := newService(map[string]listing.Status{"l1": listing.StatusUnderContract})
	ctx := context.Background()

	c, err := svc.CreateForListing(ctx, broker, "l1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err = svc.AddItem(ctx, seller, AddItemParams{ChecklistID: c.ID, List: SellerList, Label: "sign escrow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Buyer targeting the seller's sub-list is rejected and state unchanged.
	if _, err := svc.ToggleItem(ctx, buyer, ToggleParams{ChecklistID: c.ID, List: SellerList, Index: 0, Done: true}); !errors.Is(err, ErrRoleMismatch) {
		t.Fatalf("expected ErrRoleMismatch, got %v", err)
	}
	got, _ := svc.GetByListing(ctx, "l1")
	if got.SellerItems[0].Done {
		t.Fatal("seller item must remain untouched after rejected toggle")
	}

	got, err = svc.ToggleItem(ctx, seller, ToggleParams{ChecklistID: c.ID, List: SellerList, Index: 0, Done: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.SellerItems[0].Done {
		t.Fatal("expected seller item toggled done")
	}
	if got.LastUpdatedBy == nil || *got.LastUpdatedBy != seller.UserID {
		t.Fatalf("expected lastUpdatedBy %s, got %v", seller.UserID, got.LastUpdatedBy)
	}
}

func TestToggleItem_AgentActsOnBrokerList(t *testing.T) {
	svc, _ := newService(map[string]listing.Status{"l1": listing.StatusUnderContract})
	ctx := context.Background()
	agent := authz.Actor{UserID: "agent-1", Role: authz.RoleAgent}

	c, _ := svc.CreateForListing(ctx, broker, "l1")
	c, err := svc.AddItem(ctx, agent, AddItemParams{ChecklistID: c.ID, List: BrokerList, Label: "order title search"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ToggleItem(ctx, agent, ToggleParams{ChecklistID: c.ID, List: BrokerList, Index: 0, Done: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestToggleItem_IndexOutOfRange(t *testing.T) {
	svc, _ := newService(map[string]listing.Status{"l1": listing.StatusUnderContract})
	ctx := context.Background()

	c, _ := svc.CreateForListing(ctx, broker, "l1")
	if _, err := svc.ToggleItem(ctx, seller, ToggleParams{ChecklistID: c.ID, List: SellerList, Index: 0, Done: true}); !errors.Is(err, ErrItemIndexOutOfRange) {
		t.Fatalf("expected ErrItemIndexOutOfRange, got %v", err)
	}
}

func TestToggleItem_ClosedListingRejected(t *testing.T) {
	statuses := map[string]listing.Status{"l1": listing.StatusUnderContract}
	svc, _ := newService(statuses)
	ctx := context.Background()

	c, _ := svc.CreateForListing(ctx, broker, "l1")
	c, _ = svc.AddItem(ctx, seller, AddItemParams{ChecklistID: c.ID, List: SellerList, Label: "handover keys"})

	statuses["l1"] = listing.StatusClosed
	if _, err := svc.ToggleItem(ctx, seller, ToggleParams{ChecklistID: c.ID, List: SellerList, Index: 0, Done: true}); !errors.Is(err, listing.ErrClosed) {
		t.Fatalf("expected listing.ErrClosed, got %v", err)
	}
}

func TestIsReadyToClose(t *testing.T) {
	// Vacuously true for three empty lists.
	if !IsReadyToClose(Checklist{}) {
		t.Fatal("empty checklist must be ready to close")
	}

	c := Checklist{
		BuyerItems:  []Item{{Label: "wire funds", Done: true}},
		SellerItems: []Item{{Label: "sign deed", Done: true}},
		BrokerItems: []Item{{Label: "file paperwork", Done: false}},
	}
	if IsReadyToClose(c) {
		t.Fatal("one open item must block readiness")
	}

	c.BrokerItems[0].Done = true
	if !IsReadyToClose(c) {
		t.Fatal("all items done must be ready")
	}
}
