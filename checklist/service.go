package checklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dealflow/activity"
	"dealflow/authz"
	"dealflow/listing"
)

var (
	// ErrListingNotUnderContract rejects checklist creation before the deal
	// is under contract.
	ErrListingNotUnderContract = errors.New("checklist: listing not under contract")
	// ErrRoleMismatch rejects a mutation against a sub-list the role does
	// not own.
	ErrRoleMismatch = errors.New("checklist: role does not own sub-list")
	// ErrItemIndexOutOfRange rejects a toggle against a non-existent item.
	ErrItemIndexOutOfRange = errors.New("checklist: item index out of range")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ListingStates reads listing rows under lock. Implemented by
// listing.PGRepository.
type ListingStates interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (listing.Listing, error)
}

// Service maintains the three-party pre-close checklist. Mutations are
// last-write-wins per sub-list; the three sub-lists are independently
// owned but visible to all roles.
type Service struct {
	pool     TxBeginner
	repo     Repository
	listings ListingStates
	recorder activity.Recorder
	idGen    func() string
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Repository, listings ListingStates, recorder activity.Recorder) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		listings: listings,
		recorder: recorder,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// CreateForListing creates the listing's checklist in its own transaction.
func (s *Service) CreateForListing(ctx context.Context, actor authz.Actor, listingID string) (Checklist, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Checklist{}, fmt.Errorf("checklist: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.CreateForListingIn(ctx, tx, actor, listingID)
	if err != nil {
		return Checklist{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Checklist{}, fmt.Errorf("checklist: commit: %w", err)
	}

	return created, nil
}

// CreateForListingIn creates the checklist inside the caller's
// transaction; the pipeline orchestrator uses this form when a contract
// is signed. The listing must be UNDER_CONTRACT: earlier states fail with
// ErrListingNotUnderContract, CLOSED fails with listing.ErrClosed, and a
// duplicate fails with ErrAlreadyExists.
func (s *Service) CreateForListingIn(ctx context.Context, tx pgx.Tx, actor authz.Actor, listingID string) (Checklist, error) {
	if listingID == "" {
		return Checklist{}, fmt.Errorf("checklist: listing id required")
	}

	l, err := s.listings.GetForUpdate(ctx, tx, listingID)
	if err != nil {
		return Checklist{}, err
	}
	if l.Status == listing.StatusClosed {
		return Checklist{}, listing.ErrClosed
	}
	if !listing.AtLeast(l.Status, listing.StatusUnderContract) {
		return Checklist{}, fmt.Errorf("%w: status %s", ErrListingNotUnderContract, l.Status)
	}

	var lastUpdatedBy *string
	if actor.UserID != "" {
		lastUpdatedBy = &actor.UserID
	}

	created, err := s.repo.Insert(ctx, tx, Checklist{
		ID:            s.idGen(),
		ListingID:     listingID,
		LastUpdatedBy: lastUpdatedBy,
	})
	if err != nil {
		return Checklist{}, err
	}

	if s.recorder != nil {
		event := activity.Event{
			Type:      activity.TypeChecklistCreated,
			ActorID:   lastUpdatedBy,
			ListingID: &listingID,
			Payload:   map[string]any{"checklist_id": created.ID},
		}
		if err := s.recorder.Record(ctx, tx, event); err != nil {
			return Checklist{}, err
		}
	}

	return created, nil
}

type ToggleParams struct {
	ChecklistID string
	List        ListKind
	Index       int
	Done        bool
}

// ToggleItem flips one item's done flag on the sub-list the actor's role
// owns. Last write wins; there is no concurrency token on checklist rows.
func (s *Service) ToggleItem(ctx context.Context, actor authz.Actor, params ToggleParams) (Checklist, error) {
	return s.mutateList(ctx, actor, params.ChecklistID, params.List, func(items []Item) ([]Item, error) {
		if params.Index < 0 || params.Index >= len(items) {
			return nil, fmt.Errorf("%w: index %d, len %d", ErrItemIndexOutOfRange, params.Index, len(items))
		}
		items[params.Index].Done = params.Done
		return items, nil
	})
}

type AddItemParams struct {
	ChecklistID string
	List        ListKind
	Label       string
	Note        *string
}

// AddItem appends a new open item to the sub-list the actor's role owns.
func (s *Service) AddItem(ctx context.Context, actor authz.Actor, params AddItemParams) (Checklist, error) {
	if params.Label == "" {
		return Checklist{}, fmt.Errorf("checklist: item label required")
	}
	return s.mutateList(ctx, actor, params.ChecklistID, params.List, func(items []Item) ([]Item, error) {
		return append(items, Item{Label: params.Label, Note: params.Note}), nil
	})
}

func (s *Service) mutateList(ctx context.Context, actor authz.Actor, checklistID string, kind ListKind, fn func([]Item) ([]Item, error)) (Checklist, error) {
	op, ok := listOps[kind]
	if !ok {
		return Checklist{}, fmt.Errorf("checklist: unknown sub-list %q", kind)
	}
	if !authz.Allowed(actor.Role, op) {
		return Checklist{}, fmt.Errorf("%w: %s on %s list", ErrRoleMismatch, actor.Role, kind)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Checklist{}, fmt.Errorf("checklist: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.GetForUpdate(ctx, tx, checklistID)
	if err != nil {
		return Checklist{}, err
	}

	l, err := s.listings.GetForUpdate(ctx, tx, c.ListingID)
	if err != nil {
		return Checklist{}, err
	}
	if l.Status == listing.StatusClosed {
		return Checklist{}, listing.ErrClosed
	}

	items := c.list(kind)
	next, err := fn(*items)
	if err != nil {
		return Checklist{}, err
	}
	*items = next
	c.LastUpdatedBy = &actor.UserID

	updated, err := s.repo.Update(ctx, tx, c)
	if err != nil {
		return Checklist{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Checklist{}, fmt.Errorf("checklist: commit: %w", err)
	}

	return updated, nil
}

// GetByListing returns the listing's checklist.
func (s *Service) GetByListing(ctx context.Context, listingID string) (Checklist, error) {
	return s.repo.GetByListing(ctx, listingID)
}

// GetByListingIn reads the listing's checklist under lock inside the
// caller's transaction.
func (s *Service) GetByListingIn(ctx context.Context, tx pgx.Tx, listingID string) (Checklist, error) {
	return s.repo.GetByListingForUpdate(ctx, tx, listingID)
}
