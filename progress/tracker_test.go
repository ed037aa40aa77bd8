package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"dealflow/pgtest"
)

type fakeRepo struct {
	records map[string]Progress
	byUser  map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]Progress{}, byUser: map[string]string{}}
}

func (r *fakeRepo) Insert(_ context.Context, _ pgx.Tx, p Progress) (Progress, error) {
	if _, ok := r.byUser[p.UserID]; ok {
		return Progress{}, ErrAlreadyInitialized
	}
	p.CreatedAt = time.Now()
	r.records[p.ID] = p
	r.byUser[p.UserID] = p.ID
	return p, nil
}

func (r *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Progress, error) {
	p, ok := r.records[id]
	if !ok {
		return Progress{}, ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) GetByUser(_ context.Context, userID string) (Progress, error) {
	id, ok := r.byUser[userID]
	if !ok {
		return Progress{}, ErrNotFound
	}
	return r.records[id], nil
}

func (r *fakeRepo) Update(_ context.Context, _ pgx.Tx, p Progress) (Progress, error) {
	if _, ok := r.records[p.ID]; !ok {
		return Progress{}, ErrNotFound
	}
	r.records[p.ID] = p
	return p, nil
}

type openGuard struct{ err error }

func (g *openGuard) EnsureOpen(context.Context, pgx.Tx, string) error { return g.err }

func newTracker(finalStep int) (*Tracker, *fakeRepo) {
	repo := newFakeRepo()
	next := 0
	tracker := NewTracker(&pgtest.Pool{}, repo, &openGuard{}, finalStep).WithIDGenerator(func() string {
		next++
		return string(rune('a' + next - 1))
	})
	return tracker, repo
}

func TestInitialize_OncePerUser(t *testing.T) {
	tracker, _ := newTracker(4)
	ctx := context.Background()

	p, err := tracker.Initialize(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CurrentStep != 0 || len(p.CompletedSteps) != 0 {
		t.Fatalf("fresh progress should start at step 0, got %+v", p)
	}

	if _, err := tracker.Initialize(ctx, "user-1"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestCompleteStep_OrderEnforced(t *testing.T) {
	tracker, _ := newTracker(4)
	ctx := context.Background()

	p, err := tracker.Initialize(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := tracker.CompleteStep(ctx, p.ID, 2); !errors.Is(err, ErrStepOutOfOrder) {
		t.Fatalf("expected ErrStepOutOfOrder for future step, got %v", err)
	}

	p, err = tracker.CompleteStep(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CurrentStep != 1 || !p.Completed(0) {
		t.Fatalf("expected cursor 1 with step 0 completed, got %+v", p)
	}

	// Completing the same step again is rejected, not duplicated.
	if _, err := tracker.CompleteStep(ctx, p.ID, 0); !errors.Is(err, ErrStepOutOfOrder) {
		t.Fatalf("expected ErrStepOutOfOrder on repeat, got %v", err)
	}
}

func TestCompleteStep_CursorInvariant(t *testing.T) {
	tracker, _ := newTracker(4)
	ctx := context.Background()

	p, err := tracker.Initialize(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Consistent() {
		t.Fatalf("fresh progress inconsistent: %+v", p)
	}

	for step := 0; step <= 4; step++ {
		p, err = tracker.CompleteStep(ctx, p.ID, step)
		if err != nil {
			t.Fatalf("complete step %d: %v", step, err)
		}
		if !p.Consistent() {
			t.Fatalf("cursor invariant broken after step %d: %+v", step, p)
		}
	}
}

func TestCompleteStep_FinishesAndCaps(t *testing.T) {
	tracker, _ := newTracker(1)
	ctx := context.Background()

	p, _ := tracker.Initialize(ctx, "user-1")
	p, _ = tracker.CompleteStep(ctx, p.ID, 0)
	if tracker.IsFinished(p) {
		t.Fatalf("not finished after step 0 of 0..1, got %+v", p)
	}

	p, err := tracker.CompleteStep(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CurrentStep != 2 {
		t.Fatalf("cursor must cap at finalStep+1, got %d", p.CurrentStep)
	}
	if !tracker.IsFinished(p) {
		t.Fatal("expected finished state")
	}

	// No transitions out of FINISHED.
	if _, err := tracker.CompleteStep(ctx, p.ID, 2); !errors.Is(err, ErrStepOutOfOrder) {
		t.Fatalf("expected ErrStepOutOfOrder past final step, got %v", err)
	}
}

func TestSelectListing_PreservesCompletedSteps(t *testing.T) {
	tracker, _ := newTracker(4)
	ctx := context.Background()

	p, _ := tracker.Initialize(ctx, "user-1")
	p, _ = tracker.CompleteStep(ctx, p.ID, 0)
	p, _ = tracker.CompleteStep(ctx, p.ID, 1)

	p, err := tracker.SelectListing(ctx, p.ID, "listing-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SelectedListingID == nil || *p.SelectedListingID != "listing-1" {
		t.Fatalf("expected listing-1 selected, got %+v", p.SelectedListingID)
	}

	p, err = tracker.SelectListing(ctx, p.ID, "listing-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *p.SelectedListingID != "listing-2" {
		t.Fatalf("expected listing-2 selected, got %s", *p.SelectedListingID)
	}
	if p.CurrentStep != 2 || !p.Completed(0) || !p.Completed(1) {
		t.Fatalf("re-selection must preserve progress, got %+v", p)
	}
}

func TestSelectListing_ClosedListingRejected(t *testing.T) {
	repo := newFakeRepo()
	closed := errors.New("listing: closed")
	tracker := NewTracker(&pgtest.Pool{}, repo, &openGuard{err: closed}, 4)

	p, err := tracker.Initialize(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tracker.SelectListing(context.Background(), p.ID, "listing-1"); !errors.Is(err, closed) {
		t.Fatalf("expected closed-listing error, got %v", err)
	}
}
