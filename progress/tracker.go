package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrStepOutOfOrder rejects completing any step other than the current one.
	ErrStepOutOfOrder = errors.New("progress: step out of order")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ListingGuard locks a listing row and rejects writes once it is CLOSED.
// Implemented by listing.PGRepository.
type ListingGuard interface {
	EnsureOpen(ctx context.Context, tx pgx.Tx, listingID string) error
}

// Tracker advances one party through the ordered onboarding steps
// 0..finalStep. Transitions are strictly forward, one step at a time;
// past finalStep the tracker is finished. The same type serves sellers
// and buyers, differing only in repository and configured step count.
type Tracker struct {
	pool      TxBeginner
	repo      Repository
	listings  ListingGuard
	finalStep int
	idGen     func() string
	now       func() time.Time
}

func NewTracker(pool TxBeginner, repo Repository, listings ListingGuard, finalStep int) *Tracker {
	return &Tracker{
		pool:      pool,
		repo:      repo,
		listings:  listings,
		finalStep: finalStep,
		idGen:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

func (t *Tracker) WithIDGenerator(gen func() string) *Tracker {
	t.idGen = gen
	return t
}

// Initialize creates the user's progress record at step 0. A second call
// for the same user fails with ErrAlreadyInitialized.
func (t *Tracker) Initialize(ctx context.Context, userID string) (Progress, error) {
	if userID == "" {
		return Progress{}, fmt.Errorf("progress: user id required")
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := t.repo.Insert(ctx, tx, Progress{
		ID:             t.idGen(),
		UserID:         userID,
		CurrentStep:    0,
		CompletedSteps: []int{},
	})
	if err != nil {
		return Progress{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Progress{}, fmt.Errorf("progress: commit: %w", err)
	}

	return created, nil
}

// SelectListing points the progress record at a listing. Completed steps
// are preserved across re-selection: steps represent onboarding to the
// platform, not to a particular listing. Only the listing whose document
// obligations feed the orchestrator changes.
func (t *Tracker) SelectListing(ctx context.Context, progressID, listingID string) (Progress, error) {
	if listingID == "" {
		return Progress{}, fmt.Errorf("progress: listing id required")
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := t.repo.GetForUpdate(ctx, tx, progressID)
	if err != nil {
		return Progress{}, err
	}

	if err := t.listings.EnsureOpen(ctx, tx, listingID); err != nil {
		return Progress{}, err
	}

	p.SelectedListingID = &listingID
	updated, err := t.repo.Update(ctx, tx, p)
	if err != nil {
		return Progress{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Progress{}, fmt.Errorf("progress: commit: %w", err)
	}

	return updated, nil
}

// CompleteStep marks stepNumber done in its own transaction.
func (t *Tracker) CompleteStep(ctx context.Context, progressID string, stepNumber int) (Progress, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updated, err := t.CompleteStepIn(ctx, tx, progressID, stepNumber)
	if err != nil {
		return Progress{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Progress{}, fmt.Errorf("progress: commit: %w", err)
	}

	return updated, nil
}

// CompleteStepIn marks stepNumber done inside the caller's transaction.
// The pipeline orchestrator uses this form so the document eligibility
// read and the cursor write share one snapshot. Only the current step may
// be completed; anything else fails with ErrStepOutOfOrder, including a
// repeat of an already-completed step.
func (t *Tracker) CompleteStepIn(ctx context.Context, tx pgx.Tx, progressID string, stepNumber int) (Progress, error) {
	p, err := t.repo.GetForUpdate(ctx, tx, progressID)
	if err != nil {
		return Progress{}, err
	}

	if stepNumber != p.CurrentStep {
		return Progress{}, fmt.Errorf("%w: step %d, current %d", ErrStepOutOfOrder, stepNumber, p.CurrentStep)
	}
	if p.CurrentStep > t.finalStep {
		return Progress{}, fmt.Errorf("%w: pipeline already finished", ErrStepOutOfOrder)
	}

	p.CompletedSteps = append(p.CompletedSteps, stepNumber)
	// Cursor caps at finalStep+1, the FINISHED pseudo-state.
	p.CurrentStep = stepNumber + 1
	if p.CurrentStep > t.finalStep+1 {
		p.CurrentStep = t.finalStep + 1
	}
	if !p.Consistent() {
		return Progress{}, fmt.Errorf("progress: cursor %d inconsistent with completed steps %v", p.CurrentStep, p.CompletedSteps)
	}

	updated, err := t.repo.Update(ctx, tx, p)
	if err != nil {
		return Progress{}, err
	}

	return updated, nil
}

// GetIn reads the progress record under lock inside the caller's
// transaction.
func (t *Tracker) GetIn(ctx context.Context, tx pgx.Tx, progressID string) (Progress, error) {
	return t.repo.GetForUpdate(ctx, tx, progressID)
}

// IsFinished reports whether the cursor has moved past the final step.
func (t *Tracker) IsFinished(p Progress) bool {
	return p.CurrentStep > t.finalStep
}

// FinalStep exposes the configured last step number.
func (t *Tracker) FinalStep() int {
	return t.finalStep
}

// GetByUser returns the user's progress record.
func (t *Tracker) GetByUser(ctx context.Context, userID string) (Progress, error) {
	return t.repo.GetByUser(ctx, userID)
}
