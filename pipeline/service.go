// Package pipeline orchestrates the deal flow across documents, progress
// trackers, the pre-close checklist and the listing state machine. It is
// the only component that writes across aggregate boundaries, and every
// such write happens inside a single transaction so eligibility checks
// and the resulting state changes share one snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dealflow/activity"
	"dealflow/authz"
	"dealflow/checklist"
	"dealflow/document"
	"dealflow/listing"
	"dealflow/progress"
)

var (
	// ErrNoPipelineForRole signals the actor's role has no onboarding pipeline.
	ErrNoPipelineForRole = errors.New("pipeline: no pipeline for role")
	// ErrNoListingSelected signals the progress record has no listing to
	// evaluate obligations against.
	ErrNoListingSelected = errors.New("pipeline: no listing selected")
	// ErrChecklistNotReady rejects closing while open checklist items remain.
	ErrChecklistNotReady = errors.New("pipeline: checklist not ready to close")
	// ErrNotAuthorized rejects an actor without the required capability.
	ErrNotAuthorized = errors.New("pipeline: operation not allowed for role")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DocumentSource reads a step's documents inside the orchestration
// transaction. Implemented by document.PGRepository.
type DocumentSource interface {
	ListForStep(ctx context.Context, tx pgx.Tx, q document.StepQuery) ([]document.Document, error)
}

// ProgressAdvancer is the per-role tracker. Implemented by
// progress.Tracker.
type ProgressAdvancer interface {
	GetIn(ctx context.Context, tx pgx.Tx, progressID string) (progress.Progress, error)
	CompleteStepIn(ctx context.Context, tx pgx.Tx, progressID string, step int) (progress.Progress, error)
	IsFinished(p progress.Progress) bool
}

// ListingStore transitions listings inside the orchestration transaction.
// Implemented by listing.PGRepository.
type ListingStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (listing.Listing, error)
	Transition(ctx context.Context, tx pgx.Tx, id string, next listing.Status) (listing.Listing, error)
}

// Checklists creates and reads checklists inside the orchestration
// transaction. Implemented by checklist.Service.
type Checklists interface {
	CreateForListingIn(ctx context.Context, tx pgx.Tx, actor authz.Actor, listingID string) (checklist.Checklist, error)
	GetByListingIn(ctx context.Context, tx pgx.Tx, listingID string) (checklist.Checklist, error)
}

// Track pairs a party's progress tracker with its step configuration.
type Track struct {
	Tracker ProgressAdvancer
	Config  Config
}

// Service is the deal pipeline orchestrator.
type Service struct {
	pool       TxBeginner
	docs       DocumentSource
	listings   ListingStore
	checklists Checklists
	recorder   activity.Recorder
	seller     Track
	buyer      Track
}

func NewService(pool TxBeginner, docs DocumentSource, listings ListingStore, checklists Checklists, recorder activity.Recorder, seller, buyer Track) *Service {
	return &Service{
		pool:       pool,
		docs:       docs,
		listings:   listings,
		checklists: checklists,
		recorder:   recorder,
		seller:     seller,
		buyer:      buyer,
	}
}

// AdvanceResult reports the outcome of an eligibility check. A blocked
// step is an expected outcome, not an error, and the call is safe to
// retry after the missing documents complete.
type AdvanceResult struct {
	Advanced bool
	Finished bool
	// Step is the step evaluated (and completed when Advanced).
	Step int
	// Missing lists the document types still blocking the step.
	Missing []document.Type
	// Progress is the record after the call.
	Progress progress.Progress
}

func (s *Service) track(role authz.Role) (Track, authz.Operation, error) {
	switch role {
	case authz.RoleSeller:
		return s.seller, authz.OpAdvanceSellerProgress, nil
	case authz.RoleBuyer:
		return s.buyer, authz.OpAdvanceBuyerProgress, nil
	default:
		return Track{}, "", fmt.Errorf("%w: %s", ErrNoPipelineForRole, role)
	}
}

// AdvanceIfEligible completes the actor's current step when every
// required document for it is COMPLETED. The document read and the
// cursor write share one transaction; documents completing concurrently
// are either seen here or serialized behind the row locks.
func (s *Service) AdvanceIfEligible(ctx context.Context, actor authz.Actor, progressID string) (AdvanceResult, error) {
	track, op, err := s.track(actor.Role)
	if err != nil {
		return AdvanceResult{}, err
	}
	if !authz.Allowed(actor.Role, op) {
		return AdvanceResult{}, fmt.Errorf("%w: %s", ErrNotAuthorized, actor.Role)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AdvanceResult{}, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := track.Tracker.GetIn(ctx, tx, progressID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if track.Tracker.IsFinished(p) {
		return AdvanceResult{Finished: true, Step: p.CurrentStep, Progress: p}, nil
	}
	if p.SelectedListingID == nil {
		return AdvanceResult{}, ErrNoListingSelected
	}

	l, err := s.listings.GetForUpdate(ctx, tx, *p.SelectedListingID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if l.Status == listing.StatusClosed {
		return AdvanceResult{}, listing.ErrClosed
	}

	query := document.StepQuery{ListingID: l.ID, Step: p.CurrentStep}
	switch actor.Role {
	case authz.RoleSeller:
		query.SellerID = &p.UserID
	case authz.RoleBuyer:
		query.BuyerID = &p.UserID
	}

	docs, err := s.docs.ListForStep(ctx, tx, query)
	if err != nil {
		return AdvanceResult{}, err
	}

	missing := missingTypes(track.Config.Required(p.CurrentStep), docs)
	if len(missing) > 0 {
		return AdvanceResult{Step: p.CurrentStep, Missing: missing, Progress: p}, nil
	}

	completed := p.CurrentStep
	updated, err := track.Tracker.CompleteStepIn(ctx, tx, progressID, completed)
	if err != nil {
		return AdvanceResult{}, err
	}

	if s.recorder != nil {
		event := activity.Event{
			Type:      activity.TypeStepCompleted,
			ActorID:   &p.UserID,
			ListingID: p.SelectedListingID,
			Payload: map[string]any{
				"progress_id": progressID,
				"step":        completed,
				"step_name":   track.Config.StepName(completed),
				"role":        actor.Role,
			},
		}
		if err := s.recorder.Record(ctx, tx, event); err != nil {
			return AdvanceResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AdvanceResult{}, fmt.Errorf("pipeline: commit: %w", err)
	}

	return AdvanceResult{
		Advanced: true,
		Finished: track.Tracker.IsFinished(updated),
		Step:     completed,
		Progress: updated,
	}, nil
}

// missingTypes returns the required types with no COMPLETED document.
func missingTypes(required []document.Type, docs []document.Document) []document.Type {
	completed := map[document.Type]bool{}
	for _, d := range docs {
		if d.Status == document.StatusCompleted {
			completed[d.Type] = true
		}
	}

	var missing []document.Type
	for _, t := range required {
		if !completed[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// OnContractSigned moves the listing to UNDER_CONTRACT and creates its
// pre-close checklist in the same transaction.
func (s *Service) OnContractSigned(ctx context.Context, actor authz.Actor, listingID string) (checklist.Checklist, error) {
	if !authz.Allowed(actor.Role, authz.OpTransitionListing) {
		return checklist.Checklist{}, fmt.Errorf("%w: %s", ErrNotAuthorized, actor.Role)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return checklist.Checklist{}, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.listings.Transition(ctx, tx, listingID, listing.StatusUnderContract)
	if err != nil {
		return checklist.Checklist{}, err
	}

	c, err := s.checklists.CreateForListingIn(ctx, tx, actor, l.ID)
	if err != nil {
		return checklist.Checklist{}, err
	}

	if s.recorder != nil {
		event := activity.Event{
			Type:      activity.TypeListingUnderContract,
			ActorID:   &actor.UserID,
			ListingID: &l.ID,
			Payload:   map[string]any{"checklist_id": c.ID},
		}
		if err := s.recorder.Record(ctx, tx, event); err != nil {
			return checklist.Checklist{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return checklist.Checklist{}, fmt.Errorf("pipeline: commit: %w", err)
	}

	return c, nil
}

// OnChecklistReady closes the listing once every checklist item is done.
// CLOSED is terminal: all further writes against the listing's documents,
// progress and checklist are rejected.
func (s *Service) OnChecklistReady(ctx context.Context, actor authz.Actor, listingID string) (listing.Listing, error) {
	if !authz.Allowed(actor.Role, authz.OpTransitionListing) {
		return listing.Listing{}, fmt.Errorf("%w: %s", ErrNotAuthorized, actor.Role)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return listing.Listing{}, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.checklists.GetByListingIn(ctx, tx, listingID)
	if err != nil {
		return listing.Listing{}, err
	}
	if !checklist.IsReadyToClose(c) {
		return listing.Listing{}, ErrChecklistNotReady
	}

	l, err := s.listings.Transition(ctx, tx, listingID, listing.StatusClosed)
	if err != nil {
		return listing.Listing{}, err
	}

	if s.recorder != nil {
		for _, eventType := range []string{activity.TypeChecklistReady, activity.TypeListingClosed} {
			event := activity.Event{
				Type:      eventType,
				ActorID:   &actor.UserID,
				ListingID: &l.ID,
				Payload:   map[string]any{"checklist_id": c.ID},
			}
			if err := s.recorder.Record(ctx, tx, event); err != nil {
				return listing.Listing{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return listing.Listing{}, fmt.Errorf("pipeline: commit: %w", err)
	}

	return l, nil
}
