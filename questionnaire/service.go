package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dealflow/authz"
	"dealflow/document"
)

var (
	// ErrAlreadyCompleted rejects edits to a finalized questionnaire.
	ErrAlreadyCompleted = errors.New("questionnaire: already completed")
	// ErrNotSeller rejects questionnaire writes by anyone but a seller.
	ErrNotSeller = errors.New("questionnaire: only sellers have a questionnaire")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Documents is the slice of document persistence completion feeds. The
// finalized questionnaire becomes an uploaded document record so the
// onboarding step that requires it can observe it. The writes run inside
// the completion transaction. Implemented by document.PGRepository.
type Documents interface {
	Insert(ctx context.Context, tx pgx.Tx, d document.Document) (document.Document, error)
	Update(ctx context.Context, tx pgx.Tx, d document.Document) (document.Document, error)
}

// ListingGuard locks a listing row and rejects writes once it is CLOSED.
// Implemented by listing.PGRepository.
type ListingGuard interface {
	EnsureOpen(ctx context.Context, tx pgx.Tx, listingID string) error
}

// Service manages the seller questionnaire lifecycle: draft saves, reads
// and the one-way completion that feeds the document pipeline.
type Service struct {
	pool     TxBeginner
	repo     Repository
	docs     Documents
	listings ListingGuard
	idGen    func() string
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Repository, docs Documents, listings ListingGuard) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		docs:     docs,
		listings: listings,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Save upserts the actor's questionnaire draft. Edits after completion
// are rejected; the completed form is an audit record.
func (s *Service) Save(ctx context.Context, actor authz.Actor, sections Sections) (Questionnaire, error) {
	if actor.Role != authz.RoleSeller {
		return Questionnaire{}, fmt.Errorf("%w: %s", ErrNotSeller, actor.Role)
	}

	existing, err := s.repo.GetBySeller(ctx, actor.UserID)
	switch {
	case err == nil:
		if existing.Completed() {
			return Questionnaire{}, ErrAlreadyCompleted
		}
	case errors.Is(err, ErrNotFound):
	default:
		return Questionnaire{}, err
	}

	return s.repo.Upsert(ctx, Questionnaire{
		ID:            s.idGen(),
		SellerID:      actor.UserID,
		SchemaVersion: SchemaVersion,
		Sections:      sections,
	})
}

// Get returns the seller's questionnaire.
func (s *Service) Get(ctx context.Context, sellerID string) (Questionnaire, error) {
	return s.repo.GetBySeller(ctx, sellerID)
}

// CompleteParams ties the finalized questionnaire to the deal context the
// resulting document record should carry.
type CompleteParams struct {
	ListingID *string
	Step      *int
}

// Complete finalizes the actor's questionnaire. The stamp is one-way:
// a completed form can never be reopened. Completion registers the form
// as an uploaded QUESTIONNAIRE document so document-gated progress sees
// it. The document writes and the completion stamp commit atomically; on
// any failure the questionnaire stays open and the call can be retried.
func (s *Service) Complete(ctx context.Context, actor authz.Actor, params CompleteParams) (Questionnaire, error) {
	if actor.Role != authz.RoleSeller {
		return Questionnaire{}, fmt.Errorf("%w: %s", ErrNotSeller, actor.Role)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("questionnaire: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := s.repo.GetBySellerForUpdate(ctx, tx, actor.UserID)
	if err != nil {
		return Questionnaire{}, err
	}
	if q.Completed() {
		return Questionnaire{}, ErrAlreadyCompleted
	}

	if params.ListingID != nil && s.listings != nil {
		if err := s.listings.EnsureOpen(ctx, tx, *params.ListingID); err != nil {
			return Questionnaire{}, err
		}
	}

	completedAt := s.now()

	if s.docs != nil {
		doc, err := s.docs.Insert(ctx, tx, document.Document{
			ID:        s.idGen(),
			Type:      document.TypeQuestionnaire,
			Status:    document.StatusPending,
			Category:  document.CategorySellerUpload,
			Operation: document.OperationUpload,
			SellerID:  actor.UserID,
			ListingID: params.ListingID,
			Step:      params.Step,
		})
		if err != nil {
			return Questionnaire{}, fmt.Errorf("questionnaire: register document: %w", err)
		}

		url := "questionnaire://" + q.ID
		fileName := "seller-questionnaire.json"
		fileSize := int64(0)
		doc.URL = &url
		doc.FileName = &fileName
		doc.FileSize = &fileSize
		doc.UploadedByUserID = &actor.UserID
		doc.UploadedAt = &completedAt
		doc.Status = document.StatusCompleted
		if _, err := s.docs.Update(ctx, tx, doc); err != nil {
			return Questionnaire{}, fmt.Errorf("questionnaire: record upload: %w", err)
		}
	}

	if err := s.repo.SetCompleted(ctx, tx, q.ID, completedAt); err != nil {
		return Questionnaire{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Questionnaire{}, fmt.Errorf("questionnaire: commit: %w", err)
	}
	q.CompletedAt = &completedAt

	return q, nil
}
