package document

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dealflow/activity"
	"dealflow/authz"
)

var (
	// ErrInvalidCategoryForRole rejects document creation when the category
	// does not belong to the creating role.
	ErrInvalidCategoryForRole = errors.New("document: category not allowed for role")
	// ErrOperationMismatch rejects an upload or download recorded against a
	// document whose operation type does not include it.
	ErrOperationMismatch = errors.New("document: operation not supported by document")
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

// Service manages the lifecycle of document records. Persistence is
// delegated to the repository; file bytes live in external storage and
// only the returned locator is kept here.
type Service struct {
	pool     TxBeginner
	repo     Repository
	listings ListingGuard
	recorder activity.Recorder
	idGen    func() string
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Repository, listings ListingGuard, recorder activity.Recorder) *Service {
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

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// categoryOps maps each document category to the capability required to
// create documents in it.
var categoryOps = map[Category]authz.Operation{
	CategorySellerUpload:    authz.OpCreateSellerDocument,
	CategoryBuyerUpload:     authz.OpCreateBuyerDocument,
	CategoryAgentProvided:   authz.OpCreateAgentDocument,
	CategorySystemGenerated: authz.OpCreateSystemDocument,
}

type CreateParams struct {
	Type      Type
	Category  Category
	Operation OperationType
	SellerID  string
	BuyerID   *string
	ListingID *string
	Step      *int
}

// CreatePending registers a new document obligation. Documents requiring
// an operation start PENDING; a NONE document carries no obligation and
// is COMPLETED from creation.
func (s *Service) CreatePending(ctx context.Context, actor authz.Actor, params CreateParams) (Document, error) {
	op, ok := categoryOps[params.Category]
	if !ok {
		return Document{}, fmt.Errorf("document: unknown category %q", params.Category)
	}
	if !authz.Allowed(actor.Role, op) {
		return Document{}, fmt.Errorf("%w: %s cannot create %s", ErrInvalidCategoryForRole, actor.Role, params.Category)
	}
	if params.SellerID == "" {
		return Document{}, fmt.Errorf("document: seller id required")
	}
	switch params.Operation {
	case OperationUpload, OperationDownload, OperationBoth, OperationNone:
	default:
		return Document{}, fmt.Errorf("document: unknown operation type %q", params.Operation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("document: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.ListingID != nil {
		if err := s.listings.EnsureOpen(ctx, tx, *params.ListingID); err != nil {
			return Document{}, err
		}
	}

	created, err := s.repo.Insert(ctx, tx, Document{
		ID:        s.idGen(),
		Type:      params.Type,
		Status:    deriveStatus(params.Operation, nil, nil),
		Category:  params.Category,
		Operation: params.Operation,
		SellerID:  params.SellerID,
		BuyerID:   params.BuyerID,
		ListingID: params.ListingID,
		Step:      params.Step,
	})
	if err != nil {
		return Document{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, fmt.Errorf("document: commit: %w", err)
	}

	return created, nil
}

type UploadParams struct {
	DocumentID       string
	URL              string
	FileName         string
	FileSize         int64
	UploadedByUserID string
}

// RecordUpload stamps the upload on the document. A repeated upload is
// never silently lost: it replaces url, file name and size and re-stamps
// uploadedAt. Status moves to COMPLETED once every operation the document
// requires has occurred.
func (s *Service) RecordUpload(ctx context.Context, params UploadParams) (Document, error) {
	if params.DocumentID == "" {
		return Document{}, fmt.Errorf("document: document id required")
	}
	if params.URL == "" {
		return Document{}, fmt.Errorf("document: url required")
	}

	return s.mutate(ctx, params.DocumentID, func(d *Document) error {
		if d.Operation != OperationUpload && d.Operation != OperationBoth {
			return fmt.Errorf("%w: upload on %s document", ErrOperationMismatch, d.Operation)
		}
		now := s.now()
		d.URL = &params.URL
		d.FileName = &params.FileName
		d.FileSize = &params.FileSize
		d.UploadedByUserID = &params.UploadedByUserID
		d.UploadedAt = &now
		return nil
	})
}

// RecordDownload stamps the download on the document under the same
// completion rule as RecordUpload.
func (s *Service) RecordDownload(ctx context.Context, documentID string) (Document, error) {
	if documentID == "" {
		return Document{}, fmt.Errorf("document: document id required")
	}

	return s.mutate(ctx, documentID, func(d *Document) error {
		if d.Operation != OperationDownload && d.Operation != OperationBoth {
			return fmt.Errorf("%w: download on %s document", ErrOperationMismatch, d.Operation)
		}
		now := s.now()
		d.DownloadedAt = &now
		return nil
	})
}

// mutate applies fn to the locked document, recomputes its status and
// persists the result in one transaction. The listing gate runs first so
// closed deals reject the write before any state changes.
func (s *Service) mutate(ctx context.Context, documentID string, fn func(*Document) error) (Document, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("document: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := s.repo.GetForUpdate(ctx, tx, documentID)
	if err != nil {
		return Document{}, err
	}

	if doc.ListingID != nil {
		if err := s.listings.EnsureOpen(ctx, tx, *doc.ListingID); err != nil {
			return Document{}, err
		}
	}

	if err := fn(&doc); err != nil {
		return Document{}, err
	}

	wasCompleted := doc.Status == StatusCompleted
	doc.Status = deriveStatus(doc.Operation, doc.UploadedAt, doc.DownloadedAt)

	updated, err := s.repo.Update(ctx, tx, doc)
	if err != nil {
		return Document{}, err
	}

	if s.recorder != nil && !wasCompleted && updated.Status == StatusCompleted {
		event := activity.Event{
			Type:      activity.TypeDocumentCompleted,
			ActorID:   updated.UploadedByUserID,
			ListingID: updated.ListingID,
			Payload: map[string]any{
				"document_id": updated.ID,
				"type":        updated.Type,
			},
		}
		if err := s.recorder.Record(ctx, tx, event); err != nil {
			return Document{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, fmt.Errorf("document: commit: %w", err)
	}

	return updated, nil
}

// ListForListing returns the listing's documents ordered by creation
// time, oldest first.
func (s *Service) ListForListing(ctx context.Context, listingID string) ([]Document, error) {
	return s.repo.ListForListing(ctx, listingID)
}

// ForListing returns a restartable sequence over the listing's documents
// in createdAt order. Each range re-runs the query, so the sequence
// always reflects current state.
func (s *Service) ForListing(ctx context.Context, listingID string) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		docs, err := s.repo.ListForListing(ctx, listingID)
		if err != nil {
			yield(Document{}, err)
			return
		}
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}
