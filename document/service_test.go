package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"dealflow/activity"
	"dealflow/authz"
	"dealflow/pgtest"
)

type fakeRepo struct {
	docs      map[string]Document
	insertErr error
	updated   *Document
}

func newFakeRepo(docs ...Document) *fakeRepo {
	r := &fakeRepo{docs: map[string]Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeRepo) Insert(_ context.Context, _ pgx.Tx, d Document) (Document, error) {
	if r.insertErr != nil {
		return Document{}, r.insertErr
	}
	d.CreatedAt = time.Now()
	r.docs[d.ID] = d
	return d, nil
}

func (r *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Document, error) {
	d, ok := r.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (r *fakeRepo) Update(_ context.Context, _ pgx.Tx, d Document) (Document, error) {
	if _, ok := r.docs[d.ID]; !ok {
		return Document{}, ErrNotFound
	}
	r.docs[d.ID] = d
	r.updated = &d
	return d, nil
}

func (r *fakeRepo) ListForListing(_ context.Context, listingID string) ([]Document, error) {
	out := []Document{}
	for _, d := range r.docs {
		if d.ListingID != nil && *d.ListingID == listingID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListForStep(_ context.Context, _ pgx.Tx, q StepQuery) ([]Document, error) {
	out := []Document{}
	for _, d := range r.docs {
		if d.ListingID != nil && *d.ListingID == q.ListingID && d.Step != nil && *d.Step == q.Step {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeGuard struct {
	err     error
	checked []string
}

func (g *fakeGuard) EnsureOpen(_ context.Context, _ pgx.Tx, listingID string) error {
	g.checked = append(g.checked, listingID)
	return g.err
}

type captureRecorder struct {
	events []activity.Event
}

func (c *captureRecorder) Record(_ context.Context, _ pgx.Tx, e activity.Event) error {
	c.events = append(c.events, e)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func TestCreatePending_CategoryRoleMismatch(t *testing.T) {
	svc := NewService(&pgtest.Pool{}, newFakeRepo(), &fakeGuard{}, nil)

	_, err := svc.CreatePending(context.Background(), authz.Actor{UserID: "u1", Role: authz.RoleSeller}, CreateParams{
		Type:      TypeNDA,
		Category:  CategoryBuyerUpload,
		Operation: OperationUpload,
		SellerID:  "seller-1",
	})
	if !errors.Is(err, ErrInvalidCategoryForRole) {
		t.Fatalf("expected ErrInvalidCategoryForRole, got %v", err)
	}
}

func TestCreatePending_Success(t *testing.T) {
	pool := &pgtest.Pool{}
	guard := &fakeGuard{}
	svc := NewService(pool, newFakeRepo(), guard, nil)

	doc, err := svc.CreatePending(context.Background(), authz.Actor{UserID: "u1", Role: authz.RoleSeller}, CreateParams{
		Type:      TypeFinancialStatement,
		Category:  CategorySellerUpload,
		Operation: OperationUpload,
		SellerID:  "seller-1",
		ListingID: ptr("listing-1"),
		Step:      ptr(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", doc.Status)
	}
	if len(guard.checked) != 1 || guard.checked[0] != "listing-1" {
		t.Fatalf("expected listing gate check, got %v", guard.checked)
	}
	if !pool.Tx.Committed {
		t.Fatal("expected commit")
	}
}

func TestCreatePending_NoneOperationCompletesOnCreation(t *testing.T) {
	svc := NewService(&pgtest.Pool{}, newFakeRepo(), &fakeGuard{}, nil)

	doc, err := svc.CreatePending(context.Background(), authz.Actor{UserID: "u1", Role: authz.RoleBroker}, CreateParams{
		Type:      TypeEmailAgent,
		Category:  CategoryAgentProvided,
		Operation: OperationNone,
		SellerID:  "seller-1",
		ListingID: ptr("listing-1"),
		Step:      ptr(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A NONE document carries no obligation, so it must never leave a
	// step waiting on it.
	if doc.Status != StatusCompleted {
		t.Fatalf("expected NONE document COMPLETED on creation, got %s", doc.Status)
	}
}

func TestCreatePending_ClosedListing(t *testing.T) {
	closed := errors.New("listing: closed")
	svc := NewService(&pgtest.Pool{}, newFakeRepo(), &fakeGuard{err: closed}, nil)

	_, err := svc.CreatePending(context.Background(), authz.Actor{UserID: "u1", Role: authz.RoleSeller}, CreateParams{
		Type:      TypeNDA,
		Category:  CategorySellerUpload,
		Operation: OperationUpload,
		SellerID:  "seller-1",
		ListingID: ptr("listing-1"),
	})
	if !errors.Is(err, closed) {
		t.Fatalf("expected closed-listing error, got %v", err)
	}
}

func TestRecordUpload_CompletesUploadDocument(t *testing.T) {
	repo := newFakeRepo(Document{
		ID:        "doc-1",
		Type:      TypeFinancialStatement,
		Status:    StatusPending,
		Category:  CategorySellerUpload,
		Operation: OperationUpload,
		SellerID:  "seller-1",
	})
	rec := &captureRecorder{}
	svc := NewService(&pgtest.Pool{}, repo, &fakeGuard{}, rec).WithClock(fixedClock)

	doc, err := svc.RecordUpload(context.Background(), UploadParams{
		DocumentID:       "doc-1",
		URL:              "s3://bucket/fin.pdf",
		FileName:         "fin.pdf",
		FileSize:         2048,
		UploadedByUserID: "u1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", doc.Status)
	}
	if doc.UploadedAt == nil || !doc.UploadedAt.Equal(fixedClock()) {
		t.Fatalf("expected uploadedAt to be stamped, got %v", doc.UploadedAt)
	}
	if len(rec.events) != 1 || rec.events[0].Type != activity.TypeDocumentCompleted {
		t.Fatalf("expected document.completed event, got %+v", rec.events)
	}
}

func TestRecordUpload_BothRequiresDownload(t *testing.T) {
	repo := newFakeRepo(Document{
		ID:        "doc-1",
		Status:    StatusPending,
		Operation: OperationBoth,
		SellerID:  "seller-1",
	})
	svc := NewService(&pgtest.Pool{}, repo, &fakeGuard{}, nil).WithClock(fixedClock)

	doc, err := svc.RecordUpload(context.Background(), UploadParams{
		DocumentID: "doc-1",
		URL:        "s3://bucket/a.pdf",
		FileName:   "a.pdf",
		FileSize:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != StatusPending {
		t.Fatalf("BOTH document must stay PENDING until downloaded, got %s", doc.Status)
	}

	doc, err = svc.RecordDownload(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED after both stamps, got %s", doc.Status)
	}
}

func TestRecordUpload_ReplaceIsNotLost(t *testing.T) {
	uploaded := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeRepo(Document{
		ID:         "doc-1",
		Status:     StatusCompleted,
		Operation:  OperationUpload,
		SellerID:   "seller-1",
		URL:        ptr("s3://bucket/v1.pdf"),
		FileName:   ptr("v1.pdf"),
		FileSize:   ptr(int64(10)),
		UploadedAt: &uploaded,
	})
	svc := NewService(&pgtest.Pool{}, repo, &fakeGuard{}, nil).WithClock(fixedClock)

	doc, err := svc.RecordUpload(context.Background(), UploadParams{
		DocumentID:       "doc-1",
		URL:              "s3://bucket/v2.pdf",
		FileName:         "v2.pdf",
		FileSize:         20,
		UploadedByUserID: "u2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *doc.URL != "s3://bucket/v2.pdf" || *doc.FileName != "v2.pdf" || *doc.FileSize != 20 {
		t.Fatalf("re-upload must replace file metadata, got %+v", doc)
	}
	if !doc.UploadedAt.Equal(fixedClock()) {
		t.Fatalf("re-upload must re-stamp uploadedAt, got %v", doc.UploadedAt)
	}
	if doc.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", doc.Status)
	}
}

func TestRecordDownload_OperationMismatch(t *testing.T) {
	repo := newFakeRepo(Document{
		ID:        "doc-1",
		Status:    StatusPending,
		Operation: OperationUpload,
		SellerID:  "seller-1",
	})
	svc := NewService(&pgtest.Pool{}, repo, &fakeGuard{}, nil)

	_, err := svc.RecordDownload(context.Background(), "doc-1")
	if !errors.Is(err, ErrOperationMismatch) {
		t.Fatalf("expected ErrOperationMismatch, got %v", err)
	}
}

func TestRecordUpload_NotFound(t *testing.T) {
	svc := NewService(&pgtest.Pool{}, newFakeRepo(), &fakeGuard{}, nil)

	_, err := svc.RecordUpload(context.Background(), UploadParams{DocumentID: "missing", URL: "s3://x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForListing_Restartable(t *testing.T) {
	repo := newFakeRepo(
		Document{ID: "a", SellerID: "s", ListingID: ptr("l1")},
		Document{ID: "b", SellerID: "s", ListingID: ptr("l1")},
	)
	svc := NewService(&pgtest.Pool{}, repo, &fakeGuard{}, nil)

	seq := svc.ForListing(context.Background(), "l1")
	for range 2 {
		count := 0
		for _, err := range seq {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			count++
		}
		if count != 2 {
			t.Fatalf("expected 2 documents per pass, got %d", count)
		}
	}
}

func TestForListing_StopsEarly(t *testing.T) {
	repo := newFakeRepo(
		Document{ID: "a", SellerID: "s", ListingID: ptr("l1")},
		Document{ID: "b", SellerID: "s", ListingID: ptr("l1")},
	)
	svc := NewService(&pgtest.Pool{}, repo, &fakeGuard{}, nil)

	seen := 0
	for _, err := range svc.ForListing(context.Background(), "l1") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("expected early stop after 1, got %d", seen)
	}
}
