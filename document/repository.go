package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no document row exists for the identifier.
	ErrNotFound = errors.New("document: not found")
)

const documentColumns = `id, type, status, category, operation, seller_id, buyer_id, listing_id,
	uploaded_by_user_id, url, file_name, file_size, step, uploaded_at, downloaded_at, created_at, updated_at`

// StepQuery selects the documents feeding one onboarding step of one
// party on one listing.
type StepQuery struct {
	ListingID string
	Step      int
	SellerID  *string
	BuyerID   *string
}

// Repository defines the data access the document service and the
// pipeline orchestrator require.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, d Document) (Document, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Document, error)
	Update(ctx context.Context, tx pgx.Tx, d Document) (Document, error)
	ListForListing(ctx context.Context, listingID string) ([]Document, error)
	ListForStep(ctx context.Context, tx pgx.Tx, q StepQuery) ([]Document, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, d Document) (Document, error) {
	const query = `
		INSERT INTO documents (id, type, status, category, operation, seller_id, buyer_id, listing_id, step)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + documentColumns

	row := tx.QueryRow(ctx, query,
		d.ID,
		d.Type,
		d.Status,
		d.Category,
		d.Operation,
		d.SellerID,
		d.BuyerID,
		d.ListingID,
		d.Step,
	)

	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("document: insert: %w", err)
	}
	return doc, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 FOR UPDATE`

	doc, err := scanDocument(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("document: get for update: %w", err)
	}
	return doc, nil
}

// Update persists the mutable portion of a document record.
func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, d Document) (Document, error) {
	const query = `
		UPDATE documents
		SET status = $2,
		    uploaded_by_user_id = $3,
		    url = $4,
		    file_name = $5,
		    file_size = $6,
		    uploaded_at = $7,
		    downloaded_at = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + documentColumns

	row := tx.QueryRow(ctx, query,
		d.ID,
		d.Status,
		d.UploadedByUserID,
		d.URL,
		d.FileName,
		d.FileSize,
		d.UploadedAt,
		d.DownloadedAt,
	)

	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("document: update: %w", err)
	}
	return doc, nil
}

// ListForListing returns every document tied to the listing, oldest first.
func (r *PGRepository) ListForListing(ctx context.Context, listingID string) ([]Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE listing_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("document: list for listing: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListForStep reads the step's documents inside the caller's transaction
// so eligibility checks and the resulting progress write share one
// consistent snapshot.
func (r *PGRepository) ListForStep(ctx context.Context, tx pgx.Tx, q StepQuery) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE listing_id = $1 AND step = $2`
	args := []any{q.ListingID, q.Step}

	if q.SellerID != nil {
		query += fmt.Sprintf(" AND seller_id = $%d", len(args)+1)
		args = append(args, *q.SellerID)
	}
	if q.BuyerID != nil {
		query += fmt.Sprintf(" AND buyer_id = $%d", len(args)+1)
		args = append(args, *q.BuyerID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("document: list for step: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	return d, row.Scan(
		&d.ID,
		&d.Type,
		&d.Status,
		&d.Category,
		&d.Operation,
		&d.SellerID,
		&d.BuyerID,
		&d.ListingID,
		&d.UploadedByUserID,
		&d.URL,
		&d.FileName,
		&d.FileSize,
		&d.Step,
		&d.UploadedAt,
		&d.DownloadedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
}
