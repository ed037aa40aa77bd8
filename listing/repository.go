package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no listing row exists for the identifier.
	ErrNotFound = errors.New("listing: not found")
	// ErrClosed rejects any write against a listing that has reached CLOSED.
	ErrClosed = errors.New("listing: closed")
	// ErrInvalidTransition signals an attempted status move outside the
	// one-way ACTIVE -> UNDER_CONTRACT -> CLOSED pipeline.
	ErrInvalidTransition = errors.New("listing: invalid status transition")
)

const listingColumns = `id, seller_id, title, status, created_at, updated_at`

// PGRepository implements listing persistence backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert creates a new ACTIVE listing inside the caller's transaction.
func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, l Listing) (Listing, error) {
	const query = `
		INSERT INTO listings (id, seller_id, title, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4)
		RETURNING ` + listingColumns

	return scanListing(tx.QueryRow(ctx, query, l.ID, l.SellerID, l.Title, StatusActive))
}

// Get reads a listing without locking it.
func (r *PGRepository) Get(ctx context.Context, id string) (Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: get: %w", err)
	}
	return l, nil
}

// GetForUpdate locks the listing row for the remainder of the transaction.
// Every cross-entity write serializes on this lock.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 FOR UPDATE`

	l, err := scanListing(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: get for update: %w", err)
	}
	return l, nil
}

// EnsureOpen locks the listing and fails with ErrClosed once the listing
// has reached CLOSED. Mutation entry points that reference a listing call
// this before writing.
func (r *PGRepository) EnsureOpen(ctx context.Context, tx pgx.Tx, id string) error {
	l, err := r.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if l.Status == StatusClosed {
		return ErrClosed
	}
	return nil
}

// Transition moves the listing to next after validating the move against
// the one-way pipeline, under the row lock taken by GetForUpdate.
func (r *PGRepository) Transition(ctx context.Context, tx pgx.Tx, id string, next Status) (Listing, error) {
	current, err := r.GetForUpdate(ctx, tx, id)
	if err != nil {
		return Listing{}, err
	}
	if !CanTransition(current.Status, next) {
		return Listing{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}

	const query = `
		UPDATE listings
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + listingColumns

	l, err := scanListing(tx.QueryRow(ctx, query, id, next))
	if err != nil {
		return Listing{}, fmt.Errorf("listing: update status: %w", err)
	}
	return l, nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	return l, row.Scan(
		&l.ID,
		&l.SellerID,
		&l.Title,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
}
