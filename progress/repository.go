package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no progress row exists for the identifier.
	ErrNotFound = errors.New("progress: not found")
	// ErrAlreadyInitialized signals the one-record-per-user invariant was hit.
	ErrAlreadyInitialized = errors.New("progress: already initialized for user")
)

const progressColumns = `id, user_id, current_step, completed_steps, selected_listing_id, created_at, updated_at`

// Repository defines the data access the tracker and the pipeline
// orchestrator require. Two PostgreSQL-backed instances exist, one per
// party table (seller_progress, buyer_progress).
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, p Progress) (Progress, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Progress, error)
	GetByUser(ctx context.Context, userID string) (Progress, error)
	Update(ctx context.Context, tx pgx.Tx, p Progress) (Progress, error)
}

// PGRepository implements Repository for one of the two progress tables.
type PGRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewSellerRepository stores progress rows in seller_progress.
func NewSellerRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, table: "seller_progress"}
}

// NewBuyerRepository stores progress rows in buyer_progress.
func NewBuyerRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, table: "buyer_progress"}
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, p Progress) (Progress, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, current_step, completed_steps, selected_listing_id)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
		RETURNING `+progressColumns, r.table)

	created, err := scanProgress(tx.QueryRow(ctx, query, p.ID, p.UserID, p.CurrentStep, p.CompletedSteps, p.SelectedListingID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Progress{}, ErrAlreadyInitialized
		}
		return Progress{}, fmt.Errorf("progress: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Progress, error) {
	query := fmt.Sprintf(`SELECT `+progressColumns+` FROM %s WHERE id = $1 FOR UPDATE`, r.table)

	p, err := scanProgress(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Progress{}, ErrNotFound
		}
		return Progress{}, fmt.Errorf("progress: get for update: %w", err)
	}
	return p, nil
}

func (r *PGRepository) GetByUser(ctx context.Context, userID string) (Progress, error) {
	query := fmt.Sprintf(`SELECT `+progressColumns+` FROM %s WHERE user_id = $1`, r.table)

	p, err := scanProgress(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Progress{}, ErrNotFound
		}
		return Progress{}, fmt.Errorf("progress: get by user: %w", err)
	}
	return p, nil
}

func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, p Progress) (Progress, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET current_step = $2,
		    completed_steps = $3,
		    selected_listing_id = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+progressColumns, r.table)

	updated, err := scanProgress(tx.QueryRow(ctx, query, p.ID, p.CurrentStep, p.CompletedSteps, p.SelectedListingID))
	if err != nil {
		return Progress{}, fmt.Errorf("progress: update: %w", err)
	}
	return updated, nil
}

func scanProgress(row pgx.Row) (Progress, error) {
	var p Progress
	return p, row.Scan(
		&p.ID,
		&p.UserID,
		&p.CurrentStep,
		&p.CompletedSteps,
		&p.SelectedListingID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}
