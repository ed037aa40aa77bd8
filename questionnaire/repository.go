package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when the seller has no questionnaire yet.
	ErrNotFound = errors.New("questionnaire: not found")
)

const questionnaireColumns = `id, seller_id, schema_version, sections, completed_at, created_at, updated_at`

// Repository defines the data access the questionnaire service requires.
type Repository interface {
	Upsert(ctx context.Context, q Questionnaire) (Questionnaire, error)
	GetBySeller(ctx context.Context, sellerID string) (Questionnaire, error)
	GetBySellerForUpdate(ctx context.Context, tx pgx.Tx, sellerID string) (Questionnaire, error)
	SetCompleted(ctx context.Context, tx pgx.Tx, id string, at time.Time) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Upsert writes the seller's questionnaire, replacing the sections of an
// existing draft in place. The unique seller_id constraint makes the row
// singular per seller.
func (r *PGRepository) Upsert(ctx context.Context, q Questionnaire) (Questionnaire, error) {
	sections, err := json.Marshal(q.Sections)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("questionnaire: marshal sections: %w", err)
	}

	const query = `
		INSERT INTO seller_questionnaires (id, seller_id, schema_version, sections)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (seller_id) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
		    sections = EXCLUDED.sections,
		    updated_at = now()
		RETURNING ` + questionnaireColumns

	saved, err := scanQuestionnaire(r.pool.QueryRow(ctx, query, q.ID, q.SellerID, q.SchemaVersion, sections))
	if err != nil {
		return Questionnaire{}, fmt.Errorf("questionnaire: upsert: %w", err)
	}
	return saved, nil
}

func (r *PGRepository) GetBySeller(ctx context.Context, sellerID string) (Questionnaire, error) {
	const query = `SELECT ` + questionnaireColumns + ` FROM seller_questionnaires WHERE seller_id = $1`

	q, err := scanQuestionnaire(r.pool.QueryRow(ctx, query, sellerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Questionnaire{}, ErrNotFound
		}
		return Questionnaire{}, fmt.Errorf("questionnaire: get by seller: %w", err)
	}
	return q, nil
}

func (r *PGRepository) GetBySellerForUpdate(ctx context.Context, tx pgx.Tx, sellerID string) (Questionnaire, error) {
	const query = `SELECT ` + questionnaireColumns + ` FROM seller_questionnaires WHERE seller_id = $1 FOR UPDATE`

	q, err := scanQuestionnaire(tx.QueryRow(ctx, query, sellerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Questionnaire{}, ErrNotFound
		}
		return Questionnaire{}, fmt.Errorf("questionnaire: get for update: %w", err)
	}
	return q, nil
}

func (r *PGRepository) SetCompleted(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	const query = `UPDATE seller_questionnaires SET completed_at = $2, updated_at = now() WHERE id = $1`

	if _, err := tx.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("questionnaire: set completed: %w", err)
	}
	return nil
}

func scanQuestionnaire(row pgx.Row) (Questionnaire, error) {
	var (
		q        Questionnaire
		sections []byte
	)
	err := row.Scan(
		&q.ID,
		&q.SellerID,
		&q.SchemaVersion,
		&sections,
		&q.CompletedAt,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return Questionnaire{}, err
	}
	if err := json.Unmarshal(sections, &q.Sections); err != nil {
		return Questionnaire{}, fmt.Errorf("questionnaire: decode sections: %w", err)
	}
	return q, nil
}
