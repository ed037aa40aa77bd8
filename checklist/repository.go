package checklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no checklist row exists.
	ErrNotFound = errors.New("checklist: not found")
	// ErrAlreadyExists signals the one-checklist-per-listing invariant was hit.
	ErrAlreadyExists = errors.New("checklist: already exists for listing")
)

// Repository defines the data access the aggregator and the pipeline
// orchestrator require.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, c Checklist) (Checklist, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Checklist, error)
	GetByListing(ctx context.Context, listingID string) (Checklist, error)
	GetByListingForUpdate(ctx context.Context, tx pgx.Tx, listingID string) (Checklist, error)
	Update(ctx context.Context, tx pgx.Tx, c Checklist) (Checklist, error)
}

// PGRepository implements Repository backed by PostgreSQL. Item lists are
// persisted as versioned jsonb envelopes.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const checklistColumns = `id, listing_id, buyer_items, seller_items, broker_items, last_updated_by, created_at, updated_at`

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, c Checklist) (Checklist, error) {
	const query = `
		INSERT INTO pre_close_checklists (id, listing_id, buyer_items, seller_items, broker_items, last_updated_by)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		RETURNING ` + checklistColumns

	buyer, seller, broker, err := marshalLists(c)
	if err != nil {
		return Checklist{}, err
	}

	created, err := scanChecklist(tx.QueryRow(ctx, query, c.ID, c.ListingID, buyer, seller, broker, c.LastUpdatedBy))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Checklist{}, ErrAlreadyExists
		}
		return Checklist{}, fmt.Errorf("checklist: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Checklist, error) {
	const query = `SELECT ` + checklistColumns + ` FROM pre_close_checklists WHERE id = $1 FOR UPDATE`
	return r.get(tx.QueryRow(ctx, query, id), "get for update")
}

func (r *PGRepository) GetByListing(ctx context.Context, listingID string) (Checklist, error) {
	const query = `SELECT ` + checklistColumns + ` FROM pre_close_checklists WHERE listing_id = $1`
	return r.get(r.pool.QueryRow(ctx, query, listingID), "get by listing")
}

func (r *PGRepository) GetByListingForUpdate(ctx context.Context, tx pgx.Tx, listingID string) (Checklist, error) {
	const query = `SELECT ` + checklistColumns + ` FROM pre_close_checklists WHERE listing_id = $1 FOR UPDATE`
	return r.get(tx.QueryRow(ctx, query, listingID), "get by listing for update")
}

func (r *PGRepository) get(row pgx.Row, verb string) (Checklist, error) {
	c, err := scanChecklist(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Checklist{}, ErrNotFound
		}
		return Checklist{}, fmt.Errorf("checklist: %s: %w", verb, err)
	}
	return c, nil
}

func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, c Checklist) (Checklist, error) {
	const query = `
		UPDATE pre_close_checklists
		SET buyer_items = $2,
		    seller_items = $3,
		    broker_items = $4,
		    last_updated_by = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + checklistColumns

	buyer, seller, broker, err := marshalLists(c)
	if err != nil {
		return Checklist{}, err
	}

	updated, err := scanChecklist(tx.QueryRow(ctx, query, c.ID, buyer, seller, broker, c.LastUpdatedBy))
	if err != nil {
		return Checklist{}, fmt.Errorf("checklist: update: %w", err)
	}
	return updated, nil
}

func marshalLists(c Checklist) ([]byte, []byte, []byte, error) {
	encode := func(items []Item) ([]byte, error) {
		if items == nil {
			items = []Item{}
		}
		return json.Marshal(itemsDoc{Version: ItemsVersion, Items: items})
	}

	buyer, err := encode(c.BuyerItems)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checklist: marshal buyer items: %w", err)
	}
	seller, err := encode(c.SellerItems)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checklist: marshal seller items: %w", err)
	}
	broker, err := encode(c.BrokerItems)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checklist: marshal broker items: %w", err)
	}
	return buyer, seller, broker, nil
}

func scanChecklist(row pgx.Row) (Checklist, error) {
	var (
		c      Checklist
		buyer  []byte
		seller []byte
		broker []byte
	)
	err := row.Scan(
		&c.ID,
		&c.ListingID,
		&buyer,
		&seller,
		&broker,
		&c.LastUpdatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Checklist{}, err
	}

	if c.BuyerItems, err = decodeItems(buyer); err != nil {
		return Checklist{}, fmt.Errorf("checklist: decode buyer items: %w", err)
	}
	if c.SellerItems, err = decodeItems(seller); err != nil {
		return Checklist{}, fmt.Errorf("checklist: decode seller items: %w", err)
	}
	if c.BrokerItems, err = decodeItems(broker); err != nil {
		return Checklist{}, fmt.Errorf("checklist: decode broker items: %w", err)
	}
	return c, nil
}

func decodeItems(raw []byte) ([]Item, error) {
	if len(raw) == 0 {
		return []Item{}, nil
	}
	var doc itemsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Version > ItemsVersion {
		return nil, fmt.Errorf("unsupported items version %d", doc.Version)
	}
	if doc.Items == nil {
		doc.Items = []Item{}
	}
	return doc.Items, nil
}
