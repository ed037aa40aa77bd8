package listing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dealflow/activity"
	"dealflow/authz"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service exposes listing reads and creation. Status transitions are not
// public here: they belong to the pipeline orchestrator, which composes
// them with checklist and progress writes in one transaction.
type Service struct {
	pool     TxBeginner
	repo     *PGRepository
	recorder activity.Recorder
	idGen    func() string
	now      func() time.Time
}

type CreateParams struct {
	SellerID string
	Title    string
}

func NewService(pool TxBeginner, repo *PGRepository, recorder activity.Recorder) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		recorder: recorder,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Create opens a new ACTIVE listing owned by the seller.
func (s *Service) Create(ctx context.Context, actor authz.Actor, params CreateParams) (Listing, error) {
	if actor.Role != authz.RoleSeller {
		return Listing{}, fmt.Errorf("listing: only sellers may create listings")
	}
	if params.SellerID == "" {
		return Listing{}, fmt.Errorf("listing: seller id required")
	}
	if params.Title == "" {
		return Listing{}, fmt.Errorf("listing: title required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Insert(ctx, tx, Listing{
		ID:       s.idGen(),
		SellerID: params.SellerID,
		Title:    params.Title,
	})
	if err != nil {
		return Listing{}, fmt.Errorf("listing: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("listing: commit: %w", err)
	}

	return created, nil
}

// Get returns the listing for the given identifier.
func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	return s.repo.Get(ctx, id)
}
