// Package pgtest provides in-memory stand-ins for pgxpool.Pool and pgx.Tx
// used by the service unit tests. Repositories are faked per package; the
// transaction itself only needs to record commit/rollback calls.
package pgtest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool satisfies the TxBeginner interfaces used by the domain services.
type Pool struct {
	Tx       *Tx
	BeginErr error
}

func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}
	p.Tx = &Tx{}
	return p.Tx, nil
}

// Tx records transaction outcomes. Query methods panic: unit tests route
// all data access through faked repositories, never raw SQL.
type Tx struct {
	Committed  bool
	RolledBack bool
	CommitErr  error
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("pgtest: nested transactions unsupported")
}

func (t *Tx) Commit(context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	t.RolledBack = true
	return nil
}

func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("pgtest: not implemented")
}

func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("pgtest: not implemented")
}

func (t *Tx) LargeObjects() pgx.LargeObjects {
	panic("pgtest: not implemented")
}

func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("pgtest: not implemented")
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("pgtest: not implemented")
}

func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("pgtest: not implemented")
}

func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("pgtest: not implemented")
}

func (t *Tx) Conn() *pgx.Conn {
	return nil
}
