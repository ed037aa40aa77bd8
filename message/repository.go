package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no message row exists for the identifier.
	ErrNotFound = errors.New("message: not found")
)

const messageColumns = `id, listing_id, sender_id, recipient_id, parent_id, thread_id, body, read_at, created_at`

// Repository defines the data access the message service requires.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, m Message) (Message, error)
	InsertAttachment(ctx context.Context, tx pgx.Tx, a Attachment) (Attachment, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (Message, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Message, error)
	SetReadAt(ctx context.Context, tx pgx.Tx, id string, at time.Time) error
	RecomputeUnread(ctx context.Context, tx pgx.Tx, userID string) (int, error)
	ListThread(ctx context.Context, threadID string) ([]Message, error)
	ListInbox(ctx context.Context, userID string) ([]Message, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, m Message) (Message, error) {
	const query = `
		INSERT INTO messages (id, listing_id, sender_id, recipient_id, parent_id, thread_id, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + messageColumns

	row := tx.QueryRow(ctx, query,
		m.ID,
		m.ListingID,
		m.SenderID,
		m.RecipientID,
		m.ParentID,
		m.ThreadID,
		m.Body,
	)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("message: insert: %w", err)
	}
	return msg, nil
}

func (r *PGRepository) InsertAttachment(ctx context.Context, tx pgx.Tx, a Attachment) (Attachment, error) {
	const query = `
		INSERT INTO message_attachments (id, message_id, file_name, url, file_size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, message_id, file_name, url, file_size, created_at
	`

	row := tx.QueryRow(ctx, query, a.ID, a.MessageID, a.FileName, a.URL, a.FileSize)

	var out Attachment
	if err := row.Scan(&out.ID, &out.MessageID, &out.FileName, &out.URL, &out.FileSize, &out.CreatedAt); err != nil {
		return Attachment{}, fmt.Errorf("message: insert attachment: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, tx pgx.Tx, id string) (Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("message: get: %w", err)
	}
	return msg, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 FOR UPDATE`

	msg, err := scanMessage(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("message: get for update: %w", err)
	}
	return msg, nil
}

func (r *PGRepository) SetReadAt(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	const query = `UPDATE messages SET read_at = $2 WHERE id = $1`

	if _, err := tx.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("message: set read at: %w", err)
	}
	return nil
}

// RecomputeUnread derives the user's unread counter from the messages
// table and writes it to the users row, returning the new value. Running
// inside the sending or reading transaction keeps the counter exact.
func (r *PGRepository) RecomputeUnread(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	const query = `
		UPDATE users
		SET unread_count = (
			SELECT count(*) FROM messages
			WHERE recipient_id = $1 AND read_at IS NULL
		),
		updated_at = now()
		WHERE id = $1
		RETURNING unread_count
	`

	var count int
	if err := tx.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("message: recompute unread: no user %s", userID)
		}
		return 0, fmt.Errorf("message: recompute unread: %w", err)
	}
	return count, nil
}

// ListThread returns the whole conversation in one flat query, oldest
// first, with attachments populated.
func (r *PGRepository) ListThread(ctx context.Context, threadID string) ([]Message, error) {
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC
	`

	msgs, err := r.listMessages(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("message: list thread: %w", err)
	}
	if err := r.attachTo(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListInbox returns the messages addressed to the user, newest first.
func (r *PGRepository) ListInbox(ctx context.Context, userID string) ([]Message, error) {
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE recipient_id = $1
		ORDER BY created_at DESC
	`

	msgs, err := r.listMessages(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("message: list inbox: %w", err)
	}
	return msgs, nil
}

func (r *PGRepository) listMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (r *PGRepository) attachTo(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]string, len(msgs))
	index := make(map[string]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		index[m.ID] = i
	}

	const query = `
		SELECT id, message_id, file_name, url, file_size, created_at
		FROM message_attachments
		WHERE message_id = ANY($1)
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("message: list attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.FileName, &a.URL, &a.FileSize, &a.CreatedAt); err != nil {
			return fmt.Errorf("message: scan attachment: %w", err)
		}
		if i, ok := index[a.MessageID]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, a)
		}
	}
	return rows.Err()
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	return m, row.Scan(
		&m.ID,
		&m.ListingID,
		&m.SenderID,
		&m.RecipientID,
		&m.ParentID,
		&m.ThreadID,
		&m.Body,
		&m.ReadAt,
		&m.CreatedAt,
	)
}
