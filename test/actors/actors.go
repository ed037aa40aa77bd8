package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Uploader stamps uploads on random pending documents of the listing,
// deriving the status in the same statement the way the service does.
func Uploader(ctx context.Context, pool *pgxpool.Pool, listingID, uploaderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var docID string
		err = tx.QueryRow(ctx, `SELECT id FROM documents
                                 WHERE listing_id=$1 AND status='PENDING' AND operation IN ('UPLOAD','BOTH')
                                 ORDER BY random() LIMIT 1 FOR UPDATE SKIP LOCKED`, listingID).Scan(&docID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE documents
                SET uploaded_at = now(),
                    uploaded_by_user_id = $2,
                    url = 'stress://' || id::text,
                    file_name = 'stress.pdf',
                    status = CASE WHEN operation = 'UPLOAD' OR downloaded_at IS NOT NULL THEN 'COMPLETED' ELSE 'PENDING' END,
                    updated_at = now()
                WHERE id=$1`, docID, uploaderID)
			if err == nil {
				_ = tx.Commit(ctx)
			}
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("uploader: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Downloader stamps downloads on documents that still owe one.
func Downloader(ctx context.Context, pool *pgxpool.Pool, listingID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var docID string
		err = tx.QueryRow(ctx, `SELECT id FROM documents
                                 WHERE listing_id=$1 AND downloaded_at IS NULL AND operation IN ('DOWNLOAD','BOTH')
                                 ORDER BY random() LIMIT 1 FOR UPDATE SKIP LOCKED`, listingID).Scan(&docID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE documents
                SET downloaded_at = now(),
                    status = CASE WHEN operation = 'DOWNLOAD' OR uploaded_at IS NOT NULL THEN 'COMPLETED' ELSE 'PENDING' END,
                    updated_at = now()
                WHERE id=$1`, docID)
			if err == nil {
				_ = tx.Commit(ctx)
			}
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("downloader: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Advancer races to complete the current step once its documents are all
// COMPLETED, mirroring the orchestrator's single-transaction advance.
func Advancer(ctx context.Context, pool *pgxpool.Pool, table, userID, listingID string, finalStep int, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var current int
		err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT current_step FROM %s WHERE user_id=$1 FOR UPDATE`, table), userID).Scan(&current)
		if err == nil && current <= finalStep {
			var pending int
			err = tx.QueryRow(ctx, `SELECT count(*) FROM documents
                                     WHERE listing_id=$1 AND step=$2 AND status='PENDING'`, listingID, current).Scan(&pending)
			if err == nil && pending == 0 {
				_, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE %s
                    SET completed_steps = completed_steps || $2::int,
                        current_step = LEAST($2 + 1, $3 + 1),
                        updated_at = now()
                    WHERE user_id=$1`, table), userID, current, finalStep)
				if err == nil {
					_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('step.completed', jsonb_build_object('user_id',$1,'step',$2))`, userID, current)
					_ = tx.Commit(ctx)
				}
			}
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("advancer %s: %w", table, err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Messenger sends messages between the two users and recomputes the
// recipient's unread counter in the same transaction.
func Messenger(ctx context.Context, pool *pgxpool.Pool, listingID, senderID, recipientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var msgID string
		// a root message threads under its own id
		err = tx.QueryRow(ctx, `INSERT INTO messages (id, listing_id, sender_id, recipient_id, thread_id, body)
                                 SELECT g.uid, $1, $2, $3, g.uid, 'stress message'
                                 FROM (SELECT gen_random_uuid() AS uid) g
                                 RETURNING id`, listingID, senderID, recipientID).Scan(&msgID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE users SET unread_count = (
                    SELECT count(*) FROM messages WHERE recipient_id=$1 AND read_at IS NULL)
                WHERE id=$1`, recipientID)
		}
		if err == nil {
			_ = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if err != nil {
			return fmt.Errorf("messenger: %w", err)
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

// Reader marks random unread messages read, recomputing the counter in
// the same transaction so it races Messenger over the same users row.
func Reader(ctx context.Context, pool *pgxpool.Pool, recipientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var msgID string
		err = tx.QueryRow(ctx, `SELECT id FROM messages
                                 WHERE recipient_id=$1 AND read_at IS NULL
                                 ORDER BY random() LIMIT 1 FOR UPDATE SKIP LOCKED`, recipientID).Scan(&msgID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE messages SET read_at = now() WHERE id=$1`, msgID)
			if err == nil {
				_, err = tx.Exec(ctx, `UPDATE users SET unread_count = (
                        SELECT count(*) FROM messages WHERE recipient_id=$1 AND read_at IS NULL)
                    WHERE id=$1`, recipientID)
			}
			if err == nil {
				_ = tx.Commit(ctx)
			}
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reader: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// Contractor races to move the listing under contract and create its
// checklist; the unique listing_id constraint keeps the checklist singular.
func Contractor(ctx context.Context, pool *pgxpool.Pool, listingID, brokerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var status string
		err = tx.QueryRow(ctx, `SELECT status FROM listings WHERE id=$1 FOR UPDATE`, listingID).Scan(&status)
		if err == nil && status == "ACTIVE" {
			_, err = tx.Exec(ctx, `UPDATE listings SET status='UNDER_CONTRACT', updated_at=now() WHERE id=$1`, listingID)
			if err == nil {
				_, err = tx.Exec(ctx, `INSERT INTO pre_close_checklists (id, listing_id, buyer_items, seller_items, broker_items, last_updated_by)
                    VALUES (gen_random_uuid(), $1,
                            '{"version":1,"items":[{"label":"Final walkthrough","done":false,"note":""}]}',
                            '{"version":1,"items":[{"label":"Hand over keys","done":false,"note":""}]}',
                            '{"version":1,"items":[{"label":"Escrow funded","done":false,"note":""}]}',
                            $2)
                    ON CONFLICT (listing_id) DO NOTHING`, listingID, brokerID)
			}
			if err == nil {
				_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('listing.under_contract', jsonb_build_object('listing_id',$1))`, listingID)
				_ = tx.Commit(ctx)
			}
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("contractor: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}

// Toggler flips random checklist items under the row lock.
func Toggler(ctx context.Context, pool *pgxpool.Pool, listingID, userID string, stop <-chan struct{}) error {
	lists := []string{"buyer_items", "seller_items", "broker_items"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		list := lists[rand.Intn(len(lists))]
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var checklistID string
		err = tx.QueryRow(ctx, `SELECT id FROM pre_close_checklists WHERE listing_id=$1 FOR UPDATE`, listingID).Scan(&checklistID)
		if err == nil {
			_, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE pre_close_checklists
                SET %s = jsonb_set(%s, '{items,0,done}', to_jsonb(random() < 0.5)),
                    last_updated_by = $2,
                    updated_at = now()
                WHERE id = $1 AND jsonb_array_length(%s->'items') > 0`, list, list, list), checklistID, userID)
			if err == nil {
				_ = tx.Commit(ctx)
			}
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("toggler: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

// OutboxWorker consumes unprocessed outbox rows with SKIP LOCKED.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE processed_at IS NULL ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]int64, 0, 10)
		for rows.Next() {
			var id int64
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			_, _ = tx.Exec(ctx, `UPDATE outbox SET processed_at = now() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
