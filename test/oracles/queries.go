package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_seller_cursor_consistent",
			SQL: `SELECT id, current_step, completed_steps FROM seller_progress
                  WHERE current_step <> COALESCE((SELECT max(x) FROM unnest(completed_steps) x), -1) + 1`,
		},
		{
			Name: "O2_buyer_cursor_consistent",
			SQL: `SELECT id, current_step, completed_steps FROM buyer_progress
                  WHERE current_step <> COALESCE((SELECT max(x) FROM unnest(completed_steps) x), -1) + 1`,
		},
		{
			Name: "O3_completed_steps_dense",
			SQL: `SELECT id, completed_steps FROM (
                      SELECT id, completed_steps FROM seller_progress
                      UNION ALL
                      SELECT id, completed_steps FROM buyer_progress) p
                  WHERE cardinality(completed_steps) > 0
                    AND (
                      (SELECT count(DISTINCT x) FROM unnest(completed_steps) x) <> cardinality(completed_steps)
                      OR (SELECT max(x) FROM unnest(completed_steps) x) <> cardinality(completed_steps) - 1
                      OR (SELECT min(x) FROM unnest(completed_steps) x) <> 0
                    )`,
		},
		{
			Name: "O4_document_status_derived",
			SQL: `SELECT id, operation, status, uploaded_at, downloaded_at FROM documents
                  WHERE (status = 'COMPLETED') <> (
                      CASE operation
                          WHEN 'UPLOAD' THEN uploaded_at IS NOT NULL
                          WHEN 'DOWNLOAD' THEN downloaded_at IS NOT NULL
                          WHEN 'BOTH' THEN uploaded_at IS NOT NULL AND downloaded_at IS NOT NULL
                          WHEN 'NONE' THEN true
                          ELSE false
                      END)`,
		},
		{
			Name: "O5_unique_checklist_per_listing",
			SQL: `SELECT listing_id, COUNT(*) FROM pre_close_checklists
                  GROUP BY listing_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_checklist_requires_contract",
			SQL: `SELECT c.id FROM pre_close_checklists c
                  JOIN listings l ON l.id = c.listing_id
                  WHERE l.status = 'ACTIVE'`,
		},
		{
			Name: "O7_unread_count_exact",
			SQL: `SELECT u.id, u.unread_count, actual.n FROM users u
                  JOIN LATERAL (
                      SELECT count(*) AS n FROM messages m
                      WHERE m.recipient_id = u.id AND m.read_at IS NULL) actual ON true
                  WHERE u.unread_count <> actual.n`,
		},
		{
			Name: "O8_thread_root_self",
			SQL: `SELECT m.id FROM messages m
                  WHERE (m.parent_id IS NULL AND m.thread_id <> m.id)
                     OR (m.parent_id IS NOT NULL AND m.thread_id <> (
                          SELECT p.thread_id FROM messages p WHERE p.id = m.parent_id))`,
		},
		{
			Name: "O9_outbox_not_stale",
			SQL: `SELECT id, topic, created_at FROM outbox
                  WHERE processed_at IS NULL AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
