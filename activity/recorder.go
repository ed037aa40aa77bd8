// Package activity persists the immutable activity feed and the
// transactional outbox rows that carry domain events to external
// consumers (notifications, analytics). Writes happen inside the
// caller's transaction so an event is visible exactly when the state
// change that produced it commits.
package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Domain event types emitted by the core.
const (
	TypeDocumentCompleted    = "document.completed"
	TypeStepCompleted        = "step.completed"
	TypeChecklistCreated     = "checklist.created"
	TypeChecklistReady       = "checklist.ready"
	TypeListingUnderContract = "listing.under_contract"
	TypeListingClosed        = "listing.closed"
	TypeMessageSent          = "message.sent"
)

// Event is one domain occurrence worth surfacing to users.
type Event struct {
	Type      string
	ActorID   *string
	ListingID *string
	Payload   map[string]any
}

// Recorder is satisfied by PGRecorder in production. Services tolerate a
// nil Recorder; event delivery is fire-and-forget from their point of view.
type Recorder interface {
	Record(ctx context.Context, tx pgx.Tx, e Event) error
}

// PGRecorder appends activity and outbox rows.
type PGRecorder struct{}

func NewRecorder() *PGRecorder {
	return &PGRecorder{}
}

// Record inserts one activities row and enqueues a matching outbox
// message with the event type as topic.
func (r *PGRecorder) Record(ctx context.Context, tx pgx.Tx, e Event) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("activity: marshal payload: %w", err)
	}

	var actorID, listingID any
	if e.ActorID != nil && *e.ActorID != "" {
		actorID = *e.ActorID
	}
	if e.ListingID != nil && *e.ListingID != "" {
		listingID = *e.ListingID
	}

	const activitySQL = `
		INSERT INTO activities (type, actor_id, listing_id, payload)
		VALUES ($1, $2::uuid, $3::uuid, $4::jsonb)
	`
	if _, err := tx.Exec(ctx, activitySQL, e.Type, actorID, listingID, body); err != nil {
		return fmt.Errorf("activity: insert activity: %w", err)
	}

	const outboxSQL = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, outboxSQL, e.Type, body); err != nil {
		return fmt.Errorf("activity: enqueue outbox: %w", err)
	}

	return nil
}
