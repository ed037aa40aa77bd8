package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dealflow/activity"
	"dealflow/authz"
)

var (
	// ErrNotRecipient rejects a mark-read by anyone but the addressee.
	ErrNotRecipient = errors.New("message: only the recipient may mark a message read")
	// ErrNotAuthorized rejects a send by a role without the capability.
	ErrNotAuthorized = errors.New("message: role may not send messages")
	// ErrThreadMismatch rejects a reply whose parent belongs to a
	// different listing.
	ErrThreadMismatch = errors.New("message: parent belongs to another listing")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ListingGuard locks a listing row and rejects writes once it is CLOSED.
// Implemented by listing.PGRepository.
type ListingGuard interface {
	EnsureOpen(ctx context.Context, tx pgx.Tx, listingID string) error
}

// Service sends and reads deal messages.
type Service struct {
	pool     TxBeginner
	repo     Repository
	listings ListingGuard
	recorder activity.Recorder
	idGen    func() string
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Repository, listings ListingGuard, recorder activity.Recorder) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		listings: listings,
		recorder: recorder,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AttachmentParams describes one file reference carried by a new message.
type AttachmentParams struct {
	FileName string
	URL      string
	FileSize int64
}

type SendParams struct {
	ListingID   string
	RecipientID string
	ParentID    *string
	Body        string
	Attachments []AttachmentParams
}

// Send delivers a message on an open listing. A reply inherits the
// parent's thread; a new message roots its own thread under its own id.
// The recipient's unread counter is recomputed in the same transaction.
func (s *Service) Send(ctx context.Context, actor authz.Actor, params SendParams) (Message, error) {
	if !authz.Allowed(actor.Role, authz.OpSendMessage) {
		return Message{}, fmt.Errorf("%w: %s", ErrNotAuthorized, actor.Role)
	}
	if params.ListingID == "" || params.RecipientID == "" {
		return Message{}, fmt.Errorf("message: listing id and recipient id required")
	}
	if params.RecipientID == actor.UserID {
		return Message{}, fmt.Errorf("message: cannot message yourself")
	}
	if params.Body == "" && len(params.Attachments) == 0 {
		return Message{}, fmt.Errorf("message: empty message")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("message: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.listings.EnsureOpen(ctx, tx, params.ListingID); err != nil {
		return Message{}, err
	}

	id := s.idGen()
	threadID := id
	if params.ParentID != nil {
		parent, err := s.repo.Get(ctx, tx, *params.ParentID)
		if err != nil {
			return Message{}, err
		}
		if parent.ListingID != params.ListingID {
			return Message{}, ErrThreadMismatch
		}
		threadID = parent.ThreadID
	}

	sent, err := s.repo.Insert(ctx, tx, Message{
		ID:          id,
		ListingID:   params.ListingID,
		SenderID:    actor.UserID,
		RecipientID: params.RecipientID,
		ParentID:    params.ParentID,
		ThreadID:    threadID,
		Body:        params.Body,
	})
	if err != nil {
		return Message{}, err
	}

	for _, ap := range params.Attachments {
		att, err := s.repo.InsertAttachment(ctx, tx, Attachment{
			ID:        s.idGen(),
			MessageID: sent.ID,
			FileName:  ap.FileName,
			URL:       ap.URL,
			FileSize:  ap.FileSize,
		})
		if err != nil {
			return Message{}, err
		}
		sent.Attachments = append(sent.Attachments, att)
	}

	if _, err := s.repo.RecomputeUnread(ctx, tx, params.RecipientID); err != nil {
		return Message{}, err
	}

	if s.recorder != nil {
		event := activity.Event{
			Type:      activity.TypeMessageSent,
			ActorID:   &actor.UserID,
			ListingID: &params.ListingID,
			Payload: map[string]any{
				"message_id":   sent.ID,
				"thread_id":    sent.ThreadID,
				"recipient_id": sent.RecipientID,
			},
		}
		if err := s.recorder.Record(ctx, tx, event); err != nil {
			return Message{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("message: commit: %w", err)
	}

	return sent, nil
}

// MarkRead stamps the read time on a message addressed to the actor and
// recomputes the actor's unread counter. Marking an already-read message
// is a no-op.
func (s *Service) MarkRead(ctx context.Context, actor authz.Actor, messageID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("message: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msg, err := s.repo.GetForUpdate(ctx, tx, messageID)
	if err != nil {
		return 0, err
	}
	if msg.RecipientID != actor.UserID {
		return 0, ErrNotRecipient
	}

	if msg.ReadAt == nil {
		if err := s.repo.SetReadAt(ctx, tx, msg.ID, s.now()); err != nil {
			return 0, err
		}
	}

	unread, err := s.repo.RecomputeUnread(ctx, tx, actor.UserID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("message: commit: %w", err)
	}

	return unread, nil
}

// Thread returns the full conversation containing threadID, oldest
// first, regardless of where in the thread the caller entered.
func (s *Service) Thread(ctx context.Context, threadID string) ([]Message, error) {
	return s.repo.ListThread(ctx, threadID)
}

// Inbox returns the messages addressed to the user, newest first.
func (s *Service) Inbox(ctx context.Context, userID string) ([]Message, error) {
	return s.repo.ListInbox(ctx, userID)
}
