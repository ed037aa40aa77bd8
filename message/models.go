// Package message implements deal messaging between the parties of a
// listing. Messages form an arena keyed by id: each row optionally
// points back at its parent, and every row carries the id of its thread
// root so a whole conversation loads with one flat query. A user's
// unread counter lives on the users row and is recomputed inside the
// same transaction as every send and mark-read, never incremented in
// place.
package message

import "time"

// Message is one entry in a listing's conversation. ThreadID equals the
// id of the thread's root message; for a root message the two are the
// same value.
type Message struct {
	ID          string
	ListingID   string
	SenderID    string
	RecipientID string
	ParentID    *string
	ThreadID    string
	Body        string
	ReadAt      *time.Time
	CreatedAt   time.Time
	Attachments []Attachment
}

// Attachment is a file reference carried by a message. Bytes live in
// external storage; only the locator is persisted here.
type Attachment struct {
	ID        string
	MessageID string
	FileName  string
	URL       string
	FileSize  int64
	CreatedAt time.Time
}

// Read reports whether the recipient has seen the message.
func (m Message) Read() bool {
	return m.ReadAt != nil
}

// Root reports whether the message starts its thread.
func (m Message) Root() bool {
	return m.ParentID == nil
}
