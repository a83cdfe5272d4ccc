package session

import (
	"time"

	"github.com/google/uuid"
)

// RepositoryID uniquely identifies a Repository. External textual form is
// a UUID; comparable for equality and usable as a map key.
type RepositoryID string

// NewRepositoryID generates a new time-sortable repository identifier.
func NewRepositoryID() RepositoryID {
	return RepositoryID(uuid.Must(uuid.NewV7()).String())
}

// SessionID uniquely identifies a Session.
type SessionID string

// NewSessionID generates a new time-sortable session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.Must(uuid.NewV7()).String())
}

// MessageID uniquely identifies a Message.
type MessageID string

// NewMessageID generates a new time-sortable message identifier.
func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewV7()).String())
}

// Repository is a registered working directory.
type Repository struct {
	ID             RepositoryID
	Path           string
	Name           string
	IsGit          bool
	LastAccessedAt time.Time
}

// RuntimeStatus is the agent/runtime status attached to a session. Stored
// as JSON (session_state.runtime_status) so new fields never require a
// migration.
type RuntimeStatus struct {
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is a conversational session scoped to a Repository.
//
// Lifecycle: created -> (updated*) -> (closed?) -> (deleted). A closed
// session is immutable thereafter except for deletion; closing does not
// reverse (there is no "reopen").
type Session struct {
	ID           SessionID
	RepositoryID RepositoryID
	Title        *string
	Closed       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is a single append-only entry in a session's log.
//
// SequenceNumber is dense, monotonic, and per-session, starting at 1. It
// is assigned atomically by the engine inside the commit transaction and
// must never be supplied by callers.
type Message struct {
	ID             MessageID
	SessionID      SessionID
	SequenceNumber int64
	Content        []byte
	Timestamp      time.Time
}

// NewMessage is the caller-supplied payload for Engine.Append. The engine
// assigns ID, SequenceNumber, and Timestamp; callers must not and cannot
// set them.
type NewMessage struct {
	Content []byte
}

// SessionSecret is an optional per-session content key. Its contents are
// opaque to the engine beyond record I/O - no encryption policy lives
// here.
type SessionSecret struct {
	SessionID  SessionID
	Nonce      []byte
	Ciphertext []byte
}

// OutboxStatus is the delivery state of an OutboxEntry.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
)

// OutboxEntry is queued external work. Durability and at-least-once
// hand-off are engine guarantees; actually consuming the entry is an
// external concern (out of scope).
type OutboxEntry struct {
	ID        int64
	SessionID SessionID
	Payload   []byte
	Status    OutboxStatus
	CreatedAt time.Time
}
