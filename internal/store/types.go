package store

import "time"

// Repository mirrors one row of the repositories table.
type Repository struct {
	ID             string
	Path           string
	Name           string
	IsGit          bool
	LastAccessedAt time.Time
}

// Session mirrors one row of the sessions table.
type Session struct {
	ID           string
	RepositoryID string
	Title        *string
	Closed       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message mirrors one row of the messages table.
type Message struct {
	ID             string
	SessionID      string
	SequenceNumber int64
	Content        []byte
	Timestamp      time.Time
}

// RuntimeStatus mirrors one row of the session_state table.
type RuntimeStatus struct {
	SessionID string
	State     string
	Detail    string
	UpdatedAt time.Time
}

// SessionSecret mirrors one row of the session_secrets table.
type SessionSecret struct {
	SessionID       string
	EncryptedSecret []byte
	Nonce           []byte
}

// OutboxEntry mirrors one row of the outbox table.
type OutboxEntry struct {
	ID        int64
	SessionID string
	Payload   []byte
	Status    string
	CreatedAt time.Time
}
