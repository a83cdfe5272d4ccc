package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ListRepositories returns every repository, ordered by path for
// deterministic output.
func (s *Store) ListRepositories(ctx context.Context) ([]Repository, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, path, name, is_git_repository, last_accessed_at
		FROM repositories ORDER BY path ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

// GetRepositoryByID returns a repository by ID, or sql.ErrNoRows.
func (s *Store) GetRepositoryByID(ctx context.Context, id string) (Repository, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, path, name, is_git_repository, last_accessed_at
		FROM repositories WHERE id = ?
	`, id)
	return scanRepositoryRow(row)
}

// GetRepositoryByPath returns a repository by path, or sql.ErrNoRows.
func (s *Store) GetRepositoryByPath(ctx context.Context, path string) (Repository, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, path, name, is_git_repository, last_accessed_at
		FROM repositories WHERE path = ?
	`, path)
	return scanRepositoryRow(row)
}

// ListSessions returns every session for a repository, oldest first.
func (s *Store) ListSessions(ctx context.Context, repositoryID string) ([]Session, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, repository_id, title, closed, created_at, updated_at
		FROM sessions WHERE repository_id = ? ORDER BY created_at ASC, id ASC
	`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListAllSessions returns every non-deleted session across all
// repositories, used to rebuild the snapshot.
func (s *Store) ListAllSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, repository_id, title, closed, created_at, updated_at
		FROM sessions ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession returns a session by ID, or sql.ErrNoRows.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, repository_id, title, closed, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	return scanSessionRow(row)
}

// ListMessages returns every message of a session, ordered by sequence
// number ascending.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, session_id, sequence_number, content, timestamp
		FROM messages WHERE session_id = ? ORDER BY sequence_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// ListAllMessages returns every message across every session, ordered by
// session then sequence number, used to rebuild the snapshot in one pass.
func (s *Store) ListAllMessages(ctx context.Context) ([]Message, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, session_id, sequence_number, content, timestamp
		FROM messages ORDER BY session_id ASC, sequence_number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// GetRuntimeStatus returns a session's runtime status, or sql.ErrNoRows.
func (s *Store) GetRuntimeStatus(ctx context.Context, sessionID string) (RuntimeStatus, error) {
	var payload string
	var updatedAtStr string
	err := s.readDB.QueryRowContext(ctx, `
		SELECT runtime_status, updated_at FROM session_state WHERE session_id = ?
	`, sessionID).Scan(&payload, &updatedAtStr)
	if err != nil {
		return RuntimeStatus{}, err
	}
	state, detail, updatedAt, err := unmarshalRuntimeStatus(payload)
	if err != nil {
		return RuntimeStatus{}, err
	}
	return RuntimeStatus{SessionID: sessionID, State: state, Detail: detail, UpdatedAt: updatedAt}, nil
}

// GetSessionSecret returns a session's secret, or sql.ErrNoRows.
func (s *Store) GetSessionSecret(ctx context.Context, sessionID string) (SessionSecret, error) {
	var secret SessionSecret
	secret.SessionID = sessionID
	err := s.readDB.QueryRowContext(ctx, `
		SELECT encrypted_secret, nonce FROM session_secrets WHERE session_id = ?
	`, sessionID).Scan(&secret.EncryptedSecret, &secret.Nonce)
	if err != nil {
		return SessionSecret{}, err
	}
	return secret, nil
}

// ListPendingOutbox returns up to limit pending outbox entries for a
// session, oldest first.
func (s *Store) ListPendingOutbox(ctx context.Context, sessionID string, limit int) ([]OutboxEntry, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, session_id, payload, status, created_at
		FROM outbox WHERE session_id = ? AND status = 'pending'
		ORDER BY id ASC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRepository(row scannable) (Repository, error) {
	var repo Repository
	var isGit int
	var lastAccessedAt string
	if err := row.Scan(&repo.ID, &repo.Path, &repo.Name, &isGit, &lastAccessedAt); err != nil {
		return Repository{}, fmt.Errorf("scan repository: %w", err)
	}
	repo.IsGit = isGit != 0
	t, err := parseTime(lastAccessedAt)
	if err != nil {
		return Repository{}, err
	}
	repo.LastAccessedAt = t
	return repo, nil
}

func scanRepositoryRow(row *sql.Row) (Repository, error) {
	return scanRepository(row)
}

func scanSession(row scannable) (Session, error) {
	var sess Session
	var title sql.NullString
	var closed int
	var createdAt, updatedAt string
	if err := row.Scan(&sess.ID, &sess.RepositoryID, &title, &closed, &createdAt, &updatedAt); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if title.Valid {
		t := title.String
		sess.Title = &t
	}
	sess.Closed = closed != 0
	ca, err := parseTime(createdAt)
	if err != nil {
		return Session{}, err
	}
	ua, err := parseTime(updatedAt)
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = ca
	sess.UpdatedAt = ua
	return sess, nil
}

func scanSessionRow(row *sql.Row) (Session, error) {
	return scanSession(row)
}

func scanMessage(row scannable) (Message, error) {
	var msg Message
	var ts string
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.SequenceNumber, &msg.Content, &ts); err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return Message{}, err
	}
	msg.Timestamp = t
	return msg, nil
}

func scanOutboxEntry(row scannable) (OutboxEntry, error) {
	var entry OutboxEntry
	var createdAt string
	if err := row.Scan(&entry.ID, &entry.SessionID, &entry.Payload, &entry.Status, &createdAt); err != nil {
		return OutboxEntry{}, fmt.Errorf("scan outbox entry: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return OutboxEntry{}, err
	}
	entry.CreatedAt = t
	return entry, nil
}
