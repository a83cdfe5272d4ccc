package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertRepository inserts a new repository row.
func (s *Store) InsertRepository(ctx context.Context, repo Repository) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO repositories (id, path, name, is_git_repository, last_accessed_at)
			VALUES (?, ?, ?, ?, ?)
		`, repo.ID, repo.Path, repo.Name, boolToInt(repo.IsGit), formatTime(repo.LastAccessedAt))
		if err != nil {
			return fmt.Errorf("insert repository: %w", err)
		}
		return nil
	})
}

// DeleteRepository deletes a repository by ID, cascading to its
// sessions, messages, secrets, and outbox entries via foreign keys.
// Returns sql.ErrNoRows if no repository with that ID exists.
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete repository: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete repository rows affected: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// CreateSession inserts a new session row in the Open state.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, repository_id, title, closed, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?)
		`, sess.ID, sess.RepositoryID, sess.Title, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
}

// CloseSession marks a session closed. Returns sql.ErrNoRows if the
// session does not exist. Closing an already-closed session is a no-op
// that still succeeds (the engine layer checks its own closed-state index
// before calling this, to decide whether to emit a side-effect).
func (s *Store) CloseSession(ctx context.Context, id string, updatedAt time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE sessions SET closed = 1, updated_at = ? WHERE id = ?
		`, formatTime(updatedAt), id)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("close session rows affected: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// DeleteSession deletes a session by ID, cascading to its messages,
// secret, session state, and outbox entries via foreign keys.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete session rows affected: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// UpdateSessionTitle sets a session's title.
func (s *Store) UpdateSessionTitle(ctx context.Context, id string, title *string, updatedAt time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?
		`, title, formatTime(updatedAt), id)
		if err != nil {
			return fmt.Errorf("update session title: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update session title rows affected: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// InsertMessage computes the next dense sequence number for sessionID
// (MAX(sequence_number)+1 over committed messages) and inserts the
// message, all inside one transaction, per the Durable Log contract.
func (s *Store) InsertMessage(ctx context.Context, msg Message) (sequenceNumber int64, err error) {
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRowContext(ctx, `
			SELECT MAX(sequence_number) FROM messages WHERE session_id = ?
		`, msg.SessionID).Scan(&maxSeq); err != nil {
			return fmt.Errorf("compute next sequence: %w", err)
		}
		sequenceNumber = 1
		if maxSeq.Valid {
			sequenceNumber = maxSeq.Int64 + 1
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, sequence_number, content, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, msg.ID, msg.SessionID, sequenceNumber, normalizeContent(msg.Content), formatTime(msg.Timestamp))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sequenceNumber, nil
}

// SetRuntimeStatus upserts a session's runtime status.
func (s *Store) SetRuntimeStatus(ctx context.Context, sessionID, state, detail string, updatedAt time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		payload, err := marshalRuntimeStatus(state, detail, updatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_state (session_id, runtime_status, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET runtime_status = excluded.runtime_status, updated_at = excluded.updated_at
		`, sessionID, payload, formatTime(updatedAt))
		if err != nil {
			return fmt.Errorf("set runtime status: %w", err)
		}
		return nil
	})
}

// SetSessionSecret upserts a session's secret material.
func (s *Store) SetSessionSecret(ctx context.Context, secret SessionSecret) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_secrets (session_id, encrypted_secret, nonce)
			VALUES (?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET encrypted_secret = excluded.encrypted_secret, nonce = excluded.nonce
		`, secret.SessionID, secret.EncryptedSecret, secret.Nonce)
		if err != nil {
			return fmt.Errorf("set session secret: %w", err)
		}
		return nil
	})
}

// InsertOutboxEntry queues external work durably. Returns the assigned
// row ID.
func (s *Store) InsertOutboxEntry(ctx context.Context, sessionID string, payload []byte, createdAt time.Time) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (session_id, payload, status, created_at)
			VALUES (?, ?, 'pending', ?)
		`, sessionID, payload, formatTime(createdAt))
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert outbox entry last insert id: %w", err)
		}
		return nil
	})
	return id, err
}

// MarkOutboxSent marks the given outbox entries as sent.
func (s *Store) MarkOutboxSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE outbox SET status = 'sent' WHERE id = ?`, id); err != nil {
				return fmt.Errorf("mark outbox entry %d sent: %w", id, err)
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
