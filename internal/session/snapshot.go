package session

import "sort"

// SessionSnapshot is an immutable view of one session's full persisted
// message history as of the instant the enclosing Snapshot was built.
type SessionSnapshot struct {
	id       SessionID
	messages []Message
	closed   bool
	title    *string
	status   RuntimeStatus
}

// ID returns the session identifier.
func (s SessionSnapshot) ID() SessionID { return s.id }

// Messages returns all messages in the session, ordered by sequence
// number ascending. The returned slice must not be mutated by callers.
func (s SessionSnapshot) Messages() []Message { return s.messages }

// Closed reports whether the session was closed as of this snapshot.
func (s SessionSnapshot) Closed() bool { return s.closed }

// Title returns the session title as of this snapshot, if any.
func (s SessionSnapshot) Title() *string { return s.title }

// Status returns the session's runtime status as of this snapshot.
func (s SessionSnapshot) Status() RuntimeStatus { return s.status }

// MessageCount returns the number of messages in the session.
func (s SessionSnapshot) MessageCount() int { return len(s.messages) }

// LastMessageID returns the ID of the last message in sequence order, and
// false if the session has no messages yet.
func (s SessionSnapshot) LastMessageID() (MessageID, bool) {
	if len(s.messages) == 0 {
		return "", false
	}
	return s.messages[len(s.messages)-1].ID, true
}

// Snapshot is an immutable, shareable, whole-database projection of every
// non-deleted session and its messages. It is produced only by a rebuild
// (Engine.RefreshSnapshot or recovery at open), which replaces it
// atomically; any snapshot value already held by a reader never changes
// underneath them.
type Snapshot struct {
	sessions map[SessionID]SessionSnapshot
}

// emptySnapshot returns a Snapshot with no sessions.
func emptySnapshot() Snapshot {
	return Snapshot{sessions: map[SessionID]SessionSnapshot{}}
}

// Session returns the snapshot of a single session, and false if the
// session is absent from this snapshot (never existed, or was deleted
// before the snapshot was built).
func (s Snapshot) Session(id SessionID) (SessionSnapshot, bool) {
	sn, ok := s.sessions[id]
	return sn, ok
}

// SessionIDs returns every session ID present in the snapshot. Iteration
// order is unspecified; callers must not depend on it.
func (s Snapshot) SessionIDs() []SessionID {
	ids := make([]SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of sessions in the snapshot.
func (s Snapshot) Len() int { return len(s.sessions) }

// IsEmpty reports whether the snapshot has no sessions.
func (s Snapshot) IsEmpty() bool { return len(s.sessions) == 0 }

// buildSnapshot assembles a Snapshot from raw rows already ordered by
// session, and within each session by sequence number ascending (the
// durable log guarantees this ordering via its index on
// (session_id, sequence_number)).
func buildSnapshot(sessions []Session, messagesBySession map[SessionID][]Message, statusBySession map[SessionID]RuntimeStatus) Snapshot {
	out := make(map[SessionID]SessionSnapshot, len(sessions))
	for _, sess := range sessions {
		msgs := messagesBySession[sess.ID]
		sorted := make([]Message, len(msgs))
		copy(sorted, msgs)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].SequenceNumber < sorted[j].SequenceNumber
		})
		out[sess.ID] = SessionSnapshot{
			id:       sess.ID,
			messages: sorted,
			closed:   sess.Closed,
			title:    sess.Title,
			status:   statusBySession[sess.ID],
		}
	}
	return Snapshot{sessions: out}
}
