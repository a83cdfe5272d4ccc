package session

import "sync"

// DeltaView is a point-in-time, cheap-to-clone view of the messages
// appended to a session since the last snapshot rebuild.
type DeltaView struct {
	messages []Message
}

// Messages returns the buffered messages in append (= commit) order.
func (v DeltaView) Messages() []Message { return v.messages }

// Len returns the number of buffered messages.
func (v DeltaView) Len() int { return len(v.messages) }

// IsEmpty reports whether the delta has no buffered messages.
func (v DeltaView) IsEmpty() bool { return len(v.messages) == 0 }

// sessionDelta is the mutable per-session delta state.
type sessionDelta struct {
	snapshotCursor MessageID // last message ID covered by the current snapshot
	messages       []Message
}

// deltaStore holds the per-session append-only buffers of messages
// committed since the snapshot cursor. Safe for concurrent use: appends
// take an exclusive lock, reads a shared one.
type deltaStore struct {
	mu     sync.RWMutex
	deltas map[SessionID]*sessionDelta
}

func newDeltaStore() *deltaStore {
	return &deltaStore{deltas: make(map[SessionID]*sessionDelta)}
}

// initSession sets up (or resets) a session's delta tracking, called
// during a snapshot rebuild once the session's messages are reflected in
// the new snapshot.
func (d *deltaStore) initSession(id SessionID, cursor MessageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deltas[id] = &sessionDelta{snapshotCursor: cursor}
}

// append records a message committed to the durable log. Must be called
// only after the corresponding commit has returned success, and in
// commit order.
func (d *deltaStore) append(id SessionID, msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sd, ok := d.deltas[id]
	if !ok {
		sd = &sessionDelta{}
		d.deltas[id] = sd
	}
	sd.messages = append(sd.messages, msg)
}

// get returns a clone of the buffered messages for a session. Concurrent
// with appends; never blocks on a write in progress for long.
func (d *deltaStore) get(id SessionID) DeltaView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sd, ok := d.deltas[id]
	if !ok {
		return DeltaView{}
	}
	out := make([]Message, len(sd.messages))
	copy(out, sd.messages)
	return DeltaView{messages: out}
}

// clear moves the snapshot cursor forward to the last buffered message
// and empties the buffer. Called once per session during a rebuild,
// after that session's messages have been folded into the new snapshot.
func (d *deltaStore) clear(id SessionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sd, ok := d.deltas[id]
	if !ok {
		return
	}
	if n := len(sd.messages); n > 0 {
		sd.snapshotCursor = sd.messages[n-1].ID
	}
	sd.messages = nil
}

// remove drops a session's delta tracking entirely, e.g. on session
// deletion.
func (d *deltaStore) remove(id SessionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.deltas, id)
}
