package session

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sessiond/internal/store"
)

// Engine is the single public entry point of the session engine. It
// serializes writes behind writeMu and orchestrates the commit pipeline
// (durable log → delta → hub → sink) for every writing operation.
//
// Thread-safety model:
//   - Writing methods (CreateRepository, Append, ...) take writeMu: calls
//     are serialized into a single total commit order.
//   - Reading methods (Snapshot, Delta, Subscribe, ...) never take writeMu.
type Engine struct {
	store *store.Store
	clock func() time.Time
	log   *slog.Logger

	writeMu sync.Mutex
	// sessions is the write-path's lightweight existence/closed index. It
	// is kept current on every write and wholesale-replaced on every
	// rebuild, but it is never exposed to callers: it exists only so
	// writing methods can validate a session without mutating Snapshot,
	// which per §4.2 is produced by rebuild alone. Accessed only while
	// writeMu is held.
	sessions map[SessionID]sessionState

	snapMu sync.RWMutex
	snap   Snapshot

	deltas *deltaStore
	hub    *liveHub
	sink   Sink
}

// sessionState is the write path's minimal view of a session: just enough
// to validate Append/CloseSession/UpdateSessionTitle/SetRuntimeStatus
// calls without a round trip to the durable log or any mutation of the
// read-only Snapshot.
type sessionState struct {
	repositoryID RepositoryID
	closed       bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSink installs the side-effect sink used for every writing operation
// after Open/OpenInMemory completes recovery. Defaults to NullSink.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithLogger overrides the engine's structured logger. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithClock overrides the engine's time source. Defaults to time.Now.
// Intended for tests that need deterministic timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// Open opens (or creates) the durable log at path and recovers engine
// state from it. Recovery rebuilds the snapshot and initializes delta
// cursors but emits zero side-effects and zero live notifications,
// regardless of any sink supplied via WithSink: the caller's sink is
// installed only after recovery completes.
func Open(path string, opts ...Option) (*Engine, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, NewInternalError("open durable log", err)
	}
	return newEngine(st, opts...)
}

// OpenInMemory opens an in-memory durable log, for tests and ephemeral
// sessions. See Open for recovery semantics.
func OpenInMemory(opts ...Option) (*Engine, error) {
	st, err := store.OpenInMemory()
	if err != nil {
		return nil, NewInternalError("open in-memory durable log", err)
	}
	return newEngine(st, opts...)
}

func newEngine(st *store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    st,
		clock:    time.Now,
		log:      slog.Default(),
		sessions: make(map[SessionID]sessionState),
		deltas:   newDeltaStore(),
		hub:      newLiveHub(),
		sink:     NullSink{},
	}

	if err := e.recover(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Close releases the underlying durable log connections.
func (e *Engine) Close() error {
	return e.store.Close()
}

// recover rebuilds the snapshot and delta cursors from the durable log
// with the sink forced to NullSink, per the zero-side-effect recovery
// contract (§4.1, invariant 8).
func (e *Engine) recover(ctx context.Context) error {
	prevSink := e.sink
	e.sink = NullSink{}
	defer func() { e.sink = prevSink }()

	return e.rebuildSnapshotLocked(ctx)
}

// RefreshSnapshot manually rebuilds the snapshot from the durable log and
// resets every session's delta cursor to the new snapshot boundary. It is
// a read-path operation with respect to the sink (emits nothing) but
// mutates shared snapshot/delta state, so it takes writeMu to stay
// ordered with respect to concurrent writes.
func (e *Engine) RefreshSnapshot(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.rebuildSnapshotLocked(ctx)
}

// rebuildSnapshotLocked is the engine's *only* producer of Snapshot
// values, per §4.2 ("a snapshot is produced by one operation: rebuild").
// Writing methods never mutate e.snap directly; a caller that wants a
// write reflected in Snapshot() must call RefreshSnapshot (or rely on the
// next recovery). It also rebuilds the write-path's session index
// wholesale from the durable log, since that index's source of truth is
// the log, not an incremental cache.
func (e *Engine) rebuildSnapshotLocked(ctx context.Context) error {
	sessions, err := e.store.ListAllSessions(ctx)
	if err != nil {
		return NewInternalError("list sessions for rebuild", err)
	}
	messages, err := e.store.ListAllMessages(ctx)
	if err != nil {
		return NewInternalError("list messages for rebuild", err)
	}

	messagesBySession := make(map[SessionID][]Message)
	for _, m := range messages {
		sid := SessionID(m.SessionID)
		messagesBySession[sid] = append(messagesBySession[sid], toDomainMessage(m))
	}

	statusBySession := make(map[SessionID]RuntimeStatus)
	sessDomain := make([]Session, 0, len(sessions))
	sessionIndex := make(map[SessionID]sessionState, len(sessions))
	for _, s := range sessions {
		sid := SessionID(s.ID)
		sessDomain = append(sessDomain, toDomainSession(s))
		sessionIndex[sid] = sessionState{repositoryID: RepositoryID(s.RepositoryID), closed: s.Closed}

		rs, err := e.store.GetRuntimeStatus(ctx, s.ID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return NewInternalError("load runtime status for rebuild", err)
			}
			continue
		}
		statusBySession[sid] = toDomainRuntimeStatus(rs)
	}

	snap := buildSnapshot(sessDomain, messagesBySession, statusBySession)

	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()

	e.sessions = sessionIndex

	for sid, msgs := range messagesBySession {
		e.deltas.initSession(sid, "")
		if n := len(msgs); n > 0 {
			e.deltas.append(sid, msgs[n-1])
			e.deltas.clear(sid)
		}
	}

	return nil
}

// Snapshot returns the snapshot produced by the most recent rebuild
// (construction-time recovery or an explicit RefreshSnapshot). It does
// not reflect writes committed since that rebuild: those are visible
// through Delta and Subscribe instead, per §4.2/invariant 5. The returned
// value never changes, even if a newer snapshot is installed afterward.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// Delta returns the buffered messages committed for sessionID since the
// last snapshot rebuild.
func (e *Engine) Delta(sessionID SessionID) DeltaView {
	return e.deltas.get(sessionID)
}

// Subscribe registers a new live subscription for sessionID. It yields
// only messages appended after this call returns.
func (e *Engine) Subscribe(sessionID SessionID) *Subscription {
	return e.hub.subscribe(sessionID)
}

// SubscriberCount reports the number of live subscribers of sessionID.
func (e *Engine) SubscriberCount(sessionID SessionID) int {
	return e.hub.subscriberCount(sessionID)
}

// CreateRepository registers a new repository and emits RepositoryCreated.
func (e *Engine) CreateRepository(ctx context.Context, path, name string, isGit bool) (RepositoryID, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	id := NewRepositoryID()
	now := e.clock()
	err := e.store.InsertRepository(ctx, store.Repository{
		ID:             string(id),
		Path:           path,
		Name:           name,
		IsGit:          isGit,
		LastAccessedAt: now,
	})
	if err != nil {
		return "", NewInternalError("insert repository", err)
	}

	e.emit(SideEffect{Kind: KindRepositoryCreated, RepositoryID: id})
	return id, nil
}

// DeleteRepository deletes a repository and every session it owns,
// cascading at the durable-log level. Returns NewNotFoundError if no
// such repository exists.
func (e *Engine) DeleteRepository(ctx context.Context, id RepositoryID) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	sessions, err := e.store.ListSessions(ctx, string(id))
	if err != nil {
		return NewInternalError("list sessions before repository delete", err)
	}

	if err := e.store.DeleteRepository(ctx, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError("repository not found")
		}
		return NewInternalError("delete repository", err)
	}

	for _, s := range sessions {
		sid := SessionID(s.ID)
		delete(e.sessions, sid)
		e.deltas.remove(sid)
		e.hub.closeSession(sid)
	}

	e.emit(SideEffect{Kind: KindRepositoryDeleted, RepositoryID: id})
	return nil
}

// ListRepositories returns every registered repository.
func (e *Engine) ListRepositories(ctx context.Context) ([]Repository, error) {
	repos, err := e.store.ListRepositories(ctx)
	if err != nil {
		return nil, NewInternalError("list repositories", err)
	}
	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, toDomainRepository(r))
	}
	return out, nil
}

// GetRepositoryByID returns a repository by ID.
func (e *Engine) GetRepositoryByID(ctx context.Context, id RepositoryID) (Repository, error) {
	r, err := e.store.GetRepositoryByID(ctx, string(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Repository{}, NewNotFoundError("repository not found")
		}
		return Repository{}, NewInternalError("get repository", err)
	}
	return toDomainRepository(r), nil
}

// GetRepositoryByPath returns a repository by path.
func (e *Engine) GetRepositoryByPath(ctx context.Context, path string) (Repository, error) {
	r, err := e.store.GetRepositoryByPath(ctx, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Repository{}, NewNotFoundError("repository not found")
		}
		return Repository{}, NewInternalError("get repository", err)
	}
	return toDomainRepository(r), nil
}

// CreateSession creates a new, open session scoped to repositoryID and
// emits SessionCreated. The new session is immediately visible to Append
// and friends via the write-path session index, but does not appear in
// Snapshot() until the next rebuild.
func (e *Engine) CreateSession(ctx context.Context, repositoryID RepositoryID) (SessionID, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	id := NewSessionID()
	now := e.clock()
	err := e.store.CreateSession(ctx, store.Session{
		ID:           string(id),
		RepositoryID: string(repositoryID),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return "", NewInternalError("create session", err)
	}

	e.sessions[id] = sessionState{repositoryID: repositoryID}
	e.deltas.initSession(id, "")

	e.emit(SideEffect{Kind: KindSessionCreated, SessionID: id})
	return id, nil
}

// CloseSession closes a session permanently. Closing an already-closed
// session is a no-op that emits nothing, per §4.5. Closing a missing
// session fails with NewNotFoundError.
func (e *Engine) CloseSession(ctx context.Context, id SessionID) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	st, ok := e.sessionLocked(id)
	if !ok {
		return NewNotFoundError("session not found")
	}
	if st.closed {
		return nil
	}

	now := e.clock()
	if err := e.store.CloseSession(ctx, string(id), now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError("session not found")
		}
		return NewInternalError("close session", err)
	}

	st.closed = true
	e.sessions[id] = st
	e.hub.closeSession(id)

	e.emit(SideEffect{Kind: KindSessionClosed, SessionID: id})
	return nil
}

// DeleteSession deletes a session and its messages. Terminal: the ID is
// never reused.
func (e *Engine) DeleteSession(ctx context.Context, id SessionID) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.store.DeleteSession(ctx, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError("session not found")
		}
		return NewInternalError("delete session", err)
	}

	delete(e.sessions, id)
	e.deltas.remove(id)
	e.hub.closeSession(id)

	e.emit(SideEffect{Kind: KindSessionDeleted, SessionID: id})
	return nil
}

// UpdateSessionTitle sets a session's title and emits SessionUpdated.
// Updating to an identical title still emits: the write succeeded, and
// §4.5 ties emission to successful writes, not to observable change.
// Fails with NewInvalidStateError if the session is closed.
func (e *Engine) UpdateSessionTitle(ctx context.Context, id SessionID, title *string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	st, ok := e.sessionLocked(id)
	if !ok {
		return NewNotFoundError("session not found")
	}
	if st.closed {
		return NewInvalidStateError("session is closed")
	}

	now := e.clock()
	if err := e.store.UpdateSessionTitle(ctx, string(id), title, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError("session not found")
		}
		return NewInternalError("update session title", err)
	}

	e.emit(SideEffect{Kind: KindSessionUpdated, SessionID: id})
	return nil
}

// Append commits a new message to sessionID, assigning its sequence
// number atomically inside the durable-log transaction, then runs the
// commit pipeline: delta append, hub notify, sink emit. The message is
// folded into Delta and pushed to live subscribers immediately, but does
// not appear in Snapshot() until the next rebuild, per §4.2. Fails with
// NewInvalidStateError if the session is closed, NewNotFoundError if it
// does not exist.
func (e *Engine) Append(ctx context.Context, sessionID SessionID, msg NewMessage) (Message, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	st, ok := e.sessionLocked(sessionID)
	if !ok {
		return Message{}, NewNotFoundError("session not found")
	}
	if st.closed {
		return Message{}, NewInvalidStateError("session is closed")
	}

	id := NewMessageID()
	now := e.clock()
	// The durable log stores NFC-normalized content; the returned message,
	// delta, hub and sink carry the same committed bytes.
	content := norm.NFC.Bytes(msg.Content)
	seq, err := e.store.InsertMessage(ctx, store.Message{
		ID:        string(id),
		SessionID: string(sessionID),
		Content:   content,
		Timestamp: now,
	})
	if err != nil {
		return Message{}, NewInternalError("insert message", err)
	}

	appended := Message{
		ID:             id,
		SessionID:      sessionID,
		SequenceNumber: seq,
		Content:        content,
		Timestamp:      now,
	}

	// From here on the commit is already durable; a panic in any of
	// these derived-state steps is logged and swallowed, never
	// propagated as a failure of Append (§4.6 step 8 commentary, §7).
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Warn("append: post-commit step failed", "session_id", sessionID, "message_id", id, "panic", r)
			}
		}()
		e.deltas.append(sessionID, appended)
		e.hub.notify(sessionID, appended)
		e.emit(SideEffect{
			Kind:           KindMessageAppended,
			SessionID:      sessionID,
			MessageID:      id,
			SequenceNumber: seq,
			Content:        appended.Content,
		})
	}()

	return appended, nil
}

// SetRuntimeStatus sets a session's runtime status and emits
// RuntimeStatusUpdated. Setting an identical status still emits, mirroring
// UpdateSessionTitle's rationale. Fails with NewInvalidStateError if the
// session is closed.
func (e *Engine) SetRuntimeStatus(ctx context.Context, sessionID SessionID, state, detail string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	st, ok := e.sessionLocked(sessionID)
	if !ok {
		return NewNotFoundError("session not found")
	}
	if st.closed {
		return NewInvalidStateError("session is closed")
	}

	now := e.clock()
	if err := e.store.SetRuntimeStatus(ctx, string(sessionID), state, detail, now); err != nil {
		return NewInternalError("set runtime status", err)
	}

	e.emit(SideEffect{
		Kind:          KindRuntimeStatusUpdated,
		SessionID:     sessionID,
		RuntimeStatus: RuntimeStatus{State: state, Detail: detail, UpdatedAt: now},
	})
	return nil
}

// GetRuntimeStatus returns a session's current runtime status.
func (e *Engine) GetRuntimeStatus(ctx context.Context, sessionID SessionID) (RuntimeStatus, error) {
	rs, err := e.store.GetRuntimeStatus(ctx, string(sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RuntimeStatus{}, NewNotFoundError("runtime status not set")
		}
		return RuntimeStatus{}, NewInternalError("get runtime status", err)
	}
	return toDomainRuntimeStatus(rs), nil
}

// SetSessionSecret upserts a session's secret material. This does not go
// through the commit pipeline: it has no corresponding SideEffect variant
// in the closed set (§4.5), so nothing is emitted.
func (e *Engine) SetSessionSecret(ctx context.Context, secret SessionSecret) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return e.store.SetSessionSecret(ctx, store.SessionSecret{
		SessionID:       string(secret.SessionID),
		EncryptedSecret: secret.Ciphertext,
		Nonce:           secret.Nonce,
	})
}

// GetSessionSecret returns a session's secret material.
func (e *Engine) GetSessionSecret(ctx context.Context, sessionID SessionID) (SessionSecret, error) {
	s, err := e.store.GetSessionSecret(ctx, string(sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionSecret{}, NewNotFoundError("session secret not set")
		}
		return SessionSecret{}, NewInternalError("get session secret", err)
	}
	return SessionSecret{SessionID: sessionID, Nonce: s.Nonce, Ciphertext: s.EncryptedSecret}, nil
}

// HasSessionSecret reports whether sessionID has secret material set.
func (e *Engine) HasSessionSecret(ctx context.Context, sessionID SessionID) (bool, error) {
	_, err := e.GetSessionSecret(ctx, sessionID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSessions returns every session owned by repositoryID.
func (e *Engine) ListSessions(ctx context.Context, repositoryID RepositoryID) ([]Session, error) {
	sessions, err := e.store.ListSessions(ctx, string(repositoryID))
	if err != nil {
		return nil, NewInternalError("list sessions", err)
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toDomainSession(s))
	}
	return out, nil
}

// GetSession returns a session by ID.
func (e *Engine) GetSession(ctx context.Context, id SessionID) (Session, error) {
	s, err := e.store.GetSession(ctx, string(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, NewNotFoundError("session not found")
		}
		return Session{}, NewInternalError("get session", err)
	}
	return toDomainSession(s), nil
}

// InsertOutboxEntry durably queues an external work item for sessionID.
func (e *Engine) InsertOutboxEntry(ctx context.Context, sessionID SessionID, payload []byte) (int64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.store.InsertOutboxEntry(ctx, string(sessionID), payload, e.clock())
}

// ListPendingOutbox returns up to limit pending outbox entries for
// sessionID, oldest first.
func (e *Engine) ListPendingOutbox(ctx context.Context, sessionID SessionID, limit int) ([]OutboxEntry, error) {
	entries, err := e.store.ListPendingOutbox(ctx, string(sessionID), limit)
	if err != nil {
		return nil, NewInternalError("list pending outbox", err)
	}
	out := make([]OutboxEntry, 0, len(entries))
	for _, en := range entries {
		out = append(out, OutboxEntry{
			ID:        en.ID,
			SessionID: SessionID(en.SessionID),
			Payload:   en.Payload,
			Status:    OutboxStatus(en.Status),
			CreatedAt: en.CreatedAt,
		})
	}
	return out, nil
}

// MarkOutboxSent marks the given outbox entries as sent.
func (e *Engine) MarkOutboxSent(ctx context.Context, ids []int64) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.store.MarkOutboxSent(ctx, ids)
}

// emit forwards effect to the configured sink. Post-commit failures from
// the sink must never fail an already-durable write, so Sink.Emit itself
// carries no error return; a sink that can fail internally is expected to
// log and swallow, same as the engine does for delta/hub steps.
func (e *Engine) emit(effect SideEffect) {
	e.sink.Emit(effect)
}

// sessionLocked returns the write-path index entry for a session. Callers
// must hold writeMu; it is used by write methods to validate existence
// and closed-state without a round trip to the durable log, and without
// touching Snapshot.
func (e *Engine) sessionLocked(id SessionID) (sessionState, bool) {
	st, ok := e.sessions[id]
	return st, ok
}

func toDomainRepository(r store.Repository) Repository {
	return Repository{
		ID:             RepositoryID(r.ID),
		Path:           r.Path,
		Name:           r.Name,
		IsGit:          r.IsGit,
		LastAccessedAt: r.LastAccessedAt,
	}
}

func toDomainSession(s store.Session) Session {
	return Session{
		ID:           SessionID(s.ID),
		RepositoryID: RepositoryID(s.RepositoryID),
		Title:        s.Title,
		Closed:       s.Closed,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toDomainMessage(m store.Message) Message {
	return Message{
		ID:             MessageID(m.ID),
		SessionID:      SessionID(m.SessionID),
		SequenceNumber: m.SequenceNumber,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
	}
}

func toDomainRuntimeStatus(rs store.RuntimeStatus) RuntimeStatus {
	return RuntimeStatus{State: rs.State, Detail: rs.Detail, UpdatedAt: rs.UpdatedAt}
}
