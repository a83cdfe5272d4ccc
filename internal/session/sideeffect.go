package session

import "sync"

// SideEffectKind distinguishes the closed set of SideEffect variants.
type SideEffectKind string

const (
	KindRepositoryCreated    SideEffectKind = "RepositoryCreated"
	KindRepositoryDeleted    SideEffectKind = "RepositoryDeleted"
	KindSessionCreated       SideEffectKind = "SessionCreated"
	KindSessionClosed        SideEffectKind = "SessionClosed"
	KindSessionDeleted       SideEffectKind = "SessionDeleted"
	KindSessionUpdated       SideEffectKind = "SessionUpdated"
	KindMessageAppended      SideEffectKind = "MessageAppended"
	KindRuntimeStatusUpdated SideEffectKind = "RuntimeStatusUpdated"
)

// SideEffect is an externally visible consequence of a single committed
// fact. Exactly one is emitted per successful writing operation, after
// the corresponding commit has returned success; never on failure, never
// during recovery, never during a snapshot rebuild, never for a read.
type SideEffect struct {
	Kind SideEffectKind

	RepositoryID RepositoryID

	SessionID      SessionID
	MessageID      MessageID
	SequenceNumber int64
	Content        []byte

	RuntimeStatus RuntimeStatus
}

// Sink is the output port every side-effect is routed through.
// Implementations must be thread-safe and must not block the commit that
// produced the effect any longer than necessary.
type Sink interface {
	Emit(effect SideEffect)
}

// NullSink discards every side-effect. Used during recovery (regardless
// of the caller-supplied sink) and whenever side-effects are
// uninteresting.
type NullSink struct{}

// Emit implements Sink by discarding effect.
func (NullSink) Emit(SideEffect) {}

// RecordingSink is a thread-safe FIFO of every emitted side-effect, used
// exclusively by tests.
type RecordingSink struct {
	mu      sync.Mutex
	effects []SideEffect
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Emit records effect.
func (s *RecordingSink) Emit(effect SideEffect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects = append(s.effects, effect)
}

// Effects returns a copy of every side-effect recorded so far, in
// emission order.
func (s *RecordingSink) Effects() []SideEffect {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SideEffect, len(s.effects))
	copy(out, s.effects)
	return out
}

// Clear discards every recorded side-effect.
func (s *RecordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects = nil
}

// Len returns the number of recorded side-effects.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.effects)
}

// IsEmpty reports whether no side-effects have been recorded.
func (s *RecordingSink) IsEmpty() bool {
	return s.Len() == 0
}
