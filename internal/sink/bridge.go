// Package sink provides session.Sink implementations beyond the in-tree
// NullSink and RecordingSink: a BridgeSink that hands side-effects off to
// an external sync target.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sessiond/internal/session"
)

// SyncContext carries the credentials a SyncClient needs to authenticate
// against the external sync target. Until one is installed via
// SetContext, BridgeSink logs and skips every effect.
type SyncContext struct {
	AccessToken string
	UserID      string
	DeviceID    string
}

// SyncClient is the external sync target a BridgeSink dispatches to. One
// method per SideEffectKind that has an external counterpart;
// MessageAppended carries content explicitly since the side-effect itself
// includes it (§4.5).
type SyncClient interface {
	UpsertRepository(ctx context.Context, sc SyncContext, repositoryID string) error
	DeleteRepository(ctx context.Context, sc SyncContext, repositoryID string) error
	UpsertSession(ctx context.Context, sc SyncContext, sessionID string) error
	UpdateSessionStatus(ctx context.Context, sc SyncContext, sessionID, status string) error
	DeleteSession(ctx context.Context, sc SyncContext, sessionID string) error
	AppendMessage(ctx context.Context, sc SyncContext, sessionID, messageID string, sequenceNumber int64, content []byte) error
	UpdateRuntimeStatus(ctx context.Context, sc SyncContext, sessionID string, status session.RuntimeStatus) error
}

// BridgeSink is a session.Sink that hands each SideEffect off to a
// SyncClient on its own goroutine, so a slow or unreachable sync target
// never delays the commit pipeline that produced the effect.
//
// Thread-safe; the sync context may be replaced at any time (e.g. after a
// token refresh) via SetContext.
type BridgeSink struct {
	client  SyncClient
	timeout time.Duration
	log     *slog.Logger

	mu  sync.RWMutex
	ctx *SyncContext
}

// NewBridgeSink creates a BridgeSink with no sync context installed: every
// effect is logged and dropped until SetContext is called.
func NewBridgeSink(client SyncClient, timeout time.Duration, logger *slog.Logger) *BridgeSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &BridgeSink{client: client, timeout: timeout, log: logger}
}

// SetContext installs the sync context used for every subsequent dispatch.
func (b *BridgeSink) SetContext(sc SyncContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctx = &sc
	b.log.Info("bridge sink: sync context set", "user_id", sc.UserID, "device_id", sc.DeviceID)
}

// ClearContext removes the sync context; subsequent effects are logged
// and dropped until SetContext is called again.
func (b *BridgeSink) ClearContext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctx = nil
	b.log.Info("bridge sink: sync context cleared")
}

// IsEnabled reports whether a sync context is currently installed.
func (b *BridgeSink) IsEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx != nil
}

// Emit implements session.Sink. It never blocks the caller on network I/O:
// dispatch happens on a new goroutine per effect.
func (b *BridgeSink) Emit(effect session.SideEffect) {
	b.mu.RLock()
	sc := b.ctx
	b.mu.RUnlock()

	if sc == nil {
		b.log.Debug("bridge sink: skipping dispatch (no context)", "kind", effect.Kind)
		return
	}

	go b.dispatch(*sc, effect)
}

func (b *BridgeSink) dispatch(sc SyncContext, effect session.SideEffect) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var err error
	switch effect.Kind {
	case session.KindRepositoryCreated:
		err = b.client.UpsertRepository(ctx, sc, string(effect.RepositoryID))
	case session.KindRepositoryDeleted:
		err = b.client.DeleteRepository(ctx, sc, string(effect.RepositoryID))
	case session.KindSessionCreated:
		err = b.client.UpsertSession(ctx, sc, string(effect.SessionID))
	case session.KindSessionClosed:
		err = b.client.UpdateSessionStatus(ctx, sc, string(effect.SessionID), "closed")
	case session.KindSessionDeleted:
		err = b.client.DeleteSession(ctx, sc, string(effect.SessionID))
	case session.KindSessionUpdated:
		err = b.client.UpdateSessionStatus(ctx, sc, string(effect.SessionID), "active")
	case session.KindMessageAppended:
		err = b.client.AppendMessage(ctx, sc, string(effect.SessionID), string(effect.MessageID), effect.SequenceNumber, effect.Content)
	case session.KindRuntimeStatusUpdated:
		err = b.client.UpdateRuntimeStatus(ctx, sc, string(effect.SessionID), effect.RuntimeStatus)
	default:
		b.log.Warn("bridge sink: unrecognized side-effect kind", "kind", effect.Kind)
		return
	}

	if err != nil {
		b.log.Error("bridge sink: dispatch failed", "kind", effect.Kind, "error", err)
	}
}
