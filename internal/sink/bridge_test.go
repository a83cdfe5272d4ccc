package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sessiond/internal/session"
)

type recordedCall struct {
	method    string
	sessionID string
	extra     string
}

type fakeClient struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeClient) record(method, sessionID, extra string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{method, sessionID, extra})
}

func (f *fakeClient) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeClient) UpsertRepository(ctx context.Context, sc SyncContext, repositoryID string) error {
	f.record("UpsertRepository", repositoryID, "")
	return nil
}
func (f *fakeClient) DeleteRepository(ctx context.Context, sc SyncContext, repositoryID string) error {
	f.record("DeleteRepository", repositoryID, "")
	return nil
}
func (f *fakeClient) UpsertSession(ctx context.Context, sc SyncContext, sessionID string) error {
	f.record("UpsertSession", sessionID, "")
	return nil
}
func (f *fakeClient) UpdateSessionStatus(ctx context.Context, sc SyncContext, sessionID, status string) error {
	f.record("UpdateSessionStatus", sessionID, status)
	return nil
}
func (f *fakeClient) DeleteSession(ctx context.Context, sc SyncContext, sessionID string) error {
	f.record("DeleteSession", sessionID, "")
	return nil
}
func (f *fakeClient) AppendMessage(ctx context.Context, sc SyncContext, sessionID, messageID string, sequenceNumber int64, content []byte) error {
	f.record("AppendMessage", sessionID, messageID)
	return nil
}
func (f *fakeClient) UpdateRuntimeStatus(ctx context.Context, sc SyncContext, sessionID string, status session.RuntimeStatus) error {
	f.record("UpdateRuntimeStatus", sessionID, status.State)
	return nil
}

func waitForCalls(t *testing.T, client *fakeClient, n int) []recordedCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := client.snapshot(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d calls, got %d", n, len(client.snapshot()))
	return nil
}

func TestBridgeSink_SkipsWithoutContext(t *testing.T) {
	client := &fakeClient{}
	s := NewBridgeSink(client, time.Second, nil)
	require.False(t, s.IsEnabled())

	s.Emit(session.SideEffect{Kind: session.KindSessionCreated, SessionID: "s1"})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, client.snapshot())
}

func TestBridgeSink_DispatchesWithContext(t *testing.T) {
	client := &fakeClient{}
	s := NewBridgeSink(client, time.Second, nil)
	s.SetContext(SyncContext{AccessToken: "tok", UserID: "u1", DeviceID: "d1"})
	require.True(t, s.IsEnabled())

	s.Emit(session.SideEffect{Kind: session.KindSessionCreated, SessionID: "s1"})
	calls := waitForCalls(t, client, 1)
	assert.Equal(t, "UpsertSession", calls[0].method)
	assert.Equal(t, "s1", calls[0].sessionID)
}

func TestBridgeSink_ClearContextStopsDispatch(t *testing.T) {
	client := &fakeClient{}
	s := NewBridgeSink(client, time.Second, nil)
	s.SetContext(SyncContext{AccessToken: "tok"})
	s.ClearContext()
	require.False(t, s.IsEnabled())

	s.Emit(session.SideEffect{Kind: session.KindSessionClosed, SessionID: "s1"})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, client.snapshot())
}

func TestBridgeSink_MessageAppendedCarriesContent(t *testing.T) {
	client := &fakeClient{}
	s := NewBridgeSink(client, time.Second, nil)
	s.SetContext(SyncContext{})

	s.Emit(session.SideEffect{
		Kind:           session.KindMessageAppended,
		SessionID:      "s1",
		MessageID:      "m1",
		SequenceNumber: 1,
		Content:        []byte("hello"),
	})
	calls := waitForCalls(t, client, 1)
	assert.Equal(t, "AppendMessage", calls[0].method)
	assert.Equal(t, "m1", calls[0].extra)
}
