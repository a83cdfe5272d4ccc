package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestInsertRepository_AndGetByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()

	now := time.Now()
	if err := s.InsertRepository(ctx, Repository{ID: "r1", Path: "/tmp/r1", Name: "r1", IsGit: true, LastAccessedAt: now}); err != nil {
		t.Fatalf("InsertRepository() failed: %v", err)
	}

	got, err := s.GetRepositoryByPath(ctx, "/tmp/r1")
	if err != nil {
		t.Fatalf("GetRepositoryByPath() failed: %v", err)
	}
	if got.ID != "r1" || !got.IsGit {
		t.Errorf("got %+v, want id=r1 is_git=true", got)
	}
}

func TestDeleteRepository_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteRepository(testCtx(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("DeleteRepository() err = %v, want sql.ErrNoRows", err)
	}
}

func TestDeleteRepository_CascadesToSessionsAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()

	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")
	if _, err := s.InsertMessage(ctx, Message{ID: "m1", SessionID: "s1", Content: []byte("hi"), Timestamp: time.Now()}); err != nil {
		t.Fatalf("InsertMessage() failed: %v", err)
	}

	if err := s.DeleteRepository(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRepository() failed: %v", err)
	}

	if _, err := s.GetSession(ctx, "s1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetSession() after repository delete err = %v, want sql.ErrNoRows", err)
	}
	msgs, err := s.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages() failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len(msgs) = %d, want 0 after cascade delete", len(msgs))
	}
}

func TestCloseSession_NoRowsWhenMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.CloseSession(testCtx(), "missing", time.Now())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("CloseSession() err = %v, want sql.ErrNoRows", err)
	}
}

func TestCloseSession_IsIdempotentAtStoreLevel(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	if err := s.CloseSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("first CloseSession() failed: %v", err)
	}
	if err := s.CloseSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("second CloseSession() failed: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() failed: %v", err)
	}
	if !got.Closed {
		t.Error("session should be closed")
	}
}

func TestUpdateSessionTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	title := "My Session"
	if err := s.UpdateSessionTitle(ctx, "s1", &title, time.Now()); err != nil {
		t.Fatalf("UpdateSessionTitle() failed: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() failed: %v", err)
	}
	if got.Title == nil || *got.Title != title {
		t.Errorf("got title %v, want %q", got.Title, title)
	}
}

func TestInsertMessage_DenseSequenceNumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	for i, content := range []string{"a", "b", "c"} {
		seq, err := s.InsertMessage(ctx, Message{ID: string(rune('a' + i)), SessionID: "s1", Content: []byte(content), Timestamp: time.Now()})
		if err != nil {
			t.Fatalf("InsertMessage(%d) failed: %v", i, err)
		}
		if seq != int64(i+1) {
			t.Errorf("InsertMessage(%d) seq = %d, want %d", i, seq, i+1)
		}
	}

	msgs, err := s.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages() failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.SequenceNumber != int64(i+1) {
			t.Errorf("msgs[%d].SequenceNumber = %d, want %d", i, m.SequenceNumber, i+1)
		}
	}
}

func TestInsertMessage_NFCNormalizesContent(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	// "e" + combining acute accent (NFD form of é)
	decomposed := []byte("é")
	if _, err := s.InsertMessage(ctx, Message{ID: "m1", SessionID: "s1", Content: decomposed, Timestamp: time.Now()}); err != nil {
		t.Fatalf("InsertMessage() failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages() failed: %v", err)
	}
	composed := "é" // é, NFC form
	if string(msgs[0].Content) != composed {
		t.Errorf("content = %q, want NFC-normalized %q", msgs[0].Content, composed)
	}
}

func TestSetRuntimeStatus_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	if err := s.SetRuntimeStatus(ctx, "s1", "running", "starting up", time.Now()); err != nil {
		t.Fatalf("SetRuntimeStatus() failed: %v", err)
	}
	if err := s.SetRuntimeStatus(ctx, "s1", "idle", "", time.Now()); err != nil {
		t.Fatalf("second SetRuntimeStatus() failed: %v", err)
	}

	got, err := s.GetRuntimeStatus(ctx, "s1")
	if err != nil {
		t.Fatalf("GetRuntimeStatus() failed: %v", err)
	}
	if got.State != "idle" {
		t.Errorf("State = %q, want %q", got.State, "idle")
	}
}

func TestSetSessionSecret_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	if err := s.SetSessionSecret(ctx, SessionSecret{SessionID: "s1", EncryptedSecret: []byte("ct1"), Nonce: []byte("n1")}); err != nil {
		t.Fatalf("SetSessionSecret() failed: %v", err)
	}
	if err := s.SetSessionSecret(ctx, SessionSecret{SessionID: "s1", EncryptedSecret: []byte("ct2"), Nonce: []byte("n2")}); err != nil {
		t.Fatalf("second SetSessionSecret() failed: %v", err)
	}

	got, err := s.GetSessionSecret(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionSecret() failed: %v", err)
	}
	if string(got.EncryptedSecret) != "ct2" {
		t.Errorf("EncryptedSecret = %q, want %q", got.EncryptedSecret, "ct2")
	}
}

func TestOutbox_InsertAndMarkSent(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	id1, err := s.InsertOutboxEntry(ctx, "s1", []byte("payload1"), time.Now())
	if err != nil {
		t.Fatalf("InsertOutboxEntry() failed: %v", err)
	}
	if _, err := s.InsertOutboxEntry(ctx, "s1", []byte("payload2"), time.Now()); err != nil {
		t.Fatalf("second InsertOutboxEntry() failed: %v", err)
	}

	pending, err := s.ListPendingOutbox(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("ListPendingOutbox() failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len(pending) = %d, want 2", len(pending))
	}

	if err := s.MarkOutboxSent(ctx, []int64{id1}); err != nil {
		t.Fatalf("MarkOutboxSent() failed: %v", err)
	}

	pending, err = s.ListPendingOutbox(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("ListPendingOutbox() after mark sent failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("len(pending) = %d, want 1 after marking one sent", len(pending))
	}
}

func mustInsertRepo(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.InsertRepository(testCtx(), Repository{ID: id, Path: "/tmp/" + id, Name: id, LastAccessedAt: time.Now()}); err != nil {
		t.Fatalf("InsertRepository(%s) failed: %v", id, err)
	}
}

func mustCreateSession(t *testing.T, s *Store, id, repoID string) {
	t.Helper()
	now := time.Now()
	if err := s.CreateSession(testCtx(), Session{ID: id, RepositoryID: repoID, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateSession(%s) failed: %v", id, err)
	}
}
