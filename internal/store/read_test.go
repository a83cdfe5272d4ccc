package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestListRepositories_OrderedByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()

	for _, id := range []string{"b", "a", "c"} {
		if err := s.InsertRepository(ctx, Repository{ID: id, Path: "/tmp/" + id, Name: id, LastAccessedAt: time.Now()}); err != nil {
			t.Fatalf("InsertRepository(%s) failed: %v", id, err)
		}
	}

	repos, err := s.ListRepositories(ctx)
	if err != nil {
		t.Fatalf("ListRepositories() failed: %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("len(repos) = %d, want 3", len(repos))
	}
	want := []string{"/tmp/a", "/tmp/b", "/tmp/c"}
	for i, r := range repos {
		if r.Path != want[i] {
			t.Errorf("repos[%d].Path = %q, want %q", i, r.Path, want[i])
		}
	}
}

func TestGetRepositoryByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRepositoryByID(testCtx(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestListSessions_ScopedToRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustInsertRepo(t, s, "r2")
	mustCreateSession(t, s, "s1", "r1")
	mustCreateSession(t, s, "s2", "r1")
	mustCreateSession(t, s, "s3", "r2")

	sessions, err := s.ListSessions(ctx, "r1")
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
}

func TestListAllSessionsAndMessages_ForSnapshotRebuild(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")
	mustCreateSession(t, s, "s2", "r1")

	for _, id := range []string{"m1", "m2"} {
		if _, err := s.InsertMessage(ctx, Message{ID: id, SessionID: "s1", Content: []byte(id), Timestamp: time.Now()}); err != nil {
			t.Fatalf("InsertMessage(%s) failed: %v", id, err)
		}
	}

	sessions, err := s.ListAllSessions(ctx)
	if err != nil {
		t.Fatalf("ListAllSessions() failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}

	messages, err := s.ListAllMessages(ctx)
	if err != nil {
		t.Fatalf("ListAllMessages() failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}
	if messages[0].SequenceNumber != 1 || messages[1].SequenceNumber != 2 {
		t.Errorf("messages out of sequence order: %+v", messages)
	}
}

func TestGetRuntimeStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	_, err := s.GetRuntimeStatus(ctx, "s1")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows before any SetRuntimeStatus call", err)
	}
}

func TestGetSessionSecret_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	_, err := s.GetSessionSecret(ctx, "s1")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows before any SetSessionSecret call", err)
	}
}

func TestListPendingOutbox_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := testCtx()
	mustInsertRepo(t, s, "r1")
	mustCreateSession(t, s, "s1", "r1")

	for i := 0; i < 5; i++ {
		if _, err := s.InsertOutboxEntry(ctx, "s1", []byte("p"), time.Now()); err != nil {
			t.Fatalf("InsertOutboxEntry(%d) failed: %v", i, err)
		}
	}

	pending, err := s.ListPendingOutbox(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("ListPendingOutbox() failed: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("len(pending) = %d, want 3", len(pending))
	}
}
