package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSnapshot_SortsMessagesBySequenceNumber(t *testing.T) {
	sid := SessionID("s1")
	sessions := []Session{{ID: sid}}
	messages := map[SessionID][]Message{
		sid: {
			{ID: "m2", SequenceNumber: 2},
			{ID: "m1", SequenceNumber: 1},
			{ID: "m3", SequenceNumber: 3},
		},
	}

	snap := buildSnapshot(sessions, messages, nil)
	sn, ok := snap.Session(sid)
	require.True(t, ok)

	msgs := sn.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, MessageID("m1"), msgs[0].ID)
	assert.Equal(t, MessageID("m2"), msgs[1].ID)
	assert.Equal(t, MessageID("m3"), msgs[2].ID)
}

func TestSnapshot_SessionAbsent(t *testing.T) {
	snap := emptySnapshot()
	_, ok := snap.Session("missing")
	assert.False(t, ok)
	assert.True(t, snap.IsEmpty())
}

func TestSessionSnapshot_LastMessageID(t *testing.T) {
	empty := SessionSnapshot{}
	_, ok := empty.LastMessageID()
	assert.False(t, ok)

	withMsgs := SessionSnapshot{messages: []Message{{ID: "m1"}, {ID: "m2"}}}
	last, ok := withMsgs.LastMessageID()
	require.True(t, ok)
	assert.Equal(t, MessageID("m2"), last)
}
