package store

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// normalizeContent NFC-normalizes message content bytes before storage,
// so snapshot/delta reads are byte-stable regardless of which Unicode
// normal form the original writer used.
func normalizeContent(content []byte) []byte {
	return norm.NFC.Bytes(content)
}

// runtimeStatusJSON is the on-disk shape of session_state.runtime_status.
type runtimeStatusJSON struct {
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func marshalRuntimeStatus(state string, detail string, updatedAt time.Time) (string, error) {
	data, err := json.Marshal(runtimeStatusJSON{State: state, Detail: detail, UpdatedAt: updatedAt})
	if err != nil {
		return "", fmt.Errorf("marshal runtime status: %w", err)
	}
	return string(data), nil
}

func unmarshalRuntimeStatus(data string) (state string, detail string, updatedAt time.Time, err error) {
	var rs runtimeStatusJSON
	if unmarshalErr := json.Unmarshal([]byte(data), &rs); unmarshalErr != nil {
		return "", "", time.Time{}, fmt.Errorf("unmarshal runtime status: %w", unmarshalErr)
	}
	return rs.State, rs.Detail, rs.UpdatedAt, nil
}
