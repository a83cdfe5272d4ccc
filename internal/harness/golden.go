package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// idNormalizer assigns each distinct non-empty identifier a stable,
// first-seen-order placeholder ("id-1", "id-2", ...).
type idNormalizer struct {
	seen map[string]string
}

func newIDNormalizer() *idNormalizer {
	return &idNormalizer{seen: make(map[string]string)}
}

func (n *idNormalizer) normalize(id string) string {
	if id == "" {
		return ""
	}
	if placeholder, ok := n.seen[id]; ok {
		return placeholder
	}
	placeholder := fmt.Sprintf("id-%d", len(n.seen)+1)
	n.seen[id] = placeholder
	return placeholder
}

// effectJSON is the on-disk shape of one recorded side-effect in a golden
// file: only the fields relevant to that Kind are populated, so golden
// diffs stay readable.
type effectJSON struct {
	Kind           string `json:"kind"`
	RepositoryID   string `json:"repository_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	SequenceNumber int64  `json:"sequence_number,omitempty"`
	Content        string `json:"content,omitempty"`
	RuntimeState   string `json:"runtime_state,omitempty"`
}

type traceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []effectJSON `json:"trace"`
}

// RunWithGolden executes scenario and compares its emitted side-effect
// trace against testdata/golden/{scenario.Name}.golden.
//
// To (re)generate golden files, run:
//
//	go test ./internal/harness/... -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	// Identifiers are UUIDv7s, fresh every run. Normalize each distinct
	// one to a stable placeholder in first-seen order so the golden file
	// reflects trace shape, not random IDs.
	ids := newIDNormalizer()

	trace := make([]effectJSON, 0, len(result.Effects))
	for _, e := range result.Effects {
		trace = append(trace, effectJSON{
			Kind:           string(e.Kind),
			RepositoryID:   ids.normalize(string(e.RepositoryID)),
			SessionID:      ids.normalize(string(e.SessionID)),
			MessageID:      ids.normalize(string(e.MessageID)),
			SequenceNumber: e.SequenceNumber,
			Content:        string(e.Content),
			RuntimeState:   e.RuntimeStatus.State,
		})
	}

	snapshot := traceSnapshot{ScenarioName: scenario.Name, Trace: trace}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
