package harness

import (
	"fmt"

	"github.com/roach88/sessiond/internal/session"
)

// evaluateAssertions checks every assertion against result and the
// engine's post-run state, appending a human-readable message to
// result.Errors for each failure.
func evaluateAssertions(eng *session.Engine, result *Result, assertions []Assertion) {
	for i, a := range assertions {
		switch a.Type {
		case AssertEffectCount:
			assertEffectCount(result, i, a)
		case AssertEffectOrder:
			assertEffectOrder(result, i, a)
		case AssertNoEffects:
			if len(result.Effects) != 0 {
				result.AddError(fmt.Sprintf("assertions[%d]: expected no effects, got %d", i, len(result.Effects)))
			}
		case AssertSnapshotMessageCount:
			assertSnapshotMessageCount(eng, result, i, a)
		case AssertSnapshotSessionClosed:
			assertSnapshotSessionClosed(eng, result, i, a)
		case AssertDeltaEmpty:
			assertDeltaEmpty(eng, result, i, a)
		}
	}
}

func assertEffectCount(result *Result, index int, a Assertion) {
	n := 0
	for _, e := range result.Effects {
		if string(e.Kind) == a.Kind {
			n++
		}
	}
	if n != a.Count {
		result.AddError(fmt.Sprintf("assertions[%d]: expected %d effects of kind %s, got %d", index, a.Count, a.Kind, n))
	}
}

func assertEffectOrder(result *Result, index int, a Assertion) {
	pos := 0
	for _, e := range result.Effects {
		if pos >= len(a.Kinds) {
			break
		}
		if string(e.Kind) == a.Kinds[pos] {
			pos++
		}
	}
	if pos != len(a.Kinds) {
		result.AddError(fmt.Sprintf("assertions[%d]: expected kinds %v in order, only matched %d", index, a.Kinds, pos))
	}
}

func assertSnapshotMessageCount(eng *session.Engine, result *Result, index int, a Assertion) {
	id := session.SessionID(resolve(result.Vars, a.SessionID))
	sn, ok := eng.Snapshot().Session(id)
	if !ok {
		result.AddError(fmt.Sprintf("assertions[%d]: session %s not present in snapshot", index, a.SessionID))
		return
	}
	if sn.MessageCount() != a.Count {
		result.AddError(fmt.Sprintf("assertions[%d]: expected %d messages, got %d", index, a.Count, sn.MessageCount()))
	}
}

func assertSnapshotSessionClosed(eng *session.Engine, result *Result, index int, a Assertion) {
	id := session.SessionID(resolve(result.Vars, a.SessionID))
	sn, ok := eng.Snapshot().Session(id)
	if !ok {
		result.AddError(fmt.Sprintf("assertions[%d]: session %s not present in snapshot", index, a.SessionID))
		return
	}
	if !sn.Closed() {
		result.AddError(fmt.Sprintf("assertions[%d]: expected session %s to be closed", index, a.SessionID))
	}
}

func assertDeltaEmpty(eng *session.Engine, result *Result, index int, a Assertion) {
	id := session.SessionID(resolve(result.Vars, a.SessionID))
	if !eng.Delta(id).IsEmpty() {
		result.AddError(fmt.Sprintf("assertions[%d]: expected empty delta for session %s", index, a.SessionID))
	}
}
