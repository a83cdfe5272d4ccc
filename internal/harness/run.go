package harness

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/roach88/sessiond/internal/session"
)

// Result is the outcome of running a Scenario: every captured identifier,
// every side-effect the RecordingSink observed, and any assertion
// failures.
type Result struct {
	Vars    map[string]string
	Effects []session.SideEffect
	Errors  []string
}

func newResult() *Result {
	return &Result{Vars: make(map[string]string)}
}

// AddError appends a human-readable assertion failure to the result.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Passed reports whether every assertion succeeded.
func (r *Result) Passed() bool {
	return len(r.Errors) == 0
}

// dispatchTable lists every Op a Step may name; also used by
// validateScenario to reject unknown ops at load time.
var dispatchTable = map[string]func(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error){
	"create_repository":    opCreateRepository,
	"delete_repository":    opDeleteRepository,
	"create_session":        opCreateSession,
	"close_session":         opCloseSession,
	"delete_session":        opDeleteSession,
	"update_session_title":  opUpdateSessionTitle,
	"append":                opAppend,
	"set_runtime_status":    opSetRuntimeStatus,
	"refresh_snapshot":      opRefreshSnapshot,
}

// Run executes every step of scenario against a fresh in-memory engine
// and evaluates its assertions. Each scenario runs in isolation.
func Run(scenario *Scenario) (*Result, error) {
	sink := session.NewRecordingSink()
	eng, err := session.OpenInMemory(session.WithSink(sink))
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	defer eng.Close()

	ctx := context.Background()
	result := newResult()

	for i, step := range scenario.Steps {
		fn, ok := dispatchTable[step.Op]
		if !ok {
			return nil, fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}

		saved, err := fn(ctx, eng, result.Vars, step.Args)
		if step.ExpectErrorKind != "" {
			if err == nil {
				result.AddError(fmt.Sprintf("step %d (%s): expected error kind %q, got success", i, step.Op, step.ExpectErrorKind))
				continue
			}
			if !matchesErrorKind(err, step.ExpectErrorKind) {
				result.AddError(fmt.Sprintf("step %d (%s): expected error kind %q, got %v", i, step.Op, step.ExpectErrorKind, err))
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		if step.SaveAs != "" {
			result.Vars[step.SaveAs] = saved
		}
	}

	result.Effects = sink.Effects()
	evaluateAssertions(eng, result, scenario.Assertions)
	return result, nil
}

func matchesErrorKind(err error, kind string) bool {
	switch kind {
	case string(session.KindNotFound):
		return session.IsNotFound(err)
	case string(session.KindInvalidState):
		return session.IsInvalidState(err)
	case string(session.KindInvalidArgument):
		return session.IsInvalidArgument(err)
	case string(session.KindBusy):
		return session.IsBusy(err)
	case string(session.KindInternal):
		return session.IsInternal(err)
	default:
		return false
	}
}

func resolve(vars map[string]string, v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	if strings.HasPrefix(s, "$") {
		return vars[strings.TrimPrefix(s, "$")]
	}
	return s
}

func resolveBool(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func opCreateRepository(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	id, err := eng.CreateRepository(ctx, resolve(vars, args["path"]), resolve(vars, args["name"]), resolveBool(args, "is_git"))
	return string(id), err
}

func opDeleteRepository(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	id := session.RepositoryID(resolve(vars, args["repository_id"]))
	return "", eng.DeleteRepository(ctx, id)
}

func opCreateSession(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	repoID := session.RepositoryID(resolve(vars, args["repository_id"]))
	id, err := eng.CreateSession(ctx, repoID)
	return string(id), err
}

func opCloseSession(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	id := session.SessionID(resolve(vars, args["session_id"]))
	return "", eng.CloseSession(ctx, id)
}

func opDeleteSession(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	id := session.SessionID(resolve(vars, args["session_id"]))
	return "", eng.DeleteSession(ctx, id)
}

func opUpdateSessionTitle(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	id := session.SessionID(resolve(vars, args["session_id"]))
	var title *string
	if v, ok := args["title"]; ok {
		t := resolve(vars, v)
		title = &t
	}
	return "", eng.UpdateSessionTitle(ctx, id, title)
}

func opAppend(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	id := session.SessionID(resolve(vars, args["session_id"]))
	content, err := decodeContent(resolve(vars, args["content"]))
	if err != nil {
		return "", err
	}
	msg, err := eng.Append(ctx, id, session.NewMessage{Content: content})
	if err != nil {
		return "", err
	}
	return string(msg.ID), nil
}

func opSetRuntimeStatus(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	id := session.SessionID(resolve(vars, args["session_id"]))
	return "", eng.SetRuntimeStatus(ctx, id, resolve(vars, args["state"]), resolve(vars, args["detail"]))
}

func opRefreshSnapshot(ctx context.Context, eng *session.Engine, vars map[string]string, args map[string]any) (string, error) {
	return "", eng.RefreshSnapshot(ctx)
}

// decodeContent accepts either a raw string (used verbatim as UTF-8
// bytes) or a "base64:..." prefixed value, for scenarios that need to
// exercise arbitrary byte content.
func decodeContent(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	return []byte(s), nil
}
