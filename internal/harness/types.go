package harness

// Scenario defines a conformance test scenario: a sequence of engine
// operations run in order, followed by assertions against the resulting
// side-effect trace and engine state.
type Scenario struct {
	// Name uniquely identifies this scenario; used as the golden file key.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are engine operations executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final side-effect trace and engine state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step invokes one Engine Facade operation.
type Step struct {
	// Op is the operation name, e.g. "create_repository", "append".
	Op string `yaml:"op"`

	// Args are the operation's arguments. A string value of the form
	// "$name" resolves to the identifier previously captured by a step
	// with SaveAs == name.
	Args map[string]any `yaml:"args,omitempty"`

	// SaveAs captures this step's identifier result (RepositoryID,
	// SessionID, ...) under this name for use by later steps' Args.
	SaveAs string `yaml:"save_as,omitempty"`

	// ExpectErrorKind is the session.ErrorKind expected from this step,
	// e.g. "invalid_state". Empty means the step must succeed.
	ExpectErrorKind string `yaml:"expect_error_kind,omitempty"`
}

// Assertion validates the side-effect trace or engine state after every
// step has run.
type Assertion struct {
	// Type selects the assertion:
	//   - "effect_count": exactly Count effects of Kind were emitted.
	//   - "effect_order": Kinds appear, in this relative order, somewhere
	//     in the trace.
	//   - "no_effects": zero effects were emitted in total.
	//   - "snapshot_message_count": the session named by SessionID (a
	//     "$name" reference) has exactly Count messages in the current
	//     snapshot.
	//   - "snapshot_session_closed": the session named by SessionID is
	//     closed in the current snapshot.
	//   - "delta_empty": the session named by SessionID has an empty
	//     delta view.
	Type      string   `yaml:"type"`
	Kind      string   `yaml:"kind,omitempty"`
	Kinds     []string `yaml:"kinds,omitempty"`
	Count     int      `yaml:"count,omitempty"`
	SessionID string   `yaml:"session_id,omitempty"`
}

// Assertion type constants.
const (
	AssertEffectCount           = "effect_count"
	AssertEffectOrder           = "effect_order"
	AssertNoEffects             = "no_effects"
	AssertSnapshotMessageCount  = "snapshot_message_count"
	AssertSnapshotSessionClosed = "snapshot_session_closed"
	AssertDeltaEmpty            = "delta_empty"
)
