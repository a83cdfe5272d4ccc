package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadScenario reads and strictly parses a scenario YAML file. Unknown
// fields (a typo like "asertions:") are rejected rather than silently
// ignored.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if _, ok := dispatchTable[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertEffectCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, AssertEffectCount)
		}
	case AssertEffectOrder:
		if len(a.Kinds) < 2 {
			return fmt.Errorf("assertions[%d]: kinds must list at least two entries for %s", index, AssertEffectOrder)
		}
	case AssertNoEffects:
	case AssertSnapshotMessageCount:
		if a.SessionID == "" {
			return fmt.Errorf("assertions[%d]: session_id is required for %s", index, AssertSnapshotMessageCount)
		}
	case AssertSnapshotSessionClosed:
		if a.SessionID == "" {
			return fmt.Errorf("assertions[%d]: session_id is required for %s", index, AssertSnapshotSessionClosed)
		}
	case AssertDeltaEmpty:
		if a.SessionID == "" {
			return fmt.Errorf("assertions[%d]: session_id is required for %s", index, AssertDeltaEmpty)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
