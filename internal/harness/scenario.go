package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tokenledger/internal/ledger"
)

// Scenario is a sequence of calls against a fresh ledger, followed by
// assertions on the final state and the event log.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Genesis is an optional CUE genesis file applied before the steps.
	// Relative paths resolve against the scenario file's directory.
	Genesis string `yaml:"genesis,omitempty"`

	// RateMode selects tier recomputation. Default: inline.
	RateMode string `yaml:"rate_mode,omitempty"`

	// FlowToken fixes the flow token. If empty, "test-flow" is used.
	FlowToken string `yaml:"flow_token,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one call.
type Step struct {
	Op     string `yaml:"op"`
	Caller string `yaml:"caller,omitempty"`

	// Time sets the host clock before the call. The clock keeps its value
	// between steps.
	Time *uint64 `yaml:"time,omitempty"`

	// Args are scalar values; they are passed to the engine as strings.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the outcome. Nil means the call must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Result is a subset match against the call's result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates final state or the event log.
type Assertion struct {
	Type string `yaml:"type"`

	Account     string `yaml:"account,omitempty"`
	Beneficiary string `yaml:"beneficiary,omitempty"`
	Index       uint64 `yaml:"index,omitempty"`

	// Equals is the expected amount (balance, total_supply, released).
	Equals string `yaml:"equals,omitempty"`

	Kind  string   `yaml:"kind,omitempty"`
	Count *int     `yaml:"count,omitempty"`
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance         = "balance"
	AssertTotalSupply     = "total_supply"
	AssertReleased        = "released"
	AssertEventCount      = "event_count"
	AssertEventOrder      = "event_order"
	AssertSupplyInvariant = "supply_invariant"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Genesis != "" && !filepath.IsAbs(scenario.Genesis) {
		scenario.Genesis = filepath.Join(filepath.Dir(path), scenario.Genesis)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
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
	if s.RateMode != "" {
		if _, err := ledger.ParseRateMode(s.RateMode); err != nil {
			return err
		}
	}
	if s.Genesis != "" {
		if _, err := os.Stat(s.Genesis); err != nil {
			return fmt.Errorf("genesis file not found: %s", s.Genesis)
		}
	}

	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if step.Expect != nil && step.Expect.Error != "" && len(step.Expect.Result) > 0 {
			return fmt.Errorf("steps[%d].expect: error and result are exclusive", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBalance:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for balance", index)
		}
		if a.Equals == "" {
			return fmt.Errorf("assertions[%d]: equals is required for balance", index)
		}
	case AssertTotalSupply:
		if a.Equals == "" {
			return fmt.Errorf("assertions[%d]: equals is required for total_supply", index)
		}
	case AssertReleased:
		if a.Beneficiary == "" || a.Equals == "" {
			return fmt.Errorf("assertions[%d]: beneficiary and equals are required for released", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case AssertSupplyInvariant:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
