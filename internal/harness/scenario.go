package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/modplan/internal/engine"
)

// DefaultUser is the user requests run as when a scenario names none.
const DefaultUser = "tester"

// Scenario defines a modify-plan test scenario: content type definitions,
// a sequence of requests with expected outcomes, and assertions on the
// resulting trace and final store state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions is a CUE package directory holding content types.
	// Relative paths are resolved against the scenario file's directory.
	Definitions string `yaml:"definitions,omitempty"`

	// Source holds inline CUE content types, used instead of Definitions.
	Source string `yaml:"source,omitempty"`

	// User is the default user for every request.
	User string `yaml:"user,omitempty"`

	// ReadOnly lists users whose requests are refused authorization.
	ReadOnly []string `yaml:"read_only,omitempty"`

	// MaxRows overrides the per-request row quota; 0 disables it.
	MaxRows *int `yaml:"max_rows,omitempty"`

	// RequestPrefix prefixes the deterministic request ids.
	// If empty, defaults to "req".
	RequestPrefix string `yaml:"request_prefix,omitempty"`

	// Setup contains requests run before the main flow to establish
	// initial records. Setup requests must succeed.
	Setup []RequestStep `yaml:"setup,omitempty"`

	// Flow contains the requests under test, each with an optional expect
	// clause. A step without one must succeed.
	Flow []RequestStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// RequestStep is one modify request.
type RequestStep struct {
	Mapping   string `yaml:"mapping"`
	Operation string `yaml:"operation"`

	// User overrides the scenario user. Anonymous sends no user at all.
	User      string `yaml:"user,omitempty"`
	Anonymous bool   `yaml:"anonymous,omitempty"`

	// Params maps parameter names to a value or a list of values. A single
	// value is a one-element list; null is a list holding one nil.
	Params map[string]any `yaml:"params"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a request.
type ExpectClause struct {
	// Error is the expected error code (engine.ErrorCode). Empty expects
	// the request to commit.
	Error string `yaml:"error,omitempty"`

	// Keys holds expected generated keys by parameter name.
	Keys map[string][]int64 `yaml:"keys,omitempty"`

	// Rows is the expected total of rows affected.
	Rows *int64 `yaml:"rows,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "change_contains": a step event for resource exists
	// - "change_order": resources appear in order
	// - "change_count": resource appears exactly Count times
	// - "final_state": query a table row and verify column values
	// - "row_count": count table rows matching Where
	// - "change_log": count persisted change records of a content id
	Type string `yaml:"type"`

	// Resource is the dataset name (change_contains, change_count).
	Resource string `yaml:"resource,omitempty"`

	// PlanType and Skipped narrow change_contains matches.
	PlanType string `yaml:"plan_type,omitempty"`
	Skipped  *bool  `yaml:"skipped,omitempty"`

	// Resources is the expected order (change_order).
	Resources []string `yaml:"resources,omitempty"`

	// Table is the content table (final_state, row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state, row_count).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ContentID selects the record (change_log).
	ContentID int64 `yaml:"content_id,omitempty"`

	// Count is the expected number (change_count, row_count, change_log).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertChangeContains = "change_contains"
	AssertChangeOrder    = "change_order"
	AssertChangeCount    = "change_count"
	AssertFinalState     = "final_state"
	AssertRowCount       = "row_count"
	AssertChangeLog      = "change_log"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// definitions directory against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the definitions directory relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve definitions relative to base path BEFORE validation
	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) && basePath != "" {
		scenario.Definitions = filepath.Join(basePath, scenario.Definitions)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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

	switch {
	case s.Definitions == "" && s.Source == "":
		return fmt.Errorf("definitions or source is required")
	case s.Definitions != "" && s.Source != "":
		return fmt.Errorf("definitions and source are mutually exclusive")
	case s.Definitions != "":
		if info, err := os.Stat(s.Definitions); err != nil || !info.IsDir() {
			return fmt.Errorf("definitions directory not found: %s", s.Definitions)
		}
	}

	if s.MaxRows != nil && *s.MaxRows < 0 {
		return fmt.Errorf("max_rows must be non-negative")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(where string, step RequestStep) error {
	if step.Mapping == "" {
		return fmt.Errorf("%s: mapping is required", where)
	}
	if _, err := engine.ParseOperation(step.Operation); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	if step.Params == nil {
		return fmt.Errorf("%s: params is required (use empty map if no params)", where)
	}
	if step.Anonymous && step.User != "" {
		return fmt.Errorf("%s: anonymous and user are mutually exclusive", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertChangeContains:
		if a.Resource == "" {
			return fmt.Errorf("assertions[%d]: resource is required for change_contains", index)
		}
	case AssertChangeOrder:
		if len(a.Resources) == 0 {
			return fmt.Errorf("assertions[%d]: resources list is required for change_order", index)
		}
	case AssertChangeCount:
		if a.Resource == "" {
			return fmt.Errorf("assertions[%d]: resource is required for change_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for change_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertChangeLog:
		if a.ContentID <= 0 {
			return fmt.Errorf("assertions[%d]: content_id is required for change_log", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
