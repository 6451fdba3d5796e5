package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/planfile"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema file or directory. Relative paths resolve
	// against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Seed rows are added and saved before the first step.
	Seed []planfile.SeedSet `yaml:"seed,omitempty"`

	// Steps run in order against one session.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	Query  *planfile.PlanSpec `yaml:"query,omitempty"`
	Params map[string]any     `yaml:"params,omitempty"`

	Add    *RowStep `yaml:"add,omitempty"`
	Update *RowStep `yaml:"update,omitempty"`
	Remove *RowStep `yaml:"remove,omitempty"`

	Save     bool `yaml:"save,omitempty"`
	Begin    bool `yaml:"begin,omitempty"`
	Commit   bool `yaml:"commit,omitempty"`
	Rollback bool `yaml:"rollback,omitempty"`

	// Expect checks the step outcome. If nil the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// RowStep addresses one row: Row for add, Key and Set for update, Key for
// remove.
type RowStep struct {
	Entity string         `yaml:"entity"`
	Key    []any          `yaml:"key,omitempty"`
	Row    map[string]any `yaml:"row,omitempty"`
	Set    map[string]any `yaml:"set,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Rows are the expected elements of a sequence query, in order. A map
	// matches an entity or tuple by subset; anything else matches a scalar.
	Rows []any `yaml:"rows,omitempty"`

	// Count is the expected number of elements of a sequence query.
	Count *int `yaml:"count,omitempty"`

	// Value is the expected result of a terminal query.
	Value *any `yaml:"value,omitempty"`

	// Changes is the expected number of saved or committed changes.
	Changes *int `yaml:"changes,omitempty"`

	// Error is the expected error code (e.g. "NOT_FOUND"). The step must fail
	// with exactly this code.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of row_count, final_state, trace_count.
	Type string `yaml:"type"`

	// Table is the entity name (row_count, final_state).
	Table string `yaml:"table,omitempty"`

	// Where selects rows by subset match (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected field values, by subset (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Op is the trace operation (trace_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of rows or events.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount   = "row_count"
	AssertFinalState = "final_state"
	AssertTraceCount = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the schema path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Schema != "" && !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	if _, err := os.Stat(s.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema not found: %s", s.Schema)
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML. The schema path is
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, set := range s.Seed {
		if set.Entity == "" {
			return fmt.Errorf("seed[%d]: entity is required", i)
		}
	}
	for i := range s.Steps {
		if err := validateStep(&s.Steps[i]); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(&s.Assertions[i]); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(st *Step) error {
	op, err := st.op()
	if err != nil {
		return err
	}
	if st.Params != nil && op != OpQuery {
		return fmt.Errorf("params is only valid with query")
	}
	switch op {
	case OpAdd:
		if st.Add.Entity == "" {
			return fmt.Errorf("add: entity is required")
		}
	case OpUpdate:
		if st.Update.Entity == "" || len(st.Update.Key) == 0 {
			return fmt.Errorf("update: entity and key are required")
		}
		if len(st.Update.Set) == 0 {
			return fmt.Errorf("update: set is required")
		}
	case OpRemove:
		if st.Remove.Entity == "" || len(st.Remove.Key) == 0 {
			return fmt.Errorf("remove: entity and key are required")
		}
	}
	if e := st.Expect; e != nil {
		if e.Error != "" && !errs.Known(errs.Code(e.Error)) {
			return fmt.Errorf("expect: unknown error code %q", e.Error)
		}
		if (e.Rows != nil || e.Count != nil || e.Value != nil) && op != OpQuery {
			return fmt.Errorf("expect: rows, count and value are only valid with query")
		}
	}
	return nil
}

// op names the step's single operation.
func (st *Step) op() (string, error) {
	var ops []string
	if st.Query != nil {
		ops = append(ops, OpQuery)
	}
	if st.Add != nil {
		ops = append(ops, OpAdd)
	}
	if st.Update != nil {
		ops = append(ops, OpUpdate)
	}
	if st.Remove != nil {
		ops = append(ops, OpRemove)
	}
	if st.Save {
		ops = append(ops, OpSave)
	}
	if st.Begin {
		ops = append(ops, OpBegin)
	}
	if st.Commit {
		ops = append(ops, OpCommit)
	}
	if st.Rollback {
		ops = append(ops, OpRollback)
	}
	if len(ops) != 1 {
		return "", fmt.Errorf("expected exactly one operation, got %d %v", len(ops), ops)
	}
	return ops[0], nil
}

func validateAssertion(a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("table is required for row_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for row_count")
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("table is required for final_state")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for final_state")
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("op is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
