package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tabula/internal/compiler"
	"github.com/roach88/tabula/internal/planfile"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/session"
	"github.com/roach88/tabula/internal/store"
)

// Error code constants shared by all commands. Store and engine failures
// use their own codes (NOT_FOUND, SEQUENCE, ...).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodePlanFile    = "E003" // Plan file unreadable or malformed
	ErrCodeNoSchema    = "E004" // No schema given by flag, config or plan file
	ErrCodeSchema      = "E005" // CUE schema failed to compile
	ErrCodeSeed        = "E006" // Seed rows rejected
	ErrCodePlan        = "E007" // Plan missing, malformed or not executable
	ErrCodeBadParam    = "E008" // --param value unparseable
	ErrCodeWriteFailed = "E009" // File write error
)

// LoadError is a command input failure with a stable code.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

func loadErrorf(code, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Workspace is a schema, a database seeded from a plan file and a session
// over it.
type Workspace struct {
	File    *planfile.File
	Model   *schema.Model
	DB      *store.Database
	Session *session.Session
	Seeded  int
}

// loadPlanFile reads a plan file, reporting a missing path as E002.
func loadPlanFile(path string) (*planfile.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, loadErrorf(ErrCodeNotFound, "plan file not found: %s", path)
	}
	f, err := planfile.Load(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodePlanFile, Message: err.Error()}
	}
	return f, nil
}

// schemaPath picks the schema: the --schema flag or config value first,
// then the plan file's schema resolved against the file's directory.
func (o *RootOptions) schemaPath(f *planfile.File, planPath string) (string, error) {
	if p := o.settings().Schema; p != "" {
		return p, nil
	}
	if f == nil || f.Schema == "" {
		return "", loadErrorf(ErrCodeNoSchema, "no schema: pass --schema or set schema in the plan file")
	}
	if filepath.IsAbs(f.Schema) {
		return f.Schema, nil
	}
	return filepath.Join(filepath.Dir(planPath), f.Schema), nil
}

// loadModel compiles the CUE schema at path.
func loadModel(path string) (*schema.Model, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, loadErrorf(ErrCodeNotFound, "schema not found: %s", path)
	}
	model, err := compiler.LoadSchema(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return model, nil
}

// convertCompileError keeps the CUE position of a schema error.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeSchema,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeSchema, Message: err.Error()}
}

// openWorkspace loads the plan file and its schema, creates the database,
// applies the seed rows and opens a session.
func (o *RootOptions) openWorkspace(ctx context.Context, planPath string) (*Workspace, error) {
	f, err := loadPlanFile(planPath)
	if err != nil {
		return nil, err
	}
	path, err := o.schemaPath(f, planPath)
	if err != nil {
		return nil, err
	}
	model, err := loadModel(path)
	if err != nil {
		return nil, err
	}

	cfg := o.settings()
	if o.Databases == nil {
		o.Databases = store.NewRegistry()
	}
	if o.Databases.Drop(cfg.Database) {
		o.logger().Debug("replacing database", "database", cfg.Database)
	}
	db, err := o.Databases.Open(cfg.Database, model, store.WithLogger(o.logger()))
	if err != nil {
		return nil, err
	}
	n, err := planfile.ApplySeed(ctx, db, f.Seed)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSeed, Message: err.Error()}
	}
	o.logger().Debug("workspace opened", "plan_file", planPath, "schema", path, "seeded", n)

	sess := session.New(db,
		session.WithLogger(o.logger()),
		session.WithEngineOptions(o.engineOptions()...),
	)
	return &Workspace{File: f, Model: model, DB: db, Session: sess, Seeded: n}, nil
}

// buildPlan selects a plan from f by name, binds params and checks its
// shape.
func buildPlan(f *planfile.File, name string, params map[string]any) (*queryir.Plan, error) {
	spec, err := f.Plan(name)
	if err != nil {
		return nil, &LoadError{Code: ErrCodePlan, Message: err.Error()}
	}
	plan, err := spec.Build()
	if err != nil {
		return nil, &LoadError{Code: ErrCodePlan, Message: fmt.Sprintf("plan %s: %v", planLabel(spec), err)}
	}
	if len(params) > 0 {
		if plan, err = plan.WithParams(params); err != nil {
			return nil, &LoadError{Code: ErrCodeBadParam, Message: err.Error()}
		}
	}
	return plan, nil
}

func planLabel(spec *planfile.PlanSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	return spec.From
}

// parseParams decodes --param values as YAML scalars, so 10 is an int,
// 2.5 a float, true a bool and null a null.
func parseParams(raw map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for name, text := range raw {
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return nil, loadErrorf(ErrCodeBadParam, "param %s: %v", name, err)
		}
		switch v.(type) {
		case nil, bool, int, float64, string:
		default:
			return nil, loadErrorf(ErrCodeBadParam, "param %s: %q is not a scalar", name, text)
		}
		out[name] = v
	}
	return out, nil
}
