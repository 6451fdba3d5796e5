package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/schema"
)

// EntitySummary describes one compiled entity.
type EntitySummary struct {
	Name      string            `json:"name"`
	Key       []string          `json:"key"`
	Fields    []FieldSummary    `json:"fields"`
	Relations []RelationSummary `json:"relations,omitempty"`
}

// FieldSummary describes one scalar field.
type FieldSummary struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Nullable  bool   `json:"nullable,omitempty"`
	Generated bool   `json:"generated,omitempty"`
}

// RelationSummary describes one navigation.
type RelationSummary struct {
	Name       string   `json:"name"`
	Target     string   `json:"target"`
	Collection bool     `json:"collection,omitempty"`
	ForeignKey []string `json:"foreign_key"`
	Inverse    string   `json:"inverse,omitempty"`
}

// PlanCheck is the outcome of compiling one plan against the schema.
type PlanCheck struct {
	File  string `json:"file"`
	Plan  string `json:"plan"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool            `json:"valid"`
	Entities []EntitySummary `json:"entities"`
	Plans    []PlanCheck     `json:"plans,omitempty"`
}

// WriteText lists entities and plan checks.
func (r ValidationResult) WriteText(w io.Writer) error {
	if r.Valid {
		fmt.Fprintf(w, "✓ Schema valid: %d entities\n", len(r.Entities))
	} else {
		fmt.Fprintln(w, "✗ Validation failed")
	}
	for _, e := range r.Entities {
		fmt.Fprintf(w, "  %s key(%v): %d fields, %d relations\n", e.Name, e.Key, len(e.Fields), len(e.Relations))
	}
	for _, p := range r.Plans {
		if p.Error == "" {
			fmt.Fprintf(w, "  ✓ %s: %s\n", p.File, p.Plan)
			continue
		}
		fmt.Fprintf(w, "  ✗ %s: %s: %s\n", p.File, p.Plan, p.Error)
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema] [plan-file...]",
		Short: "Compile a schema and check plans against it",
		Long: `Compile a CUE schema (a .cue file or a directory) and report its entities.

Each plan in the given plan files is then built and compiled against the
schema without running it, catching unknown entities, members and
navigations. The schema defaults to --schema or the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	schemaPath := opts.settings().Schema
	if len(args) > 0 {
		schemaPath, args = args[0], args[1:]
	}
	if schemaPath == "" {
		return formatter.Fail(ExitCommandError, loadErrorf(ErrCodeNoSchema, "no schema: pass a path or set --schema"))
	}

	model, err := loadModel(schemaPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Code == ErrCodeSchema {
			return formatter.Fail(ExitFailure, err)
		}
		return formatter.Fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Compiled %d entities from %s", len(model.Entities()), schemaPath)

	result := ValidationResult{Valid: true, Entities: summarize(model)}
	eng := engine.New(model, opts.engineOptions()...)
	for _, path := range args {
		f, err := loadPlanFile(path)
		if err != nil {
			return formatter.Fail(ExitCommandError, err)
		}
		for i := range f.Plans {
			spec := &f.Plans[i]
			check := PlanCheck{File: path, Plan: planLabel(spec)}
			plan, err := spec.Build()
			if err == nil {
				_, err = eng.Compile(plan)
			}
			if err != nil {
				check.Error = err.Error()
				result.Valid = false
			}
			result.Plans = append(result.Plans, check)
		}
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "one or more plans failed to compile")
	}
	return nil
}

func summarize(model *schema.Model) []EntitySummary {
	var out []EntitySummary
	for _, name := range model.Entities() {
		desc, err := model.Descriptor(name)
		if err != nil {
			continue
		}
		s := EntitySummary{Name: name, Key: desc.Key, Fields: []FieldSummary{}}
		for _, f := range desc.Fields {
			s.Fields = append(s.Fields, FieldSummary{
				Name:      f.Name,
				Kind:      f.Kind.String(),
				Nullable:  f.Nullable,
				Generated: f.Generated,
			})
		}
		for _, r := range desc.Relations {
			s.Relations = append(s.Relations, RelationSummary{
				Name:       r.Name,
				Target:     r.Target,
				Collection: r.Collection,
				ForeignKey: r.ForeignKey,
				Inverse:    r.Inverse,
			})
		}
		out = append(out, s)
	}
	return out
}
