package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/harness"
	"github.com/roach88/tabula/internal/queryir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Plan   string            // plan name; empty selects the only plan
	Params map[string]string // --param name=value
}

// QueryResult is the output of the query command.
type QueryResult struct {
	Plan   string `json:"plan"`
	Entity string `json:"entity"`
	Scalar bool   `json:"scalar"`
	Rows   []any  `json:"rows,omitempty"`
	Value  any    `json:"value,omitempty"`
	Count  int    `json:"count"`
}

// WriteText prints one JSON line per row, or the value of a terminal plan.
func (r QueryResult) WriteText(w io.Writer) error {
	if r.Scalar {
		return writeJSONLine(w, r.Value)
	}
	for _, row := range r.Rows {
		if err := writeJSONLine(w, row); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", r.Count)
	return err
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <plan-file>",
		Short: "Run a plan against seeded data",
		Long: `Load the plan file's schema, add and save its seed rows, then run one plan.

Entities are printed as maps of their scalar fields; navigations are not
followed. Parameters given with --param override the plan's defaults and
are parsed as YAML scalars.

Examples:
  tabula query plans.yaml --plan cheap
  tabula query plans.yaml --plan cheap --param max=25
  tabula query plans.yaml --schema ./schema --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Plan, "plan", "p", "", "plan name (required when the file has several)")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "plan parameter name=value (repeatable)")

	return cmd
}

func runQuery(opts *QueryOptions, planPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	params, err := parseParams(opts.Params)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	ws, err := opts.openWorkspace(ctx, planPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Seeded %d row(s) into %s", ws.Seeded, ws.DB.Name())

	plan, err := buildPlan(ws.File, opts.Plan, params)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Plan:\n%s", queryir.Format(plan))

	res, err := ws.Session.Query(ctx, plan)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}

	spec, _ := ws.File.Plan(opts.Plan)
	out := QueryResult{Plan: planLabel(spec), Entity: plan.Entity(), Scalar: res.IsScalar()}
	if out.Scalar {
		if out.Value, err = harness.Render(ws.Model, res.Value()); err != nil {
			return formatter.Fail(ExitFailure, err)
		}
		out.Count = 1
		return formatter.Success(out)
	}

	elems, err := res.Collect()
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	if out.Rows, err = harness.RenderAll(ws.Model, elems); err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	out.Count = len(out.Rows)
	return formatter.Success(out)
}
