package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/querysql"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Plan string
	SQL  bool // also compile against the schema and print SQLite SQL
}

// ExplainResult is the output of the explain command.
type ExplainResult struct {
	Plan       string   `json:"plan"`
	Text       string   `json:"text"`
	Valid      bool     `json:"valid"`
	Problems   []string `json:"problems,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
	SQL        string   `json:"sql,omitempty"`
	Args       []any    `json:"args,omitempty"`
}

// WriteText prints the formatted plan followed by whatever else was
// computed.
func (r ExplainResult) WriteText(w io.Writer) error {
	fmt.Fprint(w, r.Text)
	for _, p := range r.Problems {
		fmt.Fprintf(w, "problem: %s\n", p)
	}
	if len(r.Parameters) > 0 {
		fmt.Fprintf(w, "parameters: %s\n", strings.Join(r.Parameters, ", "))
	}
	if r.SQL != "" {
		fmt.Fprintf(w, "sql: %s\n", r.SQL)
		if len(r.Args) > 0 {
			fmt.Fprintf(w, "args: %v\n", r.Args)
		}
	}
	return nil
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <plan-file>",
		Short: "Print a plan's steps without running it",
		Long: `Print the indented form of a plan and check its shape.

With --sql the plan is also compiled against the schema: the parameters
it needs are listed and the equivalent SQLite query is printed, when the
plan stays within the subset SQL can express.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Plan, "plan", "p", "", "plan name (required when the file has several)")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "compile against the schema and print SQL")

	return cmd
}

func runExplain(opts *ExplainOptions, planPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	f, err := loadPlanFile(planPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	plan, err := buildPlan(f, opts.Plan, nil)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	spec, _ := f.Plan(opts.Plan)

	validation := queryir.Validate(plan)
	out := ExplainResult{
		Plan:     planLabel(spec),
		Text:     queryir.Format(plan),
		Valid:    validation.Valid,
		Problems: validation.Problems,
	}
	if !out.Valid || !opts.SQL {
		return finishExplain(formatter, out)
	}

	path, err := opts.schemaPath(f, planPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	model, err := loadModel(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	prog, err := engine.New(model, opts.engineOptions()...).Compile(plan)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	out.Parameters = prog.Parameters()

	sql, args, err := querysql.NewSQLCompiler(model).Compile(plan)
	if err != nil {
		// Plans outside the SQL subset still explain.
		formatter.VerboseLog("No SQL: %v", err)
	} else {
		out.SQL, out.Args = sql, args
	}
	return finishExplain(formatter, out)
}

func finishExplain(formatter *OutputFormatter, out ExplainResult) error {
	if err := formatter.Success(out); err != nil {
		return err
	}
	if !out.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("plan %s is invalid", out.Plan))
	}
	return nil
}
