package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/store"
)

// TableStats describes one table after seeding.
type TableStats struct {
	Entity string `json:"entity"`
	Rows   int    `json:"rows"`
	Digest string `json:"digest"`
}

// StatsResult is the output of the stats command.
type StatsResult struct {
	Database string       `json:"database"`
	Seeded   int          `json:"seeded"`
	Digest   string       `json:"digest"`
	Tables   []TableStats `json:"tables"`
}

// WriteText prints one aligned line per table.
func (r StatsResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "database %s: %d rows seeded\n", r.Database, r.Seeded)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tROWS\tDIGEST")
	for _, t := range r.Tables {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Entity, t.Rows, t.Digest)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "digest %s\n", r.Digest)
	return err
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <plan-file>",
		Short: "Show row counts and digests of seeded tables",
		Long: `Load the plan file's schema and seed rows, then print each table's row
count and content digest. Equal digests mean equal table contents, so
two seed files can be compared without diffing them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runStats(opts *RootOptions, planPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ws, err := opts.openWorkspace(cmd.Context(), planPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	result, err := collectStats(ws.DB)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	result.Seeded = ws.Seeded
	return formatter.Success(result)
}

func collectStats(db *store.Database) (StatsResult, error) {
	result := StatsResult{Database: db.Name(), Tables: []TableStats{}}
	for _, entity := range db.Entities() {
		table, err := db.GetTable(entity)
		if err != nil {
			return result, err
		}
		digest, err := table.Digest()
		if err != nil {
			return result, err
		}
		result.Tables = append(result.Tables, TableStats{Entity: entity, Rows: table.Len(), Digest: digest})
	}
	digest, err := db.Digest()
	if err != nil {
		return result, err
	}
	result.Digest = digest
	return result, nil
}
