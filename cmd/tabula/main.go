// Command tabula runs query plans, schema checks and scenario files
// against the in-memory table store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/tabula/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
