// Command importctl previews and runs CSV imports from the command line.
//
//	importctl preview --type adult_member soci.csv
//	importctl run --type vehicle --update --by "Mario Rossi" mezzi.csv
//	importctl rows JOB_ID --outcome failed
//	importctl migrate up
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/easyvol/csvimport/internal/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if core.IsUserFacing(err) {
			fmt.Fprintf(os.Stderr, "error: %s\n  %v\n", core.FormatUserError(err), err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}
