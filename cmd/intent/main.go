// Command intent loads intent programs, dispatches intents against them
// and inspects the dispatch journal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/intent/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
