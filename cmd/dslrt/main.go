// Command dslrt is the Cobra-based CLI entry point for the governed DSL
// runtime (spec §6.4), replacing the teacher's ad-hoc os.Args switch with
// a root command and subcommands, the same promotion of spf13/cobra the
// teacher already uses for migrate-vocabulary/test-db-vocabulary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "dslrt",
		Short: "Governed DSL runtime: verb registry, compiler, staged runbooks",
	}

	root.AddCommand(verbsCommand())
	root.AddCommand(runbookCommand())
	root.AddCommand(surfaceCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
