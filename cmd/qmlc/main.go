// The qmlc tool drives the declarative compiler and the managed heap
// from the command line: compiling an already-parsed object tree to a
// bytecode unit, reporting GC statistics, and opening an interactive
// shell over a compiled unit. Grounded on cmd/viewcore/main.go's
// command-dispatch shape, rebuilt on top of a cobra.Command tree the
// way cmd/viewcore/objref.go's single subcommand is registered.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "qmlc",
		Short: "compile and inspect declarative object trees",
	}
	root.AddCommand(newCompileCommand())
	root.AddCommand(newGCStatsCommand())
	root.AddCommand(newShellCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
