package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/qmlcore/runtime/engine"
	"github.com/qmlcore/runtime/internal/objtree"
)

// newCompileCommand builds the "compile" subcommand: it reads an
// already-parsed object tree (the JSON encoding of objtree.Node; a
// real parser is an external collaborator per spec.md §1) plus a type
// registry, runs the ObjectTreeCompiler, and writes the resulting
// CompiledUnit as JSON.
func newCompileCommand() *cobra.Command {
	var typesPath, outPath string

	cmd := &cobra.Command{
		Use:   "compile <tree.json>",
		Short: "compile a parsed object tree into a bytecode unit",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			types, err := loadTypes(typesPath)
			if err != nil {
				exitf("qmlc: %v\n", err)
			}
			root, err := loadTree(args[0])
			if err != nil {
				exitf("qmlc: %v\n", err)
			}

			e, err := engine.New(engine.Config{Types: types})
			if err != nil {
				exitf("qmlc: %v\n", err)
			}

			unit, errs := e.Compile(args[0], root)
			if len(errs) > 0 {
				for _, ce := range errs {
					fmt.Fprintln(os.Stderr, ce.Error())
				}
				os.Exit(1)
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					exitf("qmlc: %v\n", err)
				}
				defer f.Close()
				out = f
			}
			writeUnit(out, unit)
		},
	}

	cmd.Flags().StringVar(&typesPath, "types", "", "JSON file describing the host's type/enum/attached-type registry")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the compiled unit here instead of stdout")
	return cmd
}

func loadTypes(path string) (*objtree.StaticTypeTable, error) {
	t := objtree.NewStaticTypeTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading type registry: %w", err)
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing type registry: %w", err)
	}
	return t, nil
}

func loadTree(path string) (*objtree.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading object tree: %w", err)
	}
	var root objtree.Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing object tree: %w", err)
	}
	return &root, nil
}

func writeUnit(w io.Writer, unit *objtree.CompiledUnit) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(unit); err != nil {
		exitf("qmlc: encoding unit: %v\n", err)
	}
}
