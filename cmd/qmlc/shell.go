package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/qmlcore/runtime/internal/objtree"
)

// newShellCommand builds the "shell" subcommand: an interactive
// readline-driven REPL over a previously compiled unit, for inspecting
// its instruction stream, string/type tables and property caches.
// Grounded on ogle/program/server's request-response command loop,
// adapted from RPC calls against a live debuggee to plain queries
// against a CompiledUnit loaded from disk, and on chzyer/readline's own
// example REPL for the Instance/Readline/Close lifecycle.
func newShellCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell <unit.json>",
		Short: "interactively inspect a compiled bytecode unit",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				exitf("qmlc: %v\n", err)
			}
			var unit objtree.CompiledUnit
			if err := json.Unmarshal(data, &unit); err != nil {
				exitf("qmlc: parsing unit: %v\n", err)
			}
			if err := runShell(&unit); err != nil {
				exitf("qmlc: %v\n", err)
			}
		},
	}
	return cmd
}

func runShell(unit *objtree.CompiledUnit) error {
	rl, err := readline.New("qmlc> ")
	if err != nil {
		return fmt.Errorf("starting shell: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), "qmlc interactive shell. Type \"help\" for a command list.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := runShellCommand(rl, unit, fields); err != nil {
			fmt.Fprintln(rl.Stderr(), err)
		}
	}
}

func runShellCommand(rl *readline.Instance, unit *objtree.CompiledUnit, fields []string) error {
	switch fields[0] {
	case "help":
		fmt.Fprintln(rl.Stdout(), "commands: instructions, types, strings, cache <n>, quit")
	case "quit", "exit":
		os.Exit(0)
	case "instructions":
		for i, in := range unit.Instructions {
			fmt.Fprintf(rl.Stdout(), "%4d  %-24v %v\n", i, in.Op, in.Args)
		}
	case "types":
		for i, t := range unit.TypeRefs {
			fmt.Fprintf(rl.Stdout(), "%4d  %s\n", i, t)
		}
	case "strings":
		for i, s := range unit.Primitives {
			fmt.Fprintf(rl.Stdout(), "%4d  %q\n", i, s)
		}
	case "cache":
		if len(fields) != 2 {
			return fmt.Errorf("usage: cache <index>")
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil || idx < 0 || idx >= len(unit.PropertyCaches) {
			return fmt.Errorf("no property cache at index %q", fields[1])
		}
		for _, e := range unit.PropertyCaches[idx] {
			fmt.Fprintf(rl.Stdout(), "  %-20s alias=%v\n", e.Name, e.IsAlias)
		}
	default:
		return fmt.Errorf("unknown command %q; try \"help\"", fields[0])
	}
	return nil
}
