// Package main provides the plasm CLI.
//
// Usage:
//
//	plasm run -load people=people.csv query.plasm   # assemble and execute
//	plasm compile -o query.plbc query.plasm         # compile to bytecode
//	plasm exec -load people=people.csv query.plbc   # execute compiled bytecode
//	plasm explain query.plasm                       # list the program
//	plasm repl                                      # interactive shell
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/plasm-db/plasm/pkg/asm"
	"github.com/plasm-db/plasm/pkg/loader"
	"github.com/plasm-db/plasm/pkg/memstore"
	"github.com/plasm-db/plasm/pkg/optimizer"
	"github.com/plasm-db/plasm/pkg/repl"
	"github.com/plasm-db/plasm/pkg/vm"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return printUsage()
	}
	switch args[0] {
	case "run":
		return runCommand(args[1:])
	case "compile":
		return compileCommand(args[1:])
	case "exec":
		return execCommand(args[1:])
	case "explain":
		return explainCommand(args[1:])
	case "repl":
		return replCommand(args[1:])
	case "version":
		fmt.Printf("plasm version %s\n", version)
		if commit != "none" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Printf("  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage() error {
	fmt.Println(`plasm - a register machine for relational query plans

Usage:
  plasm run <file.plasm>      assemble and execute a program
  plasm compile <file.plasm>  compile a program to bytecode (.plbc)
  plasm exec <file.plbc>      execute compiled bytecode
  plasm explain <file>        print a program listing
  plasm repl                  interactive shell
  plasm version               print version information

Common flags:
  -load name=path   load a CSV/JSON/Parquet file as a table (repeatable)
  -max-steps n      bound executed instructions
  -O                enable optimizer passes`)
	return nil
}

// tableFlags collects repeated -load name=path arguments.
type tableFlags []string

func (t *tableFlags) String() string { return strings.Join(*t, ",") }

func (t *tableFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("want name=path, got %q", v)
	}
	*t = append(*t, v)
	return nil
}

func buildStore(specs tableFlags) (*memstore.Store, error) {
	s := memstore.New()
	for _, spec := range specs {
		name, path, _ := strings.Cut(spec, "=")
		if err := loader.LoadIntoStore(context.Background(), s, name, path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func printRows(prog *vm.Program) error {
	count := 0
	for {
		res, err := prog.Step()
		if err != nil {
			return err
		}
		if res == vm.StepDone {
			break
		}
		n, _ := prog.ColumnCount()
		parts := make([]string, n)
		for i := 0; i < n; i++ {
			v, _ := prog.ColumnValue(i)
			parts[i] = v.String()
		}
		fmt.Println(strings.Join(parts, " | "))
		count++
	}
	fmt.Printf("(%d rows)\n", count)
	return nil
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var tables tableFlags
	fs.Var(&tables, "load", "load a file as a table, name=path (repeatable)")
	maxSteps := fs.Int64("max-steps", 0, "bound executed instructions, 0 = unlimited")
	optimize := fs.Bool("O", false, "enable optimizer passes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: plasm run <file.plasm>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	store, err := buildStore(tables)
	if err != nil {
		return err
	}
	prog, err := asm.Assemble(string(data), store)
	if err != nil {
		return err
	}
	defer prog.Close()
	if *optimize {
		if _, err := optimizer.New(optimizer.WithAllOptimizations()).Optimize(prog); err != nil {
			return err
		}
	}
	if *maxSteps > 0 {
		prog.SetMaxSteps(*maxSteps)
	}
	return printRows(prog)
}

func compileCommand(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	output := fs.String("o", "", "output path, defaults to input with .plbc")
	optimize := fs.Bool("O", false, "enable optimizer passes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: plasm compile <file.plasm>")
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := asm.Assemble(string(data), nil)
	if err != nil {
		return err
	}
	defer prog.Close()
	if *optimize {
		if _, err := optimizer.New(optimizer.WithAllOptimizations()).Optimize(prog); err != nil {
			return err
		}
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(path, ".plasm") + ".plbc"
	}
	if err := prog.SaveFile(out); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d instructions)\n", out, prog.Len())
	return nil
}

func execCommand(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	var tables tableFlags
	fs.Var(&tables, "load", "load a file as a table, name=path (repeatable)")
	maxSteps := fs.Int64("max-steps", 0, "bound executed instructions, 0 = unlimited")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: plasm exec <file.plbc>")
	}

	prog, err := vm.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	defer prog.Close()
	store, err := buildStore(tables)
	if err != nil {
		return err
	}
	prog.SetStore(store)
	if *maxSteps > 0 {
		prog.SetMaxSteps(*maxSteps)
	}
	return printRows(prog)
}

func explainCommand(args []string) error {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: plasm explain <file>")
	}

	path := fs.Arg(0)
	var prog *vm.Program
	var err error
	if strings.HasSuffix(path, ".plbc") {
		prog, err = vm.LoadFile(path)
	} else {
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			prog, err = asm.Assemble(string(data), nil)
		}
	}
	if err != nil {
		return err
	}
	defer prog.Close()
	fmt.Print(prog.Explain())
	return nil
}

func replCommand(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	var tables tableFlags
	fs.Var(&tables, "load", "load a file as a table, name=path (repeatable)")
	maxSteps := fs.Int64("max-steps", 0, "bound each run, 0 = unlimited")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := repl.New()
	r.SetMaxSteps(*maxSteps)
	for _, spec := range tables {
		name, path, _ := strings.Cut(spec, "=")
		if err := loader.LoadIntoStore(context.Background(), r.Store(), name, path); err != nil {
			return err
		}
	}
	r.Start(os.Stdin, os.Stdout)
	return nil
}
