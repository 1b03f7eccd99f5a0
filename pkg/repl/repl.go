// Package repl provides an interactive loop for assembling and running
// programs against an in-memory store.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/plasm-db/plasm/pkg/asm"
	"github.com/plasm-db/plasm/pkg/loader"
	"github.com/plasm-db/plasm/pkg/memstore"
	"github.com/plasm-db/plasm/pkg/vm"
)

const (
	prompt     = "plasm> "
	promptCont = "  ...> "
)

// REPL reads programs line by line, assembles them, and prints their rows.
// A trailing backslash continues a program on the next line; a blank line
// ends continuation and runs it.
type REPL struct {
	store       *memstore.Store
	history     []string
	multiline   strings.Builder
	inMultiline bool
	maxSteps    int64
}

// New creates a REPL with an empty store.
func New() *REPL {
	return &REPL{store: memstore.New()}
}

// Store returns the REPL's store, so callers can preload tables.
func (r *REPL) Store() *memstore.Store { return r.store }

// SetMaxSteps bounds each program run; 0 means unlimited.
func (r *REPL) SetMaxSteps(n int64) { r.maxSteps = n }

// Start runs the loop until in is exhausted or the user quits.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "plasm interactive shell")
	fmt.Fprintln(out, "Type 'help' for commands, 'quit' to exit; end a line with \\ to continue")
	fmt.Fprintln(out)

	for {
		if r.inMultiline {
			fmt.Fprint(out, promptCont)
		} else {
			fmt.Fprint(out, prompt)
		}
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return
		}
		line := scanner.Text()

		if r.inMultiline {
			if strings.TrimSpace(line) == "" {
				r.inMultiline = false
				src := r.multiline.String()
				r.multiline.Reset()
				r.run(src, out)
			} else {
				r.multiline.WriteString(strings.TrimSuffix(line, "\\"))
				r.multiline.WriteString("\n")
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		handled, quit := r.handleCommand(trimmed, out)
		if quit {
			return
		}
		if handled {
			continue
		}

		if strings.HasSuffix(line, "\\") {
			r.inMultiline = true
			r.multiline.WriteString(strings.TrimSuffix(line, "\\"))
			r.multiline.WriteString("\n")
			continue
		}
		r.run(line, out)
	}
}

func (r *REPL) handleCommand(line string, out io.Writer) (handled, quit bool) {
	parts := strings.Fields(line)
	switch parts[0] {
	case "quit", "exit":
		return true, true

	case "help":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  tables              list loaded tables")
		fmt.Fprintln(out, "  schema <table>      show a table's columns")
		fmt.Fprintln(out, "  load <path> [name]  load a CSV/JSON/Parquet file as a table")
		fmt.Fprintln(out, "  explain <line>      list a program instead of running it")
		fmt.Fprintln(out, "  history             show past programs")
		fmt.Fprintln(out, "  quit                exit")
		fmt.Fprintln(out, "Anything else is assembled and run; end a line with \\ to continue.")
		return true, false

	case "tables":
		for _, name := range r.store.Tables() {
			n, _ := r.store.NumRows(name)
			fmt.Fprintf(out, "%s (%d rows)\n", name, n)
		}
		return true, false

	case "schema":
		if len(parts) != 2 {
			fmt.Fprintln(out, "usage: schema <table>")
			return true, false
		}
		cols, err := r.store.Columns(parts[1])
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return true, false
		}
		for i, col := range cols {
			fmt.Fprintf(out, "%d: %s\n", i, col)
		}
		return true, false

	case "load":
		if len(parts) < 2 || len(parts) > 3 {
			fmt.Fprintln(out, "usage: load <path> [table]")
			return true, false
		}
		table := ""
		if len(parts) == 3 {
			table = parts[2]
		}
		if err := loader.LoadIntoStore(context.Background(), r.store, table, parts[1]); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		} else {
			fmt.Fprintln(out, "ok")
		}
		return true, false

	case "explain":
		src := strings.TrimSpace(strings.TrimPrefix(line, "explain"))
		if src == "" {
			fmt.Fprintln(out, "usage: explain <program>")
			return true, false
		}
		prog, err := asm.Assemble(src, r.store)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return true, false
		}
		defer prog.Close()
		fmt.Fprint(out, prog.Explain())
		return true, false

	case "history":
		for i, entry := range r.history {
			fmt.Fprintf(out, "%d: %s\n", i+1, strings.ReplaceAll(entry, "\n", "; "))
		}
		return true, false
	}
	return false, false
}

func (r *REPL) run(source string, out io.Writer) {
	r.history = append(r.history, source)
	prog, err := asm.Assemble(source, r.store)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	defer prog.Close()
	if r.maxSteps > 0 {
		prog.SetMaxSteps(r.maxSteps)
	}

	count := 0
	for {
		res, err := prog.Step()
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
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
		fmt.Fprintln(out, strings.Join(parts, " | "))
		count++
	}
	fmt.Fprintf(out, "(%d rows)\n", count)
}
