package vm

import (
	"context"
	"fmt"
)

// StepResult is what a successful Step produced.
type StepResult uint8

const (
	// StepRow means a result row is pending; read it through the Column
	// accessors, then call Step again to resume.
	StepRow StepResult = iota

	// StepDone means the program halted cleanly. Further Steps fail.
	StepDone
)

// State is the program's execution state.
type State uint8

const (
	StateReady  State = iota // not started, or resumed past the pending row
	StateRow                 // suspended on a result row
	StateHalted              // finished cleanly
	StateFailed              // stopped on an error
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRow:
		return "row"
	case StateHalted:
		return "halted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExecutionStats counts work done by a program, populated when stats are
// enabled before the first Step.
type ExecutionStats struct {
	Steps       int64            // instructions executed
	Rows        int64            // result rows produced
	OpcodeCount map[Opcode]int64 // executions per opcode
}

type cursorSlot struct {
	cur   Cursor
	valid bool // positioned on a row
}

// Program is a finished, executable instruction sequence together with its
// run state: the register file, cursor slots, and instruction pointer.
// Programs come from a Builder's Finish or from DecodeProgram; they are not
// safe for concurrent use.
type Program struct {
	code       []Instr
	numRegs    int
	numCursors int
	numCols    int

	store   Store
	regs    []Value
	cursors []cursorSlot
	ip      int
	state   State
	err     error

	resultStart int
	resultCount int
	onceDone    map[int]bool

	maxSteps  int64
	stepCount int64
	ctx       context.Context

	statsEnabled bool
	stats        ExecutionStats
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.code) }

// NumColumns returns the width of the rows the program produces.
func (p *Program) NumColumns() int { return p.numCols }

// NumRegisters returns the size of the register file, register 0 included.
func (p *Program) NumRegisters() int { return p.numRegs }

// State returns the current execution state.
func (p *Program) State() State { return p.state }

// SetStore attaches (or replaces) the storage backend. It only takes effect
// before the first Step or after a Reset.
func (p *Program) SetStore(s Store) { p.store = s }

// SetMaxSteps bounds how many instructions the program may execute across
// its lifetime; 0 means unbounded. Exceeding the bound fails the program
// with ErrStepLimit.
func (p *Program) SetMaxSteps(n int64) { p.maxSteps = n }

// SetContext attaches a context checked between instructions; cancellation
// fails the program with the context's error.
func (p *Program) SetContext(ctx context.Context) { p.ctx = ctx }

// EnableStats turns on execution counters, readable through Stats.
func (p *Program) EnableStats() {
	p.statsEnabled = true
	if p.stats.OpcodeCount == nil {
		p.stats.OpcodeCount = make(map[Opcode]int64)
	}
}

// Stats returns the counters gathered so far.
func (p *Program) Stats() ExecutionStats { return p.stats }

// Register returns the value in register i.
func (p *Program) Register(i int) (Value, error) {
	if i < 0 || i >= p.numRegs {
		return Null(), fmt.Errorf("%w: %d", ErrRegisterBounds, i)
	}
	return p.regs[i], nil
}

// SetRegister stores v in register i, typically to pass parameters into a
// program before stepping it.
func (p *Program) SetRegister(i int, v Value) error {
	if i < 1 || i >= p.numRegs {
		return fmt.Errorf("%w: %d", ErrRegisterBounds, i)
	}
	p.regs[i] = v
	return nil
}

// Reset rewinds the program to its initial state so it can run again: the
// instruction pointer returns to 0, registers clear to null, cursors close,
// and the step count restarts. Stats survive a reset.
func (p *Program) Reset() error {
	if err := p.closeCursors(); err != nil {
		return err
	}
	for i := range p.regs {
		p.regs[i] = Null()
	}
	p.ip = 0
	p.state = StateReady
	p.err = nil
	p.resultStart, p.resultCount = 0, 0
	p.onceDone = nil
	p.stepCount = 0
	return nil
}

// Close releases the program's cursors. Call it when done with the program,
// whether or not execution finished.
func (p *Program) Close() error {
	err := p.closeCursors()
	if p.state != StateFailed {
		p.state = StateHalted
	}
	return err
}

func (p *Program) closeCursors() error {
	var first error
	for i := range p.cursors {
		if c := p.cursors[i].cur; c != nil {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
			p.cursors[i] = cursorSlot{}
		}
	}
	return first
}

// ColumnCount returns the width of the pending row.
func (p *Program) ColumnCount() (int, error) {
	if p.state != StateRow {
		return 0, ErrNotRow
	}
	return p.resultCount, nil
}

// ColumnValue returns column i of the pending row. The Column accessors are
// only valid while the program is suspended on a row.
func (p *Program) ColumnValue(i int) (Value, error) {
	if p.state != StateRow {
		return Null(), ErrNotRow
	}
	if i < 0 || i >= p.resultCount {
		return Null(), fmt.Errorf("%w: column %d of %d", ErrRegisterBounds, i, p.resultCount)
	}
	return p.regs[p.resultStart+i], nil
}

// ColumnType returns the type of column i of the pending row.
func (p *Program) ColumnType(i int) (Type, error) {
	v, err := p.ColumnValue(i)
	return v.Type(), err
}

// ColumnInt returns column i coerced to int64.
func (p *Program) ColumnInt(i int) (int64, error) {
	v, err := p.ColumnValue(i)
	return v.Int(), err
}

// ColumnFloat returns column i coerced to float64.
func (p *Program) ColumnFloat(i int) (float64, error) {
	v, err := p.ColumnValue(i)
	return v.Float(), err
}

// ColumnText returns column i's text payload.
func (p *Program) ColumnText(i int) (string, error) {
	v, err := p.ColumnValue(i)
	return v.Text(), err
}

// ColumnBlob returns column i's blob payload.
func (p *Program) ColumnBlob(i int) ([]byte, error) {
	v, err := p.ColumnValue(i)
	return v.Bytes(), err
}
