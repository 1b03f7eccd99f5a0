package vm

import (
	"fmt"
	"strings"
)

// Explain returns a human-readable listing of the program, one instruction
// per line with its address, operands, and the P4 literal when present.
func (p *Program) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "addr  opcode        p1   p2   p3  p4\n")
	fmt.Fprintf(&b, "----  ------------  ---- ---- ----  --------------\n")
	for addr, in := range p.code {
		fmt.Fprintf(&b, "%-4d  %-12s  %4d %4d %4d", addr, in.Op, in.P1, in.P2, in.P3)
		if in.Op.info().hasP4 {
			fmt.Fprintf(&b, "  %s", in.P4)
		}
		if in.P5 != 0 {
			fmt.Fprintf(&b, "  [%02x]", uint16(in.P5))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "registers: %d  cursors: %d  columns: %d\n",
		p.numRegs, p.numCursors, p.numCols)
	return b.String()
}

// Code returns a copy of the program's instructions, for tools that rewrite
// or inspect programs.
func (p *Program) Code() []Instr {
	out := make([]Instr, len(p.code))
	copy(out, p.code)
	return out
}

// NumCursors returns the number of cursor slots the program provisions.
func (p *Program) NumCursors() int { return p.numCursors }

// Rewrite replaces the program's instructions with code of the same length.
// It exists for optimizers that perform address-preserving rewrites; a
// different length is rejected because jump targets would shift.
func (p *Program) Rewrite(code []Instr) error {
	if len(code) != len(p.code) {
		return fmt.Errorf("%w: rewrite changes code length %d to %d",
			ErrBadOperand, len(p.code), len(code))
	}
	if p.state != StateReady || p.ip != 0 {
		return fmt.Errorf("%w: program already started", ErrHalted)
	}
	out := make([]Instr, len(code))
	copy(out, code)
	p.code = out
	return nil
}
