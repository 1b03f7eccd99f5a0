package vm

import (
	"fmt"
	"strings"
)

// Flags modifies how an instruction treats its operands.
type Flags uint16

const (
	// FlagJumpIfNull makes If and IfNot take the jump when the tested
	// register is null.
	FlagJumpIfNull Flags = 1 << iota

	// FlagNullNever makes the comparison opcodes fall through, never jump,
	// when either operand is null.
	FlagNullNever
)

// Instr is a single fixed-width instruction. P1 through P3 are small integer
// operands whose meaning depends on the opcode; P4 carries a literal Value
// for the ops that need one; P5 carries flags.
type Instr struct {
	Op Opcode
	P1 int
	P2 int
	P3 int
	P4 Value
	P5 Flags
}

// String renders the instruction for listings and errors.
func (in Instr) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %4d %4d %4d", in.Op, in.P1, in.P2, in.P3)
	if in.Op.info().hasP4 {
		fmt.Fprintf(&b, "  %s", in.P4)
	}
	if in.P5 != 0 {
		fmt.Fprintf(&b, "  [%02x]", uint16(in.P5))
	}
	return b.String()
}
