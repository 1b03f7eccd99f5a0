package asm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/plasm-db/plasm/pkg/vm"
)

var (
	ErrUnknownFlag   = errors.New("unknown flag")
	ErrBadOperand    = errors.New("bad operand")
	ErrInconsistent  = errors.New("ResultRow widths disagree")
	ErrDuplicateName = errors.New("label defined twice")
)

// Assemble parses and assembles source into a runnable program. store may
// be nil for programs that never touch a table.
func Assemble(source string, store vm.Store) (*vm.Program, error) {
	stmts, err := NewParser(source).Parse()
	if err != nil {
		return nil, err
	}
	return assemble(stmts, store)
}

// assembler drives a vm.Builder over parsed statements, mapping label names
// to builder labels and rN/cN operands to allocated slots.
type assembler struct {
	b       *vm.Builder
	labels  map[string]vm.Label
	defined map[string]bool
	numCols int
}

func assemble(stmts []Statement, store vm.Store) (*vm.Program, error) {
	b := vm.NewBuilder(store)

	// size the register file and cursor slots from the highest index used
	maxReg, maxCur := -1, -1
	for _, stmt := range stmts {
		for _, op := range stmt.Operands {
			switch op.Kind {
			case OperandRegister:
				if int(op.IntVal) > maxReg {
					maxReg = int(op.IntVal)
				}
			case OperandCursor:
				if int(op.IntVal) > maxCur {
					maxCur = int(op.IntVal)
				}
			}
		}
	}
	if maxReg > 0 {
		b.AllocRegisters(maxReg)
	}
	for i := 0; i <= maxCur; i++ {
		b.AllocCursor()
	}

	a := &assembler{
		b:       b,
		labels:  make(map[string]vm.Label),
		defined: make(map[string]bool),
		numCols: -1,
	}
	for _, stmt := range stmts {
		if stmt.Label != "" {
			if err := a.defineLabel(stmt); err != nil {
				return nil, err
			}
			continue
		}
		if err := a.emit(stmt); err != nil {
			return nil, err
		}
	}
	if a.numCols == -1 {
		a.numCols = 0
	}
	prog, err := b.Finish(a.numCols)
	if err != nil {
		return nil, err
	}
	return prog, nil
}

func (a *assembler) defineLabel(stmt Statement) error {
	if a.defined[stmt.Label] {
		return fmt.Errorf("line %d: %w: %s", stmt.Line, ErrDuplicateName, stmt.Label)
	}
	a.defined[stmt.Label] = true
	return a.b.ResolveLabel(a.label(stmt.Label))
}

func (a *assembler) label(name string) vm.Label {
	if lbl, ok := a.labels[name]; ok {
		return lbl
	}
	lbl := a.b.MakeLabel()
	a.labels[name] = lbl
	return lbl
}

func (a *assembler) emit(stmt Statement) error {
	opcode, err := vm.OpcodeFromString(stmt.Opcode)
	if err != nil {
		return fmt.Errorf("line %d: %w", stmt.Line, err)
	}

	p1, p2, p3, hasP4 := opcode.Layout()
	slots := []vm.OperandSlot{p1, p2, p3}
	fields := make([]int, 3)
	slot := 0
	var p4 vm.Value
	p4set := false
	var flags vm.Flags

	for _, operand := range stmt.Operands {
		// skip unused slots so operands map onto the meaningful ones
		for slot < 3 && slots[slot] == vm.SlotUnused {
			slot++
		}

		// a flag name modifies the instruction rather than filling a
		// slot; jump slots keep idents as labels
		if operand.Kind == OperandIdent && (slot >= 3 || slots[slot] != vm.SlotJump) {
			if f, ok := flagByName(operand.StrVal); ok {
				flags |= f
				continue
			}
		}

		if slot >= 3 {
			if !hasP4 || p4set {
				return fmt.Errorf("line %d: %w: too many operands for %s", stmt.Line, ErrBadOperand, opcode)
			}
			p4, err = literalValue(opcode, operand)
			if err != nil {
				return fmt.Errorf("line %d: %w", stmt.Line, err)
			}
			p4set = true
			continue
		}

		val, err := a.slotValue(opcode, slots[slot], operand)
		if err != nil {
			return fmt.Errorf("line %d: %w", stmt.Line, err)
		}
		fields[slot] = val
		slot++
	}

	if opcode == vm.OpResultRow {
		if a.numCols != -1 && a.numCols != fields[1] {
			return fmt.Errorf("line %d: %w: %d then %d", stmt.Line, ErrInconsistent, a.numCols, fields[1])
		}
		a.numCols = fields[1]
	}

	a.b.Add(vm.Instr{Op: opcode, P1: fields[0], P2: fields[1], P3: fields[2], P4: p4, P5: flags})
	return a.b.Err()
}

func (a *assembler) slotValue(opcode vm.Opcode, slot vm.OperandSlot, operand Operand) (int, error) {
	switch slot {
	case vm.SlotRegister:
		if operand.Kind != OperandRegister {
			return 0, fmt.Errorf("%w: %s wants a register here", ErrBadOperand, opcode)
		}
		return int(operand.IntVal), nil
	case vm.SlotCursor:
		if operand.Kind != OperandCursor {
			return 0, fmt.Errorf("%w: %s wants a cursor here", ErrBadOperand, opcode)
		}
		return int(operand.IntVal), nil
	case vm.SlotJump:
		switch operand.Kind {
		case OperandIdent:
			return int(a.label(operand.StrVal)), nil
		case OperandInt:
			return int(operand.IntVal), nil
		}
		return 0, fmt.Errorf("%w: %s wants a label or address here", ErrBadOperand, opcode)
	case vm.SlotImmediate, vm.SlotCount:
		if operand.Kind != OperandInt {
			return 0, fmt.Errorf("%w: %s wants an integer here", ErrBadOperand, opcode)
		}
		return int(operand.IntVal), nil
	default:
		return 0, fmt.Errorf("%w: %s takes no operand here", ErrBadOperand, opcode)
	}
}

// literalValue builds the p4 literal, shaped by the opcode: Real accepts
// integer literals, Blob turns string literals into bytes.
func literalValue(opcode vm.Opcode, operand Operand) (vm.Value, error) {
	switch operand.Kind {
	case OperandInt:
		if opcode == vm.OpReal {
			return vm.NewReal(float64(operand.IntVal)), nil
		}
		return vm.NewInteger(operand.IntVal), nil
	case OperandFloat:
		return vm.NewReal(operand.FloatVal), nil
	case OperandString:
		if opcode == vm.OpBlob {
			return vm.NewBlob([]byte(operand.StrVal)), nil
		}
		return vm.NewText(operand.StrVal), nil
	default:
		return vm.Null(), fmt.Errorf("%w: %s wants a literal here", ErrBadOperand, opcode)
	}
}

func flagByName(name string) (vm.Flags, bool) {
	switch strings.ToLower(name) {
	case "jumpifnull":
		return vm.FlagJumpIfNull, true
	case "nullnever":
		return vm.FlagNullNever, true
	default:
		return 0, false
	}
}
