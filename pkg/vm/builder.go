package vm

import "fmt"

// Label names a jump target that is not known yet. Labels are handed out by
// MakeLabel, used as the jump operand of emitted instructions, and pinned to
// an address exactly once with ResolveLabel. Internally a label is the
// negative value -(index+1), so labels and real addresses never collide.
type Label int

// Builder assembles a Program instruction by instruction. Register and
// cursor indexes are allocated through the builder so the finished program
// knows how much state to provision; register 0 is reserved and never handed
// out.
//
// The builder is sticky on error: the first failure is remembered and every
// later call is a no-op until Err or Finish reports it.
type Builder struct {
	store        Store
	code         []Instr
	nextRegister int
	nextCursor   int
	labels       []int // resolved address per label, -1 while unresolved
	err          error
	finished     bool
}

// NewBuilder returns an empty Builder. store may be nil for programs that
// never open a cursor or transaction.
func NewBuilder(store Store) *Builder {
	return &Builder{store: store, nextRegister: 1}
}

// AllocRegister returns a fresh register index.
func (b *Builder) AllocRegister() int {
	r := b.nextRegister
	b.nextRegister++
	return r
}

// AllocRegisters returns the first of n consecutive fresh registers.
func (b *Builder) AllocRegisters(n int) int {
	r := b.nextRegister
	b.nextRegister += n
	return r
}

// AllocCursor returns a fresh cursor index.
func (b *Builder) AllocCursor() int {
	c := b.nextCursor
	b.nextCursor++
	return c
}

// RegisterCount returns the number of registers the program will have,
// including the reserved register 0.
func (b *Builder) RegisterCount() int { return b.nextRegister }

// CursorCount returns the number of cursor slots allocated so far.
func (b *Builder) CursorCount() int { return b.nextCursor }

// CurrentAddr returns the address the next emitted instruction will get.
func (b *Builder) CurrentAddr() int { return len(b.code) }

// Add appends an instruction and returns its address. The jump operand may
// be a Label; it is patched when the program is finished.
func (b *Builder) Add(in Instr) int {
	if b.err != nil {
		return -1
	}
	if b.finished {
		b.fail(ErrBuilderConsumed)
		return -1
	}
	b.code = append(b.code, in)
	return len(b.code) - 1
}

// MakeLabel mints a new unresolved label.
func (b *Builder) MakeLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(-len(b.labels))
}

// ResolveLabel pins lbl to the current address. Resolving a label twice, or
// resolving a label this builder never made, is an error that poisons the
// builder.
func (b *Builder) ResolveLabel(lbl Label) error {
	if b.err != nil {
		return b.err
	}
	idx := int(-lbl) - 1
	if lbl >= 0 || idx >= len(b.labels) {
		return b.fail(fmt.Errorf("%w: %d", ErrNoSuchLabel, lbl))
	}
	if b.labels[idx] != -1 {
		return b.fail(fmt.Errorf("%w: %d", ErrLabelResolved, lbl))
	}
	b.labels[idx] = len(b.code)
	return nil
}

// JumpHere patches the jump operand of the instruction at addr to point at
// the current address. The instruction must be a jump.
func (b *Builder) JumpHere(addr int) error {
	if b.err != nil {
		return b.err
	}
	if addr < 0 || addr >= len(b.code) {
		return b.fail(fmt.Errorf("%w: no instruction at %d", ErrBadOperand, addr))
	}
	if !b.code[addr].Op.IsJump() {
		return b.fail(fmt.Errorf("%w: %s at %d is not a jump", ErrBadOperand, b.code[addr].Op, addr))
	}
	b.code[addr].P2 = len(b.code)
	return nil
}

// Err returns the first error the builder hit, if any.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// Finish validates the emitted code, patches label jumps to real addresses,
// and returns an executable Program producing rows of numColumns values.
// A trailing Halt is appended when the code does not already end with one.
// The builder is consumed; further use fails with ErrBuilderConsumed.
func (b *Builder) Finish(numColumns int) (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.finished {
		return nil, b.fail(ErrBuilderConsumed)
	}
	b.finished = true
	if numColumns < 0 {
		return nil, b.fail(fmt.Errorf("%w: negative column count %d", ErrBadOperand, numColumns))
	}

	code := b.code
	if n := len(code); n == 0 || code[n-1].Op != OpHalt {
		code = append(code, Instr{Op: OpHalt})
	}

	// Patch label operands before validation so jump bounds are checked on
	// real addresses.
	for addr := range code {
		in := &code[addr]
		if !in.Op.IsJump() || in.P2 >= 0 {
			continue
		}
		idx := -in.P2 - 1
		if idx >= len(b.labels) {
			return nil, b.fail(fmt.Errorf("%w: %d at addr %d", ErrNoSuchLabel, in.P2, addr))
		}
		if b.labels[idx] == -1 {
			return nil, b.fail(fmt.Errorf("%w: label %d used at addr %d", ErrUnresolvedLabel, in.P2, addr))
		}
		in.P2 = b.labels[idx]
	}
	for idx, target := range b.labels {
		if target == -1 {
			return nil, b.fail(fmt.Errorf("%w: label %d never resolved", ErrUnresolvedLabel, Label(-idx-1)))
		}
	}

	for addr, in := range code {
		if err := validateInstr(addr, in, len(code), b.nextRegister, b.nextCursor, numColumns); err != nil {
			return nil, b.fail(err)
		}
	}

	return &Program{
		code:       code,
		numRegs:    b.nextRegister,
		numCursors: b.nextCursor,
		numCols:    numColumns,
		store:      b.store,
		regs:       make([]Value, b.nextRegister),
		cursors:    make([]cursorSlot, b.nextCursor),
		state:      StateReady,
	}, nil
}

// validateInstr checks one instruction's operands against the program's
// register file, cursor slots, code bounds, and declared column count. It is
// shared by Finish and by bytecode decoding.
func validateInstr(addr int, in Instr, codeLen, numRegs, numCursors, numColumns int) error {
	info := in.Op.info()
	if info.name == "" {
		return fmt.Errorf("%w: invalid opcode %d at addr %d", ErrBadOperand, in.Op, addr)
	}
	for _, o := range [3]struct {
		class operandClass
		val   int
		slot  string
	}{
		{info.p1, in.P1, "p1"},
		{info.p2, in.P2, "p2"},
		{info.p3, in.P3, "p3"},
	} {
		switch o.class {
		case oReg:
			if o.val < 1 || o.val >= numRegs {
				return fmt.Errorf("%w: %s %s=%d at addr %d (registers 1..%d)",
					ErrBadOperand, in.Op, o.slot, o.val, addr, numRegs-1)
			}
		case oCursor:
			if o.val < 0 || o.val >= numCursors {
				return fmt.Errorf("%w: %s %s=%d at addr %d (cursors 0..%d)",
					ErrBadOperand, in.Op, o.slot, o.val, addr, numCursors-1)
			}
		case oJump:
			if o.val < 0 || o.val >= codeLen {
				return fmt.Errorf("%w: %s %s=%d at addr %d (code 0..%d)",
					ErrBadOperand, in.Op, o.slot, o.val, addr, codeLen-1)
			}
		case oCount:
			if o.val < 1 {
				return fmt.Errorf("%w: %s %s=%d at addr %d (count must be positive)",
					ErrBadOperand, in.Op, o.slot, o.val, addr)
			}
		}
	}

	switch in.Op {
	case OpResultRow:
		if in.P2 != numColumns {
			return fmt.Errorf("%w: ResultRow emits %d values at addr %d, program declares %d columns",
				ErrBadOperand, in.P2, addr, numColumns)
		}
		if in.P1+in.P2 > numRegs {
			return fmt.Errorf("%w: ResultRow reads past register file at addr %d", ErrBadOperand, addr)
		}
	case OpMove:
		if in.P1+in.P3 > numRegs || in.P2+in.P3 > numRegs {
			return fmt.Errorf("%w: Move range past register file at addr %d", ErrBadOperand, addr)
		}
	case OpInsert:
		if in.P4.Type() != TypeInteger || in.P4.Int() < 1 {
			return fmt.Errorf("%w: Insert needs a positive integer count in p4 at addr %d", ErrBadOperand, addr)
		}
		if in.P2+int(in.P4.Int()) > numRegs {
			return fmt.Errorf("%w: Insert reads past register file at addr %d", ErrBadOperand, addr)
		}
	case OpOpenRead:
		if in.P4.Type() != TypeText || in.P4.Text() == "" {
			return fmt.Errorf("%w: OpenRead needs a table name in p4 at addr %d", ErrBadOperand, addr)
		}
	case OpInt64:
		if in.P4.Type() != TypeInteger {
			return fmt.Errorf("%w: Int64 needs an integer in p4 at addr %d", ErrBadOperand, addr)
		}
	case OpReal:
		if in.P4.Type() != TypeReal {
			return fmt.Errorf("%w: Real needs a real in p4 at addr %d", ErrBadOperand, addr)
		}
	case OpString:
		if in.P4.Type() != TypeText {
			return fmt.Errorf("%w: String needs text in p4 at addr %d", ErrBadOperand, addr)
		}
	case OpBlob:
		if in.P4.Type() != TypeBlob {
			return fmt.Errorf("%w: Blob needs a blob in p4 at addr %d", ErrBadOperand, addr)
		}
	}
	return nil
}
