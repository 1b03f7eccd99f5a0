package vm

import "fmt"

// Opcode identifies a virtual machine instruction.
type Opcode uint8

const (
	OpNoop Opcode = iota

	// Constants and register moves.
	OpInteger // P1: immediate value, P2: dst register
	OpInt64   // P2: dst register, P4: integer literal
	OpReal    // P2: dst register, P4: real literal
	OpString  // P2: dst register, P4: text literal
	OpBlob    // P2: dst register, P4: blob literal
	OpNull    // P2: dst register
	OpCopy    // P1: src register, P2: dst register
	OpSCopy   // P1: src register, P2: dst register
	OpMove    // P1: src start, P2: dst start, P3: count; sources become null

	// Arithmetic.
	OpAdd       // P3 = reg[P1] + reg[P2]
	OpSubtract  // P3 = reg[P1] - reg[P2]
	OpMultiply  // P3 = reg[P1] * reg[P2]
	OpDivide    // P3 = reg[P1] / reg[P2]; zero divisor yields null
	OpRemainder // P3 = reg[P1] % reg[P2]; zero divisor yields null
	OpConcat    // P3 = reg[P1] || reg[P2]
	OpAddImm    // reg[P1] += P2 (forces integer)

	// Control flow.
	OpGoto         // jump to P2
	OpGosub        // reg[P1] = return addr, jump to P2
	OpReturn       // jump to the address in reg[P1]
	OpHalt         // stop; P1: error code (0 = success), P4: message
	OpOnce         // first visit falls through, later visits jump to P2
	OpIf           // jump to P2 when reg[P1] is true; null jumps iff FlagJumpIfNull
	OpIfNot        // jump to P2 when reg[P1] is false; null jumps iff FlagJumpIfNull
	OpIsNull       // jump to P2 when reg[P1] is null
	OpNotNull      // jump to P2 when reg[P1] is not null
	OpIfPos        // when reg[P1] > 0: subtract P3 and jump to P2
	OpIfNotZero    // when reg[P1] != 0: decrement toward zero and jump to P2
	OpDecrJumpZero // decrement reg[P1]; jump to P2 when it reaches zero
	OpMustBeInt    // force reg[P1] to integer; P2: jump on failure, 0 = error

	// Comparisons: jump to P2 when reg[P1] op reg[P3] holds.
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// Results.
	OpResultRow // publish reg[P1..P1+P2-1] as a row and suspend

	// Cursors.
	OpOpenRead  // open cursor P1 on the table named by P4
	OpClose     // close cursor P1
	OpRewind    // position at first row; jump to P2 when empty
	OpLast      // position at last row; jump to P2 when empty
	OpNext      // advance; jump to P2 when a row remains
	OpPrev      // step back; jump to P2 when a row remains
	OpSeekGE    // seek first row with rowid >= reg[P3]; jump to P2 when none
	OpSeekGT    // seek first row with rowid > reg[P3]; jump to P2 when none
	OpSeekLE    // seek last row with rowid <= reg[P3]; jump to P2 when none
	OpSeekLT    // seek last row with rowid < reg[P3]; jump to P2 when none
	OpSeekRowid // seek exact rowid reg[P3]; jump to P2 when absent
	OpColumn    // P3 = column P2 of cursor P1's current row
	OpRowid     // P2 = rowid of cursor P1's current row
	OpNewRowid  // P2 = an unused rowid for cursor P1's table
	OpInsert    // write reg[P2..] (P4: integer count) at rowid reg[P3] via cursor P1
	OpDelete    // delete cursor P1's current row

	// Transactions.
	OpBegin    // begin a transaction; P1 != 0 requests write access
	OpCommit   // commit the open transaction
	OpRollback // roll the open transaction back

	opMax
)

// operandClass describes how an operand slot is interpreted, for validation
// and jump patching.
type operandClass uint8

const (
	oNone   operandClass = iota
	oReg                 // register index, 1..numRegs-1
	oJump                // instruction address (or unresolved label)
	oCursor              // cursor index, 0..numCursors-1
	oImm                 // immediate integer, unchecked
	oCount               // positive register count
)

// opInfo is each opcode's operand layout. The builder uses it to
// bounds-check programs and to find the operand carrying a jump target; the
// assembler and Explain share it so listings stay in sync with validation.
type opInfo struct {
	name       string
	p1, p2, p3 operandClass
	hasP4      bool
}

var opTable = [opMax]opInfo{
	OpNoop:    {name: "Noop"},
	OpInteger: {name: "Integer", p1: oImm, p2: oReg},
	OpInt64:   {name: "Int64", p2: oReg, hasP4: true},
	OpReal:    {name: "Real", p2: oReg, hasP4: true},
	OpString:  {name: "String", p2: oReg, hasP4: true},
	OpBlob:    {name: "Blob", p2: oReg, hasP4: true},
	OpNull:    {name: "Null", p2: oReg},
	OpCopy:    {name: "Copy", p1: oReg, p2: oReg},
	OpSCopy:   {name: "SCopy", p1: oReg, p2: oReg},
	OpMove:    {name: "Move", p1: oReg, p2: oReg, p3: oCount},

	OpAdd:       {name: "Add", p1: oReg, p2: oReg, p3: oReg},
	OpSubtract:  {name: "Subtract", p1: oReg, p2: oReg, p3: oReg},
	OpMultiply:  {name: "Multiply", p1: oReg, p2: oReg, p3: oReg},
	OpDivide:    {name: "Divide", p1: oReg, p2: oReg, p3: oReg},
	OpRemainder: {name: "Remainder", p1: oReg, p2: oReg, p3: oReg},
	OpConcat:    {name: "Concat", p1: oReg, p2: oReg, p3: oReg},
	OpAddImm:    {name: "AddImm", p1: oReg, p2: oImm},

	OpGoto:         {name: "Goto", p2: oJump},
	OpGosub:        {name: "Gosub", p1: oReg, p2: oJump},
	OpReturn:       {name: "Return", p1: oReg},
	OpHalt:         {name: "Halt", p1: oImm, hasP4: true},
	OpOnce:         {name: "Once", p2: oJump},
	OpIf:           {name: "If", p1: oReg, p2: oJump},
	OpIfNot:        {name: "IfNot", p1: oReg, p2: oJump},
	OpIsNull:       {name: "IsNull", p1: oReg, p2: oJump},
	OpNotNull:      {name: "NotNull", p1: oReg, p2: oJump},
	OpIfPos:        {name: "IfPos", p1: oReg, p2: oJump, p3: oImm},
	OpIfNotZero:    {name: "IfNotZero", p1: oReg, p2: oJump},
	OpDecrJumpZero: {name: "DecrJumpZero", p1: oReg, p2: oJump},
	OpMustBeInt:    {name: "MustBeInt", p1: oReg, p2: oJump},

	OpEq: {name: "Eq", p1: oReg, p2: oJump, p3: oReg},
	OpNe: {name: "Ne", p1: oReg, p2: oJump, p3: oReg},
	OpLt: {name: "Lt", p1: oReg, p2: oJump, p3: oReg},
	OpLe: {name: "Le", p1: oReg, p2: oJump, p3: oReg},
	OpGt: {name: "Gt", p1: oReg, p2: oJump, p3: oReg},
	OpGe: {name: "Ge", p1: oReg, p2: oJump, p3: oReg},

	OpResultRow: {name: "ResultRow", p1: oReg, p2: oCount},

	OpOpenRead:  {name: "OpenRead", p1: oCursor, hasP4: true},
	OpClose:     {name: "Close", p1: oCursor},
	OpRewind:    {name: "Rewind", p1: oCursor, p2: oJump},
	OpLast:      {name: "Last", p1: oCursor, p2: oJump},
	OpNext:      {name: "Next", p1: oCursor, p2: oJump},
	OpPrev:      {name: "Prev", p1: oCursor, p2: oJump},
	OpSeekGE:    {name: "SeekGE", p1: oCursor, p2: oJump, p3: oReg},
	OpSeekGT:    {name: "SeekGT", p1: oCursor, p2: oJump, p3: oReg},
	OpSeekLE:    {name: "SeekLE", p1: oCursor, p2: oJump, p3: oReg},
	OpSeekLT:    {name: "SeekLT", p1: oCursor, p2: oJump, p3: oReg},
	OpSeekRowid: {name: "SeekRowid", p1: oCursor, p2: oJump, p3: oReg},
	OpColumn:    {name: "Column", p1: oCursor, p2: oImm, p3: oReg},
	OpRowid:     {name: "Rowid", p1: oCursor, p2: oReg},
	OpNewRowid:  {name: "NewRowid", p1: oCursor, p2: oReg},
	OpInsert:    {name: "Insert", p1: oCursor, p2: oReg, p3: oReg, hasP4: true},
	OpDelete:    {name: "Delete", p1: oCursor},

	OpBegin:    {name: "Begin", p1: oImm},
	OpCommit:   {name: "Commit"},
	OpRollback: {name: "Rollback"},
}

// OperandSlot describes how an instruction uses one of its p1..p3 slots.
type OperandSlot uint8

const (
	SlotUnused    = OperandSlot(oNone)
	SlotRegister  = OperandSlot(oReg)
	SlotJump      = OperandSlot(oJump)
	SlotCursor    = OperandSlot(oCursor)
	SlotImmediate = OperandSlot(oImm)
	SlotCount     = OperandSlot(oCount)
)

// Layout returns how the opcode uses its three small operands and whether
// it carries a p4 literal. Assemblers and listers use it to stay consistent
// with program validation.
func (op Opcode) Layout() (p1, p2, p3 OperandSlot, hasP4 bool) {
	info := op.info()
	return OperandSlot(info.p1), OperandSlot(info.p2), OperandSlot(info.p3), info.hasP4
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if int(op) < len(opTable) && opTable[op].name != "" {
		return opTable[op].name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

func (op Opcode) info() opInfo {
	if int(op) < len(opTable) {
		return opTable[op]
	}
	return opInfo{}
}

// IsJump reports whether the opcode's P2 operand is a jump target.
func (op Opcode) IsJump() bool { return op.info().p2 == oJump }

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opMax)
	for op, info := range opTable {
		if info.name != "" {
			m[info.name] = Opcode(op)
		}
	}
	return m
}()

// OpcodeFromString resolves a mnemonic to its opcode.
func OpcodeFromString(name string) (Opcode, error) {
	if op, ok := opcodeByName[name]; ok {
		return op, nil
	}
	return OpNoop, fmt.Errorf("unknown opcode %q", name)
}
