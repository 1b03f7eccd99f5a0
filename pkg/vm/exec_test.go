package vm

import (
	"context"
	"errors"
	"sort"
	"testing"
)

// fakeStore is a minimal in-memory Store for engine tests.
type fakeStore struct {
	tables map[string]*fakeTable
	begun  bool
	writes bool
	txLog  []string
}

type fakeTable struct {
	rowids []int64
	rows   map[int64][]Value
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string]*fakeTable{}}
}

func (s *fakeStore) addTable(name string, rows map[int64][]Value) {
	t := &fakeTable{rows: rows}
	for id := range rows {
		t.rowids = append(t.rowids, id)
	}
	sort.Slice(t.rowids, func(i, j int) bool { return t.rowids[i] < t.rowids[j] })
	s.tables[name] = t
}

func (s *fakeStore) Open(table string) (Cursor, error) {
	t, ok := s.tables[table]
	if !ok {
		return nil, errors.New("no such table: " + table)
	}
	return &fakeCursor{t: t, pos: -1}, nil
}

func (s *fakeStore) Begin(write bool) error {
	s.begun, s.writes = true, write
	s.txLog = append(s.txLog, "begin")
	return nil
}

func (s *fakeStore) Commit() error {
	s.begun = false
	s.txLog = append(s.txLog, "commit")
	return nil
}

func (s *fakeStore) Rollback() error {
	s.begun = false
	s.txLog = append(s.txLog, "rollback")
	return nil
}

type fakeCursor struct {
	t   *fakeTable
	pos int
}

func (c *fakeCursor) Rewind() (bool, error) {
	c.pos = 0
	return c.pos < len(c.t.rowids), nil
}

func (c *fakeCursor) Last() (bool, error) {
	c.pos = len(c.t.rowids) - 1
	return c.pos >= 0, nil
}

func (c *fakeCursor) Next() (bool, error) {
	c.pos++
	return c.pos < len(c.t.rowids), nil
}

func (c *fakeCursor) Prev() (bool, error) {
	c.pos--
	return c.pos >= 0, nil
}

func (c *fakeCursor) SeekGE(key Value) (bool, error) {
	for i, id := range c.t.rowids {
		if id >= key.Int() {
			c.pos = i
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCursor) SeekGT(key Value) (bool, error) {
	return c.SeekGE(NewInteger(key.Int() + 1))
}

func (c *fakeCursor) SeekLE(key Value) (bool, error) {
	for i := len(c.t.rowids) - 1; i >= 0; i-- {
		if c.t.rowids[i] <= key.Int() {
			c.pos = i
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCursor) SeekLT(key Value) (bool, error) {
	return c.SeekLE(NewInteger(key.Int() - 1))
}

func (c *fakeCursor) SeekRowid(rowid int64) (bool, error) {
	for i, id := range c.t.rowids {
		if id == rowid {
			c.pos = i
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCursor) Column(i int) (Value, error) {
	row := c.t.rows[c.t.rowids[c.pos]]
	if i < 0 || i >= len(row) {
		return Null(), errors.New("column out of range")
	}
	return row[i], nil
}

func (c *fakeCursor) Rowid() int64 { return c.t.rowids[c.pos] }

func (c *fakeCursor) Insert(rowid int64, row []Value) error {
	if _, exists := c.t.rows[rowid]; !exists {
		c.t.rowids = append(c.t.rowids, rowid)
		sort.Slice(c.t.rowids, func(i, j int) bool { return c.t.rowids[i] < c.t.rowids[j] })
	}
	c.t.rows[rowid] = row
	return nil
}

func (c *fakeCursor) Delete() error {
	id := c.t.rowids[c.pos]
	delete(c.t.rows, id)
	c.t.rowids = append(c.t.rowids[:c.pos], c.t.rowids[c.pos+1:]...)
	c.pos--
	return nil
}

func (c *fakeCursor) Close() error { return nil }

func TestStepAddProducesRowThenDone(t *testing.T) {
	b := NewBuilder(nil)
	a, c, out := b.AllocRegister(), b.AllocRegister(), b.AllocRegister()
	b.Add(Instr{Op: OpInteger, P1: 10, P2: a})
	b.Add(Instr{Op: OpInteger, P1: 32, P2: c})
	b.Add(Instr{Op: OpAdd, P1: a, P2: c, P3: out})
	b.Add(Instr{Op: OpResultRow, P1: out, P2: 1})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()

	res, err := prog.Step()
	if err != nil || res != StepRow {
		t.Fatalf("Step = %v, %v; want StepRow", res, err)
	}
	got, err := prog.ColumnInt(0)
	if err != nil || got != 42 {
		t.Fatalf("ColumnInt(0) = %d, %v; want 42", got, err)
	}
	// reads are idempotent while the row is pending
	if again, _ := prog.ColumnInt(0); again != 42 {
		t.Fatalf("second read = %d, want 42", again)
	}

	res, err = prog.Step()
	if err != nil || res != StepDone {
		t.Fatalf("second Step = %v, %v; want StepDone", res, err)
	}
	if _, err := prog.ColumnValue(0); !errors.Is(err, ErrNotRow) {
		t.Fatalf("ColumnValue after done = %v, want ErrNotRow", err)
	}
}

func TestStepForwardJumpSkips(t *testing.T) {
	b := NewBuilder(nil)
	r := b.AllocRegister()
	skip := b.MakeLabel()
	b.Add(Instr{Op: OpInteger, P1: 42, P2: r})
	b.Add(Instr{Op: OpGoto, P2: int(skip)})
	b.Add(Instr{Op: OpInteger, P1: 999, P2: r}) // skipped
	b.ResolveLabel(skip)
	b.Add(Instr{Op: OpResultRow, P1: r, P2: 1})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()

	if res, err := prog.Step(); res != StepRow || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	if got, _ := prog.ColumnInt(0); got != 42 {
		t.Fatalf("column = %d, want 42 (jump not taken?)", got)
	}
}

func TestStepTerminalProgramFails(t *testing.T) {
	b := NewBuilder(nil)
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if res, err := prog.Step(); res != StepDone || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	if _, err := prog.Step(); !errors.Is(err, ErrHalted) {
		t.Fatalf("Step after halt = %v, want ErrHalted", err)
	}
}

func TestStepHaltWithError(t *testing.T) {
	b := NewBuilder(nil)
	b.Add(Instr{Op: OpHalt, P1: 1, P4: NewText("constraint failed")})
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	_, err = prog.Step()
	if !errors.Is(err, ErrHaltAbort) {
		t.Fatalf("Step = %v, want ErrHaltAbort", err)
	}
	if prog.State() != StateFailed {
		t.Fatalf("state = %v, want failed", prog.State())
	}
	// a failed program keeps returning its error
	if _, err2 := prog.Step(); !errors.Is(err2, ErrHaltAbort) {
		t.Fatalf("repeat Step = %v, want ErrHaltAbort", err2)
	}
}

func TestStepMultipleRows(t *testing.T) {
	// count 1..3 with a loop
	b := NewBuilder(nil)
	i, limit, one := b.AllocRegister(), b.AllocRegister(), b.AllocRegister()
	b.Add(Instr{Op: OpInteger, P1: 0, P2: i})
	b.Add(Instr{Op: OpInteger, P1: 3, P2: limit})
	b.Add(Instr{Op: OpInteger, P1: 1, P2: one})
	loop := b.CurrentAddr()
	b.Add(Instr{Op: OpAdd, P1: i, P2: one, P3: i})
	b.Add(Instr{Op: OpResultRow, P1: i, P2: 1})
	b.Add(Instr{Op: OpLt, P1: i, P2: loop, P3: limit})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()

	var got []int64
	for {
		res, err := prog.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if res == StepDone {
			break
		}
		n, _ := prog.ColumnInt(0)
		got = append(got, n)
	}
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for k := range want {
		if got[k] != want[k] {
			t.Fatalf("rows = %v, want %v", got, want)
		}
	}
}

func TestIfNullSemantics(t *testing.T) {
	run := func(flags Flags) int64 {
		b := NewBuilder(nil)
		cond, out := b.AllocRegister(), b.AllocRegister()
		taken := b.MakeLabel()
		b.Add(Instr{Op: OpNull, P2: cond})
		b.Add(Instr{Op: OpIf, P1: cond, P2: int(taken), P5: flags})
		b.Add(Instr{Op: OpInteger, P1: 0, P2: out})
		done := b.Add(Instr{Op: OpGoto, P2: 0})
		b.ResolveLabel(taken)
		b.Add(Instr{Op: OpInteger, P1: 1, P2: out})
		b.JumpHere(done)
		b.Add(Instr{Op: OpResultRow, P1: out, P2: 1})
		prog, err := b.Finish(1)
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		defer prog.Close()
		if res, err := prog.Step(); res != StepRow || err != nil {
			t.Fatalf("Step = %v, %v", res, err)
		}
		n, _ := prog.ColumnInt(0)
		return n
	}
	if got := run(0); got != 0 {
		t.Errorf("If on null without flag jumped (got %d)", got)
	}
	if got := run(FlagJumpIfNull); got != 1 {
		t.Errorf("If on null with FlagJumpIfNull fell through (got %d)", got)
	}
}

func TestComparisonNullNever(t *testing.T) {
	b := NewBuilder(nil)
	a, c, out := b.AllocRegister(), b.AllocRegister(), b.AllocRegister()
	eq := b.MakeLabel()
	b.Add(Instr{Op: OpNull, P2: a})
	b.Add(Instr{Op: OpNull, P2: c})
	b.Add(Instr{Op: OpEq, P1: a, P2: int(eq), P3: c, P5: FlagNullNever})
	b.Add(Instr{Op: OpInteger, P1: 0, P2: out})
	done := b.Add(Instr{Op: OpGoto, P2: 0})
	b.ResolveLabel(eq)
	b.Add(Instr{Op: OpInteger, P1: 1, P2: out})
	b.JumpHere(done)
	b.Add(Instr{Op: OpResultRow, P1: out, P2: 1})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	if res, err := prog.Step(); res != StepRow || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	if n, _ := prog.ColumnInt(0); n != 0 {
		t.Fatalf("Eq with FlagNullNever jumped on null operands")
	}
}

func TestGosubReturn(t *testing.T) {
	b := NewBuilder(nil)
	ret, out := b.AllocRegister(), b.AllocRegister()
	sub := b.MakeLabel()
	b.Add(Instr{Op: OpGosub, P1: ret, P2: int(sub)})
	b.Add(Instr{Op: OpResultRow, P1: out, P2: 1})
	b.Add(Instr{Op: OpHalt})
	b.ResolveLabel(sub)
	b.Add(Instr{Op: OpInteger, P1: 7, P2: out})
	b.Add(Instr{Op: OpReturn, P1: ret})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	if res, err := prog.Step(); res != StepRow || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	if n, _ := prog.ColumnInt(0); n != 7 {
		t.Fatalf("subroutine result = %d, want 7", n)
	}
}

func TestOnceRunsOnce(t *testing.T) {
	// loop twice; the Once body increments out only on the first pass
	b := NewBuilder(nil)
	i, out, one := b.AllocRegister(), b.AllocRegister(), b.AllocRegister()
	after := b.MakeLabel()
	b.Add(Instr{Op: OpInteger, P1: 0, P2: i})
	b.Add(Instr{Op: OpInteger, P1: 0, P2: out})
	b.Add(Instr{Op: OpInteger, P1: 1, P2: one})
	loop := b.CurrentAddr()
	b.Add(Instr{Op: OpOnce, P2: int(after)})
	b.Add(Instr{Op: OpAdd, P1: out, P2: one, P3: out})
	b.ResolveLabel(after)
	b.Add(Instr{Op: OpAdd, P1: i, P2: one, P3: i})
	two := b.AllocRegister()
	b.Add(Instr{Op: OpInteger, P1: 2, P2: two})
	b.Add(Instr{Op: OpLt, P1: i, P2: loop, P3: two})
	b.Add(Instr{Op: OpResultRow, P1: out, P2: 1})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	if res, err := prog.Step(); res != StepRow || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	if n, _ := prog.ColumnInt(0); n != 1 {
		t.Fatalf("Once body ran %d times, want 1", n)
	}
}

func TestStepLimit(t *testing.T) {
	b := NewBuilder(nil)
	loop := b.CurrentAddr()
	b.Add(Instr{Op: OpGoto, P2: loop})
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	prog.SetMaxSteps(100)
	if _, err := prog.Step(); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("Step = %v, want ErrStepLimit", err)
	}
}

func TestContextCancellation(t *testing.T) {
	b := NewBuilder(nil)
	loop := b.CurrentAddr()
	b.Add(Instr{Op: OpGoto, P2: loop})
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prog.SetContext(ctx)
	if _, err := prog.Step(); !errors.Is(err, context.Canceled) {
		t.Fatalf("Step = %v, want context.Canceled", err)
	}
}

func TestReset(t *testing.T) {
	b := NewBuilder(nil)
	r := b.AllocRegister()
	b.Add(Instr{Op: OpInteger, P1: 5, P2: r})
	b.Add(Instr{Op: OpResultRow, P1: r, P2: 1})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	if _, err := prog.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if _, err := prog.Step(); err != nil {
		t.Fatalf("Step to done: %v", err)
	}
	if err := prog.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res, err := prog.Step(); res != StepRow || err != nil {
		t.Fatalf("Step after Reset = %v, %v", res, err)
	}
	if n, _ := prog.ColumnInt(0); n != 5 {
		t.Fatalf("column after Reset = %d, want 5", n)
	}
}

func tableScanProgram(t *testing.T, store Store, table string, cols int) *Program {
	t.Helper()
	b := NewBuilder(store)
	cur := b.AllocCursor()
	out := b.AllocRegisters(cols)
	empty := b.MakeLabel()
	b.Add(Instr{Op: OpOpenRead, P1: cur, P4: NewText(table)})
	b.Add(Instr{Op: OpRewind, P1: cur, P2: int(empty)})
	loop := b.CurrentAddr()
	for i := 0; i < cols; i++ {
		b.Add(Instr{Op: OpColumn, P1: cur, P2: i, P3: out + i})
	}
	b.Add(Instr{Op: OpResultRow, P1: out, P2: cols})
	b.Add(Instr{Op: OpNext, P1: cur, P2: loop})
	b.ResolveLabel(empty)
	b.Add(Instr{Op: OpClose, P1: cur})
	prog, err := b.Finish(cols)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return prog
}

func TestTableScan(t *testing.T) {
	store := newFakeStore()
	store.addTable("people", map[int64][]Value{
		1: {NewText("ada"), NewInteger(36)},
		2: {NewText("grace"), NewInteger(45)},
		3: {NewText("edsger"), NewInteger(72)},
	})
	prog := tableScanProgram(t, store, "people", 2)
	defer prog.Close()

	var names []string
	for {
		res, err := prog.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if res == StepDone {
			break
		}
		name, _ := prog.ColumnText(0)
		names = append(names, name)
	}
	want := []string{"ada", "grace", "edsger"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestTableScanEmpty(t *testing.T) {
	store := newFakeStore()
	store.addTable("empty", map[int64][]Value{})
	prog := tableScanProgram(t, store, "empty", 1)
	defer prog.Close()
	res, err := prog.Step()
	if err != nil || res != StepDone {
		t.Fatalf("Step on empty table = %v, %v; want StepDone", res, err)
	}
}

func TestSeekRowid(t *testing.T) {
	store := newFakeStore()
	store.addTable("t", map[int64][]Value{
		10: {NewInteger(100)},
		20: {NewInteger(200)},
	})
	b := NewBuilder(store)
	cur := b.AllocCursor()
	key, out := b.AllocRegister(), b.AllocRegister()
	miss := b.MakeLabel()
	b.Add(Instr{Op: OpOpenRead, P1: cur, P4: NewText("t")})
	b.Add(Instr{Op: OpInteger, P1: 20, P2: key})
	b.Add(Instr{Op: OpSeekRowid, P1: cur, P2: int(miss), P3: key})
	b.Add(Instr{Op: OpColumn, P1: cur, P2: 0, P3: out})
	b.Add(Instr{Op: OpResultRow, P1: out, P2: 1})
	b.ResolveLabel(miss)
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	if res, err := prog.Step(); res != StepRow || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	if n, _ := prog.ColumnInt(0); n != 200 {
		t.Fatalf("seek result = %d, want 200", n)
	}
}

func TestInsertAndNewRowid(t *testing.T) {
	store := newFakeStore()
	store.addTable("t", map[int64][]Value{
		1: {NewInteger(10)},
	})
	b := NewBuilder(store)
	cur := b.AllocCursor()
	rowid, val := b.AllocRegister(), b.AllocRegister()
	b.Add(Instr{Op: OpBegin, P1: 1})
	b.Add(Instr{Op: OpOpenRead, P1: cur, P4: NewText("t")})
	b.Add(Instr{Op: OpNewRowid, P1: cur, P2: rowid})
	b.Add(Instr{Op: OpInteger, P1: 20, P2: val})
	b.Add(Instr{Op: OpInsert, P1: cur, P2: val, P3: rowid, P4: NewInteger(1)})
	b.Add(Instr{Op: OpCommit})
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	if res, err := prog.Step(); res != StepDone || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	tab := store.tables["t"]
	if len(tab.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tab.rows))
	}
	if got := tab.rows[2]; len(got) != 1 || got[0].Int() != 20 {
		t.Fatalf("inserted row = %v", got)
	}
	if len(store.txLog) != 2 || store.txLog[0] != "begin" || store.txLog[1] != "commit" {
		t.Fatalf("txLog = %v", store.txLog)
	}
}

func TestScanAndDeleteEveryRow(t *testing.T) {
	store := newFakeStore()
	store.addTable("t", map[int64][]Value{
		1: {NewInteger(10)},
		2: {NewInteger(20)},
		3: {NewInteger(30)},
	})
	b := NewBuilder(store)
	cur := b.AllocCursor()
	done := b.MakeLabel()
	b.Add(Instr{Op: OpOpenRead, P1: cur, P4: NewText("t")})
	b.Add(Instr{Op: OpRewind, P1: cur, P2: int(done)})
	loop := b.CurrentAddr()
	b.Add(Instr{Op: OpDelete, P1: cur})
	// the cursor stays usable after Delete; Next lands on the row
	// after the deleted one
	b.Add(Instr{Op: OpNext, P1: cur, P2: loop})
	b.ResolveLabel(done)
	b.Add(Instr{Op: OpClose, P1: cur})
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	if res, err := prog.Step(); res != StepDone || err != nil {
		t.Fatalf("Step = %v, %v", res, err)
	}
	if n := len(store.tables["t"].rows); n != 0 {
		t.Fatalf("%d rows left after scan-and-delete, want 0", n)
	}
}

func TestCursorErrorWhenUnopened(t *testing.T) {
	b := NewBuilder(newFakeStore())
	cur := b.AllocCursor()
	out := b.AllocRegister()
	nope := b.MakeLabel()
	b.Add(Instr{Op: OpRewind, P1: cur, P2: int(nope)})
	b.ResolveLabel(nope)
	b.Add(Instr{Op: OpNull, P2: out})
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := prog.Step(); !errors.Is(err, ErrCursorClosed) {
		t.Fatalf("Step = %v, want ErrCursorClosed", err)
	}
}

func TestOpenReadWithoutStore(t *testing.T) {
	b := NewBuilder(nil)
	cur := b.AllocCursor()
	b.Add(Instr{Op: OpOpenRead, P1: cur, P4: NewText("t")})
	prog, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := prog.Step(); !errors.Is(err, ErrNoStore) {
		t.Fatalf("Step = %v, want ErrNoStore", err)
	}
}

func TestStats(t *testing.T) {
	b := NewBuilder(nil)
	r := b.AllocRegister()
	b.Add(Instr{Op: OpInteger, P1: 1, P2: r})
	b.Add(Instr{Op: OpResultRow, P1: r, P2: 1})
	prog, err := b.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	defer prog.Close()
	prog.EnableStats()
	for {
		res, err := prog.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if res == StepDone {
			break
		}
	}
	st := prog.Stats()
	if st.Rows != 1 {
		t.Errorf("Rows = %d, want 1", st.Rows)
	}
	if st.Steps != 3 {
		t.Errorf("Steps = %d, want 3", st.Steps)
	}
	if st.OpcodeCount[OpInteger] != 1 {
		t.Errorf("OpcodeCount[Integer] = %d, want 1", st.OpcodeCount[OpInteger])
	}
}
