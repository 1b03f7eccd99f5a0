package memstore

import (
	"errors"
	"testing"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/plasm-db/plasm/pkg/vm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.CreateTable("nums", []string{"n"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for _, n := range []int64{10, 20, 30} {
		if _, err := s.AppendRow("nums", []vm.Value{vm.NewInteger(n)}); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	return s
}

func TestCreateAndDropTable(t *testing.T) {
	s := New()
	if err := s.CreateTable("t", []string{"a", "b"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.CreateTable("t", nil); !errors.Is(err, ErrTableExists) {
		t.Fatalf("duplicate CreateTable = %v, want ErrTableExists", err)
	}
	cols, err := s.Columns("t")
	if err != nil || len(cols) != 2 || cols[0] != "a" {
		t.Fatalf("Columns = %v, %v", cols, err)
	}
	if err := s.DropTable("t"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if err := s.DropTable("t"); !errors.Is(err, ErrNoSuchTable) {
		t.Fatalf("second DropTable = %v, want ErrNoSuchTable", err)
	}
}

func TestCursorScan(t *testing.T) {
	s := newTestStore(t)
	cur, err := s.Open("nums")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	var got []int64
	has, err := cur.Rewind()
	for ; has && err == nil; has, err = cur.Next() {
		v, cerr := cur.Column(0)
		if cerr != nil {
			t.Fatalf("Column: %v", cerr)
		}
		got = append(got, v.Int())
	}
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []int64{10, 20, 30}
	if len(got) != 3 || got[0] != want[0] || got[2] != want[2] {
		t.Fatalf("scan = %v, want %v", got, want)
	}
}

func TestCursorReverseScan(t *testing.T) {
	s := newTestStore(t)
	cur, _ := s.Open("nums")
	defer cur.Close()
	var got []int64
	has, err := cur.Last()
	for ; has && err == nil; has, err = cur.Prev() {
		v, _ := cur.Column(0)
		got = append(got, v.Int())
	}
	if err != nil {
		t.Fatalf("reverse scan: %v", err)
	}
	if len(got) != 3 || got[0] != 30 || got[2] != 10 {
		t.Fatalf("reverse scan = %v", got)
	}
}

func TestCursorSeeks(t *testing.T) {
	s := newTestStore(t)
	cur, _ := s.Open("nums")
	defer cur.Close()

	tests := []struct {
		name     string
		seek     func(vm.Value) (bool, error)
		key      int64
		wantHit  bool
		wantRow  int64
	}{
		{"GE exact", cur.SeekGE, 2, true, 2},
		{"GE between", cur.SeekGE, 4, false, 0},
		{"GT", cur.SeekGT, 1, true, 2},
		{"GT past end", cur.SeekGT, 3, false, 0},
		{"LE exact", cur.SeekLE, 2, true, 2},
		{"LE before", cur.SeekLE, 0, false, 0},
		{"LT", cur.SeekLT, 3, true, 2},
		{"LT at start", cur.SeekLT, 1, false, 0},
	}
	for _, tt := range tests {
		hit, err := tt.seek(vm.NewInteger(tt.key))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if hit != tt.wantHit {
			t.Errorf("%s: hit = %v, want %v", tt.name, hit, tt.wantHit)
			continue
		}
		if hit && cur.Rowid() != tt.wantRow {
			t.Errorf("%s: rowid = %d, want %d", tt.name, cur.Rowid(), tt.wantRow)
		}
	}
}

func TestCursorSeekRejectsNonIntegerKey(t *testing.T) {
	s := newTestStore(t)
	cur, _ := s.Open("nums")
	defer cur.Close()

	seeks := map[string]func(vm.Value) (bool, error){
		"GE": cur.SeekGE,
		"GT": cur.SeekGT,
		"LE": cur.SeekLE,
		"LT": cur.SeekLT,
	}
	for name, seek := range seeks {
		if _, err := seek(vm.NewText("two")); !errors.Is(err, ErrKeyType) {
			t.Errorf("Seek%s(text) = %v, want ErrKeyType", name, err)
		}
	}
}

func TestCursorSeekRowid(t *testing.T) {
	s := newTestStore(t)
	cur, _ := s.Open("nums")
	defer cur.Close()
	hit, err := cur.SeekRowid(2)
	if err != nil || !hit {
		t.Fatalf("SeekRowid(2) = %v, %v", hit, err)
	}
	if v, _ := cur.Column(0); v.Int() != 20 {
		t.Fatalf("row 2 value = %v", v)
	}
	if hit, _ := cur.SeekRowid(99); hit {
		t.Fatal("SeekRowid(99) should miss")
	}
}

func TestCursorDelete(t *testing.T) {
	s := newTestStore(t)
	cur, _ := s.Open("nums")
	defer cur.Close()
	if hit, _ := cur.SeekRowid(2); !hit {
		t.Fatal("seek failed")
	}
	if err := cur.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Next after delete lands on the row that followed
	has, err := cur.Next()
	if err != nil || !has {
		t.Fatalf("Next after delete = %v, %v", has, err)
	}
	if v, _ := cur.Column(0); v.Int() != 30 {
		t.Fatalf("row after delete = %v, want 30", v)
	}
	if n, _ := s.NumRows("nums"); n != 2 {
		t.Fatalf("NumRows = %d, want 2", n)
	}
}

func TestTransactionCommit(t *testing.T) {
	s := newTestStore(t)
	if err := s.Begin(true); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.AppendRow("nums", []vm.Value{vm.NewInteger(40)}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n, _ := s.NumRows("nums"); n != 4 {
		t.Fatalf("NumRows after commit = %d, want 4", n)
	}
}

func TestTransactionRollback(t *testing.T) {
	s := newTestStore(t)
	if err := s.Begin(true); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.AppendRow("nums", []vm.Value{vm.NewInteger(40)}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if n, _ := s.NumRows("nums"); n != 3 {
		t.Fatalf("NumRows after rollback = %d, want 3", n)
	}
	// a cursor opened before the rollback sees the restored data
	cur, _ := s.Open("nums")
	defer cur.Close()
	if has, _ := cur.Last(); !has {
		t.Fatal("Last failed")
	}
	if v, _ := cur.Column(0); v.Int() != 30 {
		t.Fatalf("last row = %v, want 30", v)
	}
}

func TestReadOnlyTransactionBlocksWrites(t *testing.T) {
	s := newTestStore(t)
	if err := s.Begin(false); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer s.Rollback()
	if _, err := s.AppendRow("nums", []vm.Value{vm.NewInteger(40)}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("AppendRow in read txn = %v, want ErrReadOnly", err)
	}
	cur, _ := s.Open("nums")
	defer cur.Close()
	if _, err := cur.Rewind(); err != nil {
		t.Fatal("seek failed")
	}
	if err := cur.Delete(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Delete in read txn = %v, want ErrReadOnly", err)
	}
}

func TestNestedTransactionFails(t *testing.T) {
	s := New()
	if err := s.Begin(true); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Begin(true); !errors.Is(err, ErrNestedTransaction) {
		t.Fatalf("nested Begin = %v, want ErrNestedTransaction", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Commit(); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("stray Commit = %v, want ErrNoTransaction", err)
	}
}

func TestColumnMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertRow("nums", 99, []vm.Value{vm.NewInteger(1), vm.NewInteger(2)})
	if !errors.Is(err, ErrColumnMismatch) {
		t.Fatalf("InsertRow = %v, want ErrColumnMismatch", err)
	}
}

func TestLoadDataFrame(t *testing.T) {
	df := dataframe.NewDataFrame(
		dataframe.NewSeriesString("name", nil, "ada", "grace"),
		dataframe.NewSeriesInt64("age", nil, 36, 45),
	)
	s := New()
	if err := s.LoadDataFrame("people", df); err != nil {
		t.Fatalf("LoadDataFrame: %v", err)
	}
	cols, _ := s.Columns("people")
	if len(cols) != 2 || cols[0] != "name" || cols[1] != "age" {
		t.Fatalf("Columns = %v", cols)
	}
	cur, _ := s.Open("people")
	defer cur.Close()
	if has, _ := cur.Rewind(); !has {
		t.Fatal("Rewind failed")
	}
	name, _ := cur.Column(0)
	age, _ := cur.Column(1)
	if name.Text() != "ada" || age.Int() != 36 {
		t.Fatalf("first row = %v, %v", name, age)
	}
}

func TestDataFrameRoundTrip(t *testing.T) {
	s := New()
	s.CreateTable("t", []string{"n", "s"})
	s.AppendRow("t", []vm.Value{vm.NewInteger(1), vm.NewText("one")})
	s.AppendRow("t", []vm.Value{vm.Null(), vm.NewText("two")})

	df, err := s.ToDataFrame("t")
	if err != nil {
		t.Fatalf("ToDataFrame: %v", err)
	}
	if df.NRows() != 2 || len(df.Series) != 2 {
		t.Fatalf("frame shape: %d rows, %d series", df.NRows(), len(df.Series))
	}
	if df.Series[0].Value(1) != nil {
		t.Fatalf("null export = %v, want nil", df.Series[0].Value(1))
	}

	s2 := New()
	if err := s2.LoadDataFrame("t", df); err != nil {
		t.Fatalf("LoadDataFrame: %v", err)
	}
	cur, _ := s2.Open("t")
	defer cur.Close()
	if has, _ := cur.SeekRowid(2); !has {
		t.Fatal("seek failed")
	}
	n, _ := cur.Column(0)
	if !n.IsNull() {
		t.Fatalf("round-tripped null = %v", n)
	}
}
