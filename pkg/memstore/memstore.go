// Package memstore provides an in-memory storage backend for query
// programs: named tables of rowid-ordered rows, opened through cursors,
// with snapshot-based transactions. Data moves in and out through
// dataframe-go frames, so tables load straight from CSV, JSON or Parquet
// imports.
package memstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/plasm-db/plasm/pkg/vm"
)

var (
	ErrNoSuchTable       = errors.New("no such table")
	ErrTableExists       = errors.New("table already exists")
	ErrNoTransaction     = errors.New("no open transaction")
	ErrNestedTransaction = errors.New("transaction already open")
	ErrReadOnly          = errors.New("read-only transaction")
	ErrColumnMismatch    = errors.New("row width does not match table")
)

// table is rowid-ordered storage for one table. order mirrors the keys of
// rows, kept sorted so cursors iterate in rowid order.
type table struct {
	cols  []string
	rows  map[int64][]vm.Value
	order []int64
}

func (t *table) clone() *table {
	c := &table{
		cols:  append([]string(nil), t.cols...),
		rows:  make(map[int64][]vm.Value, len(t.rows)),
		order: append([]int64(nil), t.order...),
	}
	for id, row := range t.rows {
		c.rows[id] = append([]vm.Value(nil), row...)
	}
	return c
}

func (t *table) insert(rowid int64, row []vm.Value) {
	if _, exists := t.rows[rowid]; !exists {
		i := sort.Search(len(t.order), func(i int) bool { return t.order[i] >= rowid })
		t.order = append(t.order, 0)
		copy(t.order[i+1:], t.order[i:])
		t.order[i] = rowid
	}
	t.rows[rowid] = row
}

func (t *table) delete(rowid int64) {
	if _, exists := t.rows[rowid]; !exists {
		return
	}
	delete(t.rows, rowid)
	i := sort.Search(len(t.order), func(i int) bool { return t.order[i] >= rowid })
	t.order = append(t.order[:i], t.order[i+1:]...)
}

// Store is an in-memory vm.Store. It is not safe for concurrent use; run
// one program against it at a time.
type Store struct {
	tables   map[string]*table
	snapshot map[string]*table // pre-transaction state, nil outside a txn
	inTxn    bool
	writable bool
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// CreateTable adds an empty table with the given columns.
func (s *Store) CreateTable(name string, cols []string) error {
	if _, exists := s.tables[name]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	s.tables[name] = &table{
		cols: append([]string(nil), cols...),
		rows: make(map[int64][]vm.Value),
	}
	return nil
}

// DropTable removes a table.
func (s *Store) DropTable(name string) error {
	if _, exists := s.tables[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	delete(s.tables, name)
	return nil
}

// Tables returns the table names in sorted order.
func (s *Store) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns returns a table's column names.
func (s *Store) Columns(name string) ([]string, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return append([]string(nil), t.cols...), nil
}

// NumRows returns a table's row count.
func (s *Store) NumRows(name string) (int, error) {
	t, ok := s.tables[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return len(t.rows), nil
}

// InsertRow writes a row at the given rowid, replacing any existing row.
// Outside a transaction the write applies immediately.
func (s *Store) InsertRow(name string, rowid int64, row []vm.Value) error {
	t, ok := s.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	if s.inTxn && !s.writable {
		return ErrReadOnly
	}
	if len(t.cols) > 0 && len(row) != len(t.cols) {
		return fmt.Errorf("%w: got %d values, table %s has %d columns",
			ErrColumnMismatch, len(row), name, len(t.cols))
	}
	t.insert(rowid, append([]vm.Value(nil), row...))
	return nil
}

// AppendRow writes a row at the next free rowid and returns it.
func (s *Store) AppendRow(name string, row []vm.Value) (int64, error) {
	t, ok := s.tables[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	rowid := int64(1)
	if n := len(t.order); n > 0 {
		rowid = t.order[n-1] + 1
	}
	if err := s.InsertRow(name, rowid, row); err != nil {
		return 0, err
	}
	return rowid, nil
}

// Open returns a cursor over the named table.
func (s *Store) Open(name string) (vm.Cursor, error) {
	if _, ok := s.tables[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	// cursors look the table up per call so they stay correct across a
	// rollback, which swaps the live tables for the snapshot
	return &cursor{store: s, name: name, pos: -1}, nil
}

// Begin starts a transaction by snapshotting every table. Writes inside the
// transaction mutate live tables; Rollback restores the snapshot.
func (s *Store) Begin(write bool) error {
	if s.inTxn {
		return ErrNestedTransaction
	}
	s.snapshot = make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		s.snapshot[name] = t.clone()
	}
	s.inTxn = true
	s.writable = write
	return nil
}

// Commit keeps the transaction's changes and drops the snapshot.
func (s *Store) Commit() error {
	if !s.inTxn {
		return ErrNoTransaction
	}
	s.snapshot = nil
	s.inTxn = false
	return nil
}

// Rollback restores the pre-transaction snapshot.
func (s *Store) Rollback() error {
	if !s.inTxn {
		return ErrNoTransaction
	}
	s.tables = s.snapshot
	s.snapshot = nil
	s.inTxn = false
	return nil
}

// InTransaction reports whether a transaction is open.
func (s *Store) InTransaction() bool { return s.inTxn }
