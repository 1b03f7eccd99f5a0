package vm

// Store is the storage backend a program executes against. Programs that
// touch no cursors or transactions run fine without one.
type Store interface {
	// Open returns a cursor over the named table.
	Open(table string) (Cursor, error)

	// Begin starts a transaction. write requests write access.
	Begin(write bool) error

	// Commit makes the open transaction's changes durable.
	Commit() error

	// Rollback discards the open transaction's changes.
	Rollback() error
}

// Cursor iterates a table in rowid order. The positioning methods report
// whether the cursor landed on a row; a false return leaves the cursor
// unpositioned.
type Cursor interface {
	Rewind() (bool, error)
	Last() (bool, error)
	Next() (bool, error)
	Prev() (bool, error)

	// The ranged seeks take an integer key against the rowid order; a
	// non-integer key is an error, never a silent coercion.
	SeekGE(key Value) (bool, error)
	SeekGT(key Value) (bool, error)
	SeekLE(key Value) (bool, error)
	SeekLT(key Value) (bool, error)
	SeekRowid(rowid int64) (bool, error)

	// Column returns the i'th column of the current row.
	Column(i int) (Value, error)

	// Rowid returns the current row's rowid.
	Rowid() int64

	// Insert writes row at rowid, replacing any existing row.
	Insert(rowid int64, row []Value) error

	// Delete removes the current row. The cursor stays usable; Next moves
	// to the row after the deleted one.
	Delete() error

	Close() error
}
