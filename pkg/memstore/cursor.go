package memstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/plasm-db/plasm/pkg/vm"
)

var (
	ErrCursorDone = errors.New("cursor is closed")
	ErrKeyType    = errors.New("seek key is not an integer")
)

// cursor iterates one table in rowid order. pos indexes the table's order
// slice; -1 means unpositioned.
type cursor struct {
	store  *Store
	name   string
	pos    int
	closed bool
}

func (c *cursor) tab() (*table, error) {
	if c.closed {
		return nil, ErrCursorDone
	}
	t, ok := c.store.tables[c.name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, c.name)
	}
	return t, nil
}

func (c *cursor) Rewind() (bool, error) {
	t, err := c.tab()
	if err != nil {
		return false, err
	}
	c.pos = 0
	return c.pos < len(t.order), nil
}

func (c *cursor) Last() (bool, error) {
	t, err := c.tab()
	if err != nil {
		return false, err
	}
	c.pos = len(t.order) - 1
	return c.pos >= 0, nil
}

func (c *cursor) Next() (bool, error) {
	t, err := c.tab()
	if err != nil {
		return false, err
	}
	c.pos++
	return c.pos < len(t.order), nil
}

func (c *cursor) Prev() (bool, error) {
	if _, err := c.tab(); err != nil {
		return false, err
	}
	c.pos--
	return c.pos >= 0, nil
}

// seek binary-searches order for the first rowid satisfying the bound.
func (c *cursor) seek(key int64, geq bool) (bool, error) {
	t, err := c.tab()
	if err != nil {
		return false, err
	}
	i := sort.Search(len(t.order), func(i int) bool {
		if geq {
			return t.order[i] >= key
		}
		return t.order[i] > key
	})
	if i >= len(t.order) {
		return false, nil
	}
	c.pos = i
	return true, nil
}

// rowidKey rejects keys the rowid order cannot compare against.
func rowidKey(key vm.Value) (int64, error) {
	if key.Type() != vm.TypeInteger {
		return 0, fmt.Errorf("%w: %s", ErrKeyType, key)
	}
	return key.Int(), nil
}

func (c *cursor) SeekGE(key vm.Value) (bool, error) {
	k, err := rowidKey(key)
	if err != nil {
		return false, err
	}
	return c.seek(k, true)
}

func (c *cursor) SeekGT(key vm.Value) (bool, error) {
	k, err := rowidKey(key)
	if err != nil {
		return false, err
	}
	return c.seek(k, false)
}

func (c *cursor) SeekLE(key vm.Value) (bool, error) {
	k, err := rowidKey(key)
	if err != nil {
		return false, err
	}
	has, err := c.seek(k, false)
	if err != nil {
		return false, err
	}
	t, _ := c.tab()
	if !has {
		c.pos = len(t.order)
	}
	c.pos--
	return c.pos >= 0, nil
}

func (c *cursor) SeekLT(key vm.Value) (bool, error) {
	k, err := rowidKey(key)
	if err != nil {
		return false, err
	}
	has, err := c.seek(k, true)
	if err != nil {
		return false, err
	}
	t, _ := c.tab()
	if !has {
		c.pos = len(t.order)
	}
	c.pos--
	return c.pos >= 0, nil
}

func (c *cursor) SeekRowid(rowid int64) (bool, error) {
	t, err := c.tab()
	if err != nil {
		return false, err
	}
	if _, ok := t.rows[rowid]; !ok {
		return false, nil
	}
	i := sort.Search(len(t.order), func(i int) bool { return t.order[i] >= rowid })
	c.pos = i
	return true, nil
}

func (c *cursor) Column(i int) (vm.Value, error) {
	t, err := c.tab()
	if err != nil {
		return vm.Null(), err
	}
	if c.pos < 0 || c.pos >= len(t.order) {
		return vm.Null(), fmt.Errorf("cursor on %s not positioned", c.name)
	}
	row := t.rows[t.order[c.pos]]
	if i < 0 || i >= len(row) {
		return vm.Null(), fmt.Errorf("column %d out of range for %s", i, c.name)
	}
	return row[i], nil
}

func (c *cursor) Rowid() int64 {
	t, err := c.tab()
	if err != nil || c.pos < 0 || c.pos >= len(t.order) {
		return 0
	}
	return t.order[c.pos]
}

func (c *cursor) Insert(rowid int64, row []vm.Value) error {
	if _, err := c.tab(); err != nil {
		return err
	}
	return c.store.InsertRow(c.name, rowid, row)
}

func (c *cursor) Delete() error {
	t, err := c.tab()
	if err != nil {
		return err
	}
	if c.store.inTxn && !c.store.writable {
		return ErrReadOnly
	}
	if c.pos < 0 || c.pos >= len(t.order) {
		return fmt.Errorf("cursor on %s not positioned", c.name)
	}
	t.delete(t.order[c.pos])
	// step back so the next Next lands on the row after the deleted one
	c.pos--
	return nil
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
