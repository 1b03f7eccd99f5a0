package memstore

import (
	"fmt"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/plasm-db/plasm/pkg/vm"
)

// LoadDataFrame creates a table from a dataframe. Rowids are assigned
// 1..NRows in frame order; column names come from the series names.
func (s *Store) LoadDataFrame(name string, df *dataframe.DataFrame) error {
	cols := make([]string, len(df.Series))
	for i, series := range df.Series {
		cols[i] = series.Name()
	}
	if err := s.CreateTable(name, cols); err != nil {
		return err
	}
	t := s.tables[name]
	n := df.NRows()
	for i := 0; i < n; i++ {
		row := make([]vm.Value, len(df.Series))
		for j, series := range df.Series {
			row[j] = fromDataFrameValue(series.Value(i))
		}
		t.insert(int64(i+1), row)
	}
	return nil
}

// ToDataFrame exports a table as a dataframe. Each column becomes an
// int64, float64 or string series depending on its contents; nulls export
// as missing values.
func (s *Store) ToDataFrame(name string) (*dataframe.DataFrame, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	series := make([]dataframe.Series, len(t.cols))
	for j, col := range t.cols {
		vals := make([]interface{}, len(t.order))
		kind := vm.TypeNull
		for i, rowid := range t.order {
			v := t.rows[rowid][j]
			vals[i] = toDataFrameValue(v)
			kind = promote(kind, v.Type())
		}
		switch kind {
		case vm.TypeInteger:
			series[j] = dataframe.NewSeriesInt64(col, nil, vals...)
		case vm.TypeReal:
			for i := range vals {
				if n, ok := vals[i].(int64); ok {
					vals[i] = float64(n)
				}
			}
			series[j] = dataframe.NewSeriesFloat64(col, nil, vals...)
		default:
			for i := range vals {
				if vals[i] != nil {
					vals[i] = fmt.Sprintf("%v", vals[i])
				}
			}
			series[j] = dataframe.NewSeriesString(col, nil, vals...)
		}
	}
	return dataframe.NewDataFrame(series...), nil
}

// promote widens a column's export type as values are scanned: all-integer
// stays integer, any real makes it real, anything else makes it string.
func promote(have, next vm.Type) vm.Type {
	if next == vm.TypeNull {
		return have
	}
	switch have {
	case vm.TypeNull:
		return next
	case vm.TypeInteger:
		if next == vm.TypeInteger {
			return vm.TypeInteger
		}
		if next == vm.TypeReal {
			return vm.TypeReal
		}
	case vm.TypeReal:
		if next == vm.TypeInteger || next == vm.TypeReal {
			return vm.TypeReal
		}
	}
	return vm.TypeText
}

func fromDataFrameValue(raw interface{}) vm.Value {
	switch v := raw.(type) {
	case nil:
		return vm.Null()
	case int64:
		return vm.NewInteger(v)
	case int:
		return vm.NewInteger(int64(v))
	case float64:
		return vm.NewReal(v)
	case string:
		return vm.NewText(v)
	case bool:
		if v {
			return vm.NewInteger(1)
		}
		return vm.NewInteger(0)
	case []byte:
		return vm.NewBlob(v)
	default:
		return vm.NewText(fmt.Sprintf("%v", v))
	}
}

func toDataFrameValue(v vm.Value) interface{} {
	switch v.Type() {
	case vm.TypeNull:
		return nil
	case vm.TypeInteger:
		return v.Int()
	case vm.TypeReal:
		return v.Float()
	case vm.TypeBlob:
		return string(v.Bytes())
	default:
		return v.Text()
	}
}
