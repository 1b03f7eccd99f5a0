// Package testutil provides shared fixtures for plasm tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/plasm-db/plasm/pkg/memstore"
	"github.com/plasm-db/plasm/pkg/vm"
)

// TempFile writes content to a temporary file with the given extension
// and returns its path. The file is removed when the test finishes.
func TempFile(t *testing.T, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// TempCSV writes content to a temporary .csv file and returns its path.
func TempCSV(t *testing.T, content string) string {
	t.Helper()
	return TempFile(t, content, ".csv")
}

// NumbersCSV returns minimal CSV content with two integer columns.
func NumbersCSV() string {
	return `a,b
1,2
3,4
5,6`
}

// MakeNumbersFrame creates a frame matching NumbersCSV.
func MakeNumbersFrame() *dataframe.DataFrame {
	return dataframe.NewDataFrame(
		dataframe.NewSeriesInt64("a", nil, 1, 3, 5),
		dataframe.NewSeriesInt64("b", nil, 2, 4, 6),
	)
}

// SeedStore creates a store with a single table populated from rows.
func SeedStore(t *testing.T, table string, cols []string, rows ...[]vm.Value) *memstore.Store {
	t.Helper()
	s := memstore.New()
	if err := s.CreateTable(table, cols); err != nil {
		t.Fatalf("create table %s: %v", table, err)
	}
	for _, row := range rows {
		if _, err := s.AppendRow(table, row); err != nil {
			t.Fatalf("append row: %v", err)
		}
	}
	return s
}

// CollectRows steps prog to completion and returns every result row.
func CollectRows(t *testing.T, prog *vm.Program) [][]vm.Value {
	t.Helper()
	var rows [][]vm.Value
	for {
		res, err := prog.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if res == vm.StepDone {
			return rows
		}
		n, err := prog.ColumnCount()
		if err != nil {
			t.Fatalf("column count: %v", err)
		}
		row := make([]vm.Value, n)
		for i := range row {
			v, err := prog.ColumnValue(i)
			if err != nil {
				t.Fatalf("column %d: %v", i, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
}
