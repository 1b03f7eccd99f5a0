// Package loader reads CSV, JSON and Parquet files into storage tables.
// Files are parsed through dataframe-go's import layer, then handed to the
// store's dataframe bridge, so the three formats share one type-inference
// path.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"

	"github.com/plasm-db/plasm/pkg/memstore"
)

var (
	ErrEmptyFile     = errors.New("file has no columns")
	ErrUnknownFormat = errors.New("unknown file format")
)

// LoadCSV reads a CSV file with a header row. Column types are inferred;
// empty cells become nulls.
func LoadCSV(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df, err := imports.LoadFromCSV(ctx, f, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	return checked(df, path)
}

// LoadJSON reads a JSON file holding an array of flat objects,
// [{"col": val, ...}, ...]. Column types are inferred.
func LoadJSON(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df, err := imports.LoadFromJSON(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("parse json %s: %w", path, err)
	}
	return checked(df, path)
}

// LoadParquet reads a Parquet file through the parquet-go local reader.
func LoadParquet(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	df, err := imports.LoadFromParquet(ctx, fr)
	if err != nil {
		return nil, fmt.Errorf("parse parquet %s: %w", path, err)
	}
	return checked(df, path)
}

// Load picks the loader from the file extension: .csv, .json, .parquet.
func Load(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(ctx, path)
	case ".json":
		return LoadJSON(ctx, path)
	case ".parquet":
		return LoadParquet(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// LoadIntoStore reads a file and registers it as a table. The table name
// defaults to the file's base name without extension when table is empty.
func LoadIntoStore(ctx context.Context, s *memstore.Store, table, path string) error {
	df, err := Load(ctx, path)
	if err != nil {
		return err
	}
	if table == "" {
		base := filepath.Base(path)
		table = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s.LoadDataFrame(table, df)
}

func checked(df *dataframe.DataFrame, path string) (*dataframe.DataFrame, error) {
	if df == nil || len(df.Series) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return df, nil
}
