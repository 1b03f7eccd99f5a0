// Package embed provides the Go embedding API for plasm programs.
//
// Pass assembly text, get result rows:
//
//	rows, err := embed.Execute(`
//	    Integer 10, r1
//	    Integer 32, r2
//	    Add r1, r2, r3
//	    ResultRow r3, 1
//	`)
//
// Programs that scan tables run against a store. Frames loaded through
// dataframe-go become tables:
//
//	frame := dataframe.NewDataFrame(
//	    dataframe.NewSeriesFloat64("price", nil, prices...),
//	)
//
//	rows, err := embed.Execute(src,
//	    embed.WithFrames(map[string]*dataframe.DataFrame{"sales": frame}),
//	)
package embed

import (
	"context"
	"errors"
	"os"
	"time"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/plasm-db/plasm/pkg/asm"
	"github.com/plasm-db/plasm/pkg/memstore"
	"github.com/plasm-db/plasm/pkg/vm"
)

// ErrStepLimit mirrors the engine's limit error for callers that only
// import this package.
var ErrStepLimit = vm.ErrStepLimit

var errFrameConflict = errors.New("WithStore and WithFrames are mutually exclusive")

// ErrPrepareTimeout reports WithTimeout passed to Prepare. A timeout
// needs to span the run, which Prepare hands to the caller; use
// WithContext with a deadline instead.
var ErrPrepareTimeout = errors.New("WithTimeout applies to Execute; prepare with WithContext instead")

// Options configures execution.
type Options struct {
	// Store is the storage backend programs open tables against.
	Store vm.Store

	// Frames become tables in a fresh in-memory store, one per map entry.
	// Mutually exclusive with Store.
	Frames map[string]*dataframe.DataFrame

	// Timeout bounds wall-clock execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxSteps bounds executed instructions. Zero means unlimited.
	MaxSteps int64

	// Context for cancellation. Nil means context.Background().
	Context context.Context
}

// Option is a functional option for Execute and Prepare.
type Option func(*Options)

// WithStore runs the program against an existing store.
func WithStore(s vm.Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithFrames loads dataframes as tables before the program runs.
func WithFrames(frames map[string]*dataframe.DataFrame) Option {
	return func(o *Options) { o.Frames = frames }
}

// WithTimeout bounds execution time.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithMaxSteps bounds the number of executed instructions.
func WithMaxSteps(n int64) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithContext sets the context checked during execution.
func WithContext(ctx context.Context) Option {
	return func(o *Options) { o.Context = ctx }
}

// Prepare assembles source into a program configured per the options but
// does not run it. The caller owns stepping and closing it. WithTimeout
// is rejected here since the run's duration is the caller's; pass a
// deadline context through WithContext instead.
func Prepare(source string, opts ...Option) (*vm.Program, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Timeout > 0 {
		return nil, ErrPrepareTimeout
	}
	store, err := resolveStore(options)
	if err != nil {
		return nil, err
	}
	prog, err := asm.Assemble(source, store)
	if err != nil {
		return nil, err
	}
	if options.MaxSteps > 0 {
		prog.SetMaxSteps(options.MaxSteps)
	}
	if options.Context != nil {
		prog.SetContext(options.Context)
	}
	return prog, nil
}

// Execute assembles and runs source, returning every result row.
func Execute(source string, opts ...Option) ([][]vm.Value, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	store, err := resolveStore(options)
	if err != nil {
		return nil, err
	}
	prog, err := asm.Assemble(source, store)
	if err != nil {
		return nil, err
	}
	defer prog.Close()

	if options.MaxSteps > 0 {
		prog.SetMaxSteps(options.MaxSteps)
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}
	prog.SetContext(ctx)

	var rows [][]vm.Value
	for {
		res, err := prog.Step()
		if err != nil {
			return rows, err
		}
		if res == vm.StepDone {
			return rows, nil
		}
		n, err := prog.ColumnCount()
		if err != nil {
			return rows, err
		}
		row := make([]vm.Value, n)
		for i := range row {
			if row[i], err = prog.ColumnValue(i); err != nil {
				return rows, err
			}
		}
		rows = append(rows, row)
	}
}

// ExecuteFile reads an assembly file and executes it.
func ExecuteFile(path string, opts ...Option) ([][]vm.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Execute(string(data), opts...)
}

func resolveStore(options *Options) (vm.Store, error) {
	if options.Frames == nil {
		return options.Store, nil
	}
	if options.Store != nil {
		return nil, errFrameConflict
	}
	s := memstore.New()
	for name, df := range options.Frames {
		if err := s.LoadDataFrame(name, df); err != nil {
			return nil, err
		}
	}
	return s, nil
}
