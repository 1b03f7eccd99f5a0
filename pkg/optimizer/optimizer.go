// Package optimizer rewrites finished programs. Every pass is address
// preserving: instructions are replaced one for one, never inserted or
// removed, so jump targets stay valid without relocation.
package optimizer

import (
	"github.com/plasm-db/plasm/pkg/vm"
)

// Optimizer applies rewrite passes to a program.
type Optimizer struct {
	enableConstantFolding bool
	enableJumpThreading   bool
	enableDeadCode        bool
}

// Option is a functional option for the Optimizer.
type Option func(*Optimizer)

// WithConstantFolding folds arithmetic over known constants into loads.
func WithConstantFolding() Option {
	return func(o *Optimizer) { o.enableConstantFolding = true }
}

// WithJumpThreading retargets jumps that land on an unconditional Goto.
func WithJumpThreading() Option {
	return func(o *Optimizer) { o.enableJumpThreading = true }
}

// WithDeadCode replaces unreachable instructions with Noop.
func WithDeadCode() Option {
	return func(o *Optimizer) { o.enableDeadCode = true }
}

// WithAllOptimizations enables every pass.
func WithAllOptimizations() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
		o.enableJumpThreading = true
		o.enableDeadCode = true
	}
}

// New creates an Optimizer with the given passes enabled.
func New(opts ...Option) *Optimizer {
	opt := &Optimizer{}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

// Optimize applies the enabled passes to a program that has not started
// executing. The program is rewritten in place and returned.
func (o *Optimizer) Optimize(prog *vm.Program) (*vm.Program, error) {
	code := prog.Code()

	if o.enableJumpThreading {
		code = threadJumps(code)
	}
	if o.enableConstantFolding {
		code = foldConstants(code)
	}
	if o.enableDeadCode {
		code = elideDeadCode(code)
	}

	if err := prog.Rewrite(code); err != nil {
		return nil, err
	}
	return prog, nil
}

// jumpTargets returns the set of addresses some instruction jumps to.
// Constant tracking resets at these addresses because control can arrive
// from more than one place.
func jumpTargets(code []vm.Instr) map[int]bool {
	targets := make(map[int]bool)
	for _, in := range code {
		if in.Op.IsJump() {
			targets[in.P2] = true
		}
	}
	return targets
}
