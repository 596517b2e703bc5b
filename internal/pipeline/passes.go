package pipeline

import (
	"context"
	"fmt"

	"bofpass/internal/ir"
)

// FunctionPass transforms one function of a module.
type FunctionPass interface {
	Name() string
	Run(ctx context.Context, m *ir.Module, fn *ir.Func) error
}

// FunctionPassManager runs its passes, in registration order, once per
// function.
type FunctionPassManager struct {
	passes []FunctionPass
}

// Add registers a pass.
func (pm *FunctionPassManager) Add(p FunctionPass) {
	pm.passes = append(pm.passes, p)
}

// Len is the number of registered passes.
func (pm *FunctionPassManager) Len() int { return len(pm.passes) }

// Names lists the registered passes.
func (pm *FunctionPassManager) Names() []string {
	out := make([]string, len(pm.passes))
	for i, p := range pm.passes {
		out[i] = p.Name()
	}
	return out
}

// Run applies every pass to every defined function of m. It stops at the
// first pass error.
func (pm *FunctionPassManager) Run(ctx context.Context, m *ir.Module) error {
	for _, fn := range m.Funcs {
		for _, p := range pm.passes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.Run(ctx, m, fn); err != nil {
				return fmt.Errorf("%s on @%s: %w", p.Name(), fn.Name, err)
			}
		}
	}
	return nil
}
