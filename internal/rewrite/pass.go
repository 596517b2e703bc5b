package rewrite

import (
	"context"
	"sync"

	"bofpass/internal/ir"
)

// PassName identifies the rename pass in pass listings.
const PassName = "bof-rename-func"

// Pass adapts a Driver to the function pass manager. Stats accumulate
// over every function it runs on; Pass is safe for concurrent use.
type Pass struct {
	driver *Driver

	mu       sync.Mutex
	stats    Stats
	byModule map[*ir.Module]Stats
}

// NewPass wraps d.
func NewPass(d *Driver) *Pass {
	return &Pass{driver: d, byModule: make(map[*ir.Module]Stats)}
}

func (p *Pass) Name() string { return PassName }

// Run rewrites fn. It never fails.
func (p *Pass) Run(ctx context.Context, m *ir.Module, fn *ir.Func) error {
	st := p.driver.Process(ctx, m, fn)
	p.mu.Lock()
	p.stats.Add(st)
	ms := p.byModule[m]
	ms.Add(st)
	p.byModule[m] = ms
	p.mu.Unlock()
	return nil
}

// Stats returns the totals so far.
func (p *Pass) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ModuleStats returns the totals for the functions of m and forgets them.
func (p *Pass) ModuleStats(m *ir.Module) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.byModule[m]
	delete(p.byModule, m)
	return st
}
