package compiler

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// progress turns resolve/load counts into percentage strings and drops
// identical consecutive values before they reach the sink.
type progress struct {
	resolved atomic.Int64
	loaded   atomic.Int64

	mu   sync.Mutex
	last string
	sink func(string)
}

func newProgress(sink func(string)) *progress {
	return &progress{sink: sink}
}

func (p *progress) reset() {
	p.resolved.Store(0)
	p.loaded.Store(0)
	p.mu.Lock()
	p.last = ""
	p.mu.Unlock()
}

func (p *progress) onResolve() { p.resolved.Add(1); p.update() }

func (p *progress) onLoad() { p.loaded.Add(1); p.update() }

// update reports loaded/resolved, capped below completion until done is called.
func (p *progress) update() {
	resolved := p.resolved.Load()
	if resolved == 0 {
		return
	}
	fraction := float64(p.loaded.Load()) / float64(resolved)
	if fraction > 0.99 {
		fraction = 0.99
	}
	p.report(fraction)
}

func (p *progress) done() { p.report(1) }

func (p *progress) report(fraction float64) {
	s := formatPercent(fraction)
	p.mu.Lock()
	defer p.mu.Unlock()
	if s == p.last {
		return
	}
	p.last = s
	if p.sink != nil {
		p.sink(s)
	}
}

func formatPercent(fraction float64) string {
	return fmt.Sprintf("%d%%", int(fraction*100))
}
