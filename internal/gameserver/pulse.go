package gameserver

import (
	"context"
	"sort"
	"sync"
	"time"
)

// PulseManager drives the registered pulse callbacks once per interval.
// Callbacks run sequentially in name order within one goroutine.
//
// Invariant: every callback is invoked at most once per interval.
type PulseManager struct {
	interval time.Duration
	mu       sync.Mutex
	pulses   map[string]func(context.Context)
}

// NewPulseManager returns a manager that pulses every interval.
//
// Precondition: interval must be > 0.
func NewPulseManager(interval time.Duration) *PulseManager {
	if interval <= 0 {
		panic("gameserver.NewPulseManager: interval must be > 0")
	}
	return &PulseManager{
		interval: interval,
		pulses:   make(map[string]func(context.Context)),
	}
}

// Interval returns the pulse period.
func (p *PulseManager) Interval() time.Duration { return p.interval }

// Register sets the callback for name, replacing any existing one.
func (p *PulseManager) Register(name string, fn func(context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulses[name] = fn
}

// Unregister removes the callback for name.
func (p *PulseManager) Unregister(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pulses, name)
}

// Start runs the pulse loop in a new goroutine until ctx is cancelled.
func (p *PulseManager) Start(ctx context.Context) {
	go func() { _ = p.Run(ctx) }()
}

// Run blocks, pulsing every interval, until ctx is cancelled.
//
// Postcondition: returns ctx.Err().
func (p *PulseManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.fire(ctx)
		}
	}
}

func (p *PulseManager) fire(ctx context.Context) {
	p.mu.Lock()
	names := make([]string, 0, len(p.pulses))
	for name := range p.pulses {
		names = append(names, name)
	}
	sort.Strings(names)
	callbacks := make([]func(context.Context), len(names))
	for i, name := range names {
		callbacks[i] = p.pulses[name]
	}
	p.mu.Unlock()
	for _, fn := range callbacks {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}
}
