package browser

import (
	"context"
	"sync"

	"github.com/shelfwatch/shelfwatch/internal/utils"
)

// DefaultMaxContexts bounds how many browser contexts may run at once.
// Requests beyond the cap queue instead of spawning unbounded resources.
const DefaultMaxContexts = 4

// Pool hands out browser pages with a bounded concurrency cap. It replaces
// the ambient global browser singleton with an explicitly owned object that
// is threaded through call sites and shut down by whoever created it.
type Pool struct {
	launch Launcher
	slots  chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool around launch. maxContexts <= 0 selects
// DefaultMaxContexts.
func NewPool(launch Launcher, maxContexts int) *Pool {
	if maxContexts <= 0 {
		maxContexts = DefaultMaxContexts
	}
	return &Pool{
		launch: launch,
		slots:  make(chan struct{}, maxContexts),
	}
}

// Do acquires a slot (queueing if the pool is saturated), opens a page, runs
// fn and always closes the page afterwards.
func (p *Pool) Do(ctx context.Context, fn func(Page) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	page, err := p.launch(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			utils.Log.Debugf("browser: page close failed: %v", cerr)
		}
	}()

	return fn(page)
}

// Shutdown rejects new work and waits for in-flight pages to finish. A caller
// abandoning an individual request does not cancel in-flight automation; only
// Shutdown drains the pool.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}
