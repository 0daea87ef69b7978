package browser

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakePage struct {
	closed atomic.Bool
}

func (f *fakePage) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakePage) Evaluate(ctx context.Context, script string) (string, error) {
	return "", nil
}
func (f *fakePage) WaitForResponse(ctx context.Context, match func(string) bool) (*InterceptedResponse, error) {
	return nil, ctx.Err()
}
func (f *fakePage) Type(ctx context.Context, selector, text string) error { return nil }
func (f *fakePage) Press(ctx context.Context, key string) error           { return nil }
func (f *fakePage) Cookies(ctx context.Context) ([]*http.Cookie, error)   { return nil, nil }
func (f *fakePage) SetCookie(ctx context.Context, c *http.Cookie) error   { return nil }
func (f *fakePage) Close() error {
	f.closed.Store(true)
	return nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	launch := func(ctx context.Context) (Page, error) { return &fakePage{}, nil }
	pool := NewPool(launch, 2)

	var active, peak int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(Page) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}

	// Give the workers time to either run or queue.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrency %d exceeds cap 2", got)
	}
}

func TestPoolClosesPages(t *testing.T) {
	page := &fakePage{}
	pool := NewPool(func(ctx context.Context) (Page, error) { return page, nil }, 1)

	err := pool.Do(context.Background(), func(Page) error { return nil })
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !page.closed.Load() {
		t.Fatal("page was not closed after Do")
	}
}

func TestPoolQueueRespectsContext(t *testing.T) {
	pool := NewPool(func(ctx context.Context) (Page, error) { return &fakePage{}, nil }, 1)

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(Page) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Do(ctx, func(Page) error { return nil }); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline error while queued, got %v", err)
	}
	close(hold)
}

func TestPoolShutdownRejectsNewWork(t *testing.T) {
	pool := NewPool(func(ctx context.Context) (Page, error) { return &fakePage{}, nil }, 1)
	pool.Shutdown()

	if err := pool.Do(context.Background(), func(Page) error { return nil }); err != ErrPoolClosed {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}
