package notifycenter

import (
	"context"
	"sync"
	"time"
)

const DefaultPollInterval = 10 * time.Second

// Poller runs a task once immediately and then on every tick until stopped.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartPoller runs fn in its own goroutine. A non-positive interval falls
// back to DefaultPollInterval.
func StartPoller(ctx context.Context, interval time.Duration, fn func(context.Context)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	return p
}

// Stop cancels the task and waits for the goroutine to exit. It is safe to
// call more than once.
func (p *Poller) Stop() {
	p.once.Do(p.cancel)
	<-p.done
}

// Done is closed once the poller has exited.
func (p *Poller) Done() <-chan struct{} { return p.done }
