// Package poller refreshes controller status on a fixed interval while a
// screen is active.
//
// Every tick starts its own request; requests are not de-duplicated, so a slow
// response can arrive after a faster, later one. Updates are delivered in
// completion order and the consumer keeps whichever arrived last.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/logging"
)

// DefaultInterval matches the home screen refresh rate.
const DefaultInterval = 5 * time.Second

// FetchFunc reads the current status.
type FetchFunc func(ctx context.Context) (*controller.Vars, error)

// Update is the result of one poll.
type Update struct {
	Seq       uint64 // Tick number, starting at 1
	Vars      *controller.Vars
	Err       error
	StartedAt time.Time
	Elapsed   time.Duration
}

// Option configures a Poller.
type Option func(*Poller)

// WithStopOnError makes Run return after delivering the first failed update.
func WithStopOnError() Option {
	return func(p *Poller) { p.stopOnError = true }
}

// Poller calls a FetchFunc immediately and then on every interval.
type Poller struct {
	fetch       FetchFunc
	interval    time.Duration
	stopOnError bool
	seq         atomic.Uint64
}

// New creates a poller. A non-positive interval uses DefaultInterval.
func New(fetch FetchFunc, interval time.Duration, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{fetch: fetch, interval: interval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls until ctx is cancelled, handing every update to deliver. deliver
// is never called concurrently. Run waits for in-flight requests before
// returning; updates that fail only because ctx was cancelled are dropped.
//
// Run returns nil on cancellation, or the poll error when WithStopOnError is
// set.
func (p *Poller) Run(ctx context.Context, deliver func(Update)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		deliverMu sync.Mutex
		failOnce  sync.Once
		failErr   error
	)

	tick := func() {
		seq := p.seq.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()

			start := time.Now()
			vars, err := p.fetch(ctx)
			u := Update{Seq: seq, Vars: vars, Err: err, StartedAt: start, Elapsed: time.Since(start)}

			if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return
			}

			deliverMu.Lock()
			defer deliverMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			deliver(u)

			if err != nil {
				logging.Debug("Poll failed", zap.Uint64("seq", seq), zap.Error(err))
				if p.stopOnError {
					failOnce.Do(func() {
						failErr = err
						cancel()
					})
				}
			}
		}()
	}

	logging.Debug("Polling started", zap.Duration("interval", p.interval))
	tick()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			tick()
		}
	}

	wg.Wait()
	logging.Debug("Polling stopped")
	return failErr
}
