// Package delivery pushes alert messages out to chat backends.
//
// Sinks are rebuilt from the remote settings on every resync; the dispatcher
// applies one shared rate limit across all of them so a burst of tier
// crossings cannot hammer the chat APIs.
package delivery

import (
	"context"

	"golang.org/x/time/rate"

	logx "spawnbot/pkg/logx"
)

// Result is the outcome for one delivery target.
type Result struct {
	Target string
	Err    error
}

// Sink delivers a message to its configured targets.
//
// Each sink owns its routing: high-severity messages additionally reach the
// sink's high-severity target list.
type Sink interface {
	Name() string
	Send(ctx context.Context, message string, highSeverity bool) []Result
}

// Dispatcher fans one message out to every configured sink.
type Dispatcher struct {
	sinks   []Sink
	limiter *rate.Limiter
	log     logx.Logger
}

func NewDispatcher(log logx.Logger) *Dispatcher {
	return &Dispatcher{log: log, limiter: rate.NewLimiter(rate.Limit(1), 1)}
}

// Configure swaps the sink set and rate limit. Called from the sync loop
// after each settings reload; the loop is single-threaded, so no lock.
func (d *Dispatcher) Configure(sinks []Sink, ratePerSec int) {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	d.sinks = sinks
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	d.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
}

// HasSinks reports whether any delivery backend is configured.
func (d *Dispatcher) HasSinks() bool { return len(d.sinks) > 0 }

// Dispatch sends the message through every sink and returns per-target
// success/failure counts; ok > 0 means at least one target accepted it.
// Failures are logged per target and never abort the remaining targets; the
// caller decides what a fully failed dispatch means (it leaves the alert
// unmarked, so the next cycle retries).
func (d *Dispatcher) Dispatch(ctx context.Context, message string, highSeverity bool) (ok, fail int) {
	if len(d.sinks) == 0 {
		return 0, 0
	}
	if err := d.limiter.Wait(ctx); err != nil {
		if !d.log.IsZero() {
			d.log.Warn("dispatch aborted waiting for rate limiter", logx.Err(err))
		}
		return 0, 0
	}

	for _, sink := range d.sinks {
		for _, res := range sink.Send(ctx, message, highSeverity) {
			if res.Err != nil {
				fail++
				if !d.log.IsZero() {
					d.log.Warn("delivery failed",
						logx.String("sink", sink.Name()),
						logx.String("target", res.Target),
						logx.Err(res.Err))
				}
				continue
			}
			ok++
			if !d.log.IsZero() {
				d.log.Debug("delivered",
					logx.String("sink", sink.Name()),
					logx.String("target", res.Target))
			}
		}
	}
	return ok, fail
}
