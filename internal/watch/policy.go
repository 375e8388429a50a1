package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lumen/internal/logging"
)

// Scanner is the part of the scan coordinator the policy drives.
type Scanner interface {
	Scan(ctx context.Context, interval time.Duration) bool
}

// Recorder observes policy decisions.
type Recorder interface {
	SignalHandled(source string, triggered bool)
}

// Policy turns watcher signals into debounced scan requests.
//
// A signal with an explicit count of zero is ignored, as is a brightness
// notification while the session is locked. Every other signal starts
// Scan(debounce) on its own goroutine; the scanner drops it if a pass is
// already in flight, so the policy keeps no timer of its own.
type Policy struct {
	scanner  Scanner
	debounce time.Duration
	logger   *slog.Logger
	recorder Recorder

	locked atomic.Bool
	wg     sync.WaitGroup
}

// NewPolicy creates a policy that requests scans with the given coalescing delay.
func NewPolicy(scanner Scanner, debounce time.Duration, logger *slog.Logger, recorder Recorder) *Policy {
	return &Policy{
		scanner:  scanner,
		debounce: debounce,
		logger:   logging.NewComponentLogger(logger, "watch-policy"),
		recorder: recorder,
	}
}

// Locked reports the last observed session lock state.
func (p *Policy) Locked() bool {
	return p.locked.Load()
}

// Handler returns a watcher handler bound to ctx.
func (p *Policy) Handler(ctx context.Context) Handler {
	return func(sig Signal) { p.Handle(ctx, sig) }
}

// Handle applies the policy to sig and reports whether a scan was requested.
func (p *Policy) Handle(ctx context.Context, sig Signal) bool {
	if sig.Source == Session {
		p.locked.Store(sig.Locked)
	}

	triggered := p.shouldScan(sig)
	if p.recorder != nil {
		p.recorder.SignalHandled(sig.Source.String(), triggered)
	}
	if !triggered {
		p.logger.Debug("signal ignored",
			logging.String(logging.FieldSource, sig.Source.String()),
			logging.Int("count", sig.Count),
			logging.Bool("locked", p.locked.Load()),
		)
		return false
	}

	p.logger.Debug("signal requests scan",
		logging.String(logging.FieldSource, sig.Source.String()),
		logging.Duration("debounce", p.debounce),
	)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.scanner.Scan(ctx, p.debounce)
	}()
	return true
}

func (p *Policy) shouldScan(sig Signal) bool {
	if sig.HasCount && sig.Count == 0 {
		return false
	}
	if sig.Source == Brightness && p.locked.Load() {
		return false
	}
	return true
}

// Wait blocks until every scan the policy started has returned.
func (p *Policy) Wait() {
	p.wg.Wait()
}
