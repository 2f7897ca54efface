package tick

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/fault"
)

// DefaultInterval is the nominal tick cadence: 10 Hz.
const DefaultInterval = 100 * time.Millisecond

// MaxCatchUpTicksPerLoop bounds back-to-back catch-up execution before the
// scheduler clamps the backlog away.
const MaxCatchUpTicksPerLoop = 3

// spinThreshold is the remaining-time cutoff below which the loop busy-spins
// instead of sleeping, to hit the boundary precisely.
const spinThreshold = 2 * time.Millisecond

// Runner executes one full simulation tick. The scheduler guarantees RunTick
// is only ever invoked from the tick thread, one call at a time.
type Runner interface {
	RunTick(tick core.Tick, fixedDelta time.Duration) error
}

// Scheduler drives the tick loop on one dedicated goroutine. Timekeeping is
// monotonic (Go's time package carries a monotonic reading on every Now);
// wall-clock adjustments cannot move the cadence.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	catchUp  int
	stats    *diag.TickStats
	logger   *zap.Logger

	// onFatal receives the diagnostic when a tick dies on a fatal fault. The
	// runtime host decides whether to restart the process; the loop never
	// continues the broken tick.
	onFatal func(error)

	tick    atomic.Int64
	running atomic.Bool
	stopped atomic.Bool

	startOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopMu    sync.Mutex
}

// Option tweaks scheduler construction.
type Option func(*Scheduler)

// WithInterval overrides the nominal 100 ms cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCatchUpLimit overrides the catch-up tick cap.
func WithCatchUpLimit(n int) Option {
	return func(s *Scheduler) {
		if n >= 1 {
			s.catchUp = n
		}
	}
}

// WithFatalHandler installs the host callback for fatal tick faults.
func WithFatalHandler(fn func(error)) Option {
	return func(s *Scheduler) { s.onFatal = fn }
}

// NewScheduler wires a scheduler around the runner.
func NewScheduler(runner Runner, stats *diag.TickStats, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = &diag.TickStats{}
	}
	s := &Scheduler{
		runner:   runner,
		interval: DefaultInterval,
		catchUp:  MaxCatchUpTicksPerLoop,
		stats:    stats,
		logger:   logger.Named("tick"),
		onFatal:  func(error) {},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentTick returns the index of the last tick that started.
func (s *Scheduler) CurrentTick() core.Tick { return core.Tick(s.tick.Load()) }

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start launches the tick loop. Idempotent: the second and later calls are
// no-ops, as is starting after Stop.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		if s.stopped.Load() {
			return
		}
		s.running.Store(true)
		go s.loop()
	})
}

// Stop cancels the loop between tick boundaries. Safe from any thread, safe to
// call repeatedly; returns once the loop has exited.
func (s *Scheduler) Stop() {
	s.stopMu.Lock()
	if !s.stopped.Load() {
		s.stopped.Store(true)
		close(s.stopCh)
	}
	s.stopMu.Unlock()

	if s.running.Load() {
		<-s.doneCh
	}
}

// Close disposes the scheduler, stopping the loop first.
func (s *Scheduler) Close() error {
	s.Stop()
	return nil
}

func (s *Scheduler) loop() {
	captureTickThread()
	defer func() {
		clearTickThread()
		s.running.Store(false)
		close(s.doneCh)
	}()

	start := time.Now()
	next := start.Add(s.interval)

	for {
		// Cancellation is only observed between ticks; a tick in progress
		// always completes.
		select {
		case <-s.stopCh:
			return
		default:
		}

		now := time.Now()
		if now.Before(next) {
			remaining := next.Sub(now)
			if remaining > spinThreshold {
				select {
				case <-s.stopCh:
					return
				case <-time.After(remaining - spinThreshold):
				}
			}
			// Busy-spin the last stretch to land on the boundary.
			for time.Now().Before(next) {
				select {
				case <-s.stopCh:
					return
				default:
				}
			}
		}

		executed := 0
		for !time.Now().Before(next) {
			if executed >= s.catchUp {
				// Clamp: skip the remaining backlog instead of spiraling.
				behind := time.Since(next)
				next = time.Now().Add(s.interval)
				s.stats.RecordClamp()
				s.logger.Warn("tick backlog clamped",
					zap.Duration("behind", behind),
					zap.Int("executed", executed))
				break
			}
			if err := s.runTick(); err != nil {
				s.logger.Error("fatal tick fault", zap.Error(err))
				s.onFatal(err)
				return
			}
			next = next.Add(s.interval)
			executed++
			if s.stopped.Load() {
				return
			}
		}
	}
}

func (s *Scheduler) runTick() error {
	tickIndex := core.Tick(s.tick.Add(1))
	begin := time.Now()
	err := s.runner.RunTick(tickIndex, s.interval)
	duration := time.Since(begin)
	s.stats.RecordTick(tickIndex, duration, duration > s.interval)
	if err != nil && fault.IsFatal(err) {
		return err
	}
	if err != nil {
		s.logger.Warn("tick completed with recoverable fault", zap.Error(err))
	}
	return nil
}

// ExecuteOneTick runs exactly one tick synchronously on the calling goroutine.
// Semantics are identical to loop-driven ticks; test harnesses drive the core
// with it. Must not race a running loop.
func (s *Scheduler) ExecuteOneTick() error {
	if s.running.Load() {
		return fault.Contract(fault.TickMismatch, "ExecuteOneTick while loop is running")
	}
	captureTickThread()
	defer clearTickThread()
	return s.runTick()
}
