package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nostrly/pkg/logger"
)

// ErrRunning is returned by RunImmediate when a sweep is already in progress.
var ErrRunning = errors.New("sweep already running")

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_sweep_runs_total",
		Help: "Sweeper runs by trigger and result.",
	}, []string{"trigger", "result"})

	sweepLastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nostrly_sweep_last_run_timestamp_seconds",
		Help: "Unix time of the last completed sweep.",
	})
)

// Sweepable removes its expired records and reports how many it removed.
type Sweepable interface {
	SweepExpired() int
}

type Config struct {
	Cron         string
	StartupDelay time.Duration
	Disabled     bool
}

// Result reports one sweep.
type Result struct {
	Events   int
	Threads  int
	Duration time.Duration
}

// Sweeper deletes expired events and thread index entries, once shortly
// after start and then on a cron schedule.
type Sweeper struct {
	events  Sweepable
	threads Sweepable
	cfg     Config
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

func New(events, threads Sweepable, cfg Config) *Sweeper {
	return &Sweeper{events: events, threads: threads, cfg: cfg, now: time.Now}
}

// Start launches the schedule loop. The returned cancel func stops it.
func (s *Sweeper) Start(ctx context.Context) (context.CancelFunc, error) {
	if s.cfg.Disabled {
		logger.Info("sweeper_disabled")
		return func() {}, nil
	}
	if !gronx.IsValid(s.cfg.Cron) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", s.cfg.Cron)
	}
	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("sweeper_enabled", "cron", s.cfg.Cron, "startup_delay", s.cfg.StartupDelay)
	go s.scheduleLoop(ctx2)
	return cancel, nil
}

// RunImmediate runs a sweep now. It fails with ErrRunning instead of
// overlapping a sweep that is in progress.
func (s *Sweeper) RunImmediate() (Result, error) {
	return s.run("manual")
}

func (s *Sweeper) scheduleLoop(ctx context.Context) {
	if s.cfg.StartupDelay > 0 {
		select {
		case <-time.After(s.cfg.StartupDelay):
		case <-ctx.Done():
			return
		}
	}
	s.runJob("startup")

	for {
		next, err := gronx.NextTickAfter(s.cfg.Cron, s.now(), false)
		if err != nil {
			logger.Error("sweeper_nexttick_failed", "cron", s.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
			s.runJob("cron")
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) runJob(trigger string) {
	if _, err := s.run(trigger); err != nil && !errors.Is(err, ErrRunning) {
		logger.Error("sweeper_run_error", "trigger", trigger, "error", err)
	}
}

func (s *Sweeper) run(trigger string) (Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		sweepRuns.WithLabelValues(trigger, "skipped").Inc()
		logger.Info("sweeper_run_skipped", "trigger", trigger)
		return Result{}, ErrRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := s.now()
	var res Result
	if s.events != nil {
		res.Events = s.events.SweepExpired()
	}
	if s.threads != nil {
		res.Threads = s.threads.SweepExpired()
	}
	res.Duration = s.now().Sub(start)

	sweepRuns.WithLabelValues(trigger, "ok").Inc()
	sweepLastRun.Set(float64(s.now().Unix()))
	logger.Info("sweeper_run_done", "trigger", trigger, "events", res.Events, "threads", res.Threads,
		"duration", res.Duration)
	return res, nil
}
