// Package scheduler drives the poll loop: read the checkpoint, fetch forge
// notifications since it, run each through the resolver and engine, then
// advance the checkpoint.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/forgelink/relay/internal/engine"
	"github.com/forgelink/relay/internal/forge"
	"github.com/forgelink/relay/internal/resolver"
	"github.com/forgelink/relay/internal/store"
)

const defaultInterval = time.Minute

// cronParser handles standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler owns the background poll worker. One poll runs at a time: ticks
// arriving while a run is in flight are skipped, not queued.
type Scheduler struct {
	store    *store.Store
	forge    forge.Forge
	resolver *resolver.Resolver
	engine   *engine.Engine

	selfURL  string
	epoch    time.Time
	interval time.Duration
	cronExpr string
	out      io.Writer

	inFlight atomic.Bool
	started  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Config carries scheduler wiring.
type Config struct {
	SelfURL string
	// Epoch seeds the checkpoint on first start.
	Epoch time.Time
	// Interval is the fixed delay between polls. Ignored when CronExpr is set.
	Interval time.Duration
	// CronExpr, when set, schedules polls by a 5-field cron expression.
	CronExpr string
	Out      io.Writer
}

// New wires a Scheduler. Pass a zero Interval for the default.
func New(st *store.Store, f forge.Forge, r *resolver.Resolver, eng *engine.Engine, cfg Config) (*Scheduler, error) {
	if cfg.SelfURL == "" {
		return nil, fmt.Errorf("scheduler: self url is required")
	}
	if cfg.CronExpr != "" {
		if _, err := cronParser.Parse(cfg.CronExpr); err != nil {
			return nil, fmt.Errorf("scheduler: parse cron %q: %w", cfg.CronExpr, err)
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Scheduler{
		store:    st,
		forge:    f,
		resolver: r,
		engine:   eng,
		selfURL:  cfg.SelfURL,
		epoch:    cfg.Epoch,
		interval: cfg.Interval,
		cronExpr: cfg.CronExpr,
		out:      cfg.Out,
		done:     make(chan struct{}),
	}, nil
}

// Start seeds the checkpoint and launches the poll worker. It returns once
// the worker is running; Stop joins it.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.store.EnsureCheckpoint(s.selfURL, s.epoch); err != nil {
		return err
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started.Store(true)
	go s.loop(ctx)
	fmt.Fprintf(s.out, "scheduler started (every %s)\n", s.describeSchedule())
	return nil
}

// Stop cancels the worker and waits for the current poll, if any, to finish.
// Safe to call more than once, and a no-op when the worker never launched.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.started.Load() {
			<-s.done
		}
		fmt.Fprintf(s.out, "scheduler stopped\n")
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.RunOnce(ctx); err != nil {
			log.Printf("scheduler: poll: %v", err)
		}

		sleepWithContext(ctx, s.nextDelay())
	}
}

// RunOnce executes a single poll pass. A pass already in flight makes it a
// no-op. The checkpoint advances after the batch even when individual
// notifications fail; it stays put when the poll itself fails.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer s.inFlight.Store(false)

	since, err := s.store.Checkpoint(s.selfURL)
	if err != nil {
		return err
	}
	resp, err := s.forge.GetNotifications(ctx, since)
	if err != nil {
		return fmt.Errorf("scheduler: poll since %s: %w", since.Format(time.RFC3339), err)
	}

	for _, n := range resp.Notifications {
		event, err := s.resolver.Resolve(n)
		if err != nil {
			log.Printf("scheduler: skip notification %s: %v", n.ID, err)
			continue
		}
		if err := s.engine.RunEvent(ctx, event); err != nil {
			log.Printf("scheduler: notification %s: %v", n.ID, err)
		}
	}

	return s.store.AdvanceCheckpoint(s.selfURL, resp.LastRead)
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.cronExpr == "" {
		return s.interval
	}
	sched, err := cronParser.Parse(s.cronExpr)
	if err != nil {
		return s.interval
	}
	d := time.Until(sched.Next(time.Now()))
	if d <= 0 {
		return s.interval
	}
	return d
}

func (s *Scheduler) describeSchedule() string {
	if s.cronExpr != "" {
		return fmt.Sprintf("cron %q", s.cronExpr)
	}
	return s.interval.String()
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
