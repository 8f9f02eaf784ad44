package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkeller/hostwatch/internal/wire"
)

// Target is the scheduler's view of a monitored agent.
type Target struct {
	// Name uniquely identifies the agent.
	Name string

	// Address is the agent's "host:port".
	Address string

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string

	// Timeout is the per-call RPC timeout. Zero means the default.
	Timeout time.Duration

	// Interval is the custom polling interval for this agent.
	// If 0, the scheduler's global interval is used.
	Interval time.Duration

	// Enabled gates polling; disabled targets are skipped but kept.
	Enabled bool
}

// TargetSource supplies the current set of targets. The scheduler consults
// it on every tick, so additions, removals, and enable/disable changes take
// effect on the next tick without a restart.
type TargetSource interface {
	Targets() []Target
}

// StaticTargets is a fixed TargetSource, mainly for tests and the SDK's
// registry-less mode.
type StaticTargets []Target

// Targets implements TargetSource.
func (s StaticTargets) Targets() []Target {
	return s
}

// Result holds the outcome of polling a single agent.
type Result struct {
	// AgentName is the target's unique name.
	AgentName string

	// Address is the agent address that was polled.
	Address string

	// Labels contains the key-value metadata of the target.
	Labels map[string]string

	// Report is the fetched metrics snapshot; nil when the poll failed.
	Report *wire.Report

	// Err is the poll failure, nil on success.
	Err error

	// Latency is the time taken by the RPC round trip.
	Latency time.Duration

	// CheckedAt is the timestamp when the poll completed.
	CheckedAt time.Time

	// ConsecutiveFailures is the agent's failure streak including this poll.
	ConsecutiveFailures int
}

// Scheduler polls agents on a fixed cadence with a bounded worker pool.
//
// All targets are polled immediately on start, then the scheduler ticks at
// the GCD of the intervals known at start time and polls only targets that
// are due. A failing agent is reported on the results channel like any
// other outcome and never interrupts the loop or other agents.
//
// All lifecycle methods are safe for concurrent use.
type Scheduler struct {
	source         TargetSource
	interval       time.Duration // global default interval
	maxConcurrency int
	results        chan Result
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	clients      map[string]*Client
	lastPolledAt map[string]time.Time
	baseInterval time.Duration
}

// NewScheduler creates a polling [Scheduler] reading targets from source.
// interval is the global default polling interval and maxConcurrency caps
// the number of simultaneous RPC calls.
func NewScheduler(source TargetSource, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:         source,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		results:        make(chan Result, 64),
		logger:         logger,
		clients:        make(map[string]*Client),
	}
}

// Results returns the channel poll outcomes are emitted on.
// The channel is closed when the scheduler stops.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// calculateBaseInterval determines the tick interval from the targets known
// at start time, flooring at 1 second to prevent CPU thrashing. Targets
// added later are still due-checked against their own interval each tick.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	targets := s.source.Targets()
	result := s.interval
	for _, t := range targets {
		iv := t.Interval
		if iv <= 0 {
			iv = s.interval
		}
		result = gcdDuration(result, iv)
	}
	if result < time.Second {
		result = time.Second
	}
	return result
}

func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins the polling loop in a background goroutine.
//
// Start is non-blocking and idempotent; calling it after Stop is a no-op.
// If ctx is nil, context.Background() is used.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastPolledAt = make(map[string]time.Time)
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.pollDueTargets(pollCtx, true)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				s.pollDueTargets(pollCtx, false)
			}
		}
	}()
}

// Stop halts the scheduler, waits for in-flight polls to finish, closes all
// agent connections, and closes the results channel. Stop is idempotent and
// safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = make(map[string]*Client)
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.results) })
}

// pollDueTargets polls the enabled targets whose interval has elapsed.
// If immediate is true, all enabled targets are polled regardless of timing.
//
// lastPolledAt is stamped when a poll STARTS, which prevents concurrent
// polls of the same agent but means the effective interval stretches by the
// poll duration for slow agents.
func (s *Scheduler) pollDueTargets(ctx context.Context, immediate bool) {
	now := time.Now()
	targets := s.source.Targets()

	due := make([]Target, 0, len(targets))
	s.mu.Lock()
	current := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		current[t.Name] = struct{}{}
		if !t.Enabled {
			continue
		}

		if immediate {
			due = append(due, t)
			s.lastPolledAt[t.Name] = now
			continue
		}

		interval := t.Interval
		if interval <= 0 {
			interval = s.interval
		}
		lastPolled, exists := s.lastPolledAt[t.Name]
		if !exists || now.Sub(lastPolled) >= interval {
			due = append(due, t)
			s.lastPolledAt[t.Name] = now
		}
	}
	// drop state for targets removed from the source
	for name := range s.lastPolledAt {
		if _, ok := current[name]; !ok {
			delete(s.lastPolledAt, name)
			if c, ok := s.clients[name]; ok {
				c.Close()
				delete(s.clients, name)
			}
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	s.pollTargets(ctx, due)
}

// pollTargets polls the given targets concurrently, bounded by maxConcurrency.
func (s *Scheduler) pollTargets(ctx context.Context, targets []Target) {
	jobs := make(chan Target, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				result := s.pollTarget(ctx, t)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, t := range targets {
		select {
		case jobs <- t:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// pollTarget performs a single poll attempt against one agent.
func (s *Scheduler) pollTarget(ctx context.Context, t Target) Result {
	client := s.clientFor(t)

	start := time.Now()
	report, err := client.Metrics(ctx)
	result := Result{
		AgentName:           t.Name,
		Address:             t.Address,
		Labels:              t.Labels,
		Latency:             time.Since(start),
		CheckedAt:           time.Now(),
		ConsecutiveFailures: client.Failures(),
	}
	if err != nil {
		result.Err = fmt.Errorf("poll %s: %w", t.Name, err)
		return result
	}
	result.Report = report
	return result
}

// clientFor returns the cached client for a target, replacing it when the
// target's address changed.
func (s *Scheduler) clientFor(t Target) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[t.Name]; ok {
		if c.Addr() == t.Address {
			return c
		}
		c.Close()
	}
	c := NewClient(t.Address, t.Timeout)
	s.clients[t.Name] = c
	return c
}
