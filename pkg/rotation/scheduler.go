package rotation

import (
	"context"
	"time"

	"github.com/dixieflatline76/wallsource/util/log"
)

// Retry backoff bounds after a RetryLater outcome.
const (
	DefaultRetryBase = time.Minute
	DefaultRetryMax  = 15 * time.Minute
)

// Runner runs a single rotation cycle.
type Runner interface {
	RunCycle(ctx context.Context) (Outcome, error)
}

// SettingsSource provides the Setting and notifies on changes.
type SettingsSource interface {
	SettingsReader
	OnChange(fn func())
}

// Scheduler calls a Runner once per configured interval. A RetryLater outcome
// re-runs sooner with capped exponential backoff, and a settings change
// restarts the wait with the new interval.
type Scheduler struct {
	runner   Runner
	settings SettingsSource

	// RunOnStart runs a cycle as soon as Run starts.
	RunOnStart bool
	RetryBase  time.Duration
	RetryMax   time.Duration

	interval func(Setting) time.Duration
	kick     chan struct{}
}

// NewScheduler creates a Scheduler. It subscribes to settings changes immediately.
func NewScheduler(runner Runner, settings SettingsSource) *Scheduler {
	s := &Scheduler{
		runner:    runner,
		settings:  settings,
		RetryBase: DefaultRetryBase,
		RetryMax:  DefaultRetryMax,
		interval:  func(st Setting) time.Duration { return st.Interval.Duration() },
		kick:      make(chan struct{}, 1),
	}
	settings.OnChange(s.reschedule)
	return s
}

func (s *Scheduler) reschedule() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// backoff returns the wait after the given number of consecutive failures,
// never longer than the regular interval.
func (s *Scheduler) backoff(failures int, interval time.Duration) time.Duration {
	d := s.RetryBase
	for i := 1; i < failures && d < s.RetryMax; i++ {
		d *= 2
	}
	d = min(d, s.RetryMax)
	return min(d, interval)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	last := s.settings.Get()
	interval := s.interval(last)
	log.Printf("Rotation scheduler: started, interval %s", interval)

	first := interval
	if s.RunOnStart {
		first = 0
	}
	timer := time.NewTimer(first)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			log.Print("Rotation scheduler: stopping")
			return nil

		case <-s.kick:
			// Any preference write lands here. Only a new interval or an
			// enable toggle restarts the wait; a pending retry survives the rest.
			st := s.settings.Get()
			next := s.interval(st)
			changed := next != interval || st.Enabled != last.Enabled
			last = st
			if !changed {
				continue
			}
			interval = next
			failures = 0
			log.Printf("Rotation scheduler: settings changed, next cycle in %s", interval)
			resetTimer(timer, interval)

		case <-timer.C:
			outcome, _ := s.runner.RunCycle(ctx)
			last = s.settings.Get()
			interval = s.interval(last)
			next := interval
			if outcome.Succeeded() {
				failures = 0
			} else {
				failures++
				next = s.backoff(failures, interval)
				log.Printf("Rotation scheduler: retry %d in %s", failures, next)
			}
			timer.Reset(next)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
