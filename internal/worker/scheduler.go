package worker

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ads-sync/internal/config"
	"github.com/ads-sync/internal/metrics"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/service"
	"github.com/ads-sync/internal/types"
)

// ScheduleSource lists the schedules the scheduler fans out over
type ScheduleSource interface {
	ListEnabled(ctx context.Context) ([]*models.SyncSchedule, error)
}

// Enqueuer accepts sync requests
type Enqueuer interface {
	Enqueue(req service.Request) (*Item, bool, error)
}

// SchedulerConfig holds the tier intervals
type SchedulerConfig struct {
	HighInterval   time.Duration
	MediumInterval time.Duration
	LowInterval    time.Duration
	FullInterval   time.Duration
	// Tolerance is the window around a schedule's preferred time
	Tolerance time.Duration

	Now func() time.Time
}

// SchedulerConfigFrom builds a scheduler config from the scheduler settings
func SchedulerConfigFrom(cfg config.SchedulerConfig) SchedulerConfig {
	return SchedulerConfig{
		HighInterval:   cfg.HighInterval,
		MediumInterval: cfg.MediumInterval,
		LowInterval:    cfg.LowInterval,
		FullInterval:   cfg.FullInterval,
		Tolerance:      cfg.PreferredTimeTolerance,
	}
}

// TierStatus reports one tier timer
type TierStatus struct {
	Tier     types.Tier      `json:"tier"`
	Scope    types.SyncScope `json:"scope"`
	Interval string          `json:"interval"`
	Ticks    int64           `json:"ticks"`
	Enqueued int64           `json:"enqueued"`
	LastTick *time.Time      `json:"lastTick,omitempty"`
	LastErr  string          `json:"lastError,omitempty"`
}

// SchedulerStatus is a point-in-time view of the scheduler
type SchedulerStatus struct {
	Running bool         `json:"running"`
	Tiers   []TierStatus `json:"tiers"`
}

type tierState struct {
	interval time.Duration
	ticks    int64
	enqueued int64
	lastTick *time.Time
	lastErr  string
}

// ScheduledTiers are the tiers driven by timers, in status order
var ScheduledTiers = []types.Tier{types.TierHigh, types.TierMedium, types.TierLow, types.TierFull}

// Scheduler runs one timer per tier and enqueues the schedules each tick selects
type Scheduler struct {
	schedules ScheduleSource
	queue     Enqueuer
	cfg       SchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	tiers   map[types.Tier]*tierState
}

// NewScheduler creates a stopped scheduler
func NewScheduler(schedules ScheduleSource, queue Enqueuer, cfg SchedulerConfig) *Scheduler {
	if cfg.HighInterval <= 0 {
		cfg.HighInterval = 15 * time.Minute
	}
	if cfg.MediumInterval <= 0 {
		cfg.MediumInterval = 30 * time.Minute
	}
	if cfg.LowInterval <= 0 {
		cfg.LowInterval = 60 * time.Minute
	}
	if cfg.FullInterval <= 0 {
		cfg.FullInterval = 60 * time.Minute
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		schedules: schedules,
		queue:     queue,
		cfg:       cfg,
		tiers: map[types.Tier]*tierState{
			types.TierHigh:   {interval: cfg.HighInterval},
			types.TierMedium: {interval: cfg.MediumInterval},
			types.TierLow:    {interval: cfg.LowInterval},
			types.TierFull:   {interval: cfg.FullInterval},
		},
	}
}

// Start launches all four tier timers
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	for _, tier := range ScheduledTiers {
		interval := s.tiers[tier].interval
		s.wg.Add(1)
		go s.loop(ctx, tier, interval, s.stopCh)
		log.Printf("[Scheduler] %s tier started, every %v (%s)", tier, interval, tier.Scope())
	}
	return nil
}

// Stop halts all four timers. In-flight queue items are not affected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[Scheduler] Stopped")
}

func (s *Scheduler) loop(ctx context.Context, tier types.Tier, interval time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()
	timer := time.NewTimer(s.untilNextTick(tier, interval))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.Tick(ctx, tier)
			timer.Reset(s.untilNextTick(tier, interval))
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// untilNextTick returns the wait before a tier's next tick. The full tier
// fires on wall-clock multiples of its interval, so each preferred time maps
// to the same tick whenever the process started.
func (s *Scheduler) untilNextTick(tier types.Tier, interval time.Duration) time.Duration {
	if tier != types.TierFull {
		return interval
	}
	now := s.cfg.Now()
	return nextAlignedTick(now, interval).Sub(now)
}

// nextAlignedTick returns the first multiple of interval after now, counted
// from UTC midnight for intervals that divide a day
func nextAlignedTick(now time.Time, interval time.Duration) time.Time {
	return now.UTC().Truncate(interval).Add(interval)
}

// fullTolerance is the preferred-time window used by full ticks. It never
// drops below half the full interval, otherwise a preferred time between two
// ticks would match neither.
func (s *Scheduler) fullTolerance() time.Duration {
	if half := s.cfg.FullInterval / 2; half > s.cfg.Tolerance {
		return half
	}
	return s.cfg.Tolerance
}

// Tick runs one tier: it lists enabled schedules and enqueues every eligible
// account once. Errors and panics are logged and never escape.
func (s *Scheduler) Tick(ctx context.Context, tier types.Tier) (enqueued int) {
	now := s.cfg.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] Panic in %s tick: %v", tier, r)
			s.recordTick(tier, now, enqueued, fmt.Sprintf("panic: %v", r))
		}
	}()

	schedules, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		log.Printf("[Scheduler] %s tick: failed to list schedules: %v", tier, err)
		s.recordTick(tier, now, 0, err.Error())
		return 0
	}

	seen := make(map[string]bool)
	var lastErr string
	for _, sched := range schedules {
		if seen[sched.AccountID] {
			continue
		}
		if tier == types.TierFull && !Eligible(sched, now, s.fullTolerance()) {
			continue
		}
		seen[sched.AccountID] = true

		_, added, err := s.queue.Enqueue(service.Request{
			AccountID: sched.AccountID,
			UserID:    sched.UserID,
			Scope:     tier.Scope(),
			Tier:      tier,
		})
		if err != nil {
			lastErr = err.Error()
			log.Printf("[Scheduler] %s tick: failed to enqueue account %s: %v", tier, sched.AccountID, err)
			continue
		}
		if added {
			enqueued++
		}
	}

	if enqueued > 0 {
		log.Printf("[Scheduler] %s tick: enqueued %d of %d schedule(s)", tier, enqueued, len(schedules))
	}
	s.recordTick(tier, now, enqueued, lastErr)
	return enqueued
}

func (s *Scheduler) recordTick(tier types.Tier, at time.Time, enqueued int, errMsg string) {
	metrics.SchedulerTicks.WithLabelValues(string(tier)).Inc()
	metrics.SchedulerEnqueued.WithLabelValues(string(tier)).Add(float64(enqueued))

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tiers[tier]
	if !ok {
		return
	}
	st.ticks++
	st.enqueued += int64(enqueued)
	at = at.UTC()
	st.lastTick = &at
	st.lastErr = errMsg
}

// Status reports whether the timers run and each tier's tick counts
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := SchedulerStatus{Running: s.running}
	for _, tier := range ScheduledTiers {
		st := s.tiers[tier]
		ts := TierStatus{
			Tier:     tier,
			Scope:    tier.Scope(),
			Interval: st.interval.String(),
			Ticks:    st.ticks,
			Enqueued: st.enqueued,
			LastErr:  st.lastErr,
		}
		if st.lastTick != nil {
			at := *st.lastTick
			ts.LastTick = &at
		}
		out.Tiers = append(out.Tiers, ts)
	}
	return out
}

// FrequencyInterval returns the minimum gap between full syncs of a frequency
func FrequencyInterval(f types.Frequency) time.Duration {
	switch f {
	case types.FrequencyHourly:
		return time.Hour
	case types.FrequencyEvery6Hours:
		return 6 * time.Hour
	case types.FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Eligible reports whether a full sync is due for schedule at now
func Eligible(schedule *models.SyncSchedule, now time.Time, tolerance time.Duration) bool {
	if !schedule.Enabled {
		return false
	}
	now = now.UTC()

	if schedule.LastRunAt != nil && now.Sub(*schedule.LastRunAt) <= FrequencyInterval(schedule.Frequency) {
		return false
	}

	if schedule.PreferredTime != nil && *schedule.PreferredTime != "" {
		minutes, err := parseClock(*schedule.PreferredTime)
		if err != nil {
			log.Printf("[Scheduler] Ignoring invalid preferred time %q for account %s: %v", *schedule.PreferredTime, schedule.AccountID, err)
		} else if !withinTolerance(now, minutes, tolerance) {
			return false
		}
	}

	if schedule.Frequency == types.FrequencyWeekly && schedule.PreferredWeekday != nil {
		if int(now.Weekday()) != *schedule.PreferredWeekday {
			return false
		}
	}
	return true
}

// parseClock parses HH:MM into minutes after midnight
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM")
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute %q", mm)
	}
	return h*60 + m, nil
}

// withinTolerance compares time-of-day on a 24h circle so 23:58 is near 00:02
func withinTolerance(now time.Time, preferredMinutes int, tolerance time.Duration) bool {
	const day = 24 * time.Hour
	current := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute + time.Duration(now.Second())*time.Second
	diff := current - time.Duration(preferredMinutes)*time.Minute
	if diff < 0 {
		diff = -diff
	}
	if diff > day/2 {
		diff = day - diff
	}
	return diff <= tolerance
}
