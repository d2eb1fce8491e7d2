// Package sweeper abandons in-progress interviews that have gone quiet.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/metrics"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultWindow   = 5 * time.Minute
	DefaultBatch    = 500
	DefaultSchedule = "@every 1m"
)

// ClaimChecker reports whether an interview is currently being evaluated.
type ClaimChecker interface {
	Held(ctx context.Context, interviewID string) (bool, error)
}

// Report summarises one sweep.
type Report struct {
	Scanned        int      `json:"scanned"`
	Abandoned      []string `json:"abandoned"`
	SkippedClaimed int      `json:"skipped_claimed"`
	SkippedRaced   int      `json:"skipped_raced"`
}

// Sweeper finds stale interviews and moves them to abandoned.
type Sweeper struct {
	interviews *interview.Store
	claims     ClaimChecker
	window     time.Duration
	batch      int
	log        *zap.Logger
}

// New returns a Sweeper. window <= 0 uses DefaultWindow.
func New(interviews *interview.Store, claims ClaimChecker, window time.Duration, log *zap.Logger) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		interviews: interviews,
		claims:     claims,
		window:     window,
		batch:      DefaultBatch,
		log:        log,
	}
}

// SweepAbandoned abandons every in-progress interview whose last activity is
// older than the inactivity window and which no dispatcher has claimed. An
// interview that saw activity after it was listed is left alone.
func (s *Sweeper) SweepAbandoned(ctx context.Context) (Report, error) {
	report := Report{Abandoned: []string{}}
	cutoff := s.interviews.Now().Add(-s.window)

	stale, err := s.interviews.ListStale(ctx, cutoff, s.batch)
	if err != nil {
		return report, fmt.Errorf("sweeper: list: %w", err)
	}
	report.Scanned = len(stale)

	for _, iv := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		held, err := s.claims.Held(ctx, iv.ID)
		if err != nil {
			return report, fmt.Errorf("sweeper: check claim %s: %w", iv.ID, err)
		}
		if held {
			report.SkippedClaimed++
			metrics.SweepSkipped.WithLabelValues("claimed").Inc()
			continue
		}
		moved, err := s.interviews.AbandonIfStale(ctx, iv.ID, cutoff)
		if err != nil {
			return report, fmt.Errorf("sweeper: %w", err)
		}
		if !moved {
			report.SkippedRaced++
			metrics.SweepSkipped.WithLabelValues("raced").Inc()
			continue
		}
		report.Abandoned = append(report.Abandoned, iv.ID)
		metrics.Abandoned.Inc()
		s.log.Info("interview abandoned",
			zap.String("interview_id", iv.ID),
			zap.Time("last_active_at", iv.LastActiveAt),
			zap.Duration("window", s.window))
	}
	return report, nil
}

// Run sweeps on schedule until ctx is cancelled. Overlapping sweeps are
// skipped.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("sweeper: schedule %q: %w", schedule, err)
	}
	s.log.Info("sweeper started", zap.String("schedule", schedule), zap.Duration("window", s.window))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("sweeper stopped")
	return nil
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.SweepAbandoned(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
		return
	}
	if len(report.Abandoned) > 0 || report.SkippedClaimed > 0 || report.SkippedRaced > 0 {
		s.log.Info("sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("abandoned", len(report.Abandoned)),
			zap.Int("skipped_claimed", report.SkippedClaimed),
			zap.Int("skipped_raced", report.SkippedRaced))
	}
}
