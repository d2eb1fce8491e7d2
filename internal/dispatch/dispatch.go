// Package dispatch is the externally triggered entry point that claims an
// interview and runs its evaluation under a hard timeout.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/claim"
	"github.com/zulandar/proctor/internal/evaluation"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/metrics"
	"github.com/zulandar/proctor/internal/models"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultClaimTTL = 2 * time.Minute
)

// Runner runs the evaluation pipeline for one interview.
type Runner interface {
	Run(ctx context.Context, interviewID string) (*evaluation.Result, error)
}

// Opts holds the collaborators and limits of a Dispatcher.
type Opts struct {
	Interviews *interview.Store
	Claims     claim.Store
	Pipeline   Runner
	Timeout    time.Duration // caller's wait
	ClaimTTL   time.Duration // lease length, also bounds a detached run
	Owner      string        // recorded on claims; defaults to hostname:pid
	Logger     *zap.Logger
}

// Dispatcher triggers evaluations. Safe for concurrent use.
type Dispatcher struct {
	interviews *interview.Store
	claims     claim.Store
	pipeline   Runner
	timeout    time.Duration
	claimTTL   time.Duration
	owner      string
	log        *zap.Logger
}

// New returns a Dispatcher.
func New(opts Opts) *Dispatcher {
	d := &Dispatcher{
		interviews: opts.Interviews,
		claims:     opts.Claims,
		pipeline:   opts.Pipeline,
		timeout:    opts.Timeout,
		claimTTL:   opts.ClaimTTL,
		owner:      opts.Owner,
		log:        opts.Logger,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.claimTTL <= 0 {
		d.claimTTL = DefaultClaimTTL
	}
	if d.claimTTL < d.timeout {
		d.claimTTL = d.timeout
	}
	if d.owner == "" {
		host, _ := os.Hostname()
		d.owner = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

type outcome struct {
	res *evaluation.Result
	err error
}

// Ready reports whether an interview can be evaluated: its recording has
// finished and it has not been cancelled or abandoned.
func Ready(iv *models.Interview) bool {
	if iv.RecordingEndedAt == nil {
		return false
	}
	return iv.Status == interview.StatusInProgress || iv.Status == interview.StatusCompleted
}

// TriggerCompletion claims interviewID and runs its evaluation, waiting at
// most the configured timeout. On timeout the run continues in the
// background and persists when it finishes.
func (d *Dispatcher) TriggerCompletion(ctx context.Context, interviewID string) (res *evaluation.Result, err error) {
	start := time.Now()
	defer func() {
		metrics.Dispatches.WithLabelValues(resultLabel(err)).Inc()
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	iv, err := d.interviews.Get(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if !Ready(iv) {
		return nil, notReady(iv)
	}

	lease, err := d.claims.Acquire(ctx, interviewID, d.owner, d.claimTTL)
	if err != nil {
		return nil, err
	}
	log := d.log.With(zap.String("interview_id", interviewID), zap.String("claim", lease.Token))

	// Refresh activity under a status guard so the sweeper cannot abandon the
	// interview between the readiness check and the claim.
	ok, err := d.interviews.TouchIfStatus(ctx, interviewID, interview.StatusInProgress, interview.StatusCompleted)
	if err != nil || !ok {
		d.release(lease, log)
		if err != nil {
			return nil, err
		}
		cur, getErr := d.interviews.Get(ctx, interviewID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, notReady(cur)
	}

	runCtx, cancelRun := context.WithTimeout(context.WithoutCancel(ctx), d.claimTTL)
	done := make(chan outcome, 1)
	metrics.DispatchesActive.Inc()
	go func() {
		defer metrics.DispatchesActive.Dec()
		r, runErr := d.pipeline.Run(runCtx, interviewID)
		cancelRun()
		d.release(lease, log)
		done <- outcome{res: r, err: runErr}
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			log.Error("evaluation failed", zap.Error(out.err))
			return nil, out.err
		}
		log.Info("evaluation completed",
			zap.String("recommendation", out.res.Decision.Recommendation),
			zap.Bool("degraded", out.res.Degraded),
			zap.Duration("elapsed", time.Since(start)))
		return out.res, nil
	case <-timer.C:
		d.release(lease, log)
		log.Warn("evaluation exceeded timeout; continuing in background", zap.Duration("timeout", d.timeout))
		return nil, apperr.New(apperr.CodeTimeout, "evaluation of %s did not finish within %s", interviewID, d.timeout)
	case <-ctx.Done():
		d.release(lease, log)
		return nil, fmt.Errorf("dispatch: trigger %s: %w", interviewID, ctx.Err())
	}
}

// release drops the claim on a fresh context so it still happens after the
// caller's context is done. Releasing twice is harmless.
func (d *Dispatcher) release(lease *claim.Lease, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.claims.Release(ctx, lease); err != nil {
		log.Error("release claim", zap.Error(err))
	}
}

func notReady(iv *models.Interview) error {
	if iv.RecordingEndedAt == nil {
		return apperr.New(apperr.CodeNotReady, "interview %s is %s and its recording has not finished", iv.ID, iv.Status)
	}
	return apperr.New(apperr.CodeNotReady, "interview %s is %s", iv.ID, iv.Status)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return string(apperr.CodeOf(err))
}
