package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/claim"
	"github.com/zulandar/proctor/internal/evaluation"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeRunner stands in for the evaluation pipeline. When block is non-nil
// Run waits for it to close.
type fakeRunner struct {
	calls   int32
	started chan struct{}
	block   chan struct{}
	err     error
	once    sync.Once
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{})}
}

func (r *fakeRunner) Run(ctx context.Context, interviewID string) (*evaluation.Result, error) {
	atomic.AddInt32(&r.calls, 1)
	r.once.Do(func() { close(r.started) })
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	return &evaluation.Result{
		InterviewID: interviewID,
		Decision: evaluation.HiringDecision{
			Recommendation: evaluation.RecommendHire,
			OverallScore:   8,
			Reasoning:      "solid",
			NextSteps:      []string{},
		},
	}, nil
}

func (r *fakeRunner) Calls() int {
	return int(atomic.LoadInt32(&r.calls))
}

type fixture struct {
	interviews *interview.Store
	claims     *claim.GormStore
	runner     *fakeRunner
}

func openDispatchTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Interview{}, &models.Evaluation{}, &models.Candidate{}, &models.Problem{}, &models.Claim{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	if err := db.Create(&models.Candidate{ID: "cand-1", Name: "Grace Hopper"}).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openDispatchTestDB(t)
	return &fixture{
		interviews: interview.NewStore(db),
		claims:     claim.NewGormStore(db, nil),
		runner:     newFakeRunner(),
	}
}

func (f *fixture) dispatcher(timeout time.Duration) *Dispatcher {
	return New(Opts{
		Interviews: f.interviews,
		Claims:     f.claims,
		Pipeline:   f.runner,
		Timeout:    timeout,
		Owner:      "test",
	})
}

// seed creates an interview and drives it to the given state. recorded
// controls whether the recording has been stopped.
func (f *fixture) seed(t *testing.T, started, recorded bool) string {
	t.Helper()
	ctx := context.Background()
	iv, err := f.interviews.Create(ctx, interview.CreateOpts{CandidateID: "cand-1", ProblemText: "FizzBuzz", Language: "go"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !started {
		return iv.ID
	}
	now := f.interviews.Now()
	if err := f.interviews.Transition(ctx, iv.ID, interview.StatusNotStarted, interview.StatusInProgress, map[string]interface{}{
		"recording_started_at": now,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if recorded {
		if err := f.interviews.MarkRecordingStopped(ctx, iv.ID, now.Add(10*time.Minute), 600, "file:///rec.webm"); err != nil {
			t.Fatalf("stop recording: %v", err)
		}
	}
	return iv.ID
}

func (f *fixture) held(t *testing.T, id string) bool {
	t.Helper()
	held, err := f.claims.Held(context.Background(), id)
	if err != nil {
		t.Fatalf("held: %v", err)
	}
	return held
}

func TestTriggerCompletion_Success(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, true, true)

	res, err := f.dispatcher(time.Second).TriggerCompletion(context.Background(), id)
	if err != nil {
		t.Fatalf("TriggerCompletion: %v", err)
	}
	if res.InterviewID != id {
		t.Errorf("InterviewID = %q, want %q", res.InterviewID, id)
	}
	if res.Decision.Recommendation != evaluation.RecommendHire {
		t.Errorf("Recommendation = %q, want hire", res.Decision.Recommendation)
	}
	if f.runner.Calls() != 1 {
		t.Errorf("pipeline ran %d times, want 1", f.runner.Calls())
	}
	if f.held(t, id) {
		t.Error("claim still held after completion")
	}
}

func TestTriggerCompletion_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher(time.Second).TriggerCompletion(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	if f.runner.Calls() != 0 {
		t.Error("pipeline ran for unknown interview")
	}
}

func TestTriggerCompletion_NotReady(t *testing.T) {
	tests := []struct {
		name              string
		started, recorded bool
		want              string
	}{
		{"not started", false, false, "not_started"},
		{"recording running", true, false, "recording has not finished"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.seed(t, tt.started, tt.recorded)
			before, _ := f.interviews.Get(context.Background(), id)

			_, err := f.dispatcher(time.Second).TriggerCompletion(context.Background(), id)
			if !errors.Is(err, apperr.ErrNotReady) {
				t.Fatalf("err = %v, want NotReady", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
			if f.runner.Calls() != 0 {
				t.Error("pipeline ran for an interview that is not ready")
			}
			if f.held(t, id) {
				t.Error("claim created for an interview that is not ready")
			}
			after, _ := f.interviews.Get(context.Background(), id)
			if after.Status != before.Status {
				t.Errorf("status changed %s -> %s", before.Status, after.Status)
			}
		})
	}
}

func TestTriggerCompletion_AbandonedIsNotReady(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, true, true)
	if err := f.interviews.Transition(context.Background(), id, interview.StatusInProgress, interview.StatusAbandoned, nil); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	_, err := f.dispatcher(time.Second).TriggerCompletion(context.Background(), id)
	if !errors.Is(err, apperr.ErrNotReady) {
		t.Fatalf("err = %v, want NotReady", err)
	}
	if !strings.Contains(err.Error(), "abandoned") {
		t.Errorf("error = %q, want status in message", err.Error())
	}
}

func TestTriggerCompletion_ConcurrentTriggersRunOnce(t *testing.T) {
	f := newFixture(t)
	f.runner.block = make(chan struct{})
	id := f.seed(t, true, true)
	d := f.dispatcher(5 * time.Second)

	firstErr := make(chan error, 1)
	go func() {
		_, err := d.TriggerCompletion(context.Background(), id)
		firstErr <- err
	}()

	select {
	case <-f.runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first trigger never reached the pipeline")
	}

	_, err := d.TriggerCompletion(context.Background(), id)
	if !errors.Is(err, apperr.ErrAlreadyRunning) {
		t.Fatalf("second trigger err = %v, want AlreadyRunning", err)
	}
	if !apperr.IsRetryable(err) {
		t.Error("AlreadyRunning should be retryable")
	}

	close(f.runner.block)
	if err := <-firstErr; err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if f.runner.Calls() != 1 {
		t.Errorf("pipeline ran %d times, want 1", f.runner.Calls())
	}
}

func TestTriggerCompletion_Timeout(t *testing.T) {
	f := newFixture(t)
	f.runner.block = make(chan struct{})
	id := f.seed(t, true, true)

	start := time.Now()
	_, err := f.dispatcher(50*time.Millisecond).TriggerCompletion(context.Background(), id)
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("err = %v, want Timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("returned after %s, want close to the 50ms timeout", elapsed)
	}
	if f.held(t, id) {
		t.Error("claim still held after timeout")
	}
	close(f.runner.block)
}

func TestTriggerCompletion_PipelineErrorReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New("database unavailable")
	id := f.seed(t, true, true)
	d := f.dispatcher(time.Second)

	_, err := d.TriggerCompletion(context.Background(), id)
	if err == nil || !strings.Contains(err.Error(), "database unavailable") {
		t.Fatalf("err = %v, want pipeline error", err)
	}

	if f.held(t, id) {
		t.Fatal("claim still held after pipeline error")
	}

	f.runner.err = nil
	if _, err := d.TriggerCompletion(context.Background(), id); err != nil {
		t.Fatalf("retry after error: %v", err)
	}
}

func TestTriggerCompletion_CompletedCanBeReEvaluated(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, true, true)
	if err := f.interviews.Transition(context.Background(), id, interview.StatusInProgress, interview.StatusCompleted, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.dispatcher(time.Second).TriggerCompletion(context.Background(), id); err != nil {
		t.Fatalf("TriggerCompletion on completed interview: %v", err)
	}
}

func TestReady(t *testing.T) {
	ended := time.Now()
	tests := []struct {
		status string
		ended  *time.Time
		want   bool
	}{
		{interview.StatusInProgress, &ended, true},
		{interview.StatusCompleted, &ended, true},
		{interview.StatusInProgress, nil, false},
		{interview.StatusNotStarted, nil, false},
		{interview.StatusCancelled, &ended, false},
		{interview.StatusAbandoned, &ended, false},
	}
	for _, tt := range tests {
		got := Ready(&models.Interview{Status: tt.status, RecordingEndedAt: tt.ended})
		if got != tt.want {
			t.Errorf("Ready(%s, ended=%v) = %v, want %v", tt.status, tt.ended != nil, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	d := New(Opts{Timeout: time.Minute, ClaimTTL: time.Second})
	if d.claimTTL != time.Minute {
		t.Errorf("claimTTL = %s, want raised to timeout", d.claimTTL)
	}
	if d.owner == "" {
		t.Error("owner should default to hostname:pid")
	}
	d = New(Opts{})
	if d.timeout != DefaultTimeout || d.claimTTL != DefaultClaimTTL {
		t.Errorf("defaults = %s/%s", d.timeout, d.claimTTL)
	}
}
