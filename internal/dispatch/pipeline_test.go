package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/claim"
	"github.com/zulandar/proctor/internal/evaluation"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/models"
	"github.com/zulandar/proctor/internal/recording"
	"github.com/zulandar/proctor/internal/storage"
	"github.com/zulandar/proctor/internal/sweeper"
	"github.com/zulandar/proctor/internal/textgen"
	"go.uber.org/zap"
)

// stageGen answers each stage with a fixed payload. When gate is non-nil the
// technical stage waits for it to close.
type stageGen struct {
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newStageGen(gated bool) *stageGen {
	g := &stageGen{entered: make(chan struct{})}
	if gated {
		g.gate = make(chan struct{})
	}
	return g
}

func (g *stageGen) Generate(ctx context.Context, req textgen.Request) (json.RawMessage, error) {
	if req.Task == evaluation.StageTechnical {
		g.once.Do(func() { close(g.entered) })
		if g.gate != nil {
			select {
			case <-g.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	switch req.Task {
	case evaluation.StageTechnical:
		return json.RawMessage(`{"score": 8, "code_quality": "Clear.", "problem_solving": "Single pass.", "strengths": ["naming"], "areas_for_improvement": []}`), nil
	case evaluation.StageCommunication:
		return json.RawMessage(`{"score": 7, "clarity": "Explained each branch.", "collaboration": "Asked about inputs.", "strengths": [], "areas_for_improvement": ["pace"]}`), nil
	case evaluation.StageDecide:
		return json.RawMessage(`{"recommendation": "hire", "overall_score": 7.5, "reasoning": "Solid on both axes.", "next_steps": ["Onsite"]}`), nil
	}
	return nil, errors.New("unexpected task " + req.Task)
}

type stack struct {
	interviews *interview.Store
	claims     *claim.GormStore
	results    *evaluation.Store
	recorder   *recording.Coordinator
	gen        *stageGen
	pipeline   *evaluation.Pipeline
}

func newStack(t *testing.T, gen *stageGen, opts ...interview.Option) *stack {
	t.Helper()
	db := openDispatchTestDB(t)
	interviews := interview.NewStore(db, opts...)
	results := evaluation.NewStore(db)
	return &stack{
		interviews: interviews,
		claims:     claim.NewGormStore(db, nil),
		results:    results,
		recorder:   recording.New(interviews, storage.NewLocalStore(t.TempDir(), ""), "recordings", zap.NewNop()),
		gen:        gen,
		pipeline: evaluation.NewPipeline(evaluation.Options{
			Interviews:   interviews,
			Directory:    evaluation.NewGormDirectory(db, time.Second),
			Generator:    gen,
			Results:      results,
			StageTimeout: 5 * time.Second,
		}),
	}
}

func (s *stack) dispatcher(timeout, ttl time.Duration) *Dispatcher {
	return New(Opts{
		Interviews: s.interviews,
		Claims:     s.claims,
		Pipeline:   s.pipeline,
		Timeout:    timeout,
		ClaimTTL:   ttl,
		Owner:      "test",
	})
}

// record runs an interview through recording with code and a transcript.
func (s *stack) record(t *testing.T, mediaRef string) string {
	t.Helper()
	ctx := context.Background()
	iv, err := s.interviews.Create(ctx, interview.CreateOpts{CandidateID: "cand-1", ProblemText: "FizzBuzz", Language: "go"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.recorder.StartRecording(ctx, iv.ID); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	code := "func fizzbuzz(n int) string { return \"\" }"
	if _, err := s.interviews.RecordActivity(ctx, iv.ID, interview.Activity{
		Code: &code,
		Messages: []models.TranscriptMessage{
			{Speaker: interview.SpeakerAgent, Text: "Talk me through it.", OffsetSeconds: 3},
			{Speaker: interview.SpeakerCandidate, Text: "Check fifteen first.", OffsetSeconds: 40},
		},
	}); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if _, err := s.recorder.StopRecording(ctx, iv.ID, mediaRef); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	return iv.ID
}

func (s *stack) waitForStatus(t *testing.T, id, status string) *models.Interview {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		iv, err := s.interviews.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if iv.Status == status {
			return iv
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %q after 5s, want %q", iv.Status, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTriggerCompletion_RecordedInterviewEndToEnd(t *testing.T) {
	s := newStack(t, newStageGen(false))
	id := s.record(t, "blob://r1")
	ctx := context.Background()

	res, err := s.dispatcher(5*time.Second, 10*time.Second).TriggerCompletion(ctx, id)
	if err != nil {
		t.Fatalf("TriggerCompletion: %v", err)
	}
	if res.Degraded || res.Decision.Recommendation != evaluation.RecommendHire {
		t.Errorf("result = %+v, want a full hire decision", res)
	}
	if res.Technical == nil || res.Technical.Score != 8 || res.Communication == nil || res.Communication.Score != 7 {
		t.Errorf("scores = %+v / %+v", res.Technical, res.Communication)
	}

	iv, err := s.interviews.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if iv.Status != interview.StatusCompleted {
		t.Errorf("status = %q, want completed", iv.Status)
	}
	if iv.RecordingURL != "blob://r1" {
		t.Errorf("RecordingURL = %q, want blob://r1", iv.RecordingURL)
	}

	stored, err := s.results.Get(ctx, id)
	if err != nil {
		t.Fatalf("stored evaluation: %v", err)
	}
	if stored.Decision.Recommendation != evaluation.RecommendHire {
		t.Errorf("stored recommendation = %q", stored.Decision.Recommendation)
	}
	if held, _ := s.claims.Held(ctx, id); held {
		t.Error("claim still held after completion")
	}
}

func TestTriggerCompletion_LateRunPersistsAfterTimeout(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := newStack(t, newStageGen(true), interview.WithClock(clock.Now))
	id := s.record(t, "blob://r2")
	ctx := context.Background()

	_, err := s.dispatcher(50*time.Millisecond, 2*time.Second).TriggerCompletion(ctx, id)
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("err = %v, want Timeout", err)
	}
	select {
	case <-s.gen.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline never reached the technical stage")
	}

	// The claim touched the interview; a sweep inside the inactivity window
	// leaves the background run alone.
	clock.Advance(4 * time.Minute)
	sw := sweeper.New(s.interviews, s.claims, 5*time.Minute, zap.NewNop())
	report, err := sw.SweepAbandoned(ctx)
	if err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}
	if len(report.Abandoned) != 0 {
		t.Fatalf("abandoned %v while the evaluation was running", report.Abandoned)
	}

	close(s.gen.gate)
	s.waitForStatus(t, id, interview.StatusCompleted)

	stored, err := s.results.Get(ctx, id)
	if err != nil {
		t.Fatalf("late evaluation not stored: %v", err)
	}
	if stored.Degraded || stored.Decision.Recommendation != evaluation.RecommendHire {
		t.Errorf("stored = %+v, want the full decision", stored)
	}

	// Completed interviews are out of the sweeper's reach.
	clock.Advance(time.Hour)
	report, err = sw.SweepAbandoned(ctx)
	if err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}
	if len(report.Abandoned) != 0 {
		t.Errorf("abandoned %v after completion", report.Abandoned)
	}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
