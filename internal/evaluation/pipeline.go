package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/metrics"
	"github.com/zulandar/proctor/internal/textgen"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultStageTimeout bounds each text-generation stage.
const DefaultStageTimeout = 20 * time.Second

// Notifier is told about every persisted evaluation. Delivery is best
// effort; the pipeline never waits on or fails because of it.
type Notifier interface {
	EvaluationCompleted(ctx context.Context, res *Result)
}

// Options holds the collaborators of a Pipeline.
type Options struct {
	Interviews   *interview.Store
	Directory    Directory
	Generator    textgen.Generator
	Results      *Store
	Notifier     Notifier // optional
	StageTimeout time.Duration
	Logger       *zap.Logger
}

// Pipeline runs the evaluation stages for one interview at a time. A
// Pipeline is safe for concurrent use; every run owns its own Context.
type Pipeline struct {
	interviews   *interview.Store
	directory    Directory
	gen          textgen.Generator
	results      *Store
	notifier     Notifier
	stageTimeout time.Duration
	log          *zap.Logger
}

// NewPipeline returns a Pipeline wired to opts.
func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		interviews:   opts.Interviews,
		directory:    opts.Directory,
		gen:          opts.Generator,
		results:      opts.Results,
		notifier:     opts.Notifier,
		stageTimeout: opts.StageTimeout,
		log:          opts.Logger,
	}
	if p.stageTimeout <= 0 {
		p.stageTimeout = DefaultStageTimeout
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Run executes gather → technical → communication → decide → persist and
// returns the stored result. Stage failures degrade the decision instead of
// failing the run; only lookup and persistence errors are returned.
func (p *Pipeline) Run(ctx context.Context, interviewID string) (*Result, error) {
	ec, err := p.Gather(ctx, Context{InterviewID: interviewID})
	if err != nil {
		return nil, err
	}
	if !ec.Failed(StageGather) {
		ec = p.Technical(ctx, ec)
		ec = p.Communication(ctx, ec)
	}
	ec = p.Decide(ctx, ec)
	return p.Persist(ctx, ec)
}

// Gather loads the artifacts of the interview. Missing artifacts are
// recorded as a gather failure; an unknown interview is an error.
func (p *Pipeline) Gather(ctx context.Context, ec Context) (Context, error) {
	start := time.Now()

	iv, err := p.interviews.Get(ctx, ec.InterviewID)
	if err != nil {
		p.observe(StageGather, start, "error")
		return ec, err
	}
	ec.Language = iv.Language
	ec.Code = iv.Code
	ec.ProblemStatement = iv.ProblemText

	var missing []string
	if ec.ProblemStatement == "" && iv.ProblemID != "" {
		prob, err := p.directory.Problem(ctx, iv.ProblemID)
		switch {
		case err == nil:
			ec.ProblemStatement = prob.Statement
		case !errors.Is(err, apperr.ErrNotFound):
			p.lookupFailed(ec.InterviewID, "problem", iv.ProblemID, err)
		}
	}
	if strings.TrimSpace(ec.ProblemStatement) == "" {
		missing = append(missing, "problem statement")
	}
	if strings.TrimSpace(ec.Code) == "" {
		missing = append(missing, "final solution")
	}

	transcript, err := interview.DecodeTranscript(iv.Transcript)
	if err != nil {
		p.log.Warn("unreadable transcript",
			zap.String("interview_id", ec.InterviewID),
			zap.String("stage", StageGather),
			zap.Error(err))
	}
	ec.Transcript = transcript
	if len(ec.Transcript) == 0 {
		missing = append(missing, "transcript")
	}

	if iv.CandidateID != "" {
		cand, err := p.directory.Candidate(ctx, iv.CandidateID)
		switch {
		case err == nil:
			ec.Candidate = CandidateInfo{
				ID:        cand.ID,
				Name:      cand.Name,
				Email:     cand.Email,
				Position:  cand.Position,
				Seniority: cand.Seniority,
			}
		case !errors.Is(err, apperr.ErrNotFound):
			p.lookupFailed(ec.InterviewID, "candidate", iv.CandidateID, err)
		}
	}
	if strings.TrimSpace(ec.Candidate.Name) == "" {
		missing = append(missing, "candidate name")
	}

	if len(missing) > 0 {
		err := apperr.New(apperr.CodeMissingData, "missing %s", strings.Join(missing, ", "))
		p.log.Warn("gather found insufficient data",
			zap.String("interview_id", ec.InterviewID),
			zap.String("stage", StageGather),
			zap.Strings("missing", missing))
		p.observe(StageGather, start, "failed")
		return ec.withFailure(StageFailure{Stage: StageGather, Missing: missing, Err: err}), nil
	}
	p.observe(StageGather, start, "ok")
	return ec, nil
}

// lookupFailed logs a directory error. The field it would have filled is
// then reported missing, so the run degrades instead of aborting.
func (p *Pipeline) lookupFailed(interviewID, kind, id string, err error) {
	p.log.Warn("directory lookup failed",
		zap.String("interview_id", interviewID),
		zap.String("stage", StageGather),
		zap.String(kind+"_id", id),
		zap.Error(err))
}

// Technical scores the submitted solution.
func (p *Pipeline) Technical(ctx context.Context, ec Context) Context {
	start := time.Now()
	var te TechnicalEvaluation
	if err := p.generate(ctx, ec, StageTechnical, technicalSystem, technicalPrompt, technicalSchema, &te); err != nil {
		p.observe(StageTechnical, start, "failed")
		return p.fail(ec, StageTechnical, err)
	}
	te.Strengths = nonNil(te.Strengths)
	te.AreasForImprovement = nonNil(te.AreasForImprovement)
	ec.Technical = &te
	p.observe(StageTechnical, start, "ok")
	return ec
}

// Communication scores the transcript.
func (p *Pipeline) Communication(ctx context.Context, ec Context) Context {
	start := time.Now()
	var ce CommunicationEvaluation
	if err := p.generate(ctx, ec, StageCommunication, communicationSystem, communicationPrompt, communicationSchema, &ce); err != nil {
		p.observe(StageCommunication, start, "failed")
		return p.fail(ec, StageCommunication, err)
	}
	ce.Strengths = nonNil(ce.Strengths)
	ce.AreasForImprovement = nonNil(ce.AreasForImprovement)
	ec.Communication = &ce
	p.observe(StageCommunication, start, "ok")
	return ec
}

// Decide produces the hiring decision. When any earlier stage failed, or the
// decision call itself fails, the decision is the degraded one.
func (p *Pipeline) Decide(ctx context.Context, ec Context) Context {
	start := time.Now()
	if ec.Degraded() || ec.Technical == nil || ec.Communication == nil {
		d := DegradedDecision(ec.Failures)
		ec.Decision = &d
		p.observe(StageDecide, start, "degraded")
		return ec
	}

	var hd HiringDecision
	if err := p.generate(ctx, ec, StageDecide, decisionSystem, decisionPrompt, decisionSchema, &hd); err != nil {
		ec = p.fail(ec, StageDecide, err)
		d := DegradedDecision(ec.Failures)
		ec.Decision = &d
		p.observe(StageDecide, start, "degraded")
		return ec
	}
	hd.NextSteps = nonNil(hd.NextSteps)
	ec.Decision = &hd
	p.observe(StageDecide, start, "ok")
	return ec
}

// Persist upserts the evaluation and moves the interview to completed in one
// transaction. Persisting the same interview again overwrites its row.
func (p *Pipeline) Persist(ctx context.Context, ec Context) (*Result, error) {
	start := time.Now()
	if ec.Decision == nil {
		d := DegradedDecision(ec.Failures)
		ec.Decision = &d
	}
	res := &Result{
		InterviewID:   ec.InterviewID,
		Technical:     ec.Technical,
		Communication: ec.Communication,
		Decision:      *ec.Decision,
		Degraded:      ec.Degraded(),
	}

	db, cancel := p.interviews.Session(ctx)
	defer cancel()
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := p.results.saveTx(tx, res); err != nil {
			return err
		}
		err := p.interviews.TransitionTx(tx, ec.InterviewID, interview.StatusInProgress, interview.StatusCompleted, nil)
		if errors.Is(err, apperr.ErrInvalidTransition) {
			cur, getErr := p.interviews.GetTx(tx, ec.InterviewID)
			if getErr == nil && cur.Status == interview.StatusCompleted {
				return nil
			}
		}
		return err
	})
	if err != nil {
		p.log.Error("persist failed",
			zap.String("interview_id", ec.InterviewID),
			zap.String("stage", StagePersist),
			zap.Error(err))
		p.observe(StagePersist, start, "error")
		return nil, err
	}
	p.observe(StagePersist, start, "ok")

	stored, err := p.results.Get(ctx, ec.InterviewID)
	if err != nil {
		return nil, fmt.Errorf("evaluation: reload %s: %w", ec.InterviewID, err)
	}
	metrics.Evaluations.WithLabelValues(stored.Decision.Recommendation, fmt.Sprint(stored.Degraded)).Inc()
	p.log.Info("evaluation persisted",
		zap.String("interview_id", ec.InterviewID),
		zap.String("recommendation", stored.Decision.Recommendation),
		zap.Float64("overall_score", stored.Decision.OverallScore),
		zap.Bool("degraded", stored.Degraded))

	if p.notifier != nil {
		p.notifier.EvaluationCompleted(context.WithoutCancel(ctx), stored)
	}
	return stored, nil
}

func (p *Pipeline) generate(ctx context.Context, ec Context, stage, system string, prompt *template.Template, schema string, out interface{}) error {
	text, err := render(prompt, ec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()
	return textgen.Decode(ctx, p.gen, textgen.Request{
		Task:   stage,
		System: system,
		Prompt: text,
		Schema: schema,
	}, out)
}

func (p *Pipeline) fail(ec Context, stage string, err error) Context {
	p.log.Error("stage failed",
		zap.String("interview_id", ec.InterviewID),
		zap.String("stage", stage),
		zap.Error(err))
	return ec.withFailure(StageFailure{
		Stage: stage,
		Err:   apperr.Wrap(apperr.CodeStageFailure, err, "%s stage", stage),
	})
}

func (p *Pipeline) observe(stage string, start time.Time, outcome string) {
	metrics.StageRuns.WithLabelValues(stage, outcome).Inc()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// DegradedDecision is the deterministic decision used when the pipeline
// could not evaluate the candidate. Its reasoning names every failed or
// missing input.
func DegradedDecision(failures []StageFailure) HiringDecision {
	var reasons []string
	for _, f := range failures {
		switch f.Stage {
		case StageGather:
			reasons = append(reasons, "missing inputs: "+strings.Join(f.Missing, ", "))
			reasons = append(reasons, "technical evaluation not run", "communication evaluation not run")
		case StageTechnical:
			reasons = append(reasons, "technical evaluation failed")
		case StageCommunication:
			reasons = append(reasons, "communication evaluation failed")
		case StageDecide:
			reasons = append(reasons, "hiring decision could not be generated")
		default:
			reasons = append(reasons, f.Stage+" failed")
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "evaluation results unavailable")
	}
	return HiringDecision{
		Recommendation: RecommendNoHire,
		OverallScore:   0,
		Reasoning:      "Automatic evaluation incomplete (" + strings.Join(reasons, "; ") + "). No hire is recorded until the candidate can be evaluated.",
		NextSteps: []string{
			"Re-run the interview to capture a complete evaluation",
			"Review the recording and final code manually",
		},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
