// Package evaluation runs the fixed evaluation pipeline over a finished
// interview: gather, technical, communication, decide, persist.
package evaluation

import (
	"github.com/zulandar/proctor/internal/models"
)

// Recommendations.
const (
	RecommendHire     = "hire"
	RecommendNoHire   = "no_hire"
	RecommendConsider = "consider"
)

// Stage names.
const (
	StageGather        = "gather"
	StageTechnical     = "technical"
	StageCommunication = "communication"
	StageDecide        = "decide"
	StagePersist       = "persist"
)

// TechnicalEvaluation scores the submitted solution.
type TechnicalEvaluation struct {
	Score               float64  `json:"score"`
	CodeQuality         string   `json:"code_quality"`
	ProblemSolving      string   `json:"problem_solving"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
}

// CommunicationEvaluation scores the conversation.
type CommunicationEvaluation struct {
	Score               float64  `json:"score"`
	Clarity             string   `json:"clarity"`
	Collaboration       string   `json:"collaboration"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
}

// HiringDecision is the final recommendation.
type HiringDecision struct {
	Recommendation string   `json:"recommendation"`
	OverallScore   float64  `json:"overall_score"`
	Reasoning      string   `json:"reasoning"`
	NextSteps      []string `json:"next_steps"`
}

// CandidateInfo is the candidate metadata a run needs.
type CandidateInfo struct {
	ID        string
	Name      string
	Email     string
	Position  string
	Seniority string
}

// StageFailure records one failed stage.
type StageFailure struct {
	Stage   string
	Missing []string // inputs gather could not find
	Err     error
}

// Context is the state of one pipeline run. Stages take a Context by value
// and return the next one; results are only ever added.
type Context struct {
	InterviewID      string
	Candidate        CandidateInfo
	ProblemStatement string
	Language         string
	Code             string
	Transcript       []models.TranscriptMessage

	Technical     *TechnicalEvaluation
	Communication *CommunicationEvaluation
	Decision      *HiringDecision
	Failures      []StageFailure
}

// Failed reports whether stage recorded a failure.
func (c Context) Failed(stage string) bool {
	for _, f := range c.Failures {
		if f.Stage == stage {
			return true
		}
	}
	return false
}

// Degraded reports whether the run could not produce a full evaluation.
func (c Context) Degraded() bool {
	return len(c.Failures) > 0
}

// withFailure returns a copy of c with f appended. The failure slice is
// copied so earlier Contexts are unaffected.
func (c Context) withFailure(f StageFailure) Context {
	failures := make([]StageFailure, len(c.Failures), len(c.Failures)+1)
	copy(failures, c.Failures)
	c.Failures = append(failures, f)
	return c
}
