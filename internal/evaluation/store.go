package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result is a persisted evaluation.
type Result struct {
	InterviewID   string                   `json:"interview_id"`
	Technical     *TechnicalEvaluation     `json:"technical"`
	Communication *CommunicationEvaluation `json:"communication"`
	Decision      HiringDecision           `json:"decision"`
	Degraded      bool                     `json:"degraded"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// Store reads and writes evaluation rows. There is one row per interview.
type Store struct {
	db        *gorm.DB
	opTimeout time.Duration
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, opTimeout: 5 * time.Second}
}

// Get returns the evaluation for interviewID.
func (s *Store) Get(ctx context.Context, interviewID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var row models.Evaluation
	if err := db.Where("interview_id = ?", interviewID).First(&row).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("evaluation: get %s: %w", interviewID, err)
		}
		var count int64
		if err := db.Model(&models.Interview{}).Where("id = ?", interviewID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("evaluation: check interview %s: %w", interviewID, err)
		}
		if count == 0 {
			return nil, apperr.New(apperr.CodeNotFound, "interview %s not found", interviewID)
		}
		return nil, apperr.New(apperr.CodeNotFound, "interview %s has no evaluation yet", interviewID)
	}
	return fromRow(row)
}

// saveTx upserts r keyed by interview id.
func (s *Store) saveTx(tx *gorm.DB, r *Result) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "interview_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"technical", "communication", "decision",
			"recommendation", "overall_score", "degraded", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("evaluation: save %s: %w", r.InterviewID, err)
	}
	return nil
}

func toRow(r *Result) (models.Evaluation, error) {
	tech, err := json.Marshal(r.Technical)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("evaluation: encode technical: %w", err)
	}
	comm, err := json.Marshal(r.Communication)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("evaluation: encode communication: %w", err)
	}
	dec, err := json.Marshal(r.Decision)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("evaluation: encode decision: %w", err)
	}
	return models.Evaluation{
		InterviewID:    r.InterviewID,
		Technical:      string(tech),
		Communication:  string(comm),
		Decision:       string(dec),
		Recommendation: r.Decision.Recommendation,
		OverallScore:   r.Decision.OverallScore,
		Degraded:       r.Degraded,
	}, nil
}

func fromRow(row models.Evaluation) (*Result, error) {
	r := &Result{
		InterviewID: row.InterviewID,
		Degraded:    row.Degraded,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if err := decodeColumn(row.Technical, &r.Technical); err != nil {
		return nil, fmt.Errorf("evaluation: decode technical for %s: %w", row.InterviewID, err)
	}
	if err := decodeColumn(row.Communication, &r.Communication); err != nil {
		return nil, fmt.Errorf("evaluation: decode communication for %s: %w", row.InterviewID, err)
	}
	if err := decodeColumn(row.Decision, &r.Decision); err != nil {
		return nil, fmt.Errorf("evaluation: decode decision for %s: %w", row.InterviewID, err)
	}
	return r, nil
}

func decodeColumn(raw string, out interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}
