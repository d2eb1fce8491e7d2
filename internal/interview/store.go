// Package interview provides the interview record store and the status
// state machine every lifecycle component goes through.
package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/metrics"
	"github.com/zulandar/proctor/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultOpTimeout bounds every store operation when the caller's context
// carries no shorter deadline.
const DefaultOpTimeout = 5 * time.Second

// maxJoinCodeAttempts caps retries when a generated join code collides.
const maxJoinCodeAttempts = 5

// Store reads and mutates interview records. Every status change is a single
// compare-and-set on the status column.
type Store struct {
	db        *gorm.DB
	now       func() time.Time
	opTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOpTimeout overrides the per-operation timeout.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		now:       func() time.Time { return time.Now().UTC() },
		opTimeout: DefaultOpTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// Session returns a context-bound, time-limited handle for one operation.
func (s *Store) Session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	return s.db.WithContext(ctx), cancel
}

// CreateOpts holds parameters for scheduling a new interview.
type CreateOpts struct {
	CandidateID string
	ProblemID   string
	ProblemText string // copied from the problem record when empty
	Language    string
	ScheduledAt time.Time
}

// Create schedules a new interview in not_started.
func (s *Store) Create(ctx context.Context, opts CreateOpts) (*models.Interview, error) {
	if opts.CandidateID == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "candidate id is required")
	}
	db, cancel := s.Session(ctx)
	defer cancel()

	var cand models.Candidate
	if err := db.Where("id = ?", opts.CandidateID).First(&cand).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "candidate %s not found", opts.CandidateID)
		}
		return nil, fmt.Errorf("interview: check candidate %s: %w", opts.CandidateID, err)
	}

	if opts.ProblemText == "" && opts.ProblemID != "" {
		var prob models.Problem
		if err := db.Where("id = ?", opts.ProblemID).First(&prob).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.New(apperr.CodeNotFound, "problem %s not found", opts.ProblemID)
			}
			return nil, fmt.Errorf("interview: load problem %s: %w", opts.ProblemID, err)
		}
		opts.ProblemText = prob.Statement
	}

	now := s.now()
	if opts.ScheduledAt.IsZero() {
		opts.ScheduledAt = now
	}

	iv := models.Interview{
		ID:           uuid.NewString(),
		CandidateID:  opts.CandidateID,
		ProblemID:    opts.ProblemID,
		Status:       StatusNotStarted,
		ScheduledAt:  opts.ScheduledAt.UTC(),
		Language:     opts.Language,
		ProblemText:  opts.ProblemText,
		Transcript:   "[]",
		LastActiveAt: now,
	}

	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		code, err := GenerateJoinCode()
		if err != nil {
			return nil, err
		}
		var count int64
		if err := db.Model(&models.Interview{}).Where("join_code = ?", code).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("interview: check join code: %w", err)
		}
		if count == 0 {
			iv.JoinCode = code
			break
		}
	}
	if iv.JoinCode == "" {
		return nil, fmt.Errorf("interview: no unique join code after %d attempts", maxJoinCodeAttempts)
	}

	if err := db.Create(&iv).Error; err != nil {
		return nil, fmt.Errorf("interview: create: %w", err)
	}
	return &iv, nil
}

// Get retrieves an interview by ID.
func (s *Store) Get(ctx context.Context, id string) (*models.Interview, error) {
	db, cancel := s.Session(ctx)
	defer cancel()
	return get(db, id)
}

// GetTx is Get on an existing handle, typically a transaction.
func (s *Store) GetTx(tx *gorm.DB, id string) (*models.Interview, error) {
	return get(tx, id)
}

func get(db *gorm.DB, id string) (*models.Interview, error) {
	var iv models.Interview
	if err := db.Where("id = ?", id).First(&iv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "interview %s not found", id)
		}
		return nil, fmt.Errorf("interview: get %s: %w", id, err)
	}
	return &iv, nil
}

// GetByJoinCode retrieves an interview by its join code.
func (s *Store) GetByJoinCode(ctx context.Context, code string) (*models.Interview, error) {
	db, cancel := s.Session(ctx)
	defer cancel()

	var iv models.Interview
	if err := db.Where("join_code = ?", code).First(&iv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "no interview with join code %s", code)
		}
		return nil, fmt.Errorf("interview: get by join code: %w", err)
	}
	return &iv, nil
}

// Transition moves an interview from → to, applying extra column updates in
// the same statement. It fails with InvalidTransition when the edge is not in
// the status graph or the stored status is no longer from.
func (s *Store) Transition(ctx context.Context, id, from, to string, extra map[string]interface{}) error {
	db, cancel := s.Session(ctx)
	defer cancel()
	return s.TransitionTx(db, id, from, to, extra)
}

// TransitionTx is Transition on an existing handle, typically a transaction.
func (s *Store) TransitionTx(tx *gorm.DB, id, from, to string, extra map[string]interface{}) error {
	if !CanTransition(from, to) {
		return apperr.New(apperr.CodeInvalidTransition, "interview %s: %s → %s is not allowed", id, from, to)
	}

	now := s.now()
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	if to == StatusCompleted {
		if _, ok := updates["completed_at"]; !ok {
			updates["completed_at"] = now
		}
	}

	result := tx.Model(&models.Interview{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("interview: transition %s to %s: %w", id, to, result.Error)
	}
	if result.RowsAffected == 0 {
		cur, err := get(tx, id)
		if err != nil {
			return err
		}
		return apperr.New(apperr.CodeInvalidTransition, "interview %s is %s, not %s", id, cur.Status, from)
	}

	metrics.Transitions.WithLabelValues(from, to).Inc()
	return nil
}

// Cancel moves a not_started or in_progress interview to cancelled.
func (s *Store) Cancel(ctx context.Context, id string) (*models.Interview, error) {
	iv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Transition(ctx, id, iv.Status, StatusCancelled, nil); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// TouchIfStatus bumps last_active_at when the interview is still in one of
// statuses. It reports whether a row was updated.
func (s *Store) TouchIfStatus(ctx context.Context, id string, statuses ...string) (bool, error) {
	db, cancel := s.Session(ctx)
	defer cancel()

	result := db.Model(&models.Interview{}).
		Where("id = ? AND status IN ?", id, statuses).
		Update("last_active_at", s.now())
	if result.Error != nil {
		return false, fmt.Errorf("interview: touch %s: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Activity is a heartbeat from the interview room.
type Activity struct {
	Code     *string
	Language *string
	Messages []models.TranscriptMessage // appended to the transcript
}

// RecordActivity applies a heartbeat to an in-progress interview: it saves
// the latest code, appends transcript messages and bumps last_active_at.
func (s *Store) RecordActivity(ctx context.Context, id string, act Activity) (*models.Interview, error) {
	if err := validateMessages(act.Messages); err != nil {
		return nil, fmt.Errorf("interview: record activity: %w", err)
	}

	db, cancel := s.Session(ctx)
	defer cancel()

	var updated *models.Interview
	err := db.Transaction(func(tx *gorm.DB) error {
		var iv models.Interview
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&iv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.CodeNotFound, "interview %s not found", id)
			}
			return fmt.Errorf("interview: load %s: %w", id, err)
		}
		if iv.Status != StatusInProgress {
			return apperr.New(apperr.CodeInvalidTransition, "interview %s is %s, activity requires %s", id, iv.Status, StatusInProgress)
		}

		updates := map[string]interface{}{"last_active_at": s.now()}
		if act.Code != nil {
			updates["code"] = *act.Code
			iv.Code = *act.Code
		}
		if act.Language != nil {
			updates["language"] = *act.Language
			iv.Language = *act.Language
		}
		if len(act.Messages) > 0 {
			msgs, err := DecodeTranscript(iv.Transcript)
			if err != nil {
				return err
			}
			raw, err := EncodeTranscript(append(msgs, act.Messages...))
			if err != nil {
				return err
			}
			updates["transcript"] = raw
			iv.Transcript = raw
		}

		result := tx.Model(&models.Interview{}).
			Where("id = ? AND status = ?", id, StatusInProgress).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("interview: update activity %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(apperr.CodeInvalidTransition, "interview %s left %s", id, StatusInProgress)
		}
		iv.LastActiveAt = updates["last_active_at"].(time.Time)
		updated = &iv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkRecordingStopped sets the recording end, duration and media reference
// on an interview whose recording is started and not yet stopped.
func (s *Store) MarkRecordingStopped(ctx context.Context, id string, endedAt time.Time, durationSeconds int64, mediaRef string) error {
	db, cancel := s.Session(ctx)
	defer cancel()

	result := db.Model(&models.Interview{}).
		Where("id = ? AND recording_started_at IS NOT NULL AND recording_ended_at IS NULL", id).
		Updates(map[string]interface{}{
			"recording_ended_at": endedAt,
			"duration_seconds":   durationSeconds,
			"recording_url":      mediaRef,
			"last_active_at":     endedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("interview: stop recording %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := get(db, id); err != nil {
			return err
		}
		return apperr.New(apperr.CodeRecordingNotStarted, "interview %s has no running recording", id)
	}
	return nil
}

// ListStale returns in-progress interviews whose last activity is before
// cutoff, oldest first.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Interview, error) {
	db, cancel := s.Session(ctx)
	defer cancel()

	q := db.Where("status = ? AND last_active_at < ?", StatusInProgress, cutoff).
		Order("last_active_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var stale []models.Interview
	if err := q.Find(&stale).Error; err != nil {
		return nil, fmt.Errorf("interview: list stale: %w", err)
	}
	return stale, nil
}

// AbandonIfStale moves an in-progress interview to abandoned only if its
// last activity is still before cutoff. It reports whether the row moved.
func (s *Store) AbandonIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	db, cancel := s.Session(ctx)
	defer cancel()

	result := db.Model(&models.Interview{}).
		Where("id = ? AND status = ? AND last_active_at < ?", id, StatusInProgress, cutoff).
		Update("status", StatusAbandoned)
	if result.Error != nil {
		return false, fmt.Errorf("interview: abandon %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	metrics.Transitions.WithLabelValues(StatusInProgress, StatusAbandoned).Inc()
	return true, nil
}
