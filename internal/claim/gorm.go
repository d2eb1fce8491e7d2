package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/models"
	"gorm.io/gorm"
)

const defaultOpTimeout = 5 * time.Second

// GormStore keeps claims in the claims table, so they survive restarts and
// are shared by every process using the same database.
type GormStore struct {
	db        *gorm.DB
	now       func() time.Time
	opTimeout time.Duration
}

// GormOption configures a GormStore.
type GormOption func(*GormStore)

// WithOpTimeout bounds every claim query. Zero or negative keeps the default.
func WithOpTimeout(d time.Duration) GormOption {
	return func(s *GormStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// NewGormStore returns a GormStore. now may be nil.
func NewGormStore(db *gorm.DB, now func() time.Time, opts ...GormOption) *GormStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &GormStore{db: db, now: now, opTimeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	return s.db.WithContext(ctx), cancel
}

// insertClaim is a plain INSERT. The primary key on interview_id rejects a
// second live claim with a duplicate-key error on every driver.
func insertClaim(tx *gorm.DB, row *models.Claim) *gorm.DB {
	return tx.Create(row)
}

// Acquire expires a stale claim for interviewID, then inserts a new one.
// The insert is the arbiter; the stored token is read back before the lease
// is handed out.
func (s *GormStore) Acquire(ctx context.Context, interviewID, owner string, ttl time.Duration) (*Lease, error) {
	now := s.now()
	lease := &Lease{
		InterviewID: interviewID,
		Token:       uuid.NewString(),
		Owner:       owner,
		ExpiresAt:   now.Add(ttl),
	}

	db, cancel := s.session(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("interview_id = ? AND expires_at <= ?", interviewID, now).
			Delete(&models.Claim{}).Error; err != nil {
			return fmt.Errorf("expire stale claim: %w", err)
		}

		row := models.Claim{
			InterviewID: interviewID,
			Token:       lease.Token,
			Owner:       owner,
			ClaimedAt:   now,
			ExpiresAt:   lease.ExpiresAt,
		}
		if err := insertClaim(tx, &row).Error; err != nil {
			held, lookupErr := heldClaim(tx, interviewID)
			if errors.Is(err, gorm.ErrDuplicatedKey) || lookupErr == nil {
				return alreadyRunning(interviewID, held)
			}
			return fmt.Errorf("create claim: %w", err)
		}

		stored, err := heldClaim(tx, interviewID)
		if err != nil {
			return fmt.Errorf("read back claim: %w", err)
		}
		if stored.Token != lease.Token {
			return alreadyRunning(interviewID, stored)
		}
		return nil
	})
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeAlreadyRunning {
			return nil, err
		}
		return nil, fmt.Errorf("claim: acquire %s: %w", interviewID, err)
	}
	return lease, nil
}

func heldClaim(tx *gorm.DB, interviewID string) (*models.Claim, error) {
	var held models.Claim
	if err := tx.Where("interview_id = ?", interviewID).First(&held).Error; err != nil {
		return nil, err
	}
	return &held, nil
}

func alreadyRunning(interviewID string, held *models.Claim) error {
	if held == nil {
		return apperr.New(apperr.CodeAlreadyRunning, "interview %s is being evaluated", interviewID)
	}
	return apperr.New(apperr.CodeAlreadyRunning, "interview %s is being evaluated by %s until %s",
		interviewID, held.Owner, held.ExpiresAt.Format(time.RFC3339))
}

// Release deletes the claim if lease still holds it.
func (s *GormStore) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	db, cancel := s.session(ctx)
	defer cancel()
	if err := db.Where("interview_id = ? AND token = ?", lease.InterviewID, lease.Token).
		Delete(&models.Claim{}).Error; err != nil {
		return fmt.Errorf("claim: release %s: %w", lease.InterviewID, err)
	}
	return nil
}

// Held reports whether a live claim exists.
func (s *GormStore) Held(ctx context.Context, interviewID string) (bool, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	var count int64
	if err := db.Model(&models.Claim{}).
		Where("interview_id = ? AND expires_at > ?", interviewID, s.now()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("claim: check %s: %w", interviewID, err)
	}
	return count > 0, nil
}
