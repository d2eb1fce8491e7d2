package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/models"
	"gorm.io/gorm"
)

// Directory is the read-only candidate and problem lookup used by gather.
type Directory interface {
	Candidate(ctx context.Context, id string) (*models.Candidate, error)
	Problem(ctx context.Context, id string) (*models.Problem, error)
}

// GormDirectory reads candidates and problems from the interview database.
type GormDirectory struct {
	db        *gorm.DB
	opTimeout time.Duration
}

// NewGormDirectory returns a Directory backed by db. Each lookup is bounded
// by opTimeout, or 5s when opTimeout is not positive.
func NewGormDirectory(db *gorm.DB, opTimeout time.Duration) *GormDirectory {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &GormDirectory{db: db, opTimeout: opTimeout}
}

func (d *GormDirectory) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	return d.db.WithContext(ctx), cancel
}

// Candidate returns the candidate with id.
func (d *GormDirectory) Candidate(ctx context.Context, id string) (*models.Candidate, error) {
	db, cancel := d.session(ctx)
	defer cancel()
	var c models.Candidate
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "candidate %s not found", id)
		}
		return nil, fmt.Errorf("evaluation: get candidate %s: %w", id, err)
	}
	return &c, nil
}

// Problem returns the problem with id.
func (d *GormDirectory) Problem(ctx context.Context, id string) (*models.Problem, error) {
	db, cancel := d.session(ctx)
	defer cancel()
	var p models.Problem
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "problem %s not found", id)
		}
		return nil, fmt.Errorf("evaluation: get problem %s: %w", id, err)
	}
	return &p, nil
}
