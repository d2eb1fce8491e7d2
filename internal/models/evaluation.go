package models

import "time"

// Evaluation is the persisted outcome of one evaluation pipeline run. There is
// at most one row per interview; re-runs overwrite it.
type Evaluation struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	InterviewID    string `gorm:"size:36;uniqueIndex;not null"`
	Technical      string `gorm:"type:json"`
	Communication  string `gorm:"type:json"`
	Decision       string `gorm:"type:json"`
	Recommendation string `gorm:"size:16;index"`
	OverallScore   float64
	Degraded       bool `gorm:"default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
