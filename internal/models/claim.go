package models

import "time"

// Claim is a lease granting one dispatcher the right to evaluate an
// interview. A claim whose ExpiresAt has passed is no longer live.
type Claim struct {
	InterviewID string `gorm:"primaryKey;size:36"`
	Token       string `gorm:"size:36;not null"`
	Owner       string `gorm:"size:64"`
	ClaimedAt   time.Time
	ExpiresAt   time.Time `gorm:"index"`
}
