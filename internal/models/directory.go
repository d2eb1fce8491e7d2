package models

import "time"

// Candidate is the read-only view of a candidate record.
type Candidate struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:128;not null"`
	Email     string `gorm:"size:255"`
	Position  string `gorm:"size:128"`
	Seniority string `gorm:"size:32"`
	CreatedAt time.Time
}

// Problem is the read-only view of a coding problem.
type Problem struct {
	ID         string `gorm:"primaryKey;size:36"`
	Title      string `gorm:"size:255"`
	Statement  string `gorm:"type:text"`
	Difficulty string `gorm:"size:16"`
	CreatedAt  time.Time
}
