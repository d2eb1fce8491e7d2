package models

import "time"

// Interview is one scheduled candidate session and its recorded artifacts.
type Interview struct {
	ID                 string `gorm:"primaryKey;size:36"`
	JoinCode           string `gorm:"size:16;uniqueIndex;not null"`
	CandidateID        string `gorm:"size:36;index"`
	ProblemID          string `gorm:"size:36;index"`
	Status             string `gorm:"size:16;default:not_started;index"`
	ScheduledAt        time.Time
	Language           string `gorm:"size:32"`
	Code               string `gorm:"type:text"`
	ProblemText        string `gorm:"type:text"`
	Transcript         string `gorm:"type:json"` // JSON array of TranscriptMessage
	RecordingURL       string `gorm:"size:512"`
	RecordingStartedAt *time.Time
	RecordingEndedAt   *time.Time
	DurationSeconds    *int64
	LastActiveAt       time.Time `gorm:"index"`
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TranscriptMessage is a single utterance in the interview conversation.
type TranscriptMessage struct {
	Speaker       string  `json:"speaker"` // "candidate" or "agent"
	Text          string  `json:"text"`
	OffsetSeconds float64 `json:"offset_seconds"`
}
