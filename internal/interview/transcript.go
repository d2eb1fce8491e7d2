package interview

import (
	"encoding/json"
	"fmt"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/models"
)

// Transcript speakers.
const (
	SpeakerCandidate = "candidate"
	SpeakerAgent     = "agent"
)

// DecodeTranscript parses the stored transcript column. An empty column is
// an empty transcript.
func DecodeTranscript(raw string) ([]models.TranscriptMessage, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var msgs []models.TranscriptMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("interview: decode transcript: %w", err)
	}
	return msgs, nil
}

// EncodeTranscript serializes messages for storage.
func EncodeTranscript(msgs []models.TranscriptMessage) (string, error) {
	if msgs == nil {
		msgs = []models.TranscriptMessage{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("interview: encode transcript: %w", err)
	}
	return string(b), nil
}

func validateMessages(msgs []models.TranscriptMessage) error {
	for i, m := range msgs {
		if m.Speaker != SpeakerCandidate && m.Speaker != SpeakerAgent {
			return apperr.New(apperr.CodeInvalidInput, "message %d: speaker %q must be %q or %q", i, m.Speaker, SpeakerCandidate, SpeakerAgent)
		}
		if m.OffsetSeconds < 0 {
			return apperr.New(apperr.CodeInvalidInput, "message %d: negative offset", i)
		}
	}
	return nil
}
