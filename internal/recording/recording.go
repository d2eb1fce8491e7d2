// Package recording coordinates the recording session of an interview:
// start and stop timestamps, duration, and the stored media reference.
package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/models"
	"github.com/zulandar/proctor/internal/storage"
	"go.uber.org/zap"
)

// Coordinator starts and stops interview recordings.
type Coordinator struct {
	interviews *interview.Store
	objects    storage.ObjectStore
	prefix     string
	log        *zap.Logger
}

// New returns a Coordinator. objects may be nil when uploads go elsewhere.
func New(interviews *interview.Store, objects storage.ObjectStore, prefix string, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{interviews: interviews, objects: objects, prefix: prefix, log: log}
}

// StartRecording stamps recording_started_at and moves the interview from
// not_started to in_progress.
func (c *Coordinator) StartRecording(ctx context.Context, interviewID string) (*models.Interview, error) {
	iv, err := c.interviews.Get(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != interview.StatusNotStarted {
		return nil, apperr.New(apperr.CodeInvalidTransition, "interview %s is %s, recording can only start from %s",
			interviewID, iv.Status, interview.StatusNotStarted)
	}

	now := c.interviews.Now()
	err = c.interviews.Transition(ctx, interviewID, interview.StatusNotStarted, interview.StatusInProgress, map[string]interface{}{
		"recording_started_at": now,
		"last_active_at":       now,
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("recording started", zap.String("interview_id", interviewID))
	return c.interviews.Get(ctx, interviewID)
}

// StopRecording stamps recording_ended_at, derives the duration and stores
// mediaRef. Status is unchanged.
func (c *Coordinator) StopRecording(ctx context.Context, interviewID, mediaRef string) (*models.Interview, error) {
	iv, err := c.interviews.Get(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.RecordingStartedAt == nil || iv.RecordingEndedAt != nil {
		return nil, apperr.New(apperr.CodeRecordingNotStarted, "interview %s has no running recording", interviewID)
	}

	end := c.interviews.Now()
	duration := Duration(*iv.RecordingStartedAt, end)
	if end.Before(*iv.RecordingStartedAt) {
		end = *iv.RecordingStartedAt
	}
	if err := c.interviews.MarkRecordingStopped(ctx, interviewID, end, duration, mediaRef); err != nil {
		return nil, err
	}
	c.log.Info("recording stopped",
		zap.String("interview_id", interviewID),
		zap.Int64("duration_seconds", duration),
		zap.String("media_ref", mediaRef))
	return c.interviews.Get(ctx, interviewID)
}

// UploadRecording stores the media bytes and then stops the recording with
// the resulting reference.
func (c *Coordinator) UploadRecording(ctx context.Context, interviewID string, data []byte, contentType string) (*models.Interview, error) {
	if c.objects == nil {
		return nil, fmt.Errorf("recording: no object store configured")
	}
	iv, err := c.interviews.Get(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.RecordingStartedAt == nil || iv.RecordingEndedAt != nil {
		return nil, apperr.New(apperr.CodeRecordingNotStarted, "interview %s has no running recording", interviewID)
	}

	key := storage.RecordingKey(c.prefix, interviewID, contentType)
	ref, err := c.objects.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("recording: upload %s: %w", interviewID, err)
	}
	return c.StopRecording(ctx, interviewID, ref)
}

// Duration is end - start in whole seconds, floored. An end before start
// yields zero.
func Duration(start, end time.Time) int64 {
	if end.Before(start) {
		return 0
	}
	return int64(end.Sub(start) / time.Second)
}
