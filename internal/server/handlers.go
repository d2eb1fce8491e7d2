package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/interview"
	"github.com/zulandar/proctor/internal/models"
	"go.uber.org/zap"
)

type handler struct {
	Deps
	log *zap.Logger
}

// interviewView is the API representation of an interview.
type interviewView struct {
	ID                 string                     `json:"id"`
	JoinCode           string                     `json:"join_code"`
	CandidateID        string                     `json:"candidate_id"`
	ProblemID          string                     `json:"problem_id,omitempty"`
	Status             string                     `json:"status"`
	ScheduledAt        time.Time                  `json:"scheduled_at"`
	Language           string                     `json:"language,omitempty"`
	Code               string                     `json:"code,omitempty"`
	ProblemText        string                     `json:"problem_text,omitempty"`
	Transcript         []models.TranscriptMessage `json:"transcript"`
	RecordingURL       string                     `json:"recording_url,omitempty"`
	RecordingStartedAt *time.Time                 `json:"recording_started_at,omitempty"`
	RecordingEndedAt   *time.Time                 `json:"recording_ended_at,omitempty"`
	DurationSeconds    *int64                     `json:"duration_seconds,omitempty"`
	LastActiveAt       time.Time                  `json:"last_active_at"`
	CompletedAt        *time.Time                 `json:"completed_at,omitempty"`
}

func toView(iv *models.Interview) interviewView {
	transcript, _ := interview.DecodeTranscript(iv.Transcript)
	if transcript == nil {
		transcript = []models.TranscriptMessage{}
	}
	return interviewView{
		ID:                 iv.ID,
		JoinCode:           iv.JoinCode,
		CandidateID:        iv.CandidateID,
		ProblemID:          iv.ProblemID,
		Status:             iv.Status,
		ScheduledAt:        iv.ScheduledAt,
		Language:           iv.Language,
		Code:               iv.Code,
		ProblemText:        iv.ProblemText,
		Transcript:         transcript,
		RecordingURL:       iv.RecordingURL,
		RecordingStartedAt: iv.RecordingStartedAt,
		RecordingEndedAt:   iv.RecordingEndedAt,
		DurationSeconds:    iv.DurationSeconds,
		LastActiveAt:       iv.LastActiveAt,
		CompletedAt:        iv.CompletedAt,
	}
}

// writeError maps err onto a status code and a JSON body. Unclassified
// errors are logged and hidden from the client.
func (h *handler) writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("interview_id", c.Param("id")),
			zap.Error(err))
		msg = "internal error"
	}
	c.JSON(status, gin.H{
		"error":     msg,
		"code":      code,
		"retryable": apperr.IsRetryable(err),
	})
}

func (h *handler) badRequest(c *gin.Context, err error) {
	h.writeError(c, apperr.Wrap(apperr.CodeInvalidInput, err, "invalid request"))
}

func (h *handler) health(c *gin.Context) {
	sqlDB, err := h.Interviews.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createInterviewReq struct {
	CandidateID string    `json:"candidate_id" binding:"required"`
	ProblemID   string    `json:"problem_id"`
	ProblemText string    `json:"problem_text"`
	Language    string    `json:"language"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h *handler) createInterview(c *gin.Context) {
	var req createInterviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	iv, err := h.Interviews.Create(c.Request.Context(), interview.CreateOpts{
		CandidateID: req.CandidateID,
		ProblemID:   req.ProblemID,
		ProblemText: req.ProblemText,
		Language:    req.Language,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.log.Info("interview scheduled",
		zap.String("interview_id", iv.ID),
		zap.String("candidate_id", iv.CandidateID))
	c.JSON(http.StatusCreated, toView(iv))
}

func (h *handler) getInterview(c *gin.Context) {
	iv, err := h.Interviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(iv))
}

func (h *handler) joinInterview(c *gin.Context) {
	iv, err := h.Interviews.GetByJoinCode(c.Request.Context(), strings.ToUpper(c.Param("code")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(iv))
}

func (h *handler) startRecording(c *gin.Context) {
	iv, err := h.Recorder.StartRecording(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(iv))
}

type stopRecordingReq struct {
	MediaRef string `json:"media_ref"`
}

// stopRecording accepts either a JSON body naming already-stored media or a
// multipart upload in the "recording" field.
func (h *handler) stopRecording(c *gin.Context) {
	id := c.Param("id")
	if c.ContentType() == "multipart/form-data" {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUpload)
		fh, err := c.FormFile("recording")
		if err != nil {
			h.badRequest(c, err)
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.badRequest(c, err)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			h.badRequest(c, err)
			return
		}
		contentType := fh.Header.Get("Content-Type")
		iv, err := h.Recorder.UploadRecording(c.Request.Context(), id, data, contentType)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toView(iv))
		return
	}

	var req stopRecordingReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.badRequest(c, err)
			return
		}
	}
	iv, err := h.Recorder.StopRecording(c.Request.Context(), id, req.MediaRef)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(iv))
}

type activityReq struct {
	Code     *string                    `json:"code"`
	Language *string                    `json:"language"`
	Messages []models.TranscriptMessage `json:"messages"`
}

func (h *handler) recordActivity(c *gin.Context) {
	var req activityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	iv, err := h.Interviews.RecordActivity(c.Request.Context(), c.Param("id"), interview.Activity{
		Code:     req.Code,
		Language: req.Language,
		Messages: req.Messages,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         iv.Status,
		"last_active_at": iv.LastActiveAt,
	})
}

func (h *handler) cancelInterview(c *gin.Context) {
	iv, err := h.Interviews.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(iv))
}

func (h *handler) completeInterview(c *gin.Context) {
	if h.Completer == nil {
		h.writeError(c, fmt.Errorf("server: completion is not configured"))
		return
	}
	res, err := h.Completer.TriggerCompletion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) getEvaluation(c *gin.Context) {
	res, err := h.Evaluations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
