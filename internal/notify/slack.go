package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

// maxRetries is the max number of retries for rate-limited webhook posts.
const maxRetries = 3

// Slack posts to an incoming webhook.
type Slack struct {
	url  string
	post func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error
}

// NewSlack returns a Slack channel for the webhook url.
func NewSlack(url string) *Slack {
	return &Slack{url: url, post: slackapi.PostWebhookContext}
}

func (s *Slack) Name() string { return "slack" }

// Send posts msg as a single attachment.
func (s *Slack) Send(ctx context.Context, msg Message) error {
	payload := &slackapi.WebhookMessage{
		Text:        msg.Title,
		Attachments: []slackapi.Attachment{toAttachment(msg)},
	}
	err := retryOnRateLimit(ctx, func() error {
		return s.post(ctx, s.url, payload)
	})
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

func toAttachment(msg Message) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    msg.Title,
		Text:     msg.Body,
		Color:    msg.Color,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit
// errors, honouring RetryAfter.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
