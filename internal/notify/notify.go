// Package notify delivers best-effort announcements of finished evaluations
// to Slack, Discord and email.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/proctor/internal/config"
	"github.com/zulandar/proctor/internal/evaluation"
	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single channel delivery.
const DefaultSendTimeout = 10 * time.Second

// Channel is one delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Field is a labelled value in a Message.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Message is the channel-neutral form of an evaluation announcement.
type Message struct {
	Title  string
	Body   string
	Color  string // hex, e.g. "#36a64f"
	Fields []Field
}

// Text renders the message as plain text.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	b.WriteString("\n\n")
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	if m.Body != "" {
		b.WriteString("\n")
		b.WriteString(m.Body)
		b.WriteString("\n")
	}
	return b.String()
}

var recommendationColors = map[string]string{
	evaluation.RecommendHire:     "#36a64f",
	evaluation.RecommendConsider: "#daa038",
	evaluation.RecommendNoHire:   "#a30200",
}

// FormatResult builds the announcement for res.
func FormatResult(res *evaluation.Result) Message {
	msg := Message{
		Title: fmt.Sprintf("Evaluation ready for interview %s", res.InterviewID),
		Body:  res.Decision.Reasoning,
		Color: recommendationColors[res.Decision.Recommendation],
		Fields: []Field{
			{Name: "Recommendation", Value: res.Decision.Recommendation, Short: true},
			{Name: "Overall score", Value: fmt.Sprintf("%.1f/10", res.Decision.OverallScore), Short: true},
		},
	}
	if res.Technical != nil {
		msg.Fields = append(msg.Fields, Field{Name: "Technical", Value: fmt.Sprintf("%.1f/10", res.Technical.Score), Short: true})
	}
	if res.Communication != nil {
		msg.Fields = append(msg.Fields, Field{Name: "Communication", Value: fmt.Sprintf("%.1f/10", res.Communication.Score), Short: true})
	}
	if res.Degraded {
		msg.Title += " (incomplete)"
		msg.Fields = append(msg.Fields, Field{Name: "Degraded", Value: "yes, review manually"})
	}
	if len(res.Decision.NextSteps) > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "Next steps", Value: "- " + strings.Join(res.Decision.NextSteps, "\n- ")})
	}
	return msg
}

// Notifier fans an evaluation out to every configured channel. Deliveries
// run in the background; failures are logged and never returned.
type Notifier struct {
	channels []Channel
	timeout  time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewNotifier returns a Notifier over channels.
func NewNotifier(log *zap.Logger, channels ...Channel) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{channels: channels, timeout: DefaultSendTimeout, log: log}
}

// FromConfig builds a Notifier with a channel for every section of cfg that
// is filled in. With nothing configured the Notifier has no channels.
func FromConfig(ctx context.Context, cfg config.NotifyConfig, log *zap.Logger) (*Notifier, error) {
	var channels []Channel
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlack(cfg.SlackWebhookURL))
	}
	if cfg.DiscordBotToken != "" {
		d, err := NewDiscord(cfg.DiscordBotToken, cfg.DiscordChannelID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, d)
	}
	if cfg.Email.Enabled {
		e, err := NewEmail(ctx, cfg.Email)
		if err != nil {
			return nil, err
		}
		channels = append(channels, e)
	}
	return NewNotifier(log, channels...), nil
}

// Channels returns the configured channel names.
func (n *Notifier) Channels() []string {
	names := make([]string, len(n.channels))
	for i, c := range n.channels {
		names[i] = c.Name()
	}
	return names
}

// EvaluationCompleted announces res on every channel without blocking.
func (n *Notifier) EvaluationCompleted(ctx context.Context, res *evaluation.Result) {
	if len(n.channels) == 0 || res == nil {
		return
	}
	msg := FormatResult(res)
	for _, ch := range n.channels {
		n.wg.Add(1)
		go func(ch Channel) {
			defer n.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
			defer cancel()
			if err := ch.Send(sendCtx, msg); err != nil {
				n.log.Warn("notification failed",
					zap.String("channel", ch.Name()),
					zap.String("interview_id", res.InterviewID),
					zap.Error(err))
				return
			}
			n.log.Debug("notification sent",
				zap.String("channel", ch.Name()),
				zap.String("interview_id", res.InterviewID))
		}(ch)
	}
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
