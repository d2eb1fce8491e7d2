package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/zulandar/proctor/internal/config"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Email sends plain-text mail through Amazon SES.
type Email struct {
	client sesAPI
	from   string
	to     []string
}

// NewEmail returns an Email channel using the default AWS credential chain.
func NewEmail(ctx context.Context, cfg config.EmailConfig) (*Email, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("email: load aws config: %w", err)
	}
	return &Email{client: ses.NewFromConfig(awsCfg), from: cfg.From, to: cfg.To}, nil
}

func (e *Email) Name() string { return "email" }

// Send mails msg to every recipient in one message.
func (e *Email) Send(ctx context.Context, msg Message) error {
	input := &ses.SendEmailInput{
		Source:      aws.String(e.from),
		Destination: &types.Destination{ToAddresses: e.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Title), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Text()), Charset: aws.String("UTF-8")},
			},
		},
	}
	if _, err := e.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}
