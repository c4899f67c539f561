package channel

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client the email sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type EmailSender struct {
	client           SESAPI
	fromAddress      string
	fromName         string
	configurationSet string
}

// NewEmailSender uses static credentials when configured and the default AWS
// chain otherwise.
func NewEmailSender(ctx context.Context, cfg config.EmailConfig) (*EmailSender, error) {
	if cfg.FromAddress == "" {
		return nil, errors.InvalidInput("channels.email.from_address is required")
	}
	region := cfg.Region
	if region == "" {
		region = config.DefaultBedrockRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewEmailSenderWithClient(sesv2.NewFromConfig(awsCfg), cfg), nil
}

func NewEmailSenderWithClient(client SESAPI, cfg config.EmailConfig) *EmailSender {
	return &EmailSender{
		client:           client,
		fromAddress:      cfg.FromAddress,
		fromName:         cfg.FromName,
		configurationSet: cfg.ConfigurationSet,
	}
}

func (s *EmailSender) Send(ctx context.Context, out Outbound) (string, error) {
	if out.To == "" {
		return "", errors.InvalidInput("lead has no email address")
	}

	from := s.fromAddress
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}
	to := out.To
	if out.RecipientName != "" {
		to = fmt.Sprintf("%s <%s>", out.RecipientName, out.To)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(replySubject(out.Subject)), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(out.Content), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("workspace_id"), Value: aws.String(tagValue(out.WorkspaceID))},
			{Name: aws.String("draft_id"), Value: aws.String(tagValue(out.DraftID))},
			{Name: aws.String("source"), Value: aws.String("autosend")},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(result.MessageId), nil
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: your message"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// tagValue keeps SES message tag values within the allowed character set.
func tagValue(s string) string {
	if s == "" {
		return "none"
	}
	s = tagUnsafe.ReplaceAllString(s, "_")
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
