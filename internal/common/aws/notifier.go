// Package aws delivers compliance result notifications through SES and SNS.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ipo-compliance/internal/common/config"
	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SESService is the part of the SES client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the part of the SNS client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// ComplianceResult is the payload announced once a company's final tier is written.
type ComplianceResult struct {
	CompanyID        string    `json:"companyId"`
	CompanyName      string    `json:"companyName"`
	GenerationID     string    `json:"generationId"`
	ComplianceStatus string    `json:"complianceStatus"`
	Score            float64   `json:"score"`
	ScoredDocuments  int       `json:"scoredDocuments"`
	RecipientEmail   string    `json:"-"`
	CompletedAt      time.Time `json:"completedAt"`
}

// Notifier sends the owner an email and publishes a compliance event.
type Notifier struct {
	ses       SESService
	sns       SNSService
	fromEmail string
	topicARN  string
	logger    logger.Logger
}

// NewNotifier builds SES/SNS clients for the enabled channels. With no channel enabled it
// returns a notifier that does nothing.
func NewNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{logger: log.WithFields(map[string]interface{}{"component": "notifier"})}
	if !cfg.Email.Enabled && !cfg.SNS.Enabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.Email.Enabled {
		n.ses = ses.NewFromConfig(awsCfg)
		n.fromEmail = cfg.Email.FromEmail
	}
	if cfg.SNS.Enabled {
		n.sns = sns.NewFromConfig(awsCfg)
		n.topicARN = cfg.SNS.TopicARN
	}
	return n, nil
}

// NewNotifierWith wires explicit clients; a nil client disables its channel.
func NewNotifierWith(sesClient SESService, snsClient SNSService, fromEmail, topicARN string, log logger.Logger) *Notifier {
	return &Notifier{ses: sesClient, sns: snsClient, fromEmail: fromEmail, topicARN: topicARN, logger: log}
}

// NotifyComplianceResult sends on every enabled channel. Both channels are attempted; the
// first failure is returned.
func (n *Notifier) NotifyComplianceResult(ctx context.Context, result ComplianceResult) error {
	var firstErr error

	if n.ses != nil && result.RecipientEmail != "" {
		if err := n.sendEmail(ctx, result); err != nil {
			n.logger.Error("compliance email failed", map[string]interface{}{"error": err, "companyId": result.CompanyID})
			firstErr = apperrors.NewNotificationSendFailedError("email", err)
		}
	}

	if n.sns != nil {
		if err := n.publish(ctx, result); err != nil {
			n.logger.Error("compliance event publish failed", map[string]interface{}{"error": err, "companyId": result.CompanyID})
			if firstErr == nil {
				firstErr = apperrors.NewNotificationSendFailedError("sns", err)
			}
		}
	}

	return firstErr
}

func (n *Notifier) sendEmail(ctx context.Context, result ComplianceResult) error {
	subject := fmt.Sprintf("Compliance review complete: %s", displayName(result))
	body := fmt.Sprintf(
		"The compliance review for %s has finished.\n\nCompliance tier: %s\nOverall score: %.2f\nDocuments scored: %d\n",
		displayName(result), strings.ToUpper(result.ComplianceStatus), result.Score, result.ScoredDocuments,
	)

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{result.RecipientEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.fromEmail),
	})
	return err
}

func (n *Notifier) publish(ctx context.Context, result ComplianceResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("compliance.completed"),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"complianceStatus": {DataType: aws.String("String"), StringValue: aws.String(result.ComplianceStatus)},
		},
	})
	return err
}

func displayName(result ComplianceResult) string {
	if result.CompanyName != "" {
		return result.CompanyName
	}
	return result.CompanyID
}
