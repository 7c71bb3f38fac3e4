package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func testResult() ComplianceResult {
	return ComplianceResult{
		CompanyID:        "c-1",
		CompanyName:      "Acme Pvt Ltd",
		GenerationID:     "g-1",
		ComplianceStatus: "medium",
		Score:            72.5,
		ScoredDocuments:  4,
		RecipientEmail:   "founder@acme.test",
	}
}

func TestNotifyComplianceResult_BothChannels(t *testing.T) {
	var sentTo []string
	var published string

	n := NewNotifierWith(
		&MockSESService{SendEmailFunc: func(ctx context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sentTo = in.Destination.ToAddresses
			assert.Equal(t, "noreply@ipo.test", *in.Source)
			assert.Contains(t, *in.Message.Subject.Data, "Acme Pvt Ltd")
			assert.Contains(t, *in.Message.Body.Text.Data, "MEDIUM")
			return &ses.SendEmailOutput{}, nil
		}},
		&MockSNSService{PublishFunc: func(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			assert.Equal(t, "arn:aws:sns:ap-south-1:1:compliance", *in.TopicArn)
			published = *in.Message
			return &sns.PublishOutput{}, nil
		}},
		"noreply@ipo.test", "arn:aws:sns:ap-south-1:1:compliance", logger.NewTestLogger(t),
	)

	require.NoError(t, n.NotifyComplianceResult(context.Background(), testResult()))
	assert.Equal(t, []string{"founder@acme.test"}, sentTo)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(published), &event))
	assert.Equal(t, "medium", event["complianceStatus"])
	assert.NotContains(t, event, "RecipientEmail")
}

func TestNotifyComplianceResult_EmailFailureStillPublishes(t *testing.T) {
	published := false
	n := NewNotifierWith(
		&MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected")
		}},
		&MockSNSService{PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			published = true
			return &sns.PublishOutput{}, nil
		}},
		"noreply@ipo.test", "arn", logger.NewTestLogger(t),
	)

	err := n.NotifyComplianceResult(context.Background(), testResult())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotificationSendFailed))
	assert.True(t, published)
}

func TestNotifyComplianceResult_Disabled(t *testing.T) {
	n := NewNotifierWith(nil, nil, "", "", logger.NewNoOpLogger())
	assert.NoError(t, n.NotifyComplianceResult(context.Background(), testResult()))
}
