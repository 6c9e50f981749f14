package sendapplicationnotification

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/notify"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
	sent          []*ses.SendEmailInput
}

func (m *MockSESService) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	m.sent = append(m.sent, input)
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, input)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
	published   []*sns.PublishInput
}

func (m *MockSNSService) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	m.published = append(m.published, input)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, input)
	}
	return &sns.PublishOutput{MessageId: aws.String("sms-1")}, nil
}

func (m *MockSNSService) BuildSMSInput(phone, message string) *sns.PublishInput {
	return &sns.PublishInput{PhoneNumber: aws.String(phone), Message: aws.String(message)}
}

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T, emailOn, smsOn bool, sesSvc *MockSESService, snsSvc *MockSNSService) *Handler {
	sender := notify.NewSender(notify.Config{
		EmailEnabled: emailOn,
		SMSEnabled:   smsOn,
		FromEmail:    "noreply@vanu.in",
	}, sesSvc, snsSvc, logger.NewTestLogger(t))
	h := NewHandler(LoadConfig(0), sender, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC) }
	return h
}

func createTestInput() *Input {
	return &Input{
		ApplicationID: "app-001",
		Collection:    models.CollectionDistrictApplications,
		Email:         "ram@test.com",
		Mobile:        "+919000000000",
		Name:          "Ram Singh",
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name       string
		emailOn    bool
		smsOn      bool
		sesErr     error
		snsErr     error
		mutate     func(*Input)
		wantStatus string
		wantEmails int
		wantSMS    int
	}{
		{name: "email and SMS sent", emailOn: true, smsOn: true, wantStatus: models.NotificationStatusSent, wantEmails: 1, wantSMS: 1},
		{name: "SMS disabled", emailOn: true, wantStatus: models.NotificationStatusSent, wantEmails: 1},
		{name: "both disabled", wantStatus: models.NotificationStatusDisabled},
		{name: "no email address", emailOn: true, smsOn: true, mutate: func(in *Input) { in.Email = "" }, wantStatus: models.NotificationStatusSent, wantSMS: 1},
		{name: "no contact details", emailOn: true, smsOn: true, mutate: func(in *Input) { in.Email, in.Mobile = "", "" }, wantStatus: models.NotificationStatusDisabled},
		{name: "SES failure", emailOn: true, smsOn: true, sesErr: stderrors.New("throttled"), wantStatus: models.NotificationStatusFailed, wantEmails: 1, wantSMS: 1},
		{name: "SNS failure", emailOn: true, smsOn: true, snsErr: stderrors.New("opted out"), wantStatus: models.NotificationStatusFailed, wantEmails: 1, wantSMS: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sesSvc := &MockSESService{}
			if tt.sesErr != nil {
				sesSvc.SendEmailFunc = func(context.Context, *ses.SendEmailInput) (*ses.SendEmailOutput, error) { return nil, tt.sesErr }
			}
			snsSvc := &MockSNSService{}
			if tt.snsErr != nil {
				snsSvc.PublishFunc = func(context.Context, *sns.PublishInput) (*sns.PublishOutput, error) { return nil, tt.snsErr }
			}
			h := newTestHandler(t, tt.emailOn, tt.smsOn, sesSvc, snsSvc)

			input := createTestInput()
			if tt.mutate != nil {
				tt.mutate(input)
			}
			out, err := h.Execute(context.Background(), input)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, out.Status)
			assert.NotEmpty(t, out.NotificationID)
			assert.Equal(t, "2025-04-01T09:30:00Z", out.SentAt)
			assert.Len(t, sesSvc.sent, tt.wantEmails)
			assert.Len(t, snsSvc.published, tt.wantSMS)
		})
	}
}

func TestHandler_Execute_EmailContent(t *testing.T) {
	sesSvc := &MockSESService{}
	h := newTestHandler(t, true, false, sesSvc, nil)

	_, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	require.Len(t, sesSvc.sent, 1)

	in := sesSvc.sent[0]
	assert.Equal(t, "noreply@vanu.in", aws.ToString(in.Source))
	assert.Equal(t, []string{"ram@test.com"}, in.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "Hi Ram Singh")
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "app-001")
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "The Vanu Organic Team")
}

func TestHandler_Execute_RequiresApplicationID(t *testing.T) {
	h := newTestHandler(t, true, true, &MockSESService{}, &MockSNSService{})
	input := createTestInput()
	input.ApplicationID = ""

	_, err := h.Execute(context.Background(), input)
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
}
