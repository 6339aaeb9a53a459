package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNewSESSender_NilWithoutClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{FromEmail: "noreply@example.com"}, nil))
}

func TestSESSender_SendLeadAlert(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "noreply@example.com"}, nil)

	lead := sampleLead()
	lead.Contact = "doc@example.com"
	require.NoError(t, sender.SendLeadAlert(context.Background(), []string{"sales@example.com", "ops@example.com"}, NewLeadAlert(lead)))

	in := api.input
	assert.Equal(t, "AI 상담실장 <noreply@example.com>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"sales@example.com", "ops@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"doc@example.com"}, in.ReplyToAddresses)
	assert.Equal(t, "[도입 상담 신청] 바른한의원 - 김원장", aws.ToString(in.Content.Simple.Subject.Data))

	body := in.Content.Simple.Body
	assert.Contains(t, aws.ToString(body.Text.Data), "도입 시기: ⚡ 빠르게 (이번 달)")
	assert.Contains(t, aws.ToString(body.Html.Data), "<table>")

	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, "kind", aws.ToString(in.EmailTags[0].Name))
	assert.Equal(t, "lead_alert", aws.ToString(in.EmailTags[0].Value))
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "noreply@example.com"}, nil)
	err := sender.SendLeadAlert(context.Background(), []string{"a@example.com"}, NewLeadAlert(sampleLead()))
	assert.ErrorContains(t, err, "throttled")
}
