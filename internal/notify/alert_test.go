package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/consult-funnel/internal/leads"
)

func TestLeadAlert_Subject(t *testing.T) {
	tests := []struct {
		name    string
		clinic  string
		urgency string
		want    string
	}{
		{"with clinic", "바른한의원", "", "[도입 상담 신청] 바른한의원 - 김원장"},
		{"without clinic", "  ", leads.UrgencyResearching, "[도입 상담 신청] 김원장"},
		{"immediate", "바른한의원", leads.UrgencyImmediate, "[긴급] [도입 상담 신청] 바른한의원 - 김원장"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := sampleLead()
			lead.ClinicName = tt.clinic
			lead.Urgency = tt.urgency
			assert.Equal(t, tt.want, NewLeadAlert(lead).Subject())
		})
	}
}

func TestLeadAlert_Text(t *testing.T) {
	text := NewLeadAlert(sampleLead()).Text()

	assert.Contains(t, text, "한의원: 바른한의원\n")
	assert.Contains(t, text, "연락처: 010-1234-5678\n")
	assert.Contains(t, text, "도입 시기: ⚡ 빠르게 (이번 달)\n")
	assert.Contains(t, text, "선택한 혀 유형: pale\n")
	assert.Contains(t, text, "건강 점수: 46/100\n")
	assert.Contains(t, text, "접수 시각: 2026-03-01T09:00:00Z\n")
	assert.True(t, strings.HasSuffix(text, "대화 요약:\nstage=conversion turns=12\n"))
}

func TestLeadAlert_TextOmitsEmptyFields(t *testing.T) {
	lead := sampleLead()
	lead.ClinicName = ""
	lead.Urgency = ""
	lead.HealthScore = 0
	lead.Summary = ""
	text := NewLeadAlert(lead).Text()

	assert.NotContains(t, text, "한의원:")
	assert.NotContains(t, text, "도입 시기")
	assert.NotContains(t, text, "건강 점수")
	assert.NotContains(t, text, "대화 요약")
}

func TestLeadAlert_HTMLEscapes(t *testing.T) {
	lead := sampleLead()
	lead.ClinicName = "<b>clinic</b>"
	lead.Summary = "user: <script>alert(1)</script>"

	html, err := NewLeadAlert(lead).HTML()
	require.NoError(t, err)
	assert.NotContains(t, html, "<b>")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;b&gt;clinic&lt;/b&gt;")
	assert.Contains(t, html, "<th align=\"left\">연락처</th><td>010-1234-5678</td>")
}

func TestLeadAlert_ReplyTo(t *testing.T) {
	lead := sampleLead()
	assert.Empty(t, NewLeadAlert(lead).ReplyTo(), "phone numbers are not replyable")

	lead.Contact = " Kim <doc@example.com> "
	assert.Equal(t, "doc@example.com", NewLeadAlert(lead).ReplyTo())
}

func TestStubAlertSender(t *testing.T) {
	sender := NewStubAlertSender(nil)
	assert.NoError(t, sender.SendLeadAlert(context.Background(), []string{"sales@example.com"}, NewLeadAlert(sampleLead())))
}
