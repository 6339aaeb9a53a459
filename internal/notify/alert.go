package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/wolfman30/consult-funnel/internal/leads"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

const defaultFromName = "AI 상담실장"

// AlertSender delivers a lead alert to every recipient in one provider call.
// Implementations can be swapped (SendGrid, SES, log only) without changing
// callers.
type AlertSender interface {
	SendLeadAlert(ctx context.Context, recipients []string, alert LeadAlert) error
}

// LeadAlert is the sales-team view of a freshly captured lead.
type LeadAlert struct {
	LeadID         string
	SessionID      string
	ClinicName     string
	Name           string
	Contact        string
	Urgency        string
	SelectedOption string
	HealthScore    int
	Source         string
	Summary        string
	ReceivedAt     time.Time
}

// NewLeadAlert copies the fields a salesperson needs out of a stored lead.
func NewLeadAlert(lead *leads.Lead) LeadAlert {
	alert := LeadAlert{
		LeadID:         lead.ID,
		SessionID:      lead.SessionID,
		ClinicName:     strings.TrimSpace(lead.ClinicName),
		Name:           lead.Name,
		Contact:        lead.Contact,
		SelectedOption: lead.SelectedOption,
		HealthScore:    lead.HealthScore,
		Source:         lead.Source,
		Summary:        lead.Summary,
		ReceivedAt:     lead.CreatedAt.UTC(),
	}
	if lead.Urgency != "" {
		alert.Urgency = leads.UrgencyLabel(lead.Urgency)
	}
	return alert
}

// Urgent reports whether the visitor wants to start this week.
func (a LeadAlert) Urgent() bool {
	return a.Urgency == leads.UrgencyLabel(leads.UrgencyImmediate)
}

// Subject names the clinic when the visitor gave one.
func (a LeadAlert) Subject() string {
	var b strings.Builder
	if a.Urgent() {
		b.WriteString("[긴급] ")
	}
	b.WriteString("[도입 상담 신청] ")
	if a.ClinicName != "" {
		b.WriteString(a.ClinicName)
		b.WriteString(" - ")
	}
	b.WriteString(a.Name)
	return b.String()
}

// ReplyTo returns the visitor's address when the contact is an email, so the
// team can answer straight from the alert.
func (a LeadAlert) ReplyTo() string {
	addr, err := mail.ParseAddress(strings.TrimSpace(a.Contact))
	if err != nil {
		return ""
	}
	return addr.Address
}

type alertField struct {
	Label string
	Value string
}

// fields lists the populated rows in display order.
func (a LeadAlert) fields() []alertField {
	out := make([]alertField, 0, 9)
	add := func(label, value string) {
		if value != "" {
			out = append(out, alertField{Label: label, Value: value})
		}
	}
	add("한의원", a.ClinicName)
	add("성함", a.Name)
	add("연락처", a.Contact)
	add("도입 시기", a.Urgency)
	add("선택한 혀 유형", a.SelectedOption)
	if a.HealthScore > 0 {
		add("건강 점수", fmt.Sprintf("%d/100", a.HealthScore))
	}
	add("유입 경로", a.Source)
	if !a.ReceivedAt.IsZero() {
		add("접수 시각", a.ReceivedAt.Format(time.RFC3339))
	}
	add("세션", a.SessionID)
	return out
}

// Text renders the plain text body.
func (a LeadAlert) Text() string {
	var b strings.Builder
	b.WriteString("새 도입 상담 신청이 접수되었습니다.\n\n")
	for _, f := range a.fields() {
		fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
	}
	if a.Summary != "" {
		fmt.Fprintf(&b, "\n대화 요약:\n%s\n", a.Summary)
	}
	return b.String()
}

var alertHTML = template.Must(template.New("lead_alert").Parse(`<h2>새 도입 상담 신청</h2>
<table>
{{- range .Fields}}
<tr><th align="left">{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- if .Summary}}
<h3>대화 요약</h3>
<pre>{{.Summary}}</pre>
{{- end}}
`))

// HTML renders the HTML body. Every value is escaped by html/template.
func (a LeadAlert) HTML() (string, error) {
	var buf bytes.Buffer
	err := alertHTML.Execute(&buf, struct {
		Fields  []alertField
		Summary string
	}{a.fields(), a.Summary})
	if err != nil {
		return "", fmt.Errorf("notify: render lead alert: %w", err)
	}
	return buf.String(), nil
}

// StubAlertSender logs alerts instead of sending them, for local runs or
// when no provider is configured.
type StubAlertSender struct {
	logger *logging.Logger
}

func NewStubAlertSender(logger *logging.Logger) *StubAlertSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubAlertSender{logger: logger}
}

func (s *StubAlertSender) SendLeadAlert(_ context.Context, recipients []string, alert LeadAlert) error {
	s.logger.Info("stub alert sender: would send lead alert",
		"to", recipients,
		"subject", alert.Subject(),
		"lead_id", alert.LeadID,
	)
	return nil
}
