package leads

import (
	"strings"
	"time"
)

// Lead is a consultation request captured at the end of a chat session.
type Lead struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	ClinicName     string    `json:"clinic_name"`
	Name           string    `json:"name"`
	Contact        string    `json:"contact"`
	Summary        string    `json:"summary"`
	SelectedOption string    `json:"selected_option,omitempty"`
	HealthScore    int       `json:"health_score,omitempty"`
	Urgency        string    `json:"urgency,omitempty"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateLeadRequest is the flat record handed to a Repository.
type CreateLeadRequest struct {
	SessionID      string `json:"-"`
	ClinicName     string `json:"clinic_name"`
	Name           string `json:"name"`
	Contact        string `json:"contact"`
	Summary        string `json:"-"`
	SelectedOption string `json:"-"`
	HealthScore    int    `json:"-"`
	Urgency        string `json:"urgency"`
	Source         string `json:"source"`
}

// Urgency keys for the "when would you like to start" field of the lead form.
const (
	UrgencyImmediate   = "immediate"
	UrgencyThisMonth   = "this_month"
	UrgencyNextMonth   = "next_month"
	UrgencyResearching = "researching"
)

var urgencyLabels = map[string]string{
	UrgencyImmediate:   "🔥 즉시 (이번 주)",
	UrgencyThisMonth:   "⚡ 빠르게 (이번 달)",
	UrgencyNextMonth:   "📅 검토 중 (다음 달)",
	UrgencyResearching: "💡 정보 수집 단계",
}

// UrgencyOptions lists the accepted urgency keys in display order.
func UrgencyOptions() []string {
	return []string{UrgencyImmediate, UrgencyThisMonth, UrgencyNextMonth, UrgencyResearching}
}

// UrgencyLabel returns the display text for an urgency key, or the key itself
// when it is unknown.
func UrgencyLabel(key string) string {
	if label, ok := urgencyLabels[key]; ok {
		return label
	}
	return key
}

// Normalize trims every free-text field in place.
func (r *CreateLeadRequest) Normalize() {
	r.ClinicName = strings.TrimSpace(r.ClinicName)
	r.Name = strings.TrimSpace(r.Name)
	r.Contact = strings.TrimSpace(r.Contact)
	r.Urgency = strings.ToLower(strings.TrimSpace(r.Urgency))
	r.Source = strings.TrimSpace(r.Source)
	if r.Source == "" {
		r.Source = "chat"
	}
}

// Validate validates the create lead request. The clinic name and urgency are
// optional; an urgency, when given, must be one of UrgencyOptions.
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Contact) == "" {
		return ErrMissingContact
	}
	if u := strings.TrimSpace(r.Urgency); u != "" {
		if _, ok := urgencyLabels[strings.ToLower(u)]; !ok {
			return ErrInvalidUrgency
		}
	}
	return nil
}

// ListFilter pages through leads, newest first.
type ListFilter struct {
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
