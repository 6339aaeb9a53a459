package dialogue

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one message in the transcript. Turns are never edited after they are
// appended to a ConversationState.
type Turn struct {
	Role      Role      `json:"role" dynamodbav:"role"`
	Text      string    `json:"text" dynamodbav:"text"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// Profile collects what the visitor revealed about themselves, keyed by
// qualification field (user_type, pain_point, urgency, objections, ...).
type Profile map[string][]string

func (p Profile) add(field, value string) {
	for _, v := range p[field] {
		if v == value {
			return
		}
	}
	p[field] = append(p[field], value)
}

// Get returns the values recorded for field.
func (p Profile) Get(field string) []string {
	return p[field]
}

// String renders the profile as sorted "field=v1,v2" pairs.
func (p Profile) String() string {
	fields := make([]string, 0, len(p))
	for f := range p {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+"="+strings.Join(p[f], ","))
	}
	return strings.Join(parts, " ")
}

// ConversationState is the whole of one session's dialogue state. It is owned
// by a single session and only mutated by the Orchestrator.
type ConversationState struct {
	ID             string    `json:"id"`
	Stage          Stage     `json:"stage"`
	History        []Turn    `json:"history"`
	SelectedOption *string   `json:"selected_option,omitempty"`
	RepeatCounter  int       `json:"repeat_counter"`
	Profile        Profile   `json:"profile,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewState returns a fresh state in the initial stage.
func NewState(id string, now time.Time) *ConversationState {
	return &ConversationState{
		ID:        id,
		Stage:     Initial(),
		History:   []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Turns returns a copy of the transcript.
func (s *ConversationState) Turns() []Turn {
	out := make([]Turn, len(s.History))
	copy(out, s.History)
	return out
}

// LastAgentTurn returns the most recent agent message, if any.
func (s *ConversationState) LastAgentTurn() (Turn, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAgent {
			return s.History[i], true
		}
	}
	return Turn{}, false
}

// UserTurnCount counts messages sent by the visitor.
func (s *ConversationState) UserTurnCount() int {
	n := 0
	for _, t := range s.History {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// maxTrustLevel caps TrustLevel.
const maxTrustLevel = 100

// TrustLevel grows by ten points per visitor message, up to 100.
func (s *ConversationState) TrustLevel() int {
	trust := s.UserTurnCount() * 10
	if trust > maxTrustLevel {
		return maxTrustLevel
	}
	return trust
}

// Summary renders a short plain-text digest used for lead records.
func (s *ConversationState) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage=%s turns=%d user_turns=%d trust=%d", s.Stage, len(s.History), s.UserTurnCount(), s.TrustLevel())
	if s.SelectedOption != nil {
		fmt.Fprintf(&b, " option=%s", *s.SelectedOption)
	}
	if len(s.Profile) > 0 {
		b.WriteString("\nprofile: ")
		b.WriteString(s.Profile.String())
	}
	for _, t := range s.History {
		if t.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(truncateRunes(text, 120))
	}
	return b.String()
}

func (s *ConversationState) appendTurn(role Role, text string, at time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, Timestamp: at})
	s.UpdatedAt = at
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
