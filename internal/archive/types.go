package archive

import "time"

// Outcomes recorded for an archived consultation.
const (
	OutcomeLeadSubmitted = "lead_submitted"
	OutcomeReset         = "reset"
)

// TranscriptRecord is the document archived to S3 for each finished
// consultation.
type TranscriptRecord struct {
	Version         string    `json:"version"` // "1.0"
	SessionID       string    `json:"session_id"`
	ContactHash     string    `json:"contact_hash,omitempty"` // sha256 of the lead contact
	ArchivedAt      time.Time `json:"archived_at"`
	DurationSeconds int       `json:"duration_seconds"`
	MessageCount    int       `json:"message_count"`
	Outcome         string    `json:"outcome"`
	FinalStage      string    `json:"final_stage"`
	SelectedOption  string    `json:"selected_option,omitempty"`
	Labels          Labels    `json:"labels"`
	Messages        []Message `json:"messages"`
}

// Labels are computed locally when the transcript is archived.
type Labels struct {
	Category    string `json:"category"` // converted|reached_conversion|dropped_early
	UserTurns   int    `json:"user_turns"`
	ContainsPII bool   `json:"contains_pii"`
}

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	SessionID    string `json:"session_id"`
	S3Key        string `json:"s3_key"`
	Category     string `json:"category"`
	FinalStage   string `json:"final_stage"`
	ArchivedAt   string `json:"archived_at"`
	MessageCount int    `json:"message_count"`
	Outcome      string `json:"outcome"`
}
