package archive

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRe   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	krPhoneRe = regexp.MustCompile(`0[0-9]{1,2}[-.\s]?[0-9]{3,4}[-.\s]?[0-9]{4}`)
	phoneRe   = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// HashContact returns the hex-encoded SHA-256 hash of a phone number or email.
func HashContact(contact string) string {
	contact = strings.ToLower(strings.TrimSpace(contact))
	if contact == "" {
		return ""
	}
	h := sha256.Sum256([]byte(contact))
	return fmt.Sprintf("%x", h)
}

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE].
// Names are kept for context.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = krPhoneRe.ReplaceAllString(text, "[PHONE]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

// ScrubMessages applies PII scrubbing to all messages in-place and reports
// whether anything was replaced.
func ScrubMessages(msgs []Message) bool {
	changed := false
	for i := range msgs {
		scrubbed := ScrubPII(msgs[i].Content)
		if scrubbed != msgs[i].Content {
			changed = true
		}
		msgs[i].Content = scrubbed
	}
	return changed
}
