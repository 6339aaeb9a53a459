package conversation

import (
	"errors"

	"github.com/wolfman30/consult-funnel/internal/dialogue"
)

var (
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("conversation: session not found")

	// ErrLeadNotExpected is returned when the lead form is submitted before
	// the conversation reaches conversion.
	ErrLeadNotExpected = dialogue.ErrLeadNotExpected

	// ErrReplyBlocked marks a model reply the output guard refused to send.
	// The orchestrator answers with the stage fallback instead.
	ErrReplyBlocked = errors.New("conversation: model reply blocked by output guard")
)
