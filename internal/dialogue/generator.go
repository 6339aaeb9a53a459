package dialogue

import (
	"context"
	"errors"
)

// ErrGeneratorUnavailable marks a generator call that failed or timed out. The
// orchestrator absorbs it and answers with the stage fallback instead.
var ErrGeneratorUnavailable = errors.New("dialogue: response generator unavailable")

// GenerationRequest is what the generator sees for one turn. History already
// contains the user's message as its last turn.
type GenerationRequest struct {
	SessionID      string
	Stage          Stage
	History        []Turn
	Message        string
	SelectedOption *string
	RepeatCounter  int
	Noise          bool
}

// Generation is the generator's answer. ProposedStage is nil when the
// generator has no opinion about the next stage.
type Generation struct {
	Reply         string
	ProposedStage *Stage
}

// Generator produces reply text and optionally proposes the next stage. It may
// be a local template engine or a hosted model.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (Generation, error)
	// Fallback returns the canned in-character reply for a stage.
	Fallback(stage Stage) string
}

// Propose is a small helper for generator implementations.
func Propose(stage Stage) *Stage {
	return &stage
}
