package conversation

import (
	"context"
	"strings"

	"github.com/wolfman30/consult-funnel/internal/dialogue"
)

// RulesGenerator is a deterministic dialogue.Generator built only from the
// scenario's canned text. It needs no network and never fails, which makes it
// the generator of last resort and the default in tests.
type RulesGenerator struct {
	scenario   *dialogue.Scenario
	classifier *dialogue.Classifier
}

var _ dialogue.Generator = (*RulesGenerator)(nil)

func NewRulesGenerator(scenario *dialogue.Scenario) *RulesGenerator {
	if scenario == nil {
		panic("conversation: scenario cannot be nil")
	}
	return &RulesGenerator{
		scenario:   scenario,
		classifier: dialogue.NewClassifier(scenario),
	}
}

// Generate proposes an advance when the message talks about the stage's topic
// and otherwise asks the next variant of the stage question. Stages that end in
// a picker or a form never advance on text.
func (g *RulesGenerator) Generate(_ context.Context, req dialogue.GenerationRequest) (dialogue.Generation, error) {
	stage := req.Stage
	if req.Noise {
		return dialogue.Generation{Reply: g.Fallback(stage), ProposedStage: dialogue.Propose(stage)}, nil
	}

	if advancesOnText(stage) && g.classifier.HasTopicKeyword(req.Message, stage) {
		next, err := dialogue.NextOf(stage)
		if err != nil {
			return dialogue.Generation{}, err
		}
		return dialogue.Generation{Reply: g.opener(next), ProposedStage: dialogue.Propose(next)}, nil
	}

	return dialogue.Generation{Reply: g.variant(stage, req.RepeatCounter), ProposedStage: dialogue.Propose(stage)}, nil
}

// Fallback returns the scenario's canned reply for stage.
func (g *RulesGenerator) Fallback(stage dialogue.Stage) string {
	return g.scenario.Script(stage).Fallback
}

func (g *RulesGenerator) opener(stage dialogue.Stage) string {
	replies := g.scenario.Script(stage).Replies
	if len(replies) > 0 && strings.TrimSpace(replies[0]) != "" {
		return replies[0]
	}
	return g.Fallback(stage)
}

// variant rotates through the stage replies so a held stage does not repeat
// the same question word for word.
func (g *RulesGenerator) variant(stage dialogue.Stage, repeat int) string {
	replies := g.scenario.Script(stage).Replies
	if len(replies) == 0 {
		return g.Fallback(stage)
	}
	if repeat < 0 {
		repeat = 0
	}
	if text := strings.TrimSpace(replies[repeat%len(replies)]); text != "" {
		return text
	}
	return g.Fallback(stage)
}

func advancesOnText(stage dialogue.Stage) bool {
	switch stage {
	case dialogue.StageImageSelect, dialogue.StageConversion, dialogue.StageComplete:
		return false
	}
	return true
}
