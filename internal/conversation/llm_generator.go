package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxTokens    int32   = 512
	defaultTemperature  float32 = 0.7
	defaultHistoryLimit         = 20
)

var stageTagPattern = regexp.MustCompile(`\[\[\s*STAGE\s*:\s*([^\]]*?)\s*\]\]`)

// LLMGenerator is a dialogue.Generator backed by a hosted model. The model
// proposes the next stage through a trailing [[STAGE:name]] tag.
type LLMGenerator struct {
	client       LLMClient
	scenario     *dialogue.Scenario
	model        string
	maxTokens    int32
	temperature  float32
	historyLimit int
	logger       *logging.Logger
	tracer       trace.Tracer
}

var _ dialogue.Generator = (*LLMGenerator)(nil)

// LLMGeneratorOption configures an LLMGenerator.
type LLMGeneratorOption func(*LLMGenerator)

// WithModel overrides the client's default model id.
func WithModel(model string) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		g.model = strings.TrimSpace(model)
	}
}

func WithMaxTokens(n int32) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature. Negative values leave the
// provider default.
func WithTemperature(t float32) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		g.temperature = t
	}
}

// WithHistoryLimit caps how many transcript turns are sent to the model.
func WithHistoryLimit(n int) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		if n > 0 {
			g.historyLimit = n
		}
	}
}

func WithGeneratorTracer(tracer trace.Tracer) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// NewLLMGenerator wraps client as a dialogue generator.
func NewLLMGenerator(client LLMClient, scenario *dialogue.Scenario, logger *logging.Logger, opts ...LLMGeneratorOption) *LLMGenerator {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if scenario == nil {
		panic("conversation: scenario cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	g := &LLMGenerator{
		client:       client,
		scenario:     scenario,
		maxTokens:    defaultMaxTokens,
		temperature:  defaultTemperature,
		historyLimit: defaultHistoryLimit,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer("consult.internal.conversation.llm")
	}
	return g
}

// Generate asks the model for the next agent turn.
func (g *LLMGenerator) Generate(ctx context.Context, req dialogue.GenerationRequest) (dialogue.Generation, error) {
	ctx, span := g.tracer.Start(ctx, "conversation.llm_generate", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("dialogue.stage", req.Stage.String()),
	))
	defer span.End()

	log := g.logger.WithSession(req.SessionID)
	if scan := ScanForPromptInjection(req.Message); scan.Blocked {
		log.Warn("conversation: prompt injection blocked",
			"stage", req.Stage.String(),
			"score", scan.Score,
			"reasons", scan.Reasons,
		)
		span.SetAttributes(attribute.Bool("llm.input_blocked", true))
		return dialogue.Generation{Reply: g.Fallback(req.Stage)}, nil
	}

	messages := historyMessages(req.History, g.historyLimit)
	if len(messages) == 0 {
		messages = []ChatMessage{{Role: ChatRoleUser, Content: SanitizeForLLM(req.Message)}}
	}

	resp, err := g.client.Complete(ctx, LLMRequest{
		Model:       g.model,
		System:      buildSystemPrompt(g.scenario, req),
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		span.RecordError(err)
		return dialogue.Generation{}, err
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", int(resp.Usage.InputTokens)),
		attribute.Int("llm.output_tokens", int(resp.Usage.OutputTokens)),
	)

	reply, tag, found := extractStageTag(resp.Text)
	if reply == "" {
		return dialogue.Generation{}, errors.New("conversation: model reply was empty after removing stage tag")
	}
	if guard := ScanOutputForLeaks(reply); guard.Leaked {
		log.Warn("conversation: model reply failed output guard",
			"stage", req.Stage.String(),
			"reasons", guard.Reasons,
		)
		if guard.Sanitized == "" {
			return dialogue.Generation{}, ErrReplyBlocked
		}
		reply = guard.Sanitized
	}

	gen := dialogue.Generation{Reply: reply}
	if found {
		stage, err := dialogue.ParseStage(tag)
		if err != nil {
			log.Warn("conversation: model proposed unknown stage",
				"stage", req.Stage.String(),
				"tag", tag,
			)
		} else {
			gen.ProposedStage = dialogue.Propose(stage)
		}
	}
	return gen, nil
}

// Fallback returns the scenario's canned reply for stage.
func (g *LLMGenerator) Fallback(stage dialogue.Stage) string {
	return g.scenario.Script(stage).Fallback
}

// extractStageTag strips every stage tag from text and returns the name in
// the last one.
func extractStageTag(text string) (reply, stage string, found bool) {
	matches := stageTagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		stage = strings.ToLower(strings.TrimSpace(matches[len(matches)-1][1]))
		found = true
	}
	reply = strings.TrimSpace(stageTagPattern.ReplaceAllString(text, ""))
	return reply, stage, found
}

// historyMessages converts the transcript into provider messages. Providers
// that require alternating roles starting with the user reject a leading
// greeting or two user turns in a row, so leading agent turns are dropped and
// consecutive turns from the same side are merged.
func historyMessages(turns []dialogue.Turn, limit int) []ChatMessage {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		role := ChatRoleUser
		text := t.Text
		if t.Role == dialogue.RoleAgent {
			role = ChatRoleAssistant
		} else {
			text = SanitizeForLLM(text)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if len(out) == 0 && role == ChatRoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = fmt.Sprintf("%s\n\n%s", out[n-1].Content, text)
			continue
		}
		out = append(out, ChatMessage{Role: role, Content: text})
	}
	return out
}
