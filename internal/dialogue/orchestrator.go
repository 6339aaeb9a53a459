package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/consult-funnel/internal/observability/metrics"
	"github.com/wolfman30/consult-funnel/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultGeneratorTimeout = 10 * time.Second

var (
	// ErrSelectionNotExpected is returned when an option is picked outside the
	// image selection stage.
	ErrSelectionNotExpected = errors.New("dialogue: option selection not expected in this stage")
	// ErrOptionAlreadySelected is returned on a second pick.
	ErrOptionAlreadySelected = errors.New("dialogue: option already selected")
	// ErrUnknownOption is returned for a key the scenario does not define.
	ErrUnknownOption = errors.New("dialogue: unknown option")
	// ErrLeadNotExpected is returned when a lead is submitted before conversion.
	ErrLeadNotExpected = errors.New("dialogue: lead submission not expected in this stage")
)

// Reply is what the client renders after a turn.
type Reply struct {
	Text           string               `json:"text"`
	Stage          Stage                `json:"stage"`
	PreviousStage  Stage                `json:"previous_stage"`
	Rule           Rule                 `json:"rule,omitempty"`
	UIHint         UIHint               `json:"ui_hint"`
	QuickReplies   []string             `json:"quick_replies,omitempty"`
	Options        []Option             `json:"options,omitempty"`
	Fallback       bool                 `json:"fallback"`
	Classification ClassificationResult `json:"-"`
}

type orchestratorConfig struct {
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.DialogueMetrics
	tracer  trace.Tracer
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*orchestratorConfig)

// WithGeneratorTimeout bounds each generator call.
func WithGeneratorTimeout(d time.Duration) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithClock overrides the turn timestamp source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithMetrics records turn and generator metrics.
func WithMetrics(m *metrics.DialogueMetrics) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		cfg.metrics = m
	}
}

// WithTracer overrides the default otel tracer.
func WithTracer(tracer trace.Tracer) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if tracer != nil {
			cfg.tracer = tracer
		}
	}
}

// Orchestrator sequences one turn: classify, generate, resolve. It owns no
// business rules of its own and keeps no per-session state.
type Orchestrator struct {
	scenario   *Scenario
	classifier *Classifier
	resolver   *Resolver
	generator  Generator
	logger     *logging.Logger
	cfg        orchestratorConfig
}

// NewOrchestrator wires the core around a generator.
func NewOrchestrator(scenario *Scenario, generator Generator, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if scenario == nil {
		panic("dialogue: scenario cannot be nil")
	}
	if generator == nil {
		panic("dialogue: generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := orchestratorConfig{
		timeout: defaultGeneratorTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("consult.internal.dialogue")
	}

	return &Orchestrator{
		scenario:   scenario,
		classifier: NewClassifier(scenario),
		resolver:   NewResolver(scenario, logger),
		generator:  generator,
		logger:     logger,
		cfg:        cfg,
	}
}

// Scenario returns the scenario the orchestrator runs.
func (o *Orchestrator) Scenario() *Scenario {
	return o.scenario
}

// Greet appends the scenario greeting to an empty transcript.
func (o *Orchestrator) Greet(state *ConversationState) Reply {
	if len(state.History) == 0 {
		state.appendTurn(RoleAgent, strings.TrimSpace(o.scenario.Greeting), o.cfg.now())
	}
	text := ""
	if t, ok := state.LastAgentTurn(); ok {
		text = t.Text
	}
	return o.render(state, state.Stage, text, "", false)
}

// Handle runs one user turn against state and mutates it in place. Generator
// failures never surface here; only an invalid stage does.
func (o *Orchestrator) Handle(ctx context.Context, state *ConversationState, message string) (Reply, error) {
	if state == nil {
		return Reply{}, errors.New("dialogue: state cannot be nil")
	}
	current := state.Stage
	if !current.Valid() {
		return Reply{}, &InvalidStageError{Value: current.String()}
	}

	ctx, span := o.cfg.tracer.Start(ctx, "dialogue.handle", trace.WithAttributes(
		attribute.String("session.id", state.ID),
		attribute.String("dialogue.stage", current.String()),
	))
	defer span.End()

	logger := o.logger.WithSession(state.ID)

	state.appendTurn(RoleUser, message, o.cfg.now())
	cls := o.classifier.Classify(message, current)
	if !cls.IsNoise {
		state.Profile = o.scenario.Qualify(state.Profile, message)
	}

	gen, genErr := o.generate(ctx, GenerationRequest{
		SessionID:      state.ID,
		Stage:          current,
		History:        state.Turns(),
		Message:        message,
		SelectedOption: state.SelectedOption,
		RepeatCounter:  state.RepeatCounter,
		Noise:          cls.IsNoise,
	})
	fallback := false
	if genErr != nil {
		fallback = true
		reason := "error"
		if errors.Is(genErr, context.DeadlineExceeded) {
			reason = "timeout"
		}
		span.RecordError(genErr)
		logger.Warn("dialogue: generator unavailable, using fallback",
			"stage", current.String(),
			"reason", reason,
			"error", fmt.Errorf("%w: %w", ErrGeneratorUnavailable, genErr),
		)
		o.cfg.metrics.ObserveGeneratorFailure(current.String(), reason)
		gen = Generation{Reply: o.generator.Fallback(current)}
	}

	decision, err := o.resolver.Resolve(current, cls, gen.ProposedStage, state.RepeatCounter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}

	text := gen.Reply
	if decision.Advanced(current) && !proposes(gen, decision.Stage) {
		// The reply was written for the stage we just left.
		text = o.generator.Fallback(decision.Stage)
	}

	state.Stage = decision.Stage
	state.RepeatCounter = decision.RepeatCounter
	state.appendTurn(RoleAgent, text, o.cfg.now())

	o.cfg.metrics.ObserveTurn(current.String(), string(decision.Rule))
	if decision.Advanced(current) {
		o.cfg.metrics.ObserveTransition(current.String(), decision.Stage.String())
		logger.Info("dialogue: stage advanced",
			"from", current.String(),
			"to", decision.Stage.String(),
			"rule", string(decision.Rule),
		)
	}
	span.SetAttributes(
		attribute.String("dialogue.next_stage", decision.Stage.String()),
		attribute.String("dialogue.rule", string(decision.Rule)),
		attribute.Bool("dialogue.fallback", fallback),
	)

	reply := o.render(state, current, text, decision.Rule, fallback)
	reply.Classification = cls
	return reply, nil
}

// SelectOption records the picker choice in the image selection stage and
// moves the conversation on to conversion.
func (o *Orchestrator) SelectOption(ctx context.Context, state *ConversationState, key string) (Reply, error) {
	if state == nil {
		return Reply{}, errors.New("dialogue: state cannot be nil")
	}
	current := state.Stage
	if !current.Valid() {
		return Reply{}, &InvalidStageError{Value: current.String()}
	}
	if current != StageImageSelect {
		return Reply{}, ErrSelectionNotExpected
	}
	if state.SelectedOption != nil {
		return Reply{}, ErrOptionAlreadySelected
	}
	opt, ok := o.scenario.Option(key)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}

	_, span := o.cfg.tracer.Start(ctx, "dialogue.select_option", trace.WithAttributes(
		attribute.String("session.id", state.ID),
		attribute.String("dialogue.option", opt.Key),
	))
	defer span.End()

	next, err := NextOf(current)
	if err != nil {
		return Reply{}, err
	}

	now := o.cfg.now()
	selected := opt.Key
	state.SelectedOption = &selected
	state.appendTurn(RoleUser, strings.TrimSpace(opt.Emoji+" "+opt.Name), now)

	text := optionAnalysis(opt)
	if opener := strings.TrimSpace(o.scenario.Script(next).Fallback); opener != "" {
		text += "\n\n" + opener
	}
	state.Stage = next
	state.RepeatCounter = 0
	state.appendTurn(RoleAgent, text, now)

	o.cfg.metrics.ObserveTransition(current.String(), next.String())
	o.logger.WithSession(state.ID).Info("dialogue: option selected", "option", opt.Key)
	return o.render(state, current, text, "", false), nil
}

// CompleteLead appends the completion message once the lead has been stored.
// It is accepted in conversion and again in complete.
func (o *Orchestrator) CompleteLead(ctx context.Context, state *ConversationState, name, clinic, contact string) (Reply, error) {
	if state == nil {
		return Reply{}, errors.New("dialogue: state cannot be nil")
	}
	current := state.Stage
	if !current.Valid() {
		return Reply{}, &InvalidStageError{Value: current.String()}
	}
	if current != StageConversion && current != StageComplete {
		return Reply{}, ErrLeadNotExpected
	}

	_, span := o.cfg.tracer.Start(ctx, "dialogue.complete_lead", trace.WithAttributes(
		attribute.String("session.id", state.ID),
	))
	defer span.End()

	next, err := NextOf(current)
	if err != nil {
		return Reply{}, err
	}
	text := o.scenario.LeadCompletionText(name, clinic, contact)
	if next != current {
		state.RepeatCounter = 0
		o.cfg.metrics.ObserveTransition(current.String(), next.String())
	}
	state.Stage = next
	state.appendTurn(RoleAgent, text, o.cfg.now())

	return o.render(state, current, text, "", false), nil
}

// View renders the current state without mutating it.
func (o *Orchestrator) View(state *ConversationState) Reply {
	text := ""
	if t, ok := state.LastAgentTurn(); ok {
		text = t.Text
	}
	return o.render(state, state.Stage, text, "", false)
}

func (o *Orchestrator) generate(ctx context.Context, req GenerationRequest) (Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.timeout)
	defer cancel()

	type result struct {
		gen Generation
		err error
	}
	start := time.Now()
	done := make(chan result, 1)
	go func() {
		gen, err := o.generator.Generate(ctx, req)
		done <- result{gen: gen, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}
	if res.err == nil && strings.TrimSpace(res.gen.Reply) == "" {
		res.err = errors.New("dialogue: generator returned empty reply")
	}
	o.cfg.metrics.ObserveGeneratorLatency(req.Stage.String(), res.err == nil, time.Since(start).Seconds())
	if res.err != nil {
		return Generation{}, res.err
	}
	res.gen.Reply = strings.TrimSpace(res.gen.Reply)
	return res.gen, nil
}

func (o *Orchestrator) render(state *ConversationState, previous Stage, text string, rule Rule, fallback bool) Reply {
	hint := HintFor(state, o.scenario)
	reply := Reply{
		Text:          text,
		Stage:         state.Stage,
		PreviousStage: previous,
		Rule:          rule,
		UIHint:        hint,
		Fallback:      fallback,
	}
	switch hint {
	case UIHintQuickReplies, UIHintRestart:
		reply.QuickReplies = append([]string(nil), o.scenario.Script(state.Stage).QuickReplies...)
	case UIHintImagePicker:
		reply.Options = append([]Option(nil), o.scenario.Options...)
	}
	return reply
}

func proposes(gen Generation, stage Stage) bool {
	return gen.ProposedStage != nil && *gen.ProposedStage == stage
}

func optionAnalysis(opt Option) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n%s", opt.Name, opt.Analysis)
	if opt.Symptoms != "" {
		fmt.Fprintf(&b, "\n\n주요 증상: %s", opt.Symptoms)
	}
	if opt.Warning != "" {
		fmt.Fprintf(&b, "\n주의: %s", opt.Warning)
	}
	if score := opt.HealthScore(); score > 0 {
		fmt.Fprintf(&b, "\n건강 점수: %d/100", score)
	}
	return b.String()
}
