package dialogue

import (
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// Rule names the resolver branch that produced a Decision.
type Rule string

const (
	RuleNoise     Rule = "noise"
	RuleSkip      Rule = "skip"
	RuleForced    Rule = "forced"
	RuleGenerator Rule = "generator"
	RuleHold      Rule = "hold"
)

// Decision is the authoritative outcome of one turn.
type Decision struct {
	Stage         Stage
	RepeatCounter int
	Rule          Rule
}

// Advanced reports whether the decision moved away from current.
func (d Decision) Advanced(current Stage) bool {
	return d.Stage != current
}

// Resolver is the single decision table that moves a conversation between
// stages. It holds no per-session state.
type Resolver struct {
	scenario   *Scenario
	maxRepeats int
	logger     *logging.Logger
}

// NewResolver builds a resolver using the scenario's skippable stages and
// repeat limit.
func NewResolver(scenario *Scenario, logger *logging.Logger) *Resolver {
	if scenario == nil {
		panic("dialogue: scenario cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	maxRepeats := scenario.MaxRepeatsPerStage
	if maxRepeats <= 0 {
		maxRepeats = DefaultMaxRepeatsPerStage
	}
	return &Resolver{scenario: scenario, maxRepeats: maxRepeats, logger: logger}
}

// MaxRepeats returns the forced-advance threshold.
func (r *Resolver) MaxRepeats() int {
	return r.maxRepeats
}

// Resolve computes the next stage and repeat counter. The rules are evaluated
// in order and the first match wins:
//
//  1. noise holds without spending a turn
//  2. a skip phrase in a skippable stage advances
//  3. reaching the repeat limit forces an advance
//  4. a generator proposal of hold or one step forward is accepted
//  5. anything else holds and spends a turn
//
// Only an out-of-enum current stage is an error.
func (r *Resolver) Resolve(current Stage, cls ClassificationResult, proposed *Stage, repeatCounter int) (Decision, error) {
	next, err := NextOf(current)
	if err != nil {
		return Decision{}, err
	}
	if repeatCounter < 0 {
		repeatCounter = 0
	}

	if cls.IsNoise {
		return Decision{Stage: current, RepeatCounter: repeatCounter, Rule: RuleNoise}, nil
	}

	if cls.IsAffirmativeSkip && r.scenario.Skippable(current) {
		return Decision{Stage: next, RepeatCounter: 0, Rule: RuleSkip}, nil
	}

	if repeatCounter >= r.maxRepeats {
		return Decision{Stage: next, RepeatCounter: 0, Rule: RuleForced}, nil
	}

	if proposed != nil {
		p := *proposed
		switch {
		case !p.Valid():
			r.logger.Warn("dialogue: generator proposed unknown stage",
				"current", current.String(),
				"proposed", int(p),
			)
		case p == current:
			return Decision{Stage: current, RepeatCounter: repeatCounter + 1, Rule: RuleGenerator}, nil
		case p == next:
			return Decision{Stage: next, RepeatCounter: 0, Rule: RuleGenerator}, nil
		default:
			r.logger.Warn("dialogue: generator proposed illegal jump",
				"current", current.String(),
				"proposed", p.String(),
			)
		}
	}

	return Decision{Stage: current, RepeatCounter: repeatCounter + 1, Rule: RuleHold}, nil
}
