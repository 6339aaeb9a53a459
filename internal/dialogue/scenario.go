package dialogue

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxRepeatsPerStage bounds how many non-advancing turns a stage may
// absorb before the resolver forces it forward.
const DefaultMaxRepeatsPerStage = 2

//go:embed scenarios/default.yaml
var defaultScenarioYAML []byte

// Scenario is the read-only configuration of one consultation script. It is
// loaded once at startup and shared by every session.
type Scenario struct {
	Name               string                 `yaml:"name"`
	MaxRepeatsPerStage int                    `yaml:"max_repeats_per_stage"`
	Greeting           string                 `yaml:"greeting"`
	Persona            string                 `yaml:"persona"`
	Profanity          []string               `yaml:"profanity"`
	Filler             []string               `yaml:"filler"`
	SkipPhrases        []string               `yaml:"skip_phrases"`
	SkipBlockers       []string               `yaml:"skip_blockers"`
	Affirmatives       []string               `yaml:"affirmatives"`
	SkippableStages    []string               `yaml:"skippable_stages"`
	Stages             map[string]StageScript `yaml:"stages"`
	LeadCompletion     string                 `yaml:"lead_completion"`
	ClinicPlaceholder  string                 `yaml:"clinic_placeholder"`
	Options            []Option               `yaml:"options"`
	Qualification      []QualificationSignal  `yaml:"qualification"`

	scripts   map[Stage]StageScript
	skippable map[Stage]bool
	options   map[string]Option
}

// StageScript holds everything stage-specific: topic keywords for the
// classifier, instructions for a hosted model and canned text for the rules
// engine.
type StageScript struct {
	Topic        []string `yaml:"topic"`
	Instruction  string   `yaml:"instruction"`
	Replies      []string `yaml:"replies"`
	Fallback     string   `yaml:"fallback"`
	QuickReplies []string `yaml:"quick_replies"`
}

// QualificationSignal maps keywords in a visitor message onto one value of a
// lead profile field. Within a field the first matching signal of a message
// wins and replaces the previous value; accumulating fields collect every
// distinct match instead.
type QualificationSignal struct {
	Field      string   `yaml:"field"`
	Value      string   `yaml:"value"`
	Keywords   []string `yaml:"keywords"`
	Accumulate bool     `yaml:"accumulate"`
}

// Option is one entry of the fixed picker shown in the image selection stage.
type Option struct {
	Key      string         `yaml:"key" json:"key"`
	Name     string         `yaml:"name" json:"name"`
	Emoji    string         `yaml:"emoji" json:"emoji,omitempty"`
	Image    string         `yaml:"image" json:"image,omitempty"`
	Analysis string         `yaml:"analysis" json:"analysis"`
	Symptoms string         `yaml:"symptoms" json:"symptoms"`
	Warning  string         `yaml:"warning" json:"warning"`
	Scores   map[string]int `yaml:"scores" json:"scores,omitempty"`
}

// HealthScore is the mean of the option's scores, or 0 when it has none.
func (o Option) HealthScore() int {
	if len(o.Scores) == 0 {
		return 0
	}
	total := 0
	for _, v := range o.Scores {
		total += v
	}
	return total / len(o.Scores)
}

// DefaultScenario parses the embedded scenario.
func DefaultScenario() (*Scenario, error) {
	return ParseScenario(defaultScenarioYAML)
}

// MustDefaultScenario panics if the embedded scenario is broken.
func MustDefaultScenario() *Scenario {
	sc, err := DefaultScenario()
	if err != nil {
		panic(err)
	}
	return sc
}

// LoadScenario reads a scenario from disk. An empty path yields the default.
func LoadScenario(path string) (*Scenario, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultScenario()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dialogue: read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("dialogue: decode scenario: %w", err)
	}
	if err := sc.compile(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) compile() error {
	if sc.MaxRepeatsPerStage <= 0 {
		sc.MaxRepeatsPerStage = DefaultMaxRepeatsPerStage
	}

	sc.scripts = make(map[Stage]StageScript, len(sc.Stages))
	for name, script := range sc.Stages {
		stage, err := ParseStage(name)
		if err != nil {
			return fmt.Errorf("dialogue: scenario stages: %w", err)
		}
		script.Topic = normalizeList(script.Topic)
		sc.scripts[stage] = script
	}
	for _, stage := range Stages() {
		if strings.TrimSpace(sc.scripts[stage].Fallback) == "" {
			return fmt.Errorf("dialogue: scenario stage %s has no fallback reply", stage)
		}
	}

	sc.skippable = make(map[Stage]bool, len(sc.SkippableStages))
	for _, name := range sc.SkippableStages {
		stage, err := ParseStage(name)
		if err != nil {
			return fmt.Errorf("dialogue: scenario skippable_stages: %w", err)
		}
		sc.skippable[stage] = true
	}

	sc.options = make(map[string]Option, len(sc.Options))
	for _, opt := range sc.Options {
		if opt.Key == "" {
			return errors.New("dialogue: scenario option without key")
		}
		if _, dup := sc.options[opt.Key]; dup {
			return fmt.Errorf("dialogue: duplicate scenario option %q", opt.Key)
		}
		sc.options[opt.Key] = opt
	}

	for i, sig := range sc.Qualification {
		sig.Field = strings.TrimSpace(sig.Field)
		sig.Value = strings.TrimSpace(sig.Value)
		sig.Keywords = normalizeList(sig.Keywords)
		if sig.Field == "" || sig.Value == "" || len(sig.Keywords) == 0 {
			return fmt.Errorf("dialogue: scenario qualification[%d] needs field, value and keywords", i)
		}
		sc.Qualification[i] = sig
	}

	sc.Profanity = normalizeList(sc.Profanity)
	sc.Filler = normalizeList(sc.Filler)
	sc.SkipPhrases = normalizeList(sc.SkipPhrases)
	sc.SkipBlockers = normalizeList(sc.SkipBlockers)
	sc.Affirmatives = normalizeList(sc.Affirmatives)
	return nil
}

// Script returns the configuration for a stage.
func (sc *Scenario) Script(stage Stage) StageScript {
	return sc.scripts[stage]
}

// Skippable reports whether the stage has a yes/no framing that an
// agreement phrase can close.
func (sc *Scenario) Skippable(stage Stage) bool {
	return sc.skippable[stage]
}

// Option looks up a picker entry by key.
func (sc *Scenario) Option(key string) (Option, bool) {
	opt, ok := sc.options[key]
	return opt, ok
}

// Qualify folds the qualification signals found in message into profile and
// returns it. A nil profile is allocated on the first match.
func (sc *Scenario) Qualify(profile Profile, message string) Profile {
	text := normalize(message)
	if text == "" {
		return profile
	}
	matched := make(map[string]bool)
	for _, sig := range sc.Qualification {
		if !containsAny(text, sig.Keywords) {
			continue
		}
		if profile == nil {
			profile = make(Profile)
		}
		if sig.Accumulate {
			profile.add(sig.Field, sig.Value)
			continue
		}
		if matched[sig.Field] {
			continue
		}
		matched[sig.Field] = true
		profile[sig.Field] = []string{sig.Value}
	}
	return profile
}

// LeadCompletionText fills the completion template with the lead's details.
// A blank clinic falls back to the scenario's placeholder; without one, lines
// that mention the clinic are dropped.
func (sc *Scenario) LeadCompletionText(name, clinic, contact string) string {
	clinic = strings.TrimSpace(clinic)
	if clinic == "" {
		clinic = strings.TrimSpace(sc.ClinicPlaceholder)
	}
	tmpl := sc.LeadCompletion
	if clinic == "" {
		lines := strings.Split(tmpl, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if !strings.Contains(line, "{clinic}") {
				kept = append(kept, line)
			}
		}
		tmpl = strings.Join(kept, "\n")
	}
	r := strings.NewReplacer("{name}", name, "{clinic}", clinic, "{contact}", contact)
	return strings.TrimSpace(r.Replace(tmpl))
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = normalize(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// normalize lowercases and collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
