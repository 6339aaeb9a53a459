package dialogue

import (
	"fmt"
	"strings"
)

// Stage is a point in the fixed consultation sequence.
type Stage int

const (
	StageInitial Stage = iota
	StageSymptomExplore
	StageSleepCheck
	StageDigestionCheck
	StageImageSelect
	StageConversion
	StageComplete
)

var stageNames = [...]string{
	StageInitial:        "initial",
	StageSymptomExplore: "symptom_explore",
	StageSleepCheck:     "sleep_check",
	StageDigestionCheck: "digestion_check",
	StageImageSelect:    "image_select",
	StageConversion:     "conversion",
	StageComplete:       "complete",
}

// InvalidStageError reports a stage value outside the known set. It signals a
// programming error and is never recovered by the orchestrator.
type InvalidStageError struct {
	Value string
}

func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("dialogue: invalid stage %q", e.Value)
}

// Stages returns every stage in traversal order.
func Stages() []Stage {
	out := make([]Stage, 0, len(stageNames))
	for i := range stageNames {
		out = append(out, Stage(i))
	}
	return out
}

// Initial returns the stage every conversation starts in.
func Initial() Stage {
	return StageInitial
}

// NextOf returns the stage after s, or s itself when s is terminal.
func NextOf(s Stage) (Stage, error) {
	if !s.Valid() {
		return s, &InvalidStageError{Value: s.String()}
	}
	if s == StageComplete {
		return s, nil
	}
	return s + 1, nil
}

// Valid reports whether s is a member of the enum.
func (s Stage) Valid() bool {
	return s >= StageInitial && s <= StageComplete
}

// Terminal reports whether s has no outgoing edge.
func (s Stage) Terminal() bool {
	return s == StageComplete
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage maps a wire name (as used in stage tags and config) onto a Stage.
func ParseStage(name string) (Stage, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range stageNames {
		if n == key {
			return Stage(i), nil
		}
	}
	return 0, &InvalidStageError{Value: name}
}

// MarshalText encodes the stage by name so persisted state stays readable.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &InvalidStageError{Value: s.String()}
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
