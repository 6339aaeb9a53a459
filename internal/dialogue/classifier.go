package dialogue

import (
	"sort"
	"strings"
	"unicode"
)

// minSubstantiveRunes is the shortest answer that can count as substantive.
const minSubstantiveRunes = 2

// ClassificationResult is the classifier's verdict for one message. All
// fields default to false; there is no "unknown" outcome.
type ClassificationResult struct {
	IsNoise              bool
	IsAffirmativeSkip    bool
	HasSubstantiveAnswer bool
}

// Classifier labels raw user messages without any external call. It is safe
// for concurrent use; all of its data is read-only.
type Classifier struct {
	scenario     *Scenario
	filler       map[string]struct{}
	affirmatives map[string]struct{}
	skipPhrases  []string
}

// NewClassifier builds a classifier over the scenario's word lists.
func NewClassifier(scenario *Scenario) *Classifier {
	if scenario == nil {
		panic("dialogue: scenario cannot be nil")
	}
	// Longest first so "no problem" is masked before a shorter overlap.
	phrases := append([]string(nil), scenario.SkipPhrases...)
	sort.SliceStable(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })
	return &Classifier{
		scenario:     scenario,
		filler:       toSet(scenario.Filler),
		affirmatives: toSet(scenario.Affirmatives),
		skipPhrases:  phrases,
	}
}

// Classify labels message in the context of the active stage.
func (c *Classifier) Classify(message string, stage Stage) ClassificationResult {
	text := normalize(strings.ReplaceAll(message, "\u2019", "'"))
	meaningful := meaningfulRunes(text)

	if meaningful == 0 {
		return ClassificationResult{IsNoise: true}
	}

	hasTopic := c.hasTopicKeyword(text, stage)
	affirmative := c.inSet(c.affirmatives, text)

	noise := false
	switch {
	case affirmative:
	case meaningful <= minSubstantiveRunes && c.inSet(c.filler, text):
		noise = true
	case c.hasProfanity(text) && !hasTopic:
		noise = true
	case isKeyboardMash(message) && !hasTopic:
		noise = true
	}

	var res ClassificationResult
	res.IsNoise = noise
	if c.scenario.Skippable(stage) && !noise {
		res.IsAffirmativeSkip = affirmative || c.isSkipPhrase(text)
	}
	res.HasSubstantiveAnswer = !noise && meaningful >= minSubstantiveRunes
	return res
}

// HasTopicKeyword reports whether message mentions the stage's topic.
func (c *Classifier) HasTopicKeyword(message string, stage Stage) bool {
	return c.hasTopicKeyword(normalize(message), stage)
}

func (c *Classifier) hasTopicKeyword(text string, stage Stage) bool {
	return containsAny(text, c.scenario.Script(stage).Topic)
}

// inSet matches the whole message, ignoring surrounding punctuation.
func (c *Classifier) inSet(set map[string]struct{}, text string) bool {
	stripped := strings.TrimFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	_, ok := set[stripped]
	return ok
}

func (c *Classifier) hasProfanity(text string) bool {
	return containsAny(text, c.scenario.Profanity)
}

// isSkipPhrase reports an agreement phrase with nothing around it that negates
// or complains. Every phrase occurrence is masked out first; whatever remains
// must be free of negation words and of the scenario's blocker markers, so
// "잠은 괜찮아요" skips while "괜찮지 않아요" and "I don't feel fine" do not.
func (c *Classifier) isSkipPhrase(text string) bool {
	rest := text
	for _, phrase := range c.skipPhrases {
		rest = strings.ReplaceAll(rest, phrase, " ")
	}
	if rest == text {
		return false
	}
	if containsAny(rest, c.scenario.SkipBlockers) {
		return false
	}
	for _, word := range words(rest) {
		if _, ok := negationWords[word]; ok {
			return false
		}
	}
	return true
}

var negationWords = map[string]struct{}{
	"not":    {},
	"never":  {},
	"nor":    {},
	"cannot": {},
	"안":      {},
}

// words splits on anything that is not a letter, digit or apostrophe.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, v := range in {
		out[v] = struct{}{}
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func meaningfulRunes(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// isKeyboardMash flags a message made only of mash tokens: three or more
// lowercase latin letters with no vowel ("ksjdf") or three or more bare Hangul
// jamo ("ㅁㄴㅇㄹ"). All-caps tokens such as "PTSD" are abbreviations, not mash.
func isKeyboardMash(message string) bool {
	tokens := words(message)
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !isMashToken(tok) {
			return false
		}
	}
	return true
}

func isMashToken(tok string) bool {
	latin, jamo, upper := 0, 0, 0
	for _, r := range tok {
		switch {
		case r >= 'A' && r <= 'Z':
			upper++
			fallthrough
		case r >= 'a' && r <= 'z':
			if strings.ContainsRune("aeiouy", unicode.ToLower(r)) {
				return false
			}
			latin++
		case r >= 0x3131 && r <= 0x318E:
			jamo++
		default:
			return false
		}
	}
	switch {
	case jamo > 0 && latin > 0:
		return false
	case jamo >= 3:
		return true
	case latin >= 3:
		return upper < latin
	}
	return false
}
