package conversation

import (
	"regexp"
	"strings"
)

// PromptGuardResult is the verdict of a prompt injection scan.
type PromptGuardResult struct {
	// Blocked is true if the message must not reach the model.
	Blocked bool
	// Score is a heuristic risk score between 0 and 1.
	Score float64
	// Reasons lists the detection signals that fired.
	Reasons []string
}

type promptGuardPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

const (
	blockThreshold = 0.7
	// extraSignalBoost is added per additional pattern that fires.
	extraSignalBoost = 0.1
)

// Attempts to override the consultant's instructions, in English and Korean.
var overridePatterns = []promptGuardPattern{
	{regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "override:ignore_instructions", 0.9},
	{regexp.MustCompile(`(이전|앞의|위의|모든)\s*(지시|명령|규칙|프롬프트)[을를]?\s*(무시|잊어)`), "override:ignore_instructions_ko", 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), "override:role_reassignment", 0.7},
	{regexp.MustCompile(`(지금부터|이제부터)\s*(너는|넌|당신은)`), "override:role_reassignment_ko", 0.7},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "override:new_instructions", 0.9},
	{regexp.MustCompile(`(?i)(pretend|imagine)\s+(that\s+)?you\s+(have|are)\s+no\s+(rules?|restrictions?|limits?|guidelines?)`), "override:no_rules", 0.9},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|god\s*mode`), "override:jailbreak_keyword", 0.9},
}

// Attempts to pull the prompt or configuration out of the model.
var exfiltrationPatterns = []promptGuardPattern{
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat|tell\s+me)\s+(your\s+)?(system\s+prompt|instructions?|initial\s+prompt|hidden\s+prompt)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(시스템\s*프롬프트|지시사항|초기\s*설정)[을를]?\s*(보여|알려|출력|말해)`), "exfiltration:system_prompt_ko", 0.8},
	{regexp.MustCompile(`(?i)\b(api|secret|aws|database|db)\s*(key|token|secret|password|credential)s?\b`), "exfiltration:credentials", 0.8},
	{regexp.MustCompile(`(?i)repeat\s+(everything|all|the\s+text)\s+(above|before|from\s+the\s+(start|beginning))`), "exfiltration:repeat_above", 0.7},
}

// Fake conversation boundaries and model control tokens.
var framePatterns = []promptGuardPattern{
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`), "frame:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`), "frame:role_markers", 0.7},
	{regexp.MustCompile(`(?i)\[\[\s*STAGE\s*:`), "frame:stage_tag", 0.7},
	{regexp.MustCompile(`<\s*(script|iframe|object|embed|svg|form)\b`), "frame:html_injection", 0.6},
}

var allPromptGuardPatterns = func() []promptGuardPattern {
	out := make([]promptGuardPattern, 0, len(overridePatterns)+len(exfiltrationPatterns)+len(framePatterns))
	out = append(out, overridePatterns...)
	out = append(out, exfiltrationPatterns...)
	return append(out, framePatterns...)
}()

// ScanForPromptInjection scores inbound user text. The score is the heaviest
// matching pattern, raised a little for every further signal.
func ScanForPromptInjection(message string) PromptGuardResult {
	if strings.TrimSpace(message) == "" {
		return PromptGuardResult{}
	}

	var reasons []string
	maxWeight := 0.0
	for _, p := range allPromptGuardPatterns {
		if p.re.MatchString(message) {
			reasons = append(reasons, p.reason)
			if p.weight > maxWeight {
				maxWeight = p.weight
			}
		}
	}

	score := maxWeight
	if len(reasons) > 1 {
		score = min(1.0, maxWeight+float64(len(reasons)-1)*extraSignalBoost)
	}
	return PromptGuardResult{
		Blocked: score >= blockThreshold,
		Score:   score,
		Reasons: reasons,
	}
}

var sanitizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`),
	regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`),
	stageTagPattern,
	regexp.MustCompile(`<\s*(script|iframe|object|embed|svg|form)\b[^>]*>`),
}

// SanitizeForLLM strips control markers from a user turn before it is put in
// front of the model. A user cannot forge a stage tag this way.
func SanitizeForLLM(message string) string {
	cleaned := message
	for _, re := range sanitizePatterns {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}
