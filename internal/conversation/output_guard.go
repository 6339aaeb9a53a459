package conversation

import (
	"regexp"
	"strings"
)

// OutputGuardResult is the verdict of scanning a model reply.
type OutputGuardResult struct {
	// Leaked is true if any pattern fired.
	Leaked bool
	// Reasons lists the detection signals that fired.
	Reasons []string
	// Sanitized is the cleaned reply, or empty when it cannot be salvaged.
	Sanitized string
}

type outputLeakPattern struct {
	re     *regexp.Regexp
	reason string
	block  bool
}

var outputLeakPatterns = []outputLeakPattern{
	{regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`), "leak:system_prompt", true},
	{regexp.MustCompile(`(?i)(here are|these are)\s+(my )?(system )?(instructions|rules|guidelines)`), "leak:rules_listing", true},
	{regexp.MustCompile(`(시스템\s*프롬프트|제\s*지시사항|저의\s*지시사항)(은|는|에\s*따르면)`), "leak:system_prompt_ko", true},
	{regexp.MustCompile(`(?i)(powered by|built on|running on)\s+(Gemini|GPT|OpenAI|Anthropic|Claude|Bedrock|AWS)`), "leak:tech_stack", true},
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token)\s*[:=]\s*\S+`), "leak:credential", true},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "leak:aws_key", true},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis)://\S+`), "leak:database_url", true},
	{regexp.MustCompile(`(?i)/admin/|/internal/|/debug/`), "leak:internal_path", true},
	// Markup the widget renders verbatim. Stripping it keeps the text.
	{regexp.MustCompile(`(?i)</?\s*(script|iframe|style)\b[^>]*>`), "leak:markup", false},
}

var markupPattern = regexp.MustCompile(`(?i)</?\s*(script|iframe|style)\b[^>]*>`)

// ScanOutputForLeaks checks a model reply before it reaches the user.
func ScanOutputForLeaks(reply string) OutputGuardResult {
	if strings.TrimSpace(reply) == "" {
		return OutputGuardResult{Sanitized: reply}
	}

	var reasons []string
	block := false
	for _, p := range outputLeakPatterns {
		if p.re.MatchString(reply) {
			reasons = append(reasons, p.reason)
			block = block || p.block
		}
	}
	if len(reasons) == 0 {
		return OutputGuardResult{Sanitized: reply}
	}

	res := OutputGuardResult{Leaked: true, Reasons: reasons}
	if !block {
		res.Sanitized = strings.TrimSpace(markupPattern.ReplaceAllString(reply, ""))
	}
	return res
}
