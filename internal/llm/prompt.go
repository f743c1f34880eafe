package llm

import (
	"fmt"
	"strings"
)

// SummarySystemPrompt frames every summary request
const SummarySystemPrompt = "You summarize retail chat conversations for store staff. Reply with the summary only."

// BuildSummaryPrompt creates the summary prompt for a transcript.
// Without consent the model is told to leave out personal data.
func BuildSummaryPrompt(lines []Line, consent bool) string {
	var transcript strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&transcript, "%s: %s\n", l.Role, strings.TrimSpace(l.Content))
	}

	if consent {
		return fmt.Sprintf(
			"Summarize this customer conversation in 2-3 sentences. Include key preferences and intent signals:\n\n%s",
			strings.TrimRight(transcript.String(), "\n"),
		)
	}
	return fmt.Sprintf(
		"Summarize this customer conversation in 2-3 sentences. Focus on product preferences and intent. "+
			"DO NOT include any personally identifiable information (names, email, phone, addresses):\n\n%s",
		strings.TrimRight(transcript.String(), "\n"),
	)
}

// CleanSummary strips wrapping quotes and a leading "Summary:" label from model output
func CleanSummary(content string) string {
	s := strings.TrimSpace(content)
	if len(s) >= 7 && strings.EqualFold(s[:7], "summary") {
		rest := strings.TrimSpace(s[7:])
		if strings.HasPrefix(rest, ":") {
			s = strings.TrimSpace(rest[1:])
		}
	}
	s = strings.Trim(s, "\"'")
	return strings.TrimSpace(s)
}
