package conversation

import "strings"

const (
	longQuestionLen  = 20
	significantWord  = 4
	coverageFraction = 0.6
)

// Covered is a best-effort check that the assistant asked question. Longer
// questions count when at least 60% of their words longer than four
// characters appear in assistantText, so a long question without such words
// always counts. Short ones need an exact substring match.
func Covered(question, assistantText string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	text := strings.ToLower(assistantText)
	if q == "" {
		return false
	}
	if len(q) <= longQuestionLen {
		return strings.Contains(text, q)
	}

	var words []string
	for _, w := range strings.Fields(q) {
		if len(w) > significantWord {
			words = append(words, w)
		}
	}

	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return float64(hits) >= float64(len(words))*coverageFraction
}

// Coverage counts how many questions Covered reports for the log.
func (l *Log) Coverage(questions []string) (covered int, missed []string) {
	text := l.AssistantText()
	for _, q := range questions {
		if Covered(q, text) {
			covered++
		} else {
			missed = append(missed, q)
		}
	}
	return covered, missed
}
