package evaluate

import (
	"bufio"
	"strings"
)

var (
	preScreeningKeywords = []string{"availability", "notice period", "salary", "location", "visa", "authorization", "relocate", "travel", "interested", "why", "motivation"}
	technicalKeywords    = []string{"experience", "worked", "architect", "deploy", "difference", "manage", "technical", "programming", "coding", "algorithm", "database", "system"}
)

// CustomQuestions are recruiter supplied questions grouped by when they
// should be asked.
type CustomQuestions struct {
	PreScreening []string `json:"pre_screening"`
	Technical    []string `json:"technical"`
	General      []string `json:"general"`
}

// ParseQuestions returns the non-blank lines of text.
func ParseQuestions(text string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// CategorizeCustom sorts questions by keyword. Pre-screening keywords win
// over technical ones.
func CategorizeCustom(questions []string) CustomQuestions {
	var cq CustomQuestions
	for _, q := range questions {
		lower := strings.ToLower(q)
		switch {
		case containsAny(lower, preScreeningKeywords):
			cq.PreScreening = append(cq.PreScreening, q)
		case containsAny(lower, technicalKeywords):
			cq.Technical = append(cq.Technical, q)
		default:
			cq.General = append(cq.General, q)
		}
	}
	return cq
}

// All returns every question in category order.
func (c CustomQuestions) All() []string {
	out := make([]string, 0, c.Len())
	out = append(out, c.PreScreening...)
	out = append(out, c.Technical...)
	return append(out, c.General...)
}

func (c CustomQuestions) Len() int {
	return len(c.PreScreening) + len(c.Technical) + len(c.General)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
