package interview

import (
	"fmt"
	"strings"
)

// Mode selects between a timed interview and a free-form conversation.
type Mode int

const (
	Conversation Mode = iota
	Interview
)

func (m Mode) String() string {
	if m == Interview {
		return "interview"
	}
	return "conversation"
}

// ParseMode accepts "interview" or "conversation".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interview":
		return Interview, nil
	case "conversation", "":
		return Conversation, nil
	default:
		return Conversation, fmt.Errorf("unknown mode %q", s)
	}
}

var (
	interviewExits    = []string{"end interview", "stop interview", "finish interview", "conclude interview"}
	conversationExits = []string{"bye", "goodbye", "exit", "quit", "end analysis", "stop analysis", "finish session"}
)

// ExitPhrases returns the phrases that end a session in mode.
func ExitPhrases(m Mode) []string {
	if m == Interview {
		return interviewExits
	}
	return conversationExits
}

// MatchesExit reports whether transcript contains one of mode's exit phrases,
// ignoring case.
func MatchesExit(m Mode, transcript string) bool {
	text := strings.ToLower(strings.TrimSpace(transcript))
	for _, p := range ExitPhrases(m) {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
