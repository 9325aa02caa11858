package interview

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bosley/parley/evaluate"
	"github.com/bosley/parley/phase"
)

const conversationInstructions = `You are a warm, attentive friend having a natural conversation. Always respond in English.
Listen to what the user says and respond to their actual words and tone. Match their energy when they are excited and be gentle when they sound stressed.
Never follow a script. Ask follow-up questions that grow out of their last answer and acknowledge how they feel.
Keep responses brief, around 10 to 15 seconds, and wait for them to finish speaking before you reply. Give them time when they pause.`

var (
	jobTitlePattern  = regexp.MustCompile(`(?i)(?:job title|position)\s*:?\s*([^\n]+)`)
	upperNamePattern = regexp.MustCompile(`^[A-Z][A-Z\s]+$`)
	titleNamePattern = regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}$`)
)

// JobTitle pulls a "Job title:" or "Position:" line out of a job description.
func JobTitle(job string) string {
	if m := jobTitlePattern.FindStringSubmatch(job); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}
	return "the open role"
}

// CandidateFirstName looks for a name in the first five resume lines.
func CandidateFirstName(resume string) string {
	lines := strings.Split(resume, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		fields := strings.Fields(line)
		switch {
		case upperNamePattern.MatchString(line) && len(fields) >= 2:
			first := strings.ToLower(fields[0])
			return strings.ToUpper(first[:1]) + first[1:]
		case titleNamePattern.MatchString(line):
			return fields[0]
		}
	}
	return "Candidate"
}

// Greeting returns morning, afternoon or evening for t.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

// InstructionInput is everything the interview instructions are built from.
type InstructionInput struct {
	Voice     string
	Job       string
	Resume    string
	Minutes   int
	Questions evaluate.QuestionSet
	Custom    evaluate.CustomQuestions
	Now       time.Time
}

// BuildInstructions renders the session instructions for mode.
func BuildInstructions(mode Mode, in InstructionInput) string {
	if mode != Interview {
		return conversationInstructions
	}

	allot := phase.Allotments(in.Minutes)
	voice := in.Voice
	if voice != "" {
		voice = strings.ToUpper(voice[:1]) + voice[1:]
	}
	focus := strings.Join(in.Questions.Categories(), ", ")
	if focus == "" {
		focus = "core technical skills and problem solving"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a professional technical interviewer conducting a %d minute interview for %s. Always speak English.\n\n",
		voice, in.Minutes, JobTitle(in.Job))
	fmt.Fprintf(&b, "Open with: \"Good %s, %s! I'm %s, conducting your %s interview today.\" Then ask for a brief overview of their background.\n\n",
		Greeting(in.Now), CandidateFirstName(in.Resume), voice, JobTitle(in.Job))

	b.WriteString("STRUCTURE:\n")
	fmt.Fprintf(&b, "1. Introduction (%d min): background and motivation.\n", allot[phase.Introduction])
	fmt.Fprintf(&b, "2. Technical (%d min): projects and skills, focusing on %s.\n", allot[phase.Technical], focus)
	fmt.Fprintf(&b, "3. Wrap-up (%d min): invite their questions, thank them and explain next steps.\n\n", allot[phase.WrapUp])

	b.WriteString(formatQuestions(in.Questions))
	b.WriteString("\n")
	b.WriteString(formatCustom(in.Custom))
	b.WriteString("\n")

	b.WriteString("RULES:\n")
	b.WriteString("- Ask one question at a time and wait for the complete answer.\n")
	b.WriteString("- Follow up on what the candidate actually said before moving on.\n")
	b.WriteString("- Keep each turn short. Do not lecture or answer your own questions.\n")
	b.WriteString("- When you receive a system note about a new phase, move to that phase naturally.\n")

	if job := strings.TrimSpace(in.Job); job != "" {
		fmt.Fprintf(&b, "\nJOB DESCRIPTION:\n%s\n", job)
	}
	if resume := strings.TrimSpace(in.Resume); resume != "" {
		fmt.Fprintf(&b, "\nCANDIDATE RESUME:\n%s\n", resume)
	}
	return b.String()
}

func formatQuestions(qs evaluate.QuestionSet) string {
	var b strings.Builder
	if len(qs.Technical) > 0 {
		b.WriteString("TECHNICAL QUESTIONS:\n")
		for i, q := range qs.Technical[:min(len(qs.Technical), 5)] {
			difficulty := q.Difficulty
			if difficulty == "" {
				difficulty = "medium"
			}
			fmt.Fprintf(&b, "%d. [%s] %s (Difficulty: %s)\n", i+1, orDefault(q.Category, "General"), q.Question, difficulty)
			if q.FollowUp != "" {
				fmt.Fprintf(&b, "   Follow-up: %s\n", q.FollowUp)
			}
		}
	}
	if len(qs.Project) > 0 {
		b.WriteString("PROJECT QUESTIONS:\n")
		for i, q := range qs.Project[:min(len(qs.Project), 3)] {
			fmt.Fprintf(&b, "%d. [Project: %s] %s\n", i+1, orDefault(q.Project, "Recent Project"), q.Question)
			if q.FollowUp != "" {
				fmt.Fprintf(&b, "   Follow-up: %s\n", q.FollowUp)
			}
		}
	}
	if len(qs.Behavioral) > 0 {
		b.WriteString("BEHAVIORAL QUESTIONS:\n")
		for i, q := range qs.Behavioral[:min(len(qs.Behavioral), 3)] {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, orDefault(q.Category, "General"), q.Question)
			if q.Context != "" {
				fmt.Fprintf(&b, "   Context: %s\n", q.Context)
			}
		}
	}
	if b.Len() == 0 {
		return "No generated questions are available. Use a general interview approach.\n"
	}
	b.WriteString("Use these as your primary question bank.\n")
	return b.String()
}

func formatCustom(cq evaluate.CustomQuestions) string {
	if cq.Len() == 0 {
		return "No custom recruiter questions were provided.\n"
	}
	var b strings.Builder
	list := func(title string, qs []string) {
		if len(qs) == 0 {
			return
		}
		b.WriteString(title + ":\n")
		for i, q := range qs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
	}
	list("PRE-SCREENING QUESTIONS (ask after the introduction)", cq.PreScreening)
	list("TECHNICAL CUSTOM QUESTIONS (ask during the technical phase)", cq.Technical)
	list("GENERAL CUSTOM QUESTIONS (ask where they fit)", cq.General)
	b.WriteString("These recruiter questions must all be covered.\n")
	return b.String()
}

// phaseNote is the system message sent when the interview moves to p.
func phaseNote(p phase.Phase, minutes int) string {
	switch p {
	case phase.Technical:
		return fmt.Sprintf("The introduction is over. Move to the technical discussion now. You have about %s for it.", minutesText(minutes))
	case phase.WrapUp:
		return fmt.Sprintf("Time is nearly up. Begin wrapping up: ask whether the candidate has questions, then thank them. You have about %s.", minutesText(minutes))
	default:
		return fmt.Sprintf("Move to the %s phase now.", p)
	}
}

func minutesText(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
