// Package evaluate wraps the language model calls made around an interview:
// question generation before it starts and transcript evaluation after it
// ends. Failures here never stop a session.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCollaborator marks a failed or unusable model response.
var ErrCollaborator = errors.New("evaluation collaborator error")

type TechnicalQuestion struct {
	Category   string `json:"category"`
	Question   string `json:"question"`
	Difficulty string `json:"difficulty,omitempty"`
	FollowUp   string `json:"follow_up,omitempty"`
}

type ProjectQuestion struct {
	Project  string `json:"project"`
	Question string `json:"question"`
	FollowUp string `json:"follow_up,omitempty"`
}

type BehavioralQuestion struct {
	Category string `json:"category"`
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

// QuestionSet is the generated question bank for one job and resume pair.
type QuestionSet struct {
	Technical  []TechnicalQuestion  `json:"technical_questions"`
	Project    []ProjectQuestion    `json:"project_questions"`
	Behavioral []BehavioralQuestion `json:"behavioral_questions"`
}

// Validate rejects sets with no usable question.
func (q QuestionSet) Validate() error {
	n := 0
	for _, t := range q.Technical {
		if strings.TrimSpace(t.Question) != "" {
			n++
		}
	}
	for _, p := range q.Project {
		if strings.TrimSpace(p.Question) != "" {
			n++
		}
	}
	for _, b := range q.Behavioral {
		if strings.TrimSpace(b.Question) != "" {
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("%w: question set has no questions", ErrCollaborator)
	}
	return nil
}

// Categories returns the distinct technical categories in order of first use.
func (q QuestionSet) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range q.Technical {
		c := strings.TrimSpace(t.Category)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// FallbackQuestions is used whenever generation fails.
func FallbackQuestions() QuestionSet {
	return QuestionSet{
		Technical: []TechnicalQuestion{
			{Category: "General", Question: "Walk me through your most challenging technical project", Difficulty: "medium"},
			{Category: "Problem Solving", Question: "How do you approach debugging complex issues?", Difficulty: "medium"},
		},
		Project: []ProjectQuestion{
			{Project: "Recent Project", Question: "What was the most challenging aspect of your recent project?", FollowUp: "How did you overcome it?"},
		},
		Behavioral: []BehavioralQuestion{
			{Category: "Teamwork", Question: "Describe a time you had to work with a difficult team member", Context: "General"},
		},
	}
}

// Assessment is one scored section of a report. Scores look like "7/10".
type Assessment struct {
	Score           string `json:"score"`
	Feedback        string `json:"feedback,omitempty"`
	FeedbackSummary string `json:"feedback_summary,omitempty"`
}

// Metadata describes how a report was produced.
type Metadata struct {
	Timestamp       time.Time `json:"timestamp"`
	EvaluationType  string    `json:"evaluation_type"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
}

// InterviewInfo is attached by the caller before a report is saved.
type InterviewInfo struct {
	Date            time.Time `json:"date"`
	PlannedMinutes  int       `json:"planned_duration_minutes"`
	Voice           string    `json:"voice"`
	Exchanges       int       `json:"total_exchanges"`
	FinalPhase      string    `json:"final_phase"`
	SessionID       string    `json:"session_id"`
	CustomCovered   int       `json:"custom_questions_covered"`
	CustomQuestions int       `json:"custom_questions_total"`
}

// Report is the structured evaluation of one interview.
type Report struct {
	Overall       Assessment     `json:"overall_assessment"`
	Technical     Assessment     `json:"technical_competency"`
	Communication Assessment     `json:"communication_assessment"`
	Metadata      Metadata       `json:"evaluation_metadata"`
	Interview     *InterviewInfo `json:"interview_metadata,omitempty"`
}

// Validate rejects reports missing any section score.
func (r *Report) Validate() error {
	var errs []error
	if r.Overall.Score == "" {
		errs = append(errs, errors.New("missing overall score"))
	}
	if r.Technical.Score == "" {
		errs = append(errs, errors.New("missing technical score"))
	}
	if r.Communication.Score == "" {
		errs = append(errs, errors.New("missing communication score"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCollaborator, errors.Join(errs...))
	}
	return nil
}

// Request is the evaluation input.
type Request struct {
	Transcript string
	Job        string
	Resume     string
	StartedAt  time.Time
}

// Generator produces a question set for a job and resume.
type Generator interface {
	GenerateQuestions(ctx context.Context, job, resume string) (QuestionSet, error)
}

// Evaluator scores a finished interview transcript.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (*Report, error)
}
