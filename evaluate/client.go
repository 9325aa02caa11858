package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const (
	DefaultModel = "gpt-4o"

	inputLimitGenerate = 2000
	inputLimitEvaluate = 1000
)

const questionSystemPrompt = "You are an expert technical interviewer who writes challenging, fair and role-appropriate interview questions. Always respond with valid JSON."

const questionPrompt = `Write interview questions for the job and candidate below.

JOB DESCRIPTION:
%s

CANDIDATE RESUME:
%s

Respond with a JSON object with exactly these keys:
{"technical_questions":[{"category":"","question":"","difficulty":"easy|medium|hard","follow_up":""}],
 "project_questions":[{"project":"","question":"","follow_up":""}],
 "behavioral_questions":[{"category":"","question":"","context":""}]}
Provide 5 technical, 3 project and 3 behavioral questions.`

const evaluationSystemPrompt = "You are an expert technical interviewer and communication evaluator. Analyze the interview transcript for a comprehensive assessment."

const evaluationPrompt = `Evaluate the candidate in this interview transcript.

TRANSCRIPT:
%s

JOB DESCRIPTION:
%s

RESUME:
%s

Return ONLY this JSON object. Scores are strings of the form "<1-10>/10".
{"overall_assessment":{"score":"","feedback_summary":""},
 "technical_competency":{"score":"","feedback":""},
 "communication_assessment":{"score":"","feedback":""}}`

type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*config)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// Client implements Generator and Evaluator with chat completions.
type Client struct {
	client oai.Client
	model  string
	log    *slog.Logger
}

// NewClient constructs a Client.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("evaluate: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: 2, log: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{
		client: oai.NewClient(reqOpts...),
		model:  model,
		log:    cfg.log,
	}, nil
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature:         param.NewOpt(0.3),
		MaxCompletionTokens: param.NewOpt(maxTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", ErrCollaborator, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices in response", ErrCollaborator)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateQuestions asks the model for a question bank.
func (c *Client) GenerateQuestions(ctx context.Context, job, resume string) (QuestionSet, error) {
	prompt := fmt.Sprintf(questionPrompt, truncate(job, inputLimitGenerate), truncate(resume, inputLimitGenerate))
	content, err := c.complete(ctx, questionSystemPrompt, prompt, 2000)
	if err != nil {
		return QuestionSet{}, err
	}

	var qs QuestionSet
	if err := decodeJSON(content, &qs); err != nil {
		return QuestionSet{}, err
	}
	if err := qs.Validate(); err != nil {
		return QuestionSet{}, err
	}
	c.log.Info("Generated interview questions",
		"technical", len(qs.Technical),
		"project", len(qs.Project),
		"behavioral", len(qs.Behavioral))
	return qs, nil
}

// Evaluate scores a transcript.
func (c *Client) Evaluate(ctx context.Context, req Request) (*Report, error) {
	prompt := fmt.Sprintf(evaluationPrompt,
		req.Transcript,
		orNotProvided(truncate(req.Job, inputLimitEvaluate)),
		orNotProvided(truncate(req.Resume, inputLimitEvaluate)))
	content, err := c.complete(ctx, evaluationSystemPrompt, prompt, 2500)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := decodeJSON(content, &r); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	r.Metadata = Metadata{Timestamp: now, EvaluationType: "transcript_only"}
	if !req.StartedAt.IsZero() {
		secs := now.Sub(req.StartedAt).Seconds()
		r.Metadata.DurationSeconds = &secs
	}
	return &r, nil
}

// decodeJSON unmarshals a model reply, unwrapping a markdown code fence if
// the model added one.
func decodeJSON(content string, v any) error {
	txt := extractJSON(content)
	if txt == "" {
		return fmt.Errorf("%w: empty response", ErrCollaborator)
	}
	if err := json.Unmarshal([]byte(txt), v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %w", ErrCollaborator, err)
	}
	return nil
}

func extractJSON(content string) string {
	txt := strings.TrimSpace(content)
	if _, after, ok := strings.Cut(txt, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(txt, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	return txt
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not provided"
	}
	return s
}
