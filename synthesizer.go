package quizforge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// SynthesisTemperature keeps the model close to deterministic
const SynthesisTemperature = 0.2

// ChatCompleter is the subset of *openai.Client the synthesizer needs
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ParsedAnswer is an answer as returned by the model
type ParsedAnswer struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

// ParsedQuestion is a question as returned by the model
type ParsedQuestion struct {
	Text            string         `json:"text"`
	PreviewTime     int            `json:"previewTime"`
	AnswerTime      int            `json:"answerTime"`
	MaxPoints       int            `json:"maxPoints"`
	CorrectAnswerID string         `json:"correctAnswerId"`
	Explanation     string         `json:"explanation"`
	Answers         []ParsedAnswer `json:"answers"`
}

// ParsedQuiz is the decoded, normalized model reply
type ParsedQuiz struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	PreviewTime int              `json:"previewTime"`
	AnswerTime  int              `json:"answerTime"`
	MaxPoints   int              `json:"maxPoints"`
	Questions   []ParsedQuestion `json:"questions"`
}

// QuizSynthesizer turns a prompt into a ParsedQuiz using a structured-output chat completion
type QuizSynthesizer struct {
	client ChatCompleter
	model  string
}

// NewQuizSynthesizer creates a synthesizer backed by the OpenAI API
func NewQuizSynthesizer(apiKey, model string) *QuizSynthesizer {
	return NewQuizSynthesizerWithClient(openai.NewClient(apiKey), model)
}

// NewQuizSynthesizerWithClient creates a synthesizer over any ChatCompleter
func NewQuizSynthesizerWithClient(client ChatCompleter, model string) *QuizSynthesizer {
	if model == "" {
		model = openai.GPT4o
	}
	return &QuizSynthesizer{client: client, model: model}
}

// Synthesize sends prompt to the model and decodes the reply. There is no retry.
func (qs *QuizSynthesizer) Synthesize(ctx context.Context, prompt string) (*ParsedQuiz, error) {
	transcript := llmLoggerFrom(ctx)
	if transcript != nil {
		transcript.LogLLMRequest("QuizSynthesizer", prompt)
	}

	resp, err := qs.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: qs.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: prompt,
				},
			},
			Temperature: SynthesisTemperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   QuizSchemaName,
					Schema: &QuizSchema,
					Strict: true,
				},
			},
		},
	)
	if err != nil {
		return nil, synthesisError("completion request failed", err)
	}

	if len(resp.Choices) == 0 {
		return nil, synthesisError("no response from model", nil)
	}
	content := resp.Choices[0].Message.Content

	if transcript != nil {
		transcript.LogLLMResponse("QuizSynthesizer", content)
	}
	VerboseLog("Received %d bytes from %s", len(content), qs.model)

	return DecodeQuiz(content)
}

// DecodeQuiz parses model output against QuizSchema, then normalizes and validates it.
func DecodeQuiz(content string) (*ParsedQuiz, error) {
	if !json.Valid([]byte(content)) {
		return nil, synthesisError("invalid JSON", nil)
	}

	var parsed ParsedQuiz
	if err := jsonschema.VerifySchemaAndUnmarshal(QuizSchema, []byte(content), &parsed); err != nil {
		return nil, synthesisError("schema mismatch", err)
	}

	normalizeQuiz(&parsed)
	if err := validateQuiz(&parsed); err != nil {
		return nil, synthesisError("invalid quiz", err)
	}
	return &parsed, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func normalizeQuiz(pq *ParsedQuiz) {
	pq.Title = strings.TrimSpace(pq.Title)
	pq.Description = strings.TrimSpace(pq.Description)
	pq.PreviewTime = positiveOr(pq.PreviewTime, DefaultPreviewTime)
	pq.AnswerTime = positiveOr(pq.AnswerTime, DefaultAnswerTime)
	pq.MaxPoints = positiveOr(pq.MaxPoints, DefaultMaxPoints)

	pq.Questions = lo.Map(pq.Questions, func(q ParsedQuestion, _ int) ParsedQuestion {
		q.Text = strings.TrimSpace(q.Text)
		q.Explanation = strings.TrimSpace(q.Explanation)
		q.CorrectAnswerID = strings.TrimSpace(q.CorrectAnswerID)
		q.PreviewTime = positiveOr(q.PreviewTime, pq.PreviewTime)
		q.AnswerTime = positiveOr(q.AnswerTime, pq.AnswerTime)
		q.MaxPoints = positiveOr(q.MaxPoints, pq.MaxPoints)
		q.Answers = lo.Map(q.Answers, func(a ParsedAnswer, _ int) ParsedAnswer {
			a.ID = strings.TrimSpace(a.ID)
			a.Text = strings.TrimSpace(a.Text)
			a.Message = strings.TrimSpace(a.Message)
			return a
		})
		return q
	})
}

func validateQuiz(pq *ParsedQuiz) error {
	if pq.Title == "" {
		return fmt.Errorf("quiz has no title")
	}
	if len(pq.Questions) == 0 {
		return fmt.Errorf("quiz has no questions")
	}
	for i, q := range pq.Questions {
		if q.Text == "" {
			return fmt.Errorf("question %d has no text", i+1)
		}
		if len(q.Answers) == 0 {
			return fmt.Errorf("question %d has no answers", i+1)
		}
		ids := lo.Map(q.Answers, func(a ParsedAnswer, _ int) string { return a.ID })
		if lo.Contains(ids, "") {
			return fmt.Errorf("question %d has an answer without id", i+1)
		}
		if len(lo.Uniq(ids)) != len(ids) {
			return fmt.Errorf("question %d has duplicate answer ids", i+1)
		}
		if !lo.Contains(ids, q.CorrectAnswerID) {
			return fmt.Errorf("question %d: correct answer %q is not one of %v", i+1, q.CorrectAnswerID, ids)
		}
	}
	return nil
}

// ToQuiz builds the persistent Quiz entity
func (pq *ParsedQuiz) ToQuiz(id, owner, prompt, knowledgeFileKey string) *Quiz {
	return &Quiz{
		ID:          id,
		Title:       pq.Title,
		Description: pq.Description,
		Prompt:      prompt,
		PreviewTime: pq.PreviewTime,
		AnswerTime:  pq.AnswerTime,
		MaxPoints:   pq.MaxPoints,
		Questions: lo.Map(pq.Questions, func(q ParsedQuestion, _ int) Question {
			return Question{
				Text:            q.Text,
				PreviewTime:     q.PreviewTime,
				AnswerTime:      q.AnswerTime,
				MaxPoints:       q.MaxPoints,
				CorrectAnswerID: q.CorrectAnswerID,
				Explanation:     q.Explanation,
				Answers: lo.Map(q.Answers, func(a ParsedAnswer, _ int) Answer {
					return Answer(a)
				}),
			}
		}),
		KnowledgeFileKey: knowledgeFileKey,
		Owner:            owner,
	}
}

type llmLoggerKey struct{}

// WithLLMLogger attaches a transcript logger used by Synthesize
func WithLLMLogger(ctx context.Context, ll *LLMLogger) context.Context {
	return context.WithValue(ctx, llmLoggerKey{}, ll)
}

func llmLoggerFrom(ctx context.Context) *LLMLogger {
	ll, _ := ctx.Value(llmLoggerKey{}).(*LLMLogger)
	return ll
}
