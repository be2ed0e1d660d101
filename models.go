package quizforge

import "time"

// Defaults the model is told to use unless it overrides them per question.
const (
	DefaultPreviewTime = 10
	DefaultAnswerTime  = 30
	DefaultMaxPoints   = 3000
)

// Answer is one selectable option of a question
type Answer struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

// Question represents a single quiz question. Zero timings fall back to the quiz values.
type Question struct {
	Text            string   `json:"text"`
	PreviewTime     int      `json:"previewTime,omitempty"`
	AnswerTime      int      `json:"answerTime,omitempty"`
	MaxPoints       int      `json:"maxPoints,omitempty"`
	CorrectAnswerID string   `json:"correctAnswerId"`
	Explanation     string   `json:"explanation"`
	Answers         []Answer `json:"answers"`
}

// Quiz represents a complete, persisted quiz
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Prompt           string     `json:"prompt"`
	PreviewTime      int        `json:"previewTime"`
	AnswerTime       int        `json:"answerTime"`
	MaxPoints        int        `json:"maxPoints"`
	Questions        []Question `json:"questions"`
	KnowledgeFileKey string     `json:"knowledgeFileKey,omitempty"`
	Owner            string     `json:"owner"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// GenerationRequest represents a request to generate a quiz.
// QuizID is supplied by the caller and doubles as the progress correlation id.
type GenerationRequest struct {
	QuizID       string `json:"quizId" validate:"required"`
	Knowledge    string `json:"knowledge,omitempty"`
	Prompt       string `json:"prompt" validate:"required"`
	NumQuestions int    `json:"numQuestions" validate:"required,gt=0"`
}

// ProgressEvent is one append-only status message for a generation request
type ProgressEvent struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"createdAt"`
}

// QuizAttempt records a finished play-through of a quiz
type QuizAttempt struct {
	ID            string    `json:"id"`
	QuizID        string    `json:"quizId"`
	UserID        string    `json:"userId"`
	Score         int       `json:"score"`
	TotalPossible int       `json:"totalPossible"`
	Answers       []string  `json:"answers"`
	CreatedAt     time.Time `json:"createdAt"`
}
