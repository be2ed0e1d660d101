package quizforge

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PipelineState is a step of one generation run
type PipelineState string

const (
	StateReceived           PipelineState = "received"
	StateWarmedUp           PipelineState = "warmed_up"
	StateKnowledgeExtracted PipelineState = "knowledge_extracted"
	StatePromptBuilt        PipelineState = "prompt_built"
	StateSynthesized        PipelineState = "synthesized"
	StateIdentityResolved   PipelineState = "identity_resolved"
	StatePersisted          PipelineState = "persisted"
	StateComplete           PipelineState = "complete"
	StateFailed             PipelineState = "failed"
)

// TextExtractor returns the text of a stored knowledge file
type TextExtractor interface {
	ExtractText(ctx context.Context, ref string) (string, error)
}

// Synthesizer turns a prompt into a decoded quiz
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (*ParsedQuiz, error)
}

// QuizCreator persists a finished quiz
type QuizCreator interface {
	CreateQuiz(ctx context.Context, quiz *Quiz) (*Quiz, error)
}

// QuizGenerator sequences extraction, synthesis and persistence for one request
type QuizGenerator struct {
	extractor   TextExtractor
	synthesizer Synthesizer
	creator     QuizCreator
	notifier    Notifier
	validate    *validator.Validate
	llmLogDir   string
}

// NewQuizGenerator creates a generator. extractor may be nil when knowledge files are not supported.
func NewQuizGenerator(extractor TextExtractor, synthesizer Synthesizer, creator QuizCreator, notifier Notifier) *QuizGenerator {
	return &QuizGenerator{
		extractor:   extractor,
		synthesizer: synthesizer,
		creator:     creator,
		notifier:    notifier,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SetLLMLogDir enables per-quiz model transcripts under dir
func (qg *QuizGenerator) SetLLMLogDir(dir string) {
	qg.llmLogDir = dir
}

// GenerateQuiz runs the pipeline for req on behalf of the identity in ctx.
// On failure no quiz record exists for req.QuizID; progress events already
// published are left in place.
func (qg *QuizGenerator) GenerateQuiz(ctx context.Context, req GenerationRequest) (quiz *Quiz, err error) {
	req.QuizID = strings.TrimSpace(req.QuizID)
	req.Knowledge = strings.TrimSpace(req.Knowledge)

	log := logger.With("quiz_id", req.QuizID)
	state := StateReceived
	advance := func(next PipelineState) {
		state = next
		log.Debugw("pipeline state", "state", state)
	}
	defer func() {
		if err != nil {
			log.Errorw("quiz generation failed", "state", StateFailed, "after", state, "error", err)
		}
	}()

	if verr := qg.validate.Struct(req); verr != nil {
		return nil, validationError("invalid generation request", verr)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, validationError("invalid generation request", errors.New("prompt is blank"))
	}

	if qg.llmLogDir != "" {
		transcript, lerr := NewLLMLogger(qg.llmLogDir, req)
		if lerr != nil {
			log.Warnw("failed to create llm transcript", "error", lerr)
		} else {
			ctx = WithLLMLogger(ctx, transcript)
			defer func() {
				transcript.LogOutcome(err)
				transcript.Close()
			}()
		}
	}

	qg.publish(ctx, req.QuizID, MsgWarmingUp)
	advance(StateWarmedUp)

	knowledge := ""
	if req.Knowledge != "" {
		if qg.extractor == nil {
			return nil, extractionError("knowledge files are not supported")
		}
		qg.publish(ctx, req.QuizID, MsgExtractingKnowledge)
		knowledge, err = qg.extractor.ExtractText(ctx, req.Knowledge)
		if err != nil {
			return nil, err
		}
		advance(StateKnowledgeExtracted)
	}

	prompt := BuildPrompt(knowledge, req.Prompt, req.NumQuestions)
	advance(StatePromptBuilt)

	qg.publish(ctx, req.QuizID, MsgGeneratingQuiz)
	parsed, err := qg.synthesizer.Synthesize(ctx, prompt)
	if err != nil {
		if !errors.Is(err, ErrSynthesis) {
			err = synthesisError("synthesis failed", err)
		}
		return nil, err
	}
	advance(StateSynthesized)
	VerboseLog("Synthesized quiz %q with %d questions", parsed.Title, len(parsed.Questions))

	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, identityError("no caller identity")
	}
	advance(StateIdentityResolved)

	record := parsed.ToQuiz(req.QuizID, id.Subject, req.Prompt, req.Knowledge)
	quiz, err = qg.creator.CreateQuiz(ctx, record)
	if err != nil {
		if !errors.Is(err, ErrPersistence) {
			err = persistenceError("failed to create quiz", err)
		}
		return nil, err
	}
	advance(StatePersisted)

	qg.publish(ctx, req.QuizID, MsgGenerationComplete)
	advance(StateComplete)
	log.Infow("quiz generated", "owner", quiz.Owner, "questions", len(quiz.Questions))
	return quiz, nil
}

// publish is best-effort; failures never abort the pipeline
func (qg *QuizGenerator) publish(ctx context.Context, correlationID, message string) {
	if qg.notifier == nil {
		return
	}
	if err := qg.notifier.Notify(ctx, correlationID, message); err != nil {
		logger.Warnw("progress publish failed", "quiz_id", correlationID, "message", message, "error", err)
	}
}
