package quizforge

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLogger writes a per-quiz transcript of the model exchange
type LLMLogger struct {
	file   *os.File
	mu     sync.Mutex
	quizID string
}

// NewLLMLogger creates <dir>/<quizID>.log and writes the request header
func NewLLMLogger(dir string, req GenerationRequest) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, transcriptName(req.QuizID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	ll := &LLMLogger{
		file:   file,
		quizID: req.QuizID,
	}

	ll.Logf("=== Quiz Generation Log ===\n")
	ll.Logf("Quiz ID: %s\n", req.QuizID)
	ll.Logf("Prompt: %s\n", req.Prompt)
	ll.Logf("Number of Questions: %d\n", req.NumQuestions)
	if req.Knowledge != "" {
		ll.Logf("Knowledge File: %s\n", req.Knowledge)
	}
	ll.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	ll.Logf("========================\n\n")

	return ll, nil
}

// transcriptName maps a quiz id to a distinct file name with no path separators
func transcriptName(quizID string) string {
	return url.QueryEscape(quizID) + ".log"
}

// Logf writes a formatted log entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf(format, args...)
}

func (ll *LLMLogger) logf(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs an LLM request
func (ll *LLMLogger) LogLLMRequest(module, prompt string) {
	ll.Logf("=== LLM REQUEST (%s) ===\n", module)
	ll.Logf("Prompt:\n%s\n", prompt)
	ll.Logf("=====================\n\n")
}

// LogLLMResponse logs an LLM response
func (ll *LLMLogger) LogLLMResponse(module, response string) {
	ll.Logf("=== LLM RESPONSE (%s) ===\n", module)
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("======================\n\n")
}

// LogOutcome records how the pipeline ended
func (ll *LLMLogger) LogOutcome(err error) {
	if err != nil {
		ll.Logf("FAILED: %v\n", err)
		return
	}
	ll.Logf("SUCCEEDED\n")
}

// Close closes the log file
func (ll *LLMLogger) Close() error {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.logf("=== Quiz Generation Complete ===\n")
	ll.logf("Completed: %s\n", time.Now().Format(time.RFC3339))
	err := ll.file.Close()
	ll.file = nil
	return err
}
