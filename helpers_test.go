package quizforge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// sampleQuiz builds a schema-valid model reply with n questions whose correct answer is "b"
func sampleQuiz(n int) ParsedQuiz {
	pq := ParsedQuiz{
		Title:       "Baseball Basics",
		Description: "A quiz about baseball",
		PreviewTime: 10,
		AnswerTime:  30,
		MaxPoints:   3000,
	}
	for i := 0; i < n; i++ {
		pq.Questions = append(pq.Questions, ParsedQuestion{
			Text:            fmt.Sprintf("Question %d?", i+1),
			PreviewTime:     10,
			AnswerTime:      30,
			MaxPoints:       3000,
			CorrectAnswerID: "b",
			Explanation:     "Because.",
			Answers: []ParsedAnswer{
				{ID: "a", Text: "One", Message: "No"},
				{ID: "b", Text: "Two", Message: "Yes"},
				{ID: "c", Text: "Three", Message: "No"},
				{ID: "d", Text: "Four", Message: "No"},
			},
		})
	}
	return pq
}

func sampleQuizJSON(t *testing.T, n int) string {
	t.Helper()
	raw, err := json.Marshal(sampleQuiz(n))
	if err != nil {
		t.Fatalf("marshal sample quiz: %v", err)
	}
	return string(raw)
}

// stubCompleter returns a fixed reply and records every request
type stubCompleter struct {
	mu       sync.Mutex
	content  string
	err      error
	noChoice bool
	requests []openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	if s.noChoice {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.content}},
		},
	}, nil
}

func (s *stubCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// recordingNotifier keeps every message it receives
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *recordingNotifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// memStore is an in-memory ObjectStore
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, p)
	}
	return data, nil
}

func (m *memStore) Put(_ context.Context, p string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = data
	return p, nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "quiz.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })
	if err := db.CreateTables(); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	return db
}

func reasonOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
