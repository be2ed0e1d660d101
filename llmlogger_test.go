package quizforge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLLMLoggerDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	ids := []string{"a/x", "b/x", "x", "../x", ".."}

	for _, id := range ids {
		ll, err := NewLLMLogger(dir, GenerationRequest{QuizID: id, Prompt: "p", NumQuestions: 1})
		if err != nil {
			t.Fatalf("NewLLMLogger(%q): %v", id, err)
		}
		ll.Close()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != len(ids) {
		t.Fatalf("got %d transcript files for %d ids", len(entries), len(ids))
	}
	for _, id := range ids {
		data, err := os.ReadFile(filepath.Join(dir, transcriptName(id)))
		if err != nil {
			t.Fatalf("read transcript for %q: %v", id, err)
		}
		if !strings.Contains(string(data), "Quiz ID: "+id+"\n") {
			t.Errorf("transcript for %q has the wrong header", id)
		}
	}
}
