package quizforge

import (
	"testing"
	"time"
)

func TestEffectiveTimings(t *testing.T) {
	quiz := &Quiz{PreviewTime: 5, AnswerTime: 20, MaxPoints: 1000}

	q := &Question{}
	if got := EffectivePreviewTime(quiz, q); got != 5*time.Second {
		t.Errorf("preview = %v, want quiz value", got)
	}
	if got := EffectiveAnswerTime(quiz, q); got != 20*time.Second {
		t.Errorf("answer = %v, want quiz value", got)
	}
	if got := EffectiveMaxPoints(quiz, q); got != 1000 {
		t.Errorf("points = %d, want quiz value", got)
	}

	q = &Question{PreviewTime: 3, AnswerTime: 15, MaxPoints: 500}
	if EffectivePreviewTime(quiz, q) != 3*time.Second || EffectiveAnswerTime(quiz, q) != 15*time.Second || EffectiveMaxPoints(quiz, q) != 500 {
		t.Error("question overrides ignored")
	}

	empty := &Quiz{}
	if EffectivePreviewTime(empty, &Question{}) != DefaultPreviewTime*time.Second ||
		EffectiveAnswerTime(empty, &Question{}) != DefaultAnswerTime*time.Second ||
		EffectiveMaxPoints(empty, &Question{}) != DefaultMaxPoints {
		t.Error("defaults not applied")
	}
}

func TestScoreAnswer(t *testing.T) {
	quiz := &Quiz{AnswerTime: 30, MaxPoints: 3000}
	q := &Question{CorrectAnswerID: "b"}

	tests := []struct {
		name    string
		answer  string
		elapsed time.Duration
		want    int
	}{
		{"instant", "b", 0, 3000},
		{"negative elapsed", "b", -time.Second, 3000},
		{"within first step", "b", 5999 * time.Millisecond, 3000},
		{"one step", "b", 6 * time.Second, 2400},
		{"two steps", "b", 13 * time.Second, 1800},
		{"four steps", "b", 29 * time.Second, 600},
		{"at deadline", "b", 30 * time.Second, 0},
		{"late", "b", time.Minute, 0},
		{"wrong", "a", time.Second, 0},
		{"empty", "", time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreAnswer(quiz, q, tt.answer, tt.elapsed); got != tt.want {
				t.Errorf("ScoreAnswer(%q, %v) = %d, want %d", tt.answer, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestScoreAnswerUsesQuestionOverrides(t *testing.T) {
	quiz := &Quiz{AnswerTime: 30, MaxPoints: 3000}
	q := &Question{CorrectAnswerID: "b", AnswerTime: 10, MaxPoints: 1000}

	if got := ScoreAnswer(quiz, q, "b", 2*time.Second); got != 800 {
		t.Errorf("got %d, want 800", got)
	}
	if got := ScoreAnswer(quiz, q, "b", 10*time.Second); got != 0 {
		t.Errorf("got %d, want 0 after the question's own window", got)
	}
}

func TestTotalPossible(t *testing.T) {
	quiz := &Quiz{MaxPoints: 0, Questions: []Question{{MaxPoints: 100}, {}, {MaxPoints: 250}}}
	if got := TotalPossible(quiz); got != 100+DefaultMaxPoints+250 {
		t.Errorf("TotalPossible = %d", got)
	}
	if got := TotalPossible(&Quiz{}); got != 0 {
		t.Errorf("TotalPossible(empty) = %d", got)
	}
}

func TestAnswerText(t *testing.T) {
	q := &Question{Answers: []Answer{{ID: "a", Text: "One"}, {ID: "b", Text: "Two"}}}
	if AnswerText(q, "b") != "Two" || AnswerText(q, "z") != "" {
		t.Error("AnswerText lookup failed")
	}
}
