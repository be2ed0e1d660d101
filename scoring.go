package quizforge

import (
	"time"

	"github.com/samber/lo"
)

// ScoreSteps is the number of equal slices the answer window is cut into;
// each slice that passes costs a fifth of the question's points.
const ScoreSteps = 5

// EffectivePreviewTime resolves question override, quiz value, then default
func EffectivePreviewTime(quiz *Quiz, q *Question) time.Duration {
	return time.Duration(firstPositive(q.PreviewTime, quiz.PreviewTime, DefaultPreviewTime)) * time.Second
}

// EffectiveAnswerTime resolves question override, quiz value, then default
func EffectiveAnswerTime(quiz *Quiz, q *Question) time.Duration {
	return time.Duration(firstPositive(q.AnswerTime, quiz.AnswerTime, DefaultAnswerTime)) * time.Second
}

// EffectiveMaxPoints resolves question override, quiz value, then default
func EffectiveMaxPoints(quiz *Quiz, q *Question) int {
	return firstPositive(q.MaxPoints, quiz.MaxPoints, DefaultMaxPoints)
}

func firstPositive(values ...int) int {
	v, _ := lo.Find(values, func(v int) bool { return v > 0 })
	return v
}

// ScoreAnswer returns the points earned for answerID given after elapsed.
// Wrong, empty and late answers earn nothing.
func ScoreAnswer(quiz *Quiz, q *Question, answerID string, elapsed time.Duration) int {
	if answerID == "" || answerID != q.CorrectAnswerID {
		return 0
	}
	window := EffectiveAnswerTime(quiz, q)
	if elapsed >= window {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	maxPoints := EffectiveMaxPoints(quiz, q)
	step := window / ScoreSteps
	stepsPassed := int(elapsed / step)
	points := maxPoints - stepsPassed*maxPoints/ScoreSteps
	return max(points, 0)
}

// TotalPossible sums the effective max points of every question
func TotalPossible(quiz *Quiz) int {
	return lo.SumBy(quiz.Questions, func(q Question) int {
		return EffectiveMaxPoints(quiz, &q)
	})
}

// AnswerText returns the text of answer id within q
func AnswerText(q *Question, id string) string {
	a, ok := lo.Find(q.Answers, func(a Answer) bool { return a.ID == id })
	if !ok {
		return ""
	}
	return a.Text
}
