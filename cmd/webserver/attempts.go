package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"quizforge"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const (
	attemptSessionName = "quiz-attempt"
	attemptTTL         = 2 * time.Hour
)

// AttemptState is an in-progress attempt, kept on the server. The session
// cookie holds only its ID.
type AttemptState struct {
	mu       sync.Mutex
	ID       string
	QuizID   string
	UserID   string
	Started  time.Time
	Current  int
	ServedAt time.Time
	Answers  []string
	Score    int
}

// attemptRegistry holds in-progress attempts by id. Lock order is attempt, then registry.
type attemptRegistry struct {
	mu       sync.Mutex
	attempts map[string]*AttemptState
}

func newAttemptRegistry() *attemptRegistry {
	return &attemptRegistry{attempts: make(map[string]*AttemptState)}
}

func (ar *attemptRegistry) add(state *AttemptState) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	now := time.Now()
	for id, a := range ar.attempts {
		if now.Sub(a.Started) > attemptTTL || (a.QuizID == state.QuizID && a.UserID == state.UserID) {
			delete(ar.attempts, id)
		}
	}
	ar.attempts[state.ID] = state
}

func (ar *attemptRegistry) get(id string) (*AttemptState, bool) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	a, ok := ar.attempts[id]
	return a, ok
}

func (ar *attemptRegistry) remove(id string) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	delete(ar.attempts, id)
}

// questionView is a question without its solution
type questionView struct {
	Index       int      `json:"index"`
	Text        string   `json:"text"`
	PreviewTime int      `json:"previewTime"`
	AnswerTime  int      `json:"answerTime"`
	MaxPoints   int      `json:"maxPoints"`
	Answers     []answer `json:"answers"`
}

type answer struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func viewOf(quiz *quizforge.Quiz, i int) *questionView {
	if i >= len(quiz.Questions) {
		return nil
	}
	q := &quiz.Questions[i]
	return &questionView{
		Index:       i,
		Text:        q.Text,
		PreviewTime: int(quizforge.EffectivePreviewTime(quiz, q) / time.Second),
		AnswerTime:  int(quizforge.EffectiveAnswerTime(quiz, q) / time.Second),
		MaxPoints:   quizforge.EffectiveMaxPoints(quiz, q),
		Answers: lo.Map(q.Answers, func(a quizforge.Answer, _ int) answer {
			return answer{ID: a.ID, Text: a.Text}
		}),
	}
}

// loadAttempt returns the caller's attempt for the quiz in the URL, locked.
// The caller must unlock it.
func (s *Server) loadAttempt(w http.ResponseWriter, r *http.Request) (*quizforge.Quiz, *AttemptState, bool) {
	quizID := mux.Vars(r)["id"]
	session, _ := s.store.Get(r, attemptSessionName)
	attemptID, _ := session.Values["attempt"].(string)
	state, ok := s.attempts.get(attemptID)
	if !ok {
		writeErrorResponse(w, http.StatusConflict, "No attempt in progress for this quiz")
		return nil, nil, false
	}
	state.mu.Lock()
	if current, ok := s.attempts.get(attemptID); !ok || current != state || time.Since(state.Started) > attemptTTL || state.QuizID != quizID || state.UserID != caller(r).Subject {
		state.mu.Unlock()
		writeErrorResponse(w, http.StatusConflict, "No attempt in progress for this quiz")
		return nil, nil, false
	}
	quiz, err := s.db.GetQuiz(r.Context(), quizID)
	if err != nil {
		state.mu.Unlock()
		writeError(w, err)
		return nil, nil, false
	}
	return quiz, state, true
}

func (s *Server) saveAttempt(w http.ResponseWriter, r *http.Request, attemptID string) bool {
	session, _ := s.store.Get(r, attemptSessionName)
	if attemptID == "" {
		delete(session.Values, "attempt")
	} else {
		session.Values["attempt"] = attemptID
	}
	if err := session.Save(r, w); err != nil {
		quizforge.Logger().Errorw("session save failed", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to save attempt")
		return false
	}
	return true
}

func (s *Server) handleAttemptStart(w http.ResponseWriter, r *http.Request) {
	quiz, err := s.db.GetQuiz(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if len(quiz.Questions) == 0 {
		writeErrorResponse(w, http.StatusConflict, "Quiz has no questions")
		return
	}

	now := time.Now()
	state := &AttemptState{
		ID:       uuid.NewString(),
		QuizID:   quiz.ID,
		UserID:   caller(r).Subject,
		Started:  now,
		ServedAt: now,
		Answers:  []string{},
	}
	if !s.saveAttempt(w, r, state.ID) {
		return
	}
	s.attempts.add(state)
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"quizId":        quiz.ID,
		"title":         quiz.Title,
		"questionCount": len(quiz.Questions),
		"totalPossible": quizforge.TotalPossible(quiz),
		"question":      viewOf(quiz, 0),
	})
}

type answerRequest struct {
	QuestionIndex int    `json:"questionIndex" validate:"gte=0"`
	AnswerID      string `json:"answerId"`
}

type answerResult struct {
	Correct         bool          `json:"correct"`
	Points          int           `json:"points"`
	Score           int           `json:"score"`
	CorrectAnswerID string        `json:"correctAnswerId"`
	Explanation     string        `json:"explanation"`
	Message         string        `json:"message,omitempty"`
	Next            *questionView `json:"next,omitempty"`
	Finished        bool          `json:"finished"`
}

// handleAttemptAnswer scores the current question. Elapsed time is measured
// from when the question was served, minus its preview time.
func (s *Server) handleAttemptAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	quiz, state, ok := s.loadAttempt(w, r)
	if !ok {
		return
	}
	defer state.mu.Unlock()
	if state.Current >= len(quiz.Questions) {
		writeErrorResponse(w, http.StatusConflict, "All questions already answered")
		return
	}
	if req.QuestionIndex != state.Current {
		writeErrorResponse(w, http.StatusConflict, "Question is not the current one")
		return
	}

	q := &quiz.Questions[state.Current]
	elapsed := time.Since(state.ServedAt) - quizforge.EffectivePreviewTime(quiz, q)
	points := quizforge.ScoreAnswer(quiz, q, req.AnswerID, elapsed)

	state.Score += points
	state.Answers = append(state.Answers, req.AnswerID)
	state.Current++
	state.ServedAt = time.Now()

	chosen, _ := lo.Find(q.Answers, func(a quizforge.Answer) bool { return a.ID == req.AnswerID })
	result := answerResult{
		Correct:         req.AnswerID != "" && req.AnswerID == q.CorrectAnswerID,
		Points:          points,
		Score:           state.Score,
		CorrectAnswerID: q.CorrectAnswerID,
		Explanation:     q.Explanation,
		Message:         chosen.Message,
		Next:            viewOf(quiz, state.Current),
		Finished:        state.Current >= len(quiz.Questions),
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// handleAttemptFinish persists the attempt; unanswered questions count as empty answers
func (s *Server) handleAttemptFinish(w http.ResponseWriter, r *http.Request) {
	quiz, state, ok := s.loadAttempt(w, r)
	if !ok {
		return
	}
	defer state.mu.Unlock()

	answers := append([]string(nil), state.Answers...)
	for len(answers) < len(quiz.Questions) {
		answers = append(answers, "")
	}

	attempt := &quizforge.QuizAttempt{
		ID:            uuid.NewString(),
		QuizID:        quiz.ID,
		UserID:        state.UserID,
		Score:         state.Score,
		TotalPossible: quizforge.TotalPossible(quiz),
		Answers:       answers,
	}
	if err := s.db.CreateAttempt(r.Context(), attempt); err != nil {
		writeError(w, err)
		return
	}
	s.attempts.remove(state.ID)
	if !s.saveAttempt(w, r, "") {
		return
	}
	writeJSONResponse(w, http.StatusCreated, attempt)
}
