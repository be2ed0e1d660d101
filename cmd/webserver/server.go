package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"quizforge"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/samber/lo"
)

const maxKnowledgeUpload = 10 << 20

type Server struct {
	db        *quizforge.DB
	generator *quizforge.QuizGenerator
	progress  *quizforge.ProgressPublisher
	knowledge quizforge.ObjectStore
	verifier  *quizforge.TokenVerifier
	store     sessions.Store
	attempts  *attemptRegistry
	validate  *validator.Validate
}

func NewServer(db *quizforge.DB, generator *quizforge.QuizGenerator, progress *quizforge.ProgressPublisher,
	knowledge quizforge.ObjectStore, verifier *quizforge.TokenVerifier, store sessions.Store) *Server {
	return &Server{
		db:        db,
		generator: generator,
		progress:  progress,
		knowledge: knowledge,
		verifier:  verifier,
		store:     store,
		attempts:  newAttemptRegistry(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/quizzes/generate", s.requireAuth(s.handleGenerate)).Methods("POST")
	api.HandleFunc("/quizzes/{id}/progress", s.handleProgress).Methods("GET")
	api.HandleFunc("/quizzes", s.requireAuth(s.handleListQuizzes)).Methods("GET")
	api.HandleFunc("/quizzes/{id}", s.handleGetQuiz).Methods("GET")
	api.HandleFunc("/quizzes/{id}", s.requireAuth(s.handleUpdateQuiz)).Methods("PUT")
	api.HandleFunc("/quizzes/{id}", s.requireAuth(s.handleDeleteQuiz)).Methods("DELETE")
	api.HandleFunc("/quizzes/{id}/attempt/start", s.requireAuth(s.handleAttemptStart)).Methods("POST")
	api.HandleFunc("/quizzes/{id}/attempt/answer", s.requireAuth(s.handleAttemptAnswer)).Methods("POST")
	api.HandleFunc("/quizzes/{id}/attempt/finish", s.requireAuth(s.handleAttemptFinish)).Methods("POST")
	api.HandleFunc("/attempts", s.requireAuth(s.handleListAttempts)).Methods("GET")
	api.HandleFunc("/knowledge", s.requireAuth(s.handleUploadKnowledge)).Methods("POST")
	api.HandleFunc("/knowledge", s.requireAuth(s.handleListKnowledge)).Methods("GET")

	return router
}

// requireAuth verifies the bearer token and puts the caller identity on the request context
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.verifier.Verify(quizforge.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			quizforge.VerboseLog("Rejected request to %s: %v", r.URL.Path, err)
			writeErrorResponse(w, http.StatusUnauthorized, "Missing or invalid token")
			return
		}
		next(w, r.WithContext(quizforge.WithIdentity(r.Context(), id)))
	}
}

func caller(r *http.Request) quizforge.Identity {
	id, _ := quizforge.IdentityFromContext(r.Context())
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req quizforge.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	quiz, err := s.generator.GenerateQuiz(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, quiz)
}

// handleProgress streams stored then live progress events as Server-Sent Events
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	id := mux.Vars(r)["id"]

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := s.progress.Stream(r.Context(), id, func(ev quizforge.ProgressEvent) error {
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %s\nevent: progress\ndata: %s\n\n", ev.ID, raw); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, r.Context().Err()) {
		quizforge.Logger().Warnw("progress stream ended", "quiz_id", id, "error", err)
	}
}

func (s *Server) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := s.db.ListQuizzesByOwner(r.Context(), caller(r).Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quizzes)
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := s.db.GetQuiz(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quiz)
}

type quizUpdate struct {
	Title       string               `json:"title" validate:"required"`
	Description string               `json:"description"`
	PreviewTime int                  `json:"previewTime" validate:"gte=0"`
	AnswerTime  int                  `json:"answerTime" validate:"gte=0"`
	MaxPoints   int                  `json:"maxPoints" validate:"gte=0"`
	Questions   []quizforge.Question `json:"questions" validate:"required,min=1"`
}

func (s *Server) handleUpdateQuiz(w http.ResponseWriter, r *http.Request) {
	var upd quizUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := s.validate.Struct(upd); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, q := range upd.Questions {
		ids := lo.Map(q.Answers, func(a quizforge.Answer, _ int) string { return a.ID })
		if !lo.Contains(ids, q.CorrectAnswerID) {
			writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("question %d: correct answer is not one of its answers", i+1))
			return
		}
	}

	quiz, err := s.db.UpdateQuiz(r.Context(), caller(r).Subject, &quizforge.Quiz{
		ID:          mux.Vars(r)["id"],
		Title:       upd.Title,
		Description: upd.Description,
		PreviewTime: upd.PreviewTime,
		AnswerTime:  upd.AnswerTime,
		MaxPoints:   upd.MaxPoints,
		Questions:   upd.Questions,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quiz)
}

func (s *Server) handleDeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteQuiz(r.Context(), caller(r).Subject, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.db.ListAttempts(r.Context(), caller(r).Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, attempts)
}

func (s *Server) handleUploadKnowledge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxKnowledgeUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "A file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Failed to read upload")
		return
	}
	if len(data) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "Uploaded file is empty")
		return
	}

	path, err := quizforge.KnowledgePath(caller(r).Subject, header.Filename)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := s.knowledge.Put(r.Context(), path, data)
	if err != nil {
		quizforge.Logger().Errorw("knowledge upload failed", "path", path, "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to store file")
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]string{"path": stored})
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	prefix := quizforge.KnowledgePrefix + caller(r).Subject + "/"
	paths, err := s.knowledge.List(r.Context(), prefix)
	if err != nil {
		quizforge.Logger().Errorw("knowledge list failed", "prefix", prefix, "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSONResponse(w, http.StatusOK, map[string][]string{"paths": paths})
}

// statusFor maps pipeline and store errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, quizforge.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, quizforge.ErrIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, quizforge.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, quizforge.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, quizforge.ErrQuizExists):
		return http.StatusConflict
	case errors.Is(err, quizforge.ErrExtraction), errors.Is(err, quizforge.ErrSynthesis):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		quizforge.Logger().Errorw("request failed", "error", err)
		msg = "Internal server error"
	}
	// keep only the leading kind and reason
	var pe *quizforge.PipelineError
	if errors.As(err, &pe) && status != http.StatusInternalServerError {
		msg = strings.TrimSpace(fmt.Sprintf("%v: %s", pe.Kind, pe.Reason))
	}
	writeErrorResponse(w, status, msg)
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
