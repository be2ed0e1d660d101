package quizforge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DB represents a quiz database connection
type DB struct {
	db *sql.DB
}

// OpenDB opens a new database connection
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			preview_time INTEGER NOT NULL,
			answer_time INTEGER NOT NULL,
			max_points INTEGER NOT NULL,
			questions TEXT NOT NULL,
			knowledge_file_key TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_owner ON quizzes(owner)`,
		`CREATE TABLE IF NOT EXISTS progress_events (
			id TEXT PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_correlation ON progress_events(correlation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS quiz_attempts (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			total_possible INTEGER NOT NULL,
			answers TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user ON quiz_attempts(user_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// CreateQuiz inserts a new quiz. An existing id yields ErrQuizExists.
func (db *DB) CreateQuiz(ctx context.Context, quiz *Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	now := time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now

	_, err = db.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, owner, title, description, prompt, preview_time, answer_time, max_points, questions, knowledge_file_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		quiz.ID, quiz.Owner, quiz.Title, quiz.Description, quiz.Prompt,
		quiz.PreviewTime, quiz.AnswerTime, quiz.MaxPoints, string(questions),
		quiz.KnowledgeFileKey, quiz.CreatedAt.UTC(), quiz.UpdatedAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrQuizExists, quiz.ID)
		}
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

const quizColumns = "id, owner, title, description, prompt, preview_time, answer_time, max_points, questions, knowledge_file_key, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row rowScanner) (*Quiz, error) {
	var (
		quiz      Quiz
		questions string
	)
	err := row.Scan(&quiz.ID, &quiz.Owner, &quiz.Title, &quiz.Description, &quiz.Prompt,
		&quiz.PreviewTime, &quiz.AnswerTime, &quiz.MaxPoints, &questions,
		&quiz.KnowledgeFileKey, &quiz.CreatedAt, &quiz.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &quiz.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions of quiz %s: %w", quiz.ID, err)
	}
	return &quiz, nil
}

// GetQuiz retrieves a quiz by ID
func (db *DB) GetQuiz(ctx context.Context, id string) (*Quiz, error) {
	row := db.db.QueryRowContext(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE id = ?", id)
	quiz, err := scanQuiz(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrQuizNotFound, id)
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

// ListQuizzesByOwner returns the owner's quizzes, newest first
func (db *DB) ListQuizzesByOwner(ctx context.Context, owner string) ([]Quiz, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT "+quizColumns+" FROM quizzes WHERE owner = ? ORDER BY created_at DESC, id", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := []Quiz{}
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, *quiz)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}

	return quizzes, nil
}

// ownerOf returns the owner of quiz id, or ErrQuizNotFound
func (db *DB) ownerOf(ctx context.Context, id string) (string, error) {
	var owner string
	err := db.db.QueryRowContext(ctx, "SELECT owner FROM quizzes WHERE id = ?", id).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrQuizNotFound, id)
		}
		return "", fmt.Errorf("failed to get quiz owner: %w", err)
	}
	return owner, nil
}

// UpdateQuiz replaces the editable fields of quiz. Only the owner may update;
// id, owner and created_at never change.
func (db *DB) UpdateQuiz(ctx context.Context, owner string, quiz *Quiz) (*Quiz, error) {
	current, err := db.ownerOf(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}
	if current != owner {
		return nil, fmt.Errorf("%w: quiz %s", ErrForbidden, quiz.ID)
	}

	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal questions: %w", err)
	}

	_, err = db.db.ExecContext(ctx,
		`UPDATE quizzes SET title = ?, description = ?, preview_time = ?, answer_time = ?, max_points = ?, questions = ?, updated_at = ?
		 WHERE id = ? AND owner = ?`,
		quiz.Title, quiz.Description, quiz.PreviewTime, quiz.AnswerTime, quiz.MaxPoints,
		string(questions), time.Now().UTC(), quiz.ID, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}
	return db.GetQuiz(ctx, quiz.ID)
}

// DeleteQuiz removes quiz id and its attempts. Only the owner may delete.
func (db *DB) DeleteQuiz(ctx context.Context, owner, id string) error {
	current, err := db.ownerOf(ctx, id)
	if err != nil {
		return err
	}
	if current != owner {
		return fmt.Errorf("%w: quiz %s", ErrForbidden, id)
	}
	if _, err := db.db.ExecContext(ctx, "DELETE FROM quizzes WHERE id = ? AND owner = ?", id, owner); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	return nil
}

// AppendProgress stores a progress event
func (db *DB) AppendProgress(ctx context.Context, ev ProgressEvent) error {
	_, err := db.db.ExecContext(ctx,
		"INSERT INTO progress_events (id, correlation_id, message, created_at) VALUES (?, ?, ?, ?)",
		ev.ID, ev.CorrelationID, ev.Message, ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append progress: %w", err)
	}
	return nil
}

// ListProgress returns the events of correlationID in creation order
func (db *DB) ListProgress(ctx context.Context, correlationID string) ([]ProgressEvent, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT id, correlation_id, message, created_at FROM progress_events WHERE correlation_id = ? ORDER BY created_at, rowid",
		correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	defer rows.Close()

	events := []ProgressEvent{}
	for rows.Next() {
		var ev ProgressEvent
		if err := rows.Scan(&ev.ID, &ev.CorrelationID, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		events = append(events, ev)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress: %w", err)
	}
	return events, nil
}

// DeleteProgressBefore prunes events created before cutoff and reports how many were removed
func (db *DB) DeleteProgressBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.db.ExecContext(ctx, "DELETE FROM progress_events WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune progress: %w", err)
	}
	return res.RowsAffected()
}

// CreateAttempt stores a finished attempt
func (db *DB) CreateAttempt(ctx context.Context, attempt *QuizAttempt) error {
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err = db.db.ExecContext(ctx,
		"INSERT INTO quiz_attempts (id, quiz_id, user_id, score, total_possible, answers, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.Score, attempt.TotalPossible, string(answers), attempt.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the user's attempts, newest first
func (db *DB) ListAttempts(ctx context.Context, userID string) ([]QuizAttempt, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT id, quiz_id, user_id, score, total_possible, answers, created_at FROM quiz_attempts WHERE user_id = ? ORDER BY created_at DESC, rowid DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	defer rows.Close()

	attempts := []QuizAttempt{}
	for rows.Next() {
		var (
			attempt QuizAttempt
			answers string
		)
		if err := rows.Scan(&attempt.ID, &attempt.QuizID, &attempt.UserID, &attempt.Score, &attempt.TotalPossible, &answers, &attempt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(answers), &attempt.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return attempts, nil
}

// QuizStore is the record store the persistence gateway writes through
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz *Quiz) error
	GetQuiz(ctx context.Context, id string) (*Quiz, error)
}

// PersistenceGateway creates quiz records on behalf of the identity in the context
type PersistenceGateway struct {
	store QuizStore
}

// NewPersistenceGateway wraps store
func NewPersistenceGateway(store QuizStore) *PersistenceGateway {
	return &PersistenceGateway{store: store}
}

// CreateQuiz persists quiz and returns the stored record. The caller identity
// must own the quiz. There is no retry.
func (g *PersistenceGateway) CreateQuiz(ctx context.Context, quiz *Quiz) (*Quiz, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Subject != quiz.Owner {
		return nil, persistenceError("caller does not own quiz", ErrForbidden)
	}
	if err := g.store.CreateQuiz(ctx, quiz); err != nil {
		return nil, persistenceError("failed to create quiz", err)
	}
	stored, err := g.store.GetQuiz(ctx, quiz.ID)
	if err != nil {
		return nil, persistenceError("failed to read back quiz", err)
	}
	return stored, nil
}
