package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/chatbot/internal/model"

	_ "modernc.org/sqlite"
)

// ErrMissingField is returned by Insert when a required field is empty.
var ErrMissingField = errors.New("missing required field")

// StorageError wraps a failed storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		feedback TEXT NOT NULL DEFAULT '',
		correct_answer TEXT,
		is_correct REAL NOT NULL CHECK (is_correct IN (0.0, 0.5, 1.0)),
		response_time REAL NOT NULL DEFAULT 0 CHECK (response_time >= 0),
		word_count INTEGER NOT NULL DEFAULT 0,
		bleu_score REAL,
		similarity_score REAL,
		relevance_score REAL,
		model_name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const recordColumns = `id, timestamp, question, answer, feedback, correct_answer, is_correct,
	response_time, word_count, bleu_score, similarity_score, relevance_score, model_name`

// Insert stores a record and returns its new ID. The record's ID and
// Timestamp are assigned here; any values set by the caller are ignored.
func (s *Store) Insert(r model.InteractionRecord) (int64, error) {
	if err := validate(r); err != nil {
		return 0, &StorageError{Op: "insert", Err: err}
	}
	res, err := s.db.Exec(
		`INSERT INTO chat_history (timestamp, question, answer, feedback, correct_answer, is_correct,
			response_time, word_count, bleu_score, similarity_score, relevance_score, model_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.now().UTC(), r.Question, r.Answer, r.Feedback, r.CorrectAnswer, r.IsCorrect,
		r.ResponseTime, r.WordCount, r.BLEUScore, r.SimilarityScore, r.RelevanceScore, r.ModelName,
	)
	if err != nil {
		slog.Error("failed to insert interaction", "model", r.ModelName, "error", err)
		return 0, &StorageError{Op: "insert", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "insert", Err: err}
	}
	slog.Debug("stored interaction", "id", id, "model", r.ModelName, "is_correct", r.IsCorrect)
	return id, nil
}

func validate(r model.InteractionRecord) error {
	switch {
	case strings.TrimSpace(r.Question) == "":
		return fmt.Errorf("%w: question", ErrMissingField)
	case r.Answer == "":
		return fmt.Errorf("%w: answer", ErrMissingField)
	case r.ModelName == "":
		return fmt.Errorf("%w: model_name", ErrMissingField)
	}
	switch r.IsCorrect {
	case 0.0, 0.5, 1.0:
	default:
		return fmt.Errorf("is_correct must be 0, 0.5 or 1, got %v", r.IsCorrect)
	}
	if r.ResponseTime < 0 {
		return fmt.Errorf("response_time must be non-negative, got %v", r.ResponseTime)
	}
	return nil
}

// ReadAll returns every record ordered by ID, newest first.
func (s *Store) ReadAll() ([]model.InteractionRecord, error) {
	rows, err := s.db.Query(`SELECT ` + recordColumns + ` FROM chat_history ORDER BY id DESC`)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	defer rows.Close()
	var records []model.InteractionRecord
	for rows.Next() {
		var (
			r             model.InteractionRecord
			correctAnswer sql.NullString
			bleu, sim     sql.NullFloat64
			relevance     sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Question, &r.Answer, &r.Feedback, &correctAnswer,
			&r.IsCorrect, &r.ResponseTime, &r.WordCount, &bleu, &sim, &relevance, &r.ModelName); err != nil {
			return nil, &StorageError{Op: "read", Err: err}
		}
		if correctAnswer.Valid {
			r.CorrectAnswer = &correctAnswer.String
		}
		r.BLEUScore = nullFloat(bleu)
		r.SimilarityScore = nullFloat(sim)
		r.RelevanceScore = nullFloat(relevance)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	return records, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_history`).Scan(&count)
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return count, nil
}

// Clear deletes all records. Callers must obtain confirmation first.
func (s *Store) Clear() error {
	res, err := s.db.Exec(`DELETE FROM chat_history`)
	if err != nil {
		slog.Error("failed to clear interactions", "error", err)
		return &StorageError{Op: "clear", Err: err}
	}
	n, _ := res.RowsAffected()
	slog.Info("cleared interactions", "deleted", n)
	return nil
}
