// Package session holds per-user transient chat state and drives one
// question/answer/feedback cycle through an explicit state machine:
//
//	Idle -> Generating -> AwaitingFeedback -> Rated -> Idle
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/chatbot/internal/llm"
	"github.com/pavelanni/chatbot/internal/model"
	"github.com/pavelanni/chatbot/internal/store"
)

// Phase is a step of the question/answer cycle.
type Phase int

const (
	Idle Phase = iota
	Generating
	AwaitingFeedback
	Rated
)

func (p Phase) String() string {
	switch p {
	case Generating:
		return "generating"
	case AwaitingFeedback:
		return "awaiting_feedback"
	case Rated:
		return "rated"
	default:
		return "idle"
	}
}

var (
	// ErrEmptyQuestion rejects a blank question before any side effect.
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrBusy means a generation is already running for this session.
	ErrBusy = errors.New("an answer is still being generated")
	// ErrNoAnswer means feedback was submitted with no answer awaiting it.
	ErrNoAnswer = errors.New("no answer is awaiting feedback")
	// ErrAlreadyRated means feedback for this cycle was already stored.
	ErrAlreadyRated = errors.New("feedback already submitted for this answer")
	// ErrInvalidLabel means the feedback label is not one of the three known values.
	ErrInvalidLabel = errors.New("unknown feedback label")
)

// Generator produces an answer for a question.
type Generator interface {
	Generate(ctx context.Context, question string) llm.Generation
}

// Recorder persists interaction records.
type Recorder interface {
	Insert(r model.InteractionRecord) (int64, error)
}

// State is a snapshot of the session's chat fields.
type State struct {
	Phase           Phase
	CurrentQuestion string
	CurrentAnswer   string
	ResponseTime    float64 // seconds
	FeedbackGiven   bool
	SelectedModel   string
	LastError       error
}

// FeedbackInput is what the feedback form submits.
type FeedbackInput struct {
	Label         model.FeedbackLabel
	CorrectAnswer string
	Comment       string
}

// Session is one user's transient state. All methods are safe for
// concurrent use by overlapping requests from the same browser.
type Session struct {
	id string

	mu       sync.Mutex
	state    State
	cycle    uint64 // bumped whenever state leaves the current answer
	values   map[string]any
	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{id: id, values: make(map[string]any), lastSeen: now}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Get returns the value stored under key, or def if unset.
func (s *Session) Get(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// GetString is Get for string values.
func (s *Session) GetString(key, def string) string {
	v, ok := s.Get(key, def).(string)
	if !ok {
		return def
	}
	return v
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// State returns a copy of the chat state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelectModel switches the active model. Changing to a different model
// resets the cycle to Idle.
func (s *Session) SelectModel(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == Generating {
		return ErrBusy
	}
	if s.state.SelectedModel == key {
		return nil
	}
	s.state = State{SelectedModel: key}
	s.cycle++
	slog.Debug("session model switched", "session", s.id, "model", key)
	return nil
}

// Submit validates question, moves to Generating, runs the generator and
// moves to AwaitingFeedback. A blank question returns ErrEmptyQuestion and
// leaves the state unchanged. Generation failures do not return an error:
// the placeholder answer is shown and awaits feedback like any other.
func (s *Session) Submit(ctx context.Context, question, modelKey string, gen Generator) (State, error) {
	if strings.TrimSpace(question) == "" {
		return s.State(), ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.state.Phase == Generating {
		st := s.state
		s.mu.Unlock()
		return st, ErrBusy
	}
	s.state = State{
		Phase:           Generating,
		CurrentQuestion: question,
		SelectedModel:   modelKey,
	}
	s.cycle++
	s.mu.Unlock()

	result := gen.Generate(ctx, question)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Phase = AwaitingFeedback
	s.state.CurrentAnswer = result.Answer
	s.state.ResponseTime = result.Elapsed.Seconds()
	s.state.LastError = result.Err
	return s.state, nil
}

// Feedback stores the rated interaction and moves to Rated. It is only
// valid once per cycle; a repeated submission returns ErrAlreadyRated
// without writing. On a storage failure the state stays AwaitingFeedback.
//
// Scoring can wait on the embedding endpoint, so it runs without holding
// the session lock. The cycle is checked again before the insert: if the
// answer was replaced or rated meanwhile, nothing is written.
func (s *Session) Feedback(ctx context.Context, in FeedbackInput, scorer store.Scorer, rec Recorder) (int64, error) {
	if _, ok := model.ParseLabel(string(in.Label)); !ok {
		return 0, ErrInvalidLabel
	}

	s.mu.Lock()
	if err := s.checkAwaitingLocked(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	st, cycle := s.state, s.cycle
	s.mu.Unlock()

	correct := strings.TrimSpace(in.CorrectAnswer)
	scores := scorer.Score(ctx, st.CurrentQuestion, st.CurrentAnswer, correct)
	r := store.NewRecord(st.CurrentQuestion, st.CurrentAnswer, in.Label, strings.TrimSpace(in.Comment),
		correct, st.ResponseTime, st.SelectedModel, scores)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAwaitingLocked(); err != nil {
		return 0, err
	}
	if s.cycle != cycle {
		return 0, ErrNoAnswer
	}
	id, err := rec.Insert(r)
	if err != nil {
		return 0, fmt.Errorf("save feedback: %w", err)
	}
	s.state.Phase = Rated
	s.state.FeedbackGiven = true
	slog.Info("feedback saved", "session", s.id, "id", id, "model", st.SelectedModel, "label", in.Label)
	return id, nil
}

func (s *Session) checkAwaitingLocked() error {
	switch s.state.Phase {
	case Rated:
		return ErrAlreadyRated
	case AwaitingFeedback:
		return nil
	default:
		return ErrNoAnswer
	}
}

// Next clears a rated cycle back to Idle, keeping the selected model.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != Rated {
		return fmt.Errorf("cannot advance from %s", s.state.Phase)
	}
	s.state = State{SelectedModel: s.state.SelectedModel}
	s.cycle++
	return nil
}
