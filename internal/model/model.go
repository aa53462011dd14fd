package model

import (
	"context"
	"time"
)

// FeedbackLabel is the user's correctness judgement of an answer.
type FeedbackLabel string

const (
	LabelExact     FeedbackLabel = "exact"
	LabelPartial   FeedbackLabel = "partial"
	LabelIncorrect FeedbackLabel = "incorrect"
)

// Labels lists the feedback labels in display order.
var Labels = []FeedbackLabel{LabelExact, LabelPartial, LabelIncorrect}

// ParseLabel returns the label for s, or false if s is not a known label.
func ParseLabel(s string) (FeedbackLabel, bool) {
	for _, l := range Labels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// Score maps a label to the stored is_correct value.
func (l FeedbackLabel) Score() float64 {
	switch l {
	case LabelExact:
		return 1.0
	case LabelPartial:
		return 0.5
	default:
		return 0.0
	}
}

// LabelForScore is the inverse of Score for the three stored values.
func LabelForScore(v float64) FeedbackLabel {
	switch v {
	case 1.0:
		return LabelExact
	case 0.5:
		return LabelPartial
	default:
		return LabelIncorrect
	}
}

// Title is the human-readable label stored in the feedback column.
func (l FeedbackLabel) Title() string {
	switch l {
	case LabelExact:
		return "Correct"
	case LabelPartial:
		return "Partially correct"
	default:
		return "Incorrect"
	}
}

// CombineFeedback joins a label and an optional free-text comment.
func CombineFeedback(l FeedbackLabel, comment string) string {
	if comment == "" {
		return l.Title()
	}
	return l.Title() + ": " + comment
}

// InteractionRecord is one answered and rated question.
type InteractionRecord struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	Feedback        string    `json:"feedback"`
	CorrectAnswer   *string   `json:"correct_answer,omitempty"`
	IsCorrect       float64   `json:"is_correct"`
	ResponseTime    float64   `json:"response_time"`
	WordCount       int       `json:"word_count"`
	BLEUScore       *float64  `json:"bleu_score,omitempty"`
	SimilarityScore *float64  `json:"similarity_score,omitempty"`
	RelevanceScore  *float64  `json:"relevance_score,omitempty"`
	ModelName       string    `json:"model_name"`
}

// Scores holds the derived metrics computed at write time.
type Scores struct {
	WordCount  int
	BLEU       *float64
	Similarity *float64
	Relevance  *float64
}

// ModelSpec describes one configured model.
type ModelSpec struct {
	Key  string `mapstructure:"-"`
	ID   string `mapstructure:"id"`
	Chat bool   `mapstructure:"chat"`
}

// AppConfig holds runtime parameters set via flags and config files.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/bot")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	DefaultModel  string // model key preselected for new sessions
}

// LoadMessage is a startup notice about one model, shown once on the chat page.
type LoadMessage struct {
	Kind    string // info, success, error
	Message string
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
