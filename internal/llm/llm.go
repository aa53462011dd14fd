package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/chatbot/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Sampling parameters shared by every generation call.
const (
	maxNewTokens = 512
	temperature  = 0.7
	topP         = 0.9
)

// FallbackAnswer is shown when no text could be extracted from a model's output.
const FallbackAnswer = "Could not generate an answer."

var (
	// ErrAuth means the hub credential is missing or was rejected.
	ErrAuth = errors.New("invalid or missing hub credential")
	// ErrNoModels means every configured model failed to load.
	ErrNoModels = errors.New("no model could be loaded")
	// ErrEmptyOutput means the model produced no usable text.
	ErrEmptyOutput = errors.New("no answer could be extracted from model output")
)

// ModelLoadError reports a model that could not be loaded.
type ModelLoadError struct {
	Key string
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Key, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// GenerationError reports a failed generation call.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate with %q: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// API is the subset of the OpenAI-compatible client used here.
type API interface {
	GetModel(ctx context.Context, modelID string) (openai.Model, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateCompletion(ctx context.Context, req openai.CompletionRequest) (openai.CompletionResponse, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// NewAPI creates a client for an OpenAI-compatible endpoint authenticated
// with the hub token.
func NewAPI(baseURL, token string) *openai.Client {
	config := openai.DefaultConfig(token)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// Style is the prompt convention a model expects. It is fixed at load time.
type Style int

const (
	// StylePlain models continue raw text.
	StylePlain Style = iota
	// StyleChat models take role-tagged messages through a chat template.
	StyleChat
)

func (s Style) String() string {
	if s == StyleChat {
		return "chat"
	}
	return "plain"
}

// Model is a loaded model handle, shared read-only across sessions.
type Model struct {
	Key   string
	ID    string
	Style Style
	api   API
	now   func() time.Time
}

// Generation is the outcome of one generate call. On failure Answer holds a
// visible placeholder, Elapsed is zero and Err is a *GenerationError.
type Generation struct {
	Answer  string
	Elapsed time.Duration
	Err     error
}

// Generate asks the model to answer question. It blocks until the endpoint
// responds or ctx is done and never returns a failure other than through
// Generation.Err.
func (m *Model) Generate(ctx context.Context, question string) Generation {
	slog.Debug("generating answer", "model", m.Key, "style", m.Style, "question", question)
	start := m.now()

	out, err := m.call(ctx, question)
	if err != nil {
		slog.Error("generation failed", "model", m.Key, "error", err)
		return Generation{
			Answer: "Error: " + err.Error(),
			Err:    &GenerationError{Model: m.Key, Err: err},
		}
	}

	answer := out.extract(question)
	if answer == "" {
		slog.Warn("failed to extract answer", "model", m.Key)
		return Generation{
			Answer: FallbackAnswer,
			Err:    &GenerationError{Model: m.Key, Err: ErrEmptyOutput},
		}
	}

	elapsed := m.now().Sub(start)
	slog.Info("generated answer", "model", m.Key, "elapsed", elapsed, "answer", answer)
	return Generation{Answer: answer, Elapsed: elapsed}
}

func (m *Model) call(ctx context.Context, question string) (output, error) {
	if m.Style == StyleChat {
		msgs := []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: question},
		}
		resp, err := m.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       m.ID,
			Messages:    msgs,
			MaxTokens:   maxNewTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return chatOutput{}, nil
		}
		return newChatOutput(msgs, resp.Choices[0].Message), nil
	}

	resp, err := m.api.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       m.ID,
		Prompt:      question,
		MaxTokens:   maxNewTokens,
		Temperature: temperature,
		TopP:        topP,
		Echo:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return plainOutput{}, nil
	}
	return plainOutput{text: resp.Choices[0].Text}, nil
}

// Registry holds the models loaded at startup.
type Registry struct {
	keys   []string
	models map[string]*Model
	failed map[string]error
}

// Load checks every configured model against the endpoint. Individual
// failures are recorded and the model is left out of the selectable set.
// A rejected credential aborts with ErrAuth; if nothing loads Load
// returns ErrNoModels.
func Load(ctx context.Context, api API, specs []model.ModelSpec) (*Registry, []model.LoadMessage, error) {
	reg := &Registry{
		models: make(map[string]*Model),
		failed: make(map[string]error),
	}
	var msgs []model.LoadMessage

	for _, spec := range specs {
		reg.keys = append(reg.keys, spec.Key)
		style := StylePlain
		if spec.Chat {
			style = StyleChat
		}
		msgs = append(msgs, model.LoadMessage{
			Kind:    "info",
			Message: fmt.Sprintf("Loading model %s (%s)", spec.Key, spec.ID),
		})

		if _, err := api.GetModel(ctx, spec.ID); err != nil {
			if isAuthFailure(err) {
				return nil, msgs, fmt.Errorf("%w: %v", ErrAuth, err)
			}
			loadErr := &ModelLoadError{Key: spec.Key, Err: err}
			slog.Error("model load failed", "key", spec.Key, "id", spec.ID, "error", err)
			reg.failed[spec.Key] = loadErr
			msgs = append(msgs, model.LoadMessage{Kind: "error", Message: loadErr.Error()})
			continue
		}

		reg.models[spec.Key] = &Model{Key: spec.Key, ID: spec.ID, Style: style, api: api, now: time.Now}
		slog.Info("model loaded", "key", spec.Key, "id", spec.ID, "style", style)
		msgs = append(msgs, model.LoadMessage{
			Kind:    "success",
			Message: fmt.Sprintf("Model %s loaded (chat template: %t)", spec.Key, spec.Chat),
		})
	}

	if len(reg.models) == 0 {
		return reg, msgs, ErrNoModels
	}
	return reg, msgs, nil
}

func isAuthFailure(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden
	}
	return false
}

// Keys returns every configured model key in configuration order.
func (r *Registry) Keys() []string {
	return r.keys
}

// Available returns the keys of models that loaded successfully.
func (r *Registry) Available() []string {
	var keys []string
	for _, k := range r.keys {
		if _, ok := r.models[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Get returns the loaded model for key, or nil and the load error.
func (r *Registry) Get(key string) (*Model, error) {
	if m, ok := r.models[key]; ok {
		return m, nil
	}
	if err, ok := r.failed[key]; ok {
		return nil, err
	}
	return nil, &ModelLoadError{Key: key, Err: errors.New("not configured")}
}

// ValidateToken returns ErrAuth if token is blank.
func ValidateToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrAuth
	}
	return nil
}
