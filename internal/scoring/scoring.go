// Package scoring computes the derived answer metrics stored with each
// interaction: word count, BLEU against the corrected answer, embedding
// similarity and question relevance.
package scoring

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/jdkato/prose/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/chatbot/internal/model"
)

// Embedder produces vector embeddings.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Scorer computes model.Scores. A nil embedder disables similarity.
type Scorer struct {
	embedder   Embedder
	embedModel string
	stopwords  map[string]bool
	timeout    time.Duration
}

// New creates a Scorer. embedModel may be empty to disable similarity.
func New(embedder Embedder, embedModel string, stopwords map[string]bool) *Scorer {
	if embedModel == "" {
		embedder = nil
	}
	return &Scorer{
		embedder:   embedder,
		embedModel: embedModel,
		stopwords:  stopwords,
		timeout:    15 * time.Second,
	}
}

// Score computes every metric. BLEU and similarity need a reference and are
// nil without one; relevance is nil when the question has no content words.
func (s *Scorer) Score(ctx context.Context, question, answer, reference string) model.Scores {
	scores := model.Scores{WordCount: WordCount(answer)}

	answerTokens := Tokenize(answer)
	if strings.TrimSpace(reference) != "" {
		b := BLEU(Tokenize(reference), answerTokens)
		scores.BLEU = &b
		if sim, ok := s.similarity(ctx, answer, reference); ok {
			scores.Similarity = &sim
		}
	}
	if rel, ok := Relevance(Tokenize(question), answerTokens, s.stopwords); ok {
		scores.Relevance = &rel
	}
	return scores
}

func (s *Scorer) similarity(ctx context.Context, a, b string) (float64, bool) {
	if s.embedder == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{a, b},
		Model: openai.EmbeddingModel(s.embedModel),
	})
	if err != nil {
		slog.Warn("failed to compute embeddings", "model", s.embedModel, "error", err)
		return 0, false
	}
	if len(resp.Data) != 2 {
		slog.Warn("unexpected embedding count", "got", len(resp.Data))
		return 0, false
	}
	return Cosine(resp.Data[0].Embedding, resp.Data[1].Embedding), true
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Tokenize splits text into lowercase word tokens, dropping punctuation.
func Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		slog.Debug("tokenizer failed, falling back to fields", "error", err)
		return fallbackTokens(text)
	}
	var tokens []string
	for _, tok := range doc.Tokens() {
		if w := normalize(tok.Text); w != "" {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func fallbackTokens(text string) []string {
	var tokens []string
	for _, f := range strings.Fields(text) {
		if w := normalize(f); w != "" {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func normalize(tok string) string {
	tok = strings.ToLower(strings.TrimFunc(tok, unicode.IsPunct))
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return tok
		}
	}
	return ""
}

// Cosine returns the cosine similarity of a and b clamped to [0,1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Relevance is the share of the question's content words that appear in the
// answer. ok is false when the question has no content words.
func Relevance(question, answer []string, stopwords map[string]bool) (float64, bool) {
	inAnswer := make(map[string]bool, len(answer))
	for _, w := range answer {
		inAnswer[w] = true
	}
	seen := make(map[string]bool)
	var total, hit int
	for _, w := range question {
		if stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		total++
		if inAnswer[w] {
			hit++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(hit) / float64(total), true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
