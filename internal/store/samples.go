package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/chatbot/internal/model"
)

// Sample is an illustrative interaction used to populate an empty database.
type Sample struct {
	Question      string
	Answer        string
	CorrectAnswer string
	Label         model.FeedbackLabel
	Comment       string
	ResponseTime  float64
	ModelName     string
}

// Samples is the fixed set of illustrative records.
var Samples = []Sample{
	{
		Question:     "What is the capital of Japan?",
		Answer:       "The capital of Japan is Tokyo.",
		Label:        model.LabelExact,
		ResponseTime: 0.8,
		ModelName:    "gemma",
	},
	{
		Question:      "Explain machine learning in one sentence.",
		Answer:        "Machine learning is when computers learn.",
		CorrectAnswer: "Machine learning is a field of AI in which systems learn patterns from data to make predictions without being explicitly programmed.",
		Label:         model.LabelPartial,
		Comment:       "too vague",
		ResponseTime:  1.6,
		ModelName:     "gemma",
	},
	{
		Question:      "How many planets are in the solar system?",
		Answer:        "There are nine planets in the solar system.",
		CorrectAnswer: "There are eight planets in the solar system.",
		Label:         model.LabelIncorrect,
		Comment:       "Pluto was reclassified in 2006",
		ResponseTime:  2.4,
		ModelName:     "xglm",
	},
	{
		Question:     "What does HTTP stand for?",
		Answer:       "HTTP stands for HyperText Transfer Protocol.",
		Label:        model.LabelExact,
		ResponseTime: 0.5,
		ModelName:    "xglm",
	},
	{
		Question:      "What is the boiling point of water at sea level?",
		Answer:        "Water boils at around 100 degrees.",
		CorrectAnswer: "Water boils at 100 degrees Celsius (212 degrees Fahrenheit) at sea level.",
		Label:         model.LabelPartial,
		Comment:       "missing unit",
		ResponseTime:  1.1,
		ModelName:     "gemma",
	},
}

// Scorer computes derived metrics for an answer.
type Scorer interface {
	Score(ctx context.Context, question, answer, reference string) model.Scores
}

// NewRecord assembles an InteractionRecord from feedback inputs and
// derived scores. A blank correctAnswer is stored as NULL.
func NewRecord(question, answer string, label model.FeedbackLabel, comment, correctAnswer string,
	responseTime float64, modelName string, scores model.Scores) model.InteractionRecord {
	var ca *string
	if correctAnswer != "" {
		ca = &correctAnswer
	}
	return model.InteractionRecord{
		Question:        question,
		Answer:          answer,
		Feedback:        model.CombineFeedback(label, comment),
		CorrectAnswer:   ca,
		IsCorrect:       label.Score(),
		ResponseTime:    responseTime,
		WordCount:       scores.WordCount,
		BLEUScore:       scores.BLEU,
		SimilarityScore: scores.Similarity,
		RelevanceScore:  scores.Relevance,
		ModelName:       modelName,
	}
}

// AddSamples inserts every sample record and returns how many were stored.
func (s *Store) AddSamples(ctx context.Context, scorer Scorer) (int, error) {
	for i, smp := range Samples {
		rec := NewRecord(smp.Question, smp.Answer, smp.Label, smp.Comment, smp.CorrectAnswer,
			smp.ResponseTime, smp.ModelName, scorer.Score(ctx, smp.Question, smp.Answer, smp.CorrectAnswer))
		if _, err := s.Insert(rec); err != nil {
			return i, fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	if err := s.MarkTime(MetaSamplesSeededAt); err != nil {
		slog.Warn("failed to record sample seeding time", "error", err)
	}
	return len(Samples), nil
}

// EnsureSamples populates the table with the sample set only when it is empty.
func (s *Store) EnsureSamples(ctx context.Context, scorer Scorer) error {
	count, err := s.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	n, err := s.AddSamples(ctx, scorer)
	if err != nil {
		return err
	}
	slog.Info("seeded sample interactions", "count", n)
	return nil
}
