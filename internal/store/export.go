package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/chatbot/internal/model"
)

// ExportAll builds the export envelope for every stored interaction,
// oldest first.
func (s *Store) ExportAll() (model.InteractionExport, error) {
	records, err := s.ReadAll()
	if err != nil {
		return model.InteractionExport{}, fmt.Errorf("read interactions: %w", err)
	}

	// ReadAll is newest first; exports read chronologically.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	perModel := make(map[string]int)
	for _, r := range records {
		perModel[r.ModelName]++
	}

	if records == nil {
		records = []model.InteractionRecord{}
	}
	return model.InteractionExport{
		ExportedAt: s.now().UTC().Truncate(time.Second),
		Count:      len(records),
		Models:     perModel,
		Records:    records,
	}, nil
}
