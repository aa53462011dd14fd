package model

import "time"

// InteractionExport is the top-level JSON structure for the export command.
type InteractionExport struct {
	ExportedAt time.Time           `json:"exported_at"`
	Count      int                 `json:"count"`
	Models     map[string]int      `json:"models"`
	Records    []InteractionRecord `json:"records"`
}
