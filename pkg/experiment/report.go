package experiment

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
)

// Report collects the results of one experiment run.
type Report struct {
	RunID      uuid.UUID        `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	Finished   time.Time        `json:"finished_at"`
	Index      hnsw.Config      `json:"index"`
	Size       int              `json:"size"`
	Layers     []int            `json:"layers,omitempty"`
	Sweep      []Summary        `json:"sweep,omitempty"`
	Threshold  *ThresholdResult `json:"threshold,omitempty"`
	Baseline   *BaselineResult  `json:"baseline,omitempty"`
	Construct  *hnsw.Stats      `json:"construction,omitempty"`
	Parameters map[string]any   `json:"parameters,omitempty"`
}

// NewReport starts a report with a fresh run id.
func NewReport(cfg hnsw.Config) *Report {
	return &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Index:     cfg,
	}
}

// Finish stamps the end time and records the final shape of idx.
func (r *Report) Finish(size int, layers []int) {
	r.Finished = time.Now().UTC()
	r.Size = size
	r.Layers = layers
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
