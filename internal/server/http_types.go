package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/experiment"
	"github.com/sanonone/irishnsw/pkg/iris"
)

type errorResponse struct {
	Error string `json:"error"`
}

// StatsResponse describes the served index.
type StatsResponse struct {
	Templates  int         `json:"templates"`
	Dim        string      `json:"dim"`
	Config     hnsw.Config `json:"config"`
	Layers     []int       `json:"layers"`
	Counters   hnsw.Stats  `json:"counters"`
	SnapshotID uuid.UUID   `json:"snapshot_id"`
	LastSave   time.Time   `json:"last_save"`
}

// ProbeRequest asks for a noisy probe of an enrolled template. Zero fields
// take the server's search defaults; a nil Noise too.
type ProbeRequest struct {
	ID        uint32   `json:"id"`
	Noise     *float64 `json:"noise,omitempty"`
	Rotation  int      `json:"rotation"`
	K         int      `json:"k"`
	Ef        int      `json:"ef"`
	Threshold float64  `json:"threshold"`
	Seed      int64    `json:"seed"`
}

// ProbeResponse holds the nearest templates and the identification outcome.
type ProbeResponse struct {
	Matches    []iris.Match `json:"matches"`
	Identified bool         `json:"identified"`
	Match      *iris.Match  `json:"match,omitempty"`
}

// SaveResponse reports a written snapshot.
type SaveResponse struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	Templates  int       `json:"templates"`
}

// ThresholdTaskRequest starts a background identification run.
type ThresholdTaskRequest struct {
	experiment.ThresholdParams
	Seed int64 `json:"seed"`
}

// TaskResponse is the public view of a task.
type TaskResponse struct {
	ID              string                      `json:"id"`
	Status          TaskStatus                  `json:"status"`
	ProgressMessage string                      `json:"progress_message,omitempty"`
	Error           string                      `json:"error,omitempty"`
	Result          *experiment.ThresholdResult `json:"result,omitempty"`
}
