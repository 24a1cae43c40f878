package model

import "time"

// Job record status constants.
const (
	StatusPrinting  = "printing"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPrinting: {
		StatusPaused:    true,
		StatusCompleted: true,
		StatusCancelled: true,
		StatusFailed:    true,
	},
	StatusPaused: {
		StatusPrinting:  true,
		StatusCompleted: true,
		StatusCancelled: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status ends a job record.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusFailed
}

// JobRecord is the persisted history entry for one print on the device.
type JobRecord struct {
	ID            string     `json:"id"`
	FileName      string     `json:"file_name"`
	FilePath      string     `json:"file_path"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	RemainingTime int        `json:"remaining_time"`
	CurrentLayer  int        `json:"current_layer"`
	TotalLayers   int        `json:"total_layers"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// JobEvent is a single line in a job's event history.
type JobEvent struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}
