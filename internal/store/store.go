package store

import (
	"context"
	"errors"

	"github.com/seantiz/bambubridge/internal/model"
)

// ErrInvalidTransition is returned when a job status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// JobStats holds aggregate print history statistics.
type JobStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationS  float64        `json:"avg_duration_s"`
}

// Store defines the persistence operations for print job history.
type Store interface {
	CreateJob(ctx context.Context, j *model.JobRecord) error
	GetJob(ctx context.Context, id string) (*model.JobRecord, error)
	GetActiveJob(ctx context.Context) (*model.JobRecord, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*model.JobRecord, int, error)
	UpdateJobProgress(ctx context.Context, j *model.JobRecord) error
	UpdateJobStatus(ctx context.Context, id, status string) error
	GetJobStats(ctx context.Context) (*JobStats, error)
	InsertEvent(ctx context.Context, jobID string, seq int, line string) error
	GetEvents(ctx context.Context, jobID string) ([]model.JobEvent, error)
	NextEventSeq(ctx context.Context, jobID string) (int, error)
	Close() error
}
