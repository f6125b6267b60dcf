// Package tracking records parameters, metrics, models and artifacts of a
// training run.
//
// Every call takes the RunHandle returned by BeginRun; there is no implicit
// current run. Params and metrics are write-once per run: logging the same
// key again with the same value is accepted, a different value is a
// ValidationError.
package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// RunHandle identifies an open run.
type RunHandle struct {
	ID         string    `json:"run_id"`
	Experiment string    `json:"experiment"`
	StartedAt  time.Time `json:"start_time"`
}

// Run is the stored description of a run.
type Run struct {
	RunHandle
	Status  Status    `json:"status"`
	EndedAt time.Time `json:"end_time,omitempty"`
}

// Sink is the tracking surface a training run writes to.
type Sink interface {
	BeginRun(ctx context.Context, experiment string) (RunHandle, error)
	LogParam(h RunHandle, key, value string) error
	LogMetric(h RunHandle, key string, value float64) error
	// LogArtifact stores the file at localPath under group.
	LogArtifact(h RunHandle, localPath, group string) error
	// LogModel serialises m under logicalPath.
	LogModel(h RunHandle, m json.Marshaler, logicalPath string) error
	EndRun(h RunHandle, status Status) error
}

func validateKey(kind, key string) error {
	if key == "" {
		return errors.NewValidationError(kind, "key must not be empty", key)
	}
	return nil
}

func validateStatus(status Status) error {
	switch status {
	case StatusFinished, StatusFailed:
		return nil
	default:
		return errors.NewValidationError("status", "run must end as FINISHED or FAILED", string(status))
	}
}

func checkOpen(run Run) error {
	if run.Status != StatusRunning {
		return errors.NewValidationError("run", "run already ended", run.ID)
	}
	return nil
}
