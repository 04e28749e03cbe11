package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconVerify runs the full verification suite.
	TaskReconVerify = "recon:verify"
	// TaskMaintenanceCleanup prunes expired idempotency keys and old audit rows.
	TaskMaintenanceCleanup = "maintenance:cleanup"
)

// ReconVerifyPayload configures a verification run.
type ReconVerifyPayload struct {
	// RepairDuplicates applies the duplicate-entry and duplicate-movement
	// repairs automatically when their checks fail.
	RepairDuplicates bool `json:"repair_duplicates"`
}

// NewReconVerifyTask constructs the verification task.
func NewReconVerifyTask(payload ReconVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconVerify, data), nil
}

// CleanupPayload configures the maintenance task.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewCleanupTask constructs the maintenance task.
func NewCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaintenanceCleanup, data), nil
}
