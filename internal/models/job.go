package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status enums.
const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

type Job struct {
	JobID           string         `json:"job_id"`
	OwnerAccountID  uuid.UUID      `json:"owner_account_id"`
	Status          string         `json:"status"`
	InputParameters map[string]any `json:"input_parameters"`
	ResultURL       *string        `json:"result_url,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

type Asset struct {
	ID             uuid.UUID `json:"id"`
	OwnerAccountID uuid.UUID `json:"owner_account_id"`
	JobID          string    `json:"job_id"`
	URL            string    `json:"url"`
	CreatedAt      time.Time `json:"created_at"`
}
