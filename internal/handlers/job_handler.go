package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/jobmeter/internal/jobs"
	"github.com/inaiurai/jobmeter/internal/models"
	"github.com/inaiurai/jobmeter/internal/validate"
)

// JobDispatcher records a job and hands it to the external worker.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobID string, owner uuid.UUID, params map[string]any) (*models.Job, error)
}

// CallbackReconciler applies a worker callback to local job state.
type CallbackReconciler interface {
	Reconcile(ctx context.Context, jobID, status, resultURL string) error
}

// JobReader loads a job by its external id.
type JobReader interface {
	GetByJobID(ctx context.Context, jobID string) (*models.Job, error)
}

// JobHandler serves /jobs endpoints.
type JobHandler struct {
	Dispatcher JobDispatcher
	Reconciler CallbackReconciler
	Jobs       JobReader
	Validator  BodyValidator
	Logger     *slog.Logger
}

// --- POST /jobs ---

type createJobRequest struct {
	JobID           string         `json:"jobId"`
	OwnerAccountID  string         `json:"ownerAccountId"`
	InputParameters map[string]any `json:"inputParameters"`
}

type createJobResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"jobId"`
}

// CreateJob handles POST /jobs.
// Validate -> Dispatch (pending row + hand-off in one tx) -> 202.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	body := readValidated(w, r, h.Validator, validate.CreateJob)
	if body == nil {
		return
	}
	var req createJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid JSON")
		return
	}
	owner, err := uuid.Parse(req.OwnerAccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid ownerAccountId")
		return
	}

	job, err := h.Dispatcher.Dispatch(r.Context(), req.JobID, owner, req.InputParameters)
	if errors.Is(err, jobs.ErrJobExists) {
		writeError(w, http.StatusConflict, "JobExists", "")
		return
	}
	if err != nil {
		h.Logger.Error("dispatch job", "job_id", req.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal", "")
		return
	}

	writeJSON(w, http.StatusAccepted, createJobResponse{OK: true, JobID: job.JobID})
}

// --- POST /jobs/callback ---

type callbackRequest struct {
	JobID     string  `json:"jobId"`
	Status    string  `json:"status"`
	ResultURL *string `json:"resultUrl"`
}

// Callback handles POST /jobs/callback from the external worker. The callback
// token was checked against jobId by middleware.
func (h *JobHandler) Callback(w http.ResponseWriter, r *http.Request) {
	body := readValidated(w, r, h.Validator, validate.Callback)
	if body == nil {
		return
	}
	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid JSON")
		return
	}
	var resultURL string
	if req.ResultURL != nil {
		resultURL = *req.ResultURL
	}

	err := h.Reconciler.Reconcile(r.Context(), req.JobID, req.Status, resultURL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "JobNotFound", "")
	case errors.Is(err, jobs.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "InvalidBody", err.Error())
	default:
		h.Logger.Error("reconcile job", "job_id", req.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal", "")
	}
}

// --- GET /jobs/{jobId} ---

type jobResponse struct {
	JobID           string         `json:"jobId"`
	OwnerAccountID  uuid.UUID      `json:"ownerAccountId"`
	Status          string         `json:"status"`
	InputParameters map[string]any `json:"inputParameters,omitempty"`
	ResultURL       *string        `json:"resultUrl,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "InvalidBody", "missing job id")
		return
	}
	job, err := h.Jobs.GetByJobID(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "JobNotFound", "")
		return
	}
	if err != nil {
		h.Logger.Error("get job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal", "")
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		JobID:           job.JobID,
		OwnerAccountID:  job.OwnerAccountID,
		Status:          job.Status,
		InputParameters: job.InputParameters,
		ResultURL:       job.ResultURL,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	})
}
