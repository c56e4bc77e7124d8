package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

const dispatchTimeout = 5 * time.Second

type DispatchJobArgs struct {
	JobID           string         `json:"job_id"`
	OwnerAccountID  uuid.UUID      `json:"owner_account_id"`
	InputParameters map[string]any `json:"input_parameters"`
}

func (DispatchJobArgs) Kind() string { return "dispatch_job" }

// CallbackTokenIssuer mints the token the external worker must present when
// calling back for a job.
type CallbackTokenIssuer interface {
	IssueCallbackToken(jobID string) (string, error)
}

// dispatchPayload is the JSON body sent to the external worker.
type dispatchPayload struct {
	JobID           string         `json:"job_id"`
	InputParameters map[string]any `json:"input_parameters"`
	CallbackURL     string         `json:"callback_url"`
	CallbackToken   string         `json:"callback_token"`
}

// DispatchWorker notifies the external worker that a job is ready. The
// worker only acknowledges; completion arrives later on the callback route.
type DispatchWorker struct {
	river.WorkerDefaults[DispatchJobArgs]
	workerURL   string
	callbackURL string
	tokens      CallbackTokenIssuer
	httpClient  *http.Client
	log         *slog.Logger
}

func NewDispatchWorker(workerURL, callbackURL string, tokens CallbackTokenIssuer, log *slog.Logger) *DispatchWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchWorker{
		workerURL:   workerURL,
		callbackURL: callbackURL,
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: dispatchTimeout},
		log:         log,
	}
}

func (w *DispatchWorker) Work(ctx context.Context, job *river.Job[DispatchJobArgs]) error {
	args := job.Args

	token, err := w.tokens.IssueCallbackToken(args.JobID)
	if err != nil {
		return fmt.Errorf("issue callback token: %w", err)
	}
	body, err := json.Marshal(dispatchPayload{
		JobID:           args.JobID,
		InputParameters: args.InputParameters,
		CallbackURL:     w.callbackURL,
		CallbackToken:   token,
	})
	if err != nil {
		return fmt.Errorf("marshal dispatch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.workerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.Warn("worker hand-off failed", "job_id", args.JobID, "attempt", job.Attempt, "error", err)
		return fmt.Errorf("network error calling job worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.log.Warn("worker rejected hand-off", "job_id", args.JobID, "attempt", job.Attempt, "status", resp.StatusCode)
		return fmt.Errorf("job worker returned status %d", resp.StatusCode)
	}
	w.log.Info("worker accepted job", "job_id", args.JobID)
	return nil
}
