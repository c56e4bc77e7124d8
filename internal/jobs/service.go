package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/jobmeter/internal/execution"
	"github.com/inaiurai/jobmeter/internal/models"
)

var (
	ErrJobExists   = errors.New("job already exists")
	ErrJobNotFound = errors.New("job not found")
)

// DispatchStore is the job store contract used by the Dispatcher.
type DispatchStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error
}

// HandoffTxFunc enqueues the worker notification within the given
// transaction. Provided by main using river.Client.InsertTx.
type HandoffTxFunc func(ctx context.Context, tx pgx.Tx, args execution.DispatchJobArgs) error

// Dispatcher registers jobs and hands them off to the external worker.
type Dispatcher struct {
	store   DispatchStore
	handoff HandoffTxFunc
	log     *slog.Logger
}

func NewDispatcher(store DispatchStore, handoff HandoffTxFunc, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{store: store, handoff: handoff, log: log}
}

// Dispatch writes a pending job and enqueues its hand-off in one transaction.
// The hand-off runs asynchronously after commit; its failures never reach
// the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, owner uuid.UUID, params map[string]any) (*models.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	if params == nil {
		params = map[string]any{}
	}
	job := &models.Job{
		JobID:           jobID,
		OwnerAccountID:  owner,
		Status:          models.JobStatusPending,
		InputParameters: params,
	}

	tx, err := d.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dispatch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := d.store.CreateTx(ctx, tx, job); err != nil {
		if errors.Is(err, ErrJobExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := d.handoff(ctx, tx, execution.DispatchJobArgs{
		JobID:           job.JobID,
		OwnerAccountID:  job.OwnerAccountID,
		InputParameters: job.InputParameters,
	}); err != nil {
		return nil, fmt.Errorf("enqueue hand-off: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit dispatch tx: %w", err)
	}
	d.log.Info("job dispatched", "job_id", job.JobID, "owner_account_id", owner)
	return job, nil
}
