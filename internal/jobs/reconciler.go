package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/inaiurai/jobmeter/internal/models"
)

// Callback status values sent by the external worker.
const (
	CallbackComplete = "complete"
	CallbackFailed   = "failed"
)

var ErrInvalidStatus = errors.New("invalid callback status")

// ReconcileStore is the job store contract used by the Reconciler.
type ReconcileStore interface {
	GetByJobID(ctx context.Context, jobID string) (*models.Job, error)
	// IsPending reads from the primary, never a replica.
	IsPending(ctx context.Context, jobID string) (bool, error)
	Finalize(ctx context.Context, jobID, status string, resultURL *string) (bool, error)
}

// Rehoster copies a worker-supplied artifact into platform storage.
type Rehoster interface {
	Rehost(ctx context.Context, sourceURL string, owner uuid.UUID) (string, error)
}

// AssetRegistrar adds a completed result to the owner's asset listing.
type AssetRegistrar interface {
	Register(ctx context.Context, owner uuid.UUID, jobID, url string) error
}

type ReconcilerConfig struct {
	LookupAttempts int
	LookupDelay    time.Duration
	RehostTimeout  time.Duration
}

// DefaultReconcilerConfig retries the lookup for about two seconds.
var DefaultReconcilerConfig = ReconcilerConfig{
	LookupAttempts: 5,
	LookupDelay:    500 * time.Millisecond,
	RehostTimeout:  20 * time.Second,
}

type Reconciler struct {
	store    ReconcileStore
	rehoster Rehoster
	assets   AssetRegistrar
	cfg      ReconcilerConfig
	log      *slog.Logger
}

func NewReconciler(store ReconcileStore, rehoster Rehoster, assets AssetRegistrar, cfg ReconcilerConfig, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LookupAttempts <= 0 {
		cfg.LookupAttempts = DefaultReconcilerConfig.LookupAttempts
	}
	if cfg.LookupDelay <= 0 {
		cfg.LookupDelay = DefaultReconcilerConfig.LookupDelay
	}
	if cfg.RehostTimeout <= 0 {
		cfg.RehostTimeout = DefaultReconcilerConfig.RehostTimeout
	}
	return &Reconciler{store: store, rehoster: rehoster, assets: assets, cfg: cfg, log: log}
}

// Reconcile applies a worker callback to the job. Duplicate callbacks for a
// terminal job are no-ops. Returns ErrJobNotFound if the job is still not
// visible once the lookup retries are exhausted.
func (r *Reconciler) Reconcile(ctx context.Context, jobID, status, resultURL string) error {
	var final string
	switch status {
	case CallbackComplete:
		final = models.JobStatusCompleted
	case CallbackFailed:
		final = models.JobStatusFailed
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	job, err := r.lookup(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		r.log.Info("duplicate callback ignored", "job_id", jobID, "status", job.Status)
		return nil
	}

	var url *string
	if final == models.JobStatusCompleted && resultURL != "" {
		// The lookup may have come from a lagging replica. Rehosting leaves
		// an artifact behind, so confirm on the primary first.
		pending, err := r.store.IsPending(ctx, job.JobID)
		if err != nil {
			return fmt.Errorf("check job %s: %w", job.JobID, err)
		}
		if !pending {
			r.log.Info("duplicate callback ignored", "job_id", jobID, "source", "primary")
			return nil
		}
		u := r.rehost(ctx, job, resultURL)
		url = &u
	}

	won, err := r.store.Finalize(ctx, job.JobID, final, url)
	if err != nil {
		return fmt.Errorf("finalize job %s: %w", job.JobID, err)
	}
	if !won {
		r.log.Info("job finalized concurrently", "job_id", jobID)
		return nil
	}
	r.log.Info("job reconciled", "job_id", jobID, "status", final)

	if url != nil && r.assets != nil {
		if err := r.assets.Register(ctx, job.OwnerAccountID, job.JobID, *url); err != nil {
			r.log.Error("asset registration failed", "job_id", jobID, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) lookup(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := backoff.Retry(ctx, func() (*models.Job, error) {
		j, err := r.store.GetByJobID(ctx, jobID)
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return j, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.LookupDelay)),
		backoff.WithMaxTries(uint(r.cfg.LookupAttempts)),
		backoff.WithNotify(func(_ error, next time.Duration) {
			r.log.Debug("job not visible yet, retrying", "job_id", jobID, "next", next)
		}),
	)
	if errors.Is(err, ErrJobNotFound) {
		r.log.Warn("job not found after retries", "job_id", jobID, "attempts", r.cfg.LookupAttempts)
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup job %s: %w", jobID, err)
	}
	return job, nil
}

// rehost returns the platform URL for sourceURL, or sourceURL itself when
// rehosting fails or times out.
func (r *Reconciler) rehost(ctx context.Context, job *models.Job, sourceURL string) string {
	if r.rehoster == nil {
		return sourceURL
	}
	rctx, cancel := context.WithTimeout(ctx, r.cfg.RehostTimeout)
	defer cancel()
	url, err := r.rehoster.Rehost(rctx, sourceURL, job.OwnerAccountID)
	if err != nil {
		r.log.Warn("rehost failed, keeping source url", "job_id", job.JobID, "code", "RehostFailed", "error", err)
		return sourceURL
	}
	return url
}
