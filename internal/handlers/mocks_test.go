package handlers

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inaiurai/jobmeter/internal/gate"
	"github.com/inaiurai/jobmeter/internal/jobs"
	"github.com/inaiurai/jobmeter/internal/ledger"
	"github.com/inaiurai/jobmeter/internal/models"
	"github.com/inaiurai/jobmeter/internal/rehost"
	"github.com/inaiurai/jobmeter/internal/validate"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockDispatcher struct {
	mu    sync.Mutex
	seen  map[string]bool
	calls int
	err   error
}

func (m *mockDispatcher) Dispatch(_ context.Context, jobID string, owner uuid.UUID, params map[string]any) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[jobID] {
		return nil, jobs.ErrJobExists
	}
	m.seen[jobID] = true
	return &models.Job{JobID: jobID, OwnerAccountID: owner, Status: models.JobStatusPending, InputParameters: params}, nil
}

type reconcileCall struct {
	jobID, status, resultURL string
}

type mockReconciler struct {
	calls []reconcileCall
	err   error
}

func (m *mockReconciler) Reconcile(_ context.Context, jobID, status, resultURL string) error {
	m.calls = append(m.calls, reconcileCall{jobID, status, resultURL})
	return m.err
}

type mockJobReader struct {
	jobs map[string]*models.Job
	err  error
}

func (m *mockJobReader) GetByJobID(_ context.Context, jobID string) (*models.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return j, nil
}

type mockLedger struct {
	result   *ledger.ChargeResult
	decision gate.Decision
	entries  []*models.LedgerEntry
	err      error

	chargeCalls  int
	historyLimit int
}

func (m *mockLedger) ChargeFeature(context.Context, uuid.UUID, string) (*ledger.ChargeResult, error) {
	m.chargeCalls++
	return m.result, m.err
}

func (m *mockLedger) Check(context.Context, uuid.UUID, string) (gate.Decision, error) {
	return m.decision, m.err
}

func (m *mockLedger) History(_ context.Context, _ uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	m.historyLimit = limit
	return m.entries, m.err
}

type mockAssets struct {
	assets []*models.Asset
	limit  int
	err    error
}

func (m *mockAssets) ListByOwner(_ context.Context, _ uuid.UUID, limit int) ([]*models.Asset, error) {
	m.limit = limit
	return m.assets, m.err
}

type mockObjects struct {
	objects map[string]*rehost.Object
	err     error
}

func (m *mockObjects) Get(_ context.Context, key string) (*rehost.Object, error) {
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, rehost.ErrObjectNotFound
	}
	return o, nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestValidator(t *testing.T) *validate.Validator {
	t.Helper()
	v, err := validate.New()
	if err != nil {
		t.Fatalf("validate.New: %v", err)
	}
	return v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testLogger = slog.Default()
