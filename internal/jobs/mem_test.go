package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inaiurai/jobmeter/internal/models"
)

// --- txStub satisfies pgx.Tx; the in-memory store applies writes on Commit. ---

type txStub struct {
	onCommit   []func()
	committed  bool
	rolledBack bool
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) Commit(context.Context) error {
	t.committed = true
	for _, f := range t.onCommit {
		f()
	}
	return nil
}
func (t *txStub) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
func (*txStub) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (*txStub) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (*txStub) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (*txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (*txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (*txStub) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (*txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (*txStub) Conn() *pgx.Conn { return nil }

// memStore is a job store whose reader can lag behind committed writes:
// a job becomes visible to GetByJobID only after hiddenReads lookups, and
// stale entries shadow the committed row for GetByJobID only.
type memStore struct {
	mu          sync.Mutex
	jobs        map[string]*models.Job
	stale       map[string]*models.Job
	hiddenReads map[string]int
	reads       map[string]int
	finalizes   int
	lastTx      *txStub
	finalizeErr error
	getErr      error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:        make(map[string]*models.Job),
		stale:       make(map[string]*models.Job),
		hiddenReads: make(map[string]int),
		reads:       make(map[string]int),
	}
}

func (m *memStore) Begin(context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTx = &txStub{}
	return m.lastTx, nil
}

func (m *memStore) CreateTx(_ context.Context, tx pgx.Tx, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.JobID]; ok {
		return ErrJobExists
	}
	cp := *j
	cp.Status = models.JobStatusPending
	cp.CreatedAt = time.Now()
	tx.(*txStub).onCommit = append(tx.(*txStub).onCommit, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.jobs[cp.JobID] = &cp
	})
	return nil
}

// put stores a committed job directly.
func (m *memStore) put(j *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.JobID] = &cp
}

func (m *memStore) hide(jobID string, reads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hiddenReads[jobID] = reads
}

// lag pins the replica's view of the job to its current state.
func (m *memStore) lag(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		cp := *j
		m.stale[jobID] = &cp
	}
}

func (m *memStore) GetByJobID(_ context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.reads[jobID]++
	j, ok := m.jobs[jobID]
	if s, lagging := m.stale[jobID]; lagging {
		j, ok = s, true
	}
	if !ok || m.reads[jobID] <= m.hiddenReads[jobID] {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) IsPending(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return false, m.getErr
	}
	j, ok := m.jobs[jobID]
	if !ok {
		return false, ErrJobNotFound
	}
	return j.Status == models.JobStatusPending, nil
}

func (m *memStore) Finalize(_ context.Context, jobID, status string, resultURL *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return false, m.finalizeErr
	}
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	m.finalizes++
	j.Status = status
	j.ResultURL = resultURL
	now := time.Now()
	j.CompletedAt = &now
	return true, nil
}

func (m *memStore) job(jobID string) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (m *memStore) readCount(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[jobID]
}

// --- rehoster and asset registrar fakes ---

type fakeRehoster struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (f *fakeRehoster) Rehost(ctx context.Context, sourceURL string, owner uuid.UUID) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.platform.test/artifacts/" + owner.String() + "/rehosted.png", nil
}

type fakeAssets struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeAssets) Register(_ context.Context, _ uuid.UUID, _ string, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.urls = append(f.urls, url)
	return nil
}

func (f *fakeAssets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

var errStoreDown = errors.New("store unavailable")
