// Package runs queues extraction runs behind one worker. Only one run
// drives the browser at a time; the others wait in submission order.
//
// Run lifecycle:
//
//	queued → running ⇄ awaiting_operator → completed | stopped
//
// A stop request on a queued run removes it before it starts; on a
// running run it takes effect between listings.
package runs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/appraise/assembler"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/session"
)

var (
	ErrQueueFull = errors.New("runs: queue is full")
	ErrNotFound  = errors.New("runs: run not found")
	ErrNoPending = errors.New("runs: run is not waiting for an operator")
	ErrFinished  = errors.New("runs: run already finished")
)

// Executor processes the URLs of one run. op must receive every
// intervention of the run and progress must be called after every listing.
type Executor func(ctx context.Context, run *Run, op session.Operator, progress assembler.Progress) []*models.ListingRecord

// Run is one submitted batch of listing URLs.
type Run struct {
	ID          string
	URLs        []string
	Screenshots *bool
	CreatedAt   time.Time

	mu        sync.Mutex
	status    string
	completed int
	records   []*models.ListingRecord
	pending   *session.Intervention
	cancel    context.CancelFunc
	doneAt    time.Time
	done      chan struct{}
}

// Status returns a snapshot suitable for the API.
func (r *Run) Status(withRecords bool) models.RunStatusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := models.RunStatusResponse{
		ID:        r.ID,
		Status:    r.status,
		Completed: r.completed,
		Total:     len(r.URLs),
		CreatedAt: r.CreatedAt,
	}
	if iv := r.pending; iv != nil {
		resp.Pending = &models.PendingIntervention{URL: iv.URL, Site: iv.Site, Reason: iv.Reason, Since: iv.Since}
	}
	if withRecords {
		resp.Records = append([]*models.ListingRecord(nil), r.records...)
	}
	return resp
}

// Done is closed when the run has completed or stopped.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) finished() bool {
	return r.status == models.RunCompleted || r.status == models.RunStopped
}

// Notify records the intervention as pending until its gate resolves.
func (r *Run) Notify(ctx context.Context, iv session.Intervention) {
	r.mu.Lock()
	r.pending = &iv
	r.status = models.RunAwaiting
	r.mu.Unlock()

	go func() {
		select {
		case <-iv.Gate.Done():
		case <-ctx.Done():
		}
		r.mu.Lock()
		if r.pending != nil && r.pending.Gate == iv.Gate {
			r.pending = nil
			if r.status == models.RunAwaiting {
				r.status = models.RunRunning
			}
		}
		r.mu.Unlock()
	}()
}

// Manager owns the queue and the single worker.
type Manager struct {
	exec  Executor
	queue chan *Run
	ttl   time.Duration
	op    session.Operator
	onEnd func(*Run)
	log   *slog.Logger

	mu     sync.Mutex
	runs   map[string]*Run
	active string
}

// Option configures a Manager.
type Option func(*Manager)

// WithOperator adds an operator told about every intervention of every run,
// in addition to the run's own pending tracking.
func WithOperator(op session.Operator) Option {
	return func(m *Manager) { m.op = op }
}

// OnFinish is called after each run completes or stops.
func OnFinish(fn func(*Run)) Option {
	return func(m *Manager) { m.onEnd = fn }
}

// NewManager returns a Manager with room for queueSize waiting runs.
// Finished runs are forgotten after ttl; zero keeps them forever.
func NewManager(exec Executor, queueSize int, ttl time.Duration, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	m := &Manager{
		exec:  exec,
		queue: make(chan *Run, queueSize),
		ttl:   ttl,
		log:   log,
		runs:  make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs the worker and the expiry loop until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	go m.work(ctx)
	if m.ttl > 0 {
		go m.expire(ctx)
	}
}

// Submit queues a run.
func (m *Manager) Submit(urls []string, screenshots *bool) (*Run, error) {
	run := &Run{
		ID:          uuid.NewString(),
		URLs:        append([]string(nil), urls...),
		Screenshots: screenshots,
		CreatedAt:   time.Now(),
		status:      models.RunQueued,
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case m.queue <- run:
	default:
		return nil, ErrQueueFull
	}
	m.runs[run.ID] = run
	m.log.Info("run queued", "run_id", run.ID, "listings", len(urls))
	return run, nil
}

// Get returns a run by id.
func (m *Manager) Get(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run, nil
}

// Resume resolves the pending intervention of a run.
func (m *Manager) Resume(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	run.mu.Lock()
	iv := run.pending
	run.mu.Unlock()
	if iv == nil {
		return ErrNoPending
	}
	if iv.Gate.Resume() {
		m.log.Info("operator resumed run", "run_id", id, "url", iv.URL)
	}
	return nil
}

// Stop stops a run: queued runs never start, a running one ends after
// the current listing.
func (m *Manager) Stop(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	switch {
	case run.finished():
		return ErrFinished
	case run.status == models.RunQueued:
		run.status = models.RunStopped
		run.doneAt = time.Now()
		close(run.done)
	case run.cancel != nil:
		run.cancel()
	}
	m.log.Info("run stop requested", "run_id", id)
	return nil
}

// Stats reports the number of queued runs and the id of the active one.
func (m *Manager) Stats() (queued int, active string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue), m.active
}

func (m *Manager) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case run := <-m.queue:
			m.execute(ctx, run)
		}
	}
}

func (m *Manager) execute(parent context.Context, run *Run) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	run.mu.Lock()
	if run.status == models.RunStopped {
		run.mu.Unlock()
		m.log.Info("stopped run skipped", "run_id", run.ID)
		return
	}
	run.status = models.RunRunning
	run.cancel = cancel
	run.mu.Unlock()

	m.mu.Lock()
	m.active = run.ID
	m.mu.Unlock()

	var op session.Operator = run
	if m.op != nil {
		op = session.MultiOperator{run, m.op}
	}
	progress := func(done, _ int, rec *models.ListingRecord) {
		run.mu.Lock()
		run.completed = done
		run.records = append(run.records, rec)
		run.mu.Unlock()
	}

	start := time.Now()
	records := m.exec(ctx, run, op, progress)

	run.mu.Lock()
	run.records = records
	run.completed = len(records)
	run.pending = nil
	run.status = models.RunCompleted
	if ctx.Err() != nil && len(records) < len(run.URLs) {
		run.status = models.RunStopped
	}
	run.cancel = nil
	run.doneAt = time.Now()
	status := run.status
	run.mu.Unlock()

	m.mu.Lock()
	m.active = ""
	m.mu.Unlock()

	m.log.Info("run finished",
		"run_id", run.ID,
		"status", status,
		"records", len(records),
		"total", len(run.URLs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if m.onEnd != nil {
		m.onEnd(run)
	}
	close(run.done)
}

func (m *Manager) expire(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.prune(time.Now().Add(-m.ttl))
		}
	}
}

// prune forgets runs finished before cutoff.
func (m *Manager) prune(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, run := range m.runs {
		run.mu.Lock()
		old := run.finished() && run.doneAt.Before(cutoff)
		run.mu.Unlock()
		if old {
			delete(m.runs, id)
		}
	}
}
