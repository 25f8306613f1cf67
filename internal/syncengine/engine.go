// Package syncengine implements the orchestrator (C6, spec §4.6): the
// state machine that drives FieldMapper, ImageFetcher, ProductRepository,
// and ProgressBus through one sync run, enforcing the global
// singleton-run invariant and the pause/cancel cooperative protocol.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/acme-retail/tablesync/internal/imagefetch"
	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/progressbus"
	"github.com/acme-retail/tablesync/internal/repository"
	"github.com/acme-retail/tablesync/internal/retry"
	"github.com/acme-retail/tablesync/internal/upstream"
)

// maxLogLines bounds SyncLog.Logs, per spec §3.2's "bounded ring buffer
// of human-readable lines."
const maxLogLines = 200

// upstreamClient is the subset of *upstream.Client the engine drives
// directly; attachment resolution is owned by imageFetcher.
type upstreamClient interface {
	ListRecords(ctx context.Context, cursor string, pageSize int) (*upstream.ListPage, error)
	TableRevision(ctx context.Context) (int64, error)
}

// productRepository is the subset of *repository.Store the engine needs.
type productRepository interface {
	UpsertBatch(ctx context.Context, products []model.Product) (repository.UpsertResult, error)
	FindIDs(ctx context.Context, sinceMS int64) (map[string]struct{}, error)
	SoftDelete(ctx context.Context, productIDs []string) error
	PutSyncLog(ctx context.Context, log model.SyncLog) error
	ListSyncLogs(ctx context.Context, filter model.SyncLogFilter, page model.Page) ([]model.SyncLog, error)
	GetSyncLog(ctx context.Context, id string) (model.SyncLog, bool, error)
	PutImage(ctx context.Context, img model.Image) error
}

// imageFetcher is the subset of *imagefetch.Fetcher the engine needs.
type imageFetcher interface {
	Fetch(ctx context.Context, revision int64, requests []imagefetch.Request) ([]imagefetch.Result, error)
}

// Config holds the collaborators and tunables for New.
type Config struct {
	Repository productRepository
	Upstream   upstreamClient
	Fetcher    imageFetcher
	Bus        *progressbus.Bus

	UpstreamBucket *retry.TokenBucket

	DefaultBatchSize     int
	DefaultRetryAttempts int
	OperationDeadline    time.Duration

	Logger *slog.Logger
}

// Engine orchestrates sync runs. The zero value is not usable; use New.
type Engine struct {
	repo     productRepository
	upstream upstreamClient
	fetcher  imageFetcher
	bus      *progressbus.Bus

	upstreamBucket *retry.TokenBucket

	defaultBatchSize     int
	defaultRetryAttempts int
	operationDeadline    time.Duration

	logger *slog.Logger

	mu      sync.Mutex
	current *activeRun // nil when no run is active
	wg      sync.WaitGroup
}

// activeRun tracks the mutable state of the single in-flight run,
// guarded by Engine.mu. Never a package-level variable, per the
// "no ambient process-wide state" design note.
type activeRun struct {
	log    model.SyncLog
	cancel context.CancelFunc
	latch  *pauseLatch
}

// New creates an Engine. logger may be nil (defaults to slog.Default()).
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	batchSize := cfg.DefaultBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	retryAttempts := cfg.DefaultRetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 3
	}

	deadline := cfg.OperationDeadline
	if deadline <= 0 {
		deadline = 4 * time.Hour
	}

	return &Engine{
		repo:                 cfg.Repository,
		upstream:             cfg.Upstream,
		fetcher:              cfg.Fetcher,
		bus:                  cfg.Bus,
		upstreamBucket:       cfg.UpstreamBucket,
		defaultBatchSize:     batchSize,
		defaultRetryAttempts: retryAttempts,
		operationDeadline:    deadline,
		logger:               logger,
	}
}

// Start admits a new run if none is currently {running, paused}, per spec
// §4.6. Returns the SyncLog in its initial "running" state; the main loop
// itself runs asynchronously on a background goroutine owned by the
// Engine.
func (e *Engine) Start(ctx context.Context, mode model.SyncMode, opts model.SyncOptions, triggeredBy model.TriggerSource) (model.SyncLog, error) {
	e.mu.Lock()

	if e.current != nil && !e.current.log.Status.IsTerminal() {
		e.mu.Unlock()
		return model.SyncLog{}, ErrAlreadyRunning
	}

	opts = applyOptionDefaults(opts, e.defaultBatchSize, e.defaultRetryAttempts)

	runCtx, cancel := context.WithTimeout(context.Background(), e.operationDeadline)

	logEntry := model.SyncLog{
		ID:          newSyncID(),
		Mode:        mode,
		Status:      model.SyncStatusRunning,
		TriggeredBy: triggeredBy,
		StartTime:   time.Now().UTC(),
		Options:     opts,
		Progress:    model.SyncProgress{Stage: model.StagePreparing},
		Errors:      []model.SyncError{},
		Logs:        []string{},
	}

	run := &activeRun{
		log:    logEntry,
		cancel: cancel,
		latch:  newPauseLatch(),
	}

	e.current = run
	e.mu.Unlock()

	e.publishStatusChange(run.log.ID, model.SyncStatusPending, model.SyncStatusRunning, "sync started")

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer cancel()

		e.executeRun(runCtx, run)
	}()

	return logEntry, nil
}

// Pause requests the named run pause at the next stage boundary.
func (e *Engine) Pause(syncID string) error {
	run, err := e.activeMatching(syncID, model.SyncStatusRunning)
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := run.log.Status
	run.log.Status = model.SyncStatusPaused
	e.mu.Unlock()

	run.latch.Pause()
	e.publishStatusChange(syncID, old, model.SyncStatusPaused, "pause requested")

	return nil
}

// Resume clears a previously requested pause.
func (e *Engine) Resume(syncID string) error {
	run, err := e.activeMatching(syncID, model.SyncStatusPaused)
	if err != nil {
		return err
	}

	e.mu.Lock()
	run.log.Status = model.SyncStatusRunning
	e.mu.Unlock()

	run.latch.Resume()
	e.publishStatusChange(syncID, model.SyncStatusPaused, model.SyncStatusRunning, "resumed")

	return nil
}

// Cancel requests cooperative cancellation of the named run, regardless
// of whether it is running or paused.
func (e *Engine) Cancel(syncID string) error {
	e.mu.Lock()
	run := e.current
	if run == nil || run.log.ID != syncID || run.log.Status.IsTerminal() {
		e.mu.Unlock()
		return ErrNotFound
	}

	old := run.log.Status
	e.mu.Unlock()

	run.latch.Resume() // unblock a paused loop so it observes cancellation
	run.cancel()

	e.publishStatusChange(syncID, old, model.SyncStatusCancelled, "cancel requested")

	return nil
}

// Current returns the currently active (or most recently terminal-for-a-
// grace-window) run, if any.
func (e *Engine) Current() (model.SyncLog, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return model.SyncLog{}, false
	}

	// A terminal run stays visible for a 5s grace window after it ends.
	log := e.current.log
	if log.Status.IsTerminal() && log.EndTime != nil && time.Since(*log.EndTime) > 5*time.Second {
		return model.SyncLog{}, false
	}

	return log, true
}

// Get fetches one sync run's durable log, active or historical.
func (e *Engine) Get(ctx context.Context, syncID string) (model.SyncLog, bool, error) {
	if cur, ok := e.Current(); ok && cur.ID == syncID {
		return cur, true, nil
	}

	return e.repo.GetSyncLog(ctx, syncID)
}

// History lists past sync runs matching filter.
func (e *Engine) History(ctx context.Context, filter model.SyncLogFilter, page model.Page) ([]model.SyncLog, error) {
	return e.repo.ListSyncLogs(ctx, filter, page)
}

// Close waits for any in-flight run to exit after cancellation, used at
// process shutdown.
func (e *Engine) Close() {
	e.wg.Wait()
}

func (e *Engine) activeMatching(syncID string, want model.SyncStatus) (*activeRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.log.ID != syncID {
		return nil, ErrNotFound
	}

	if e.current.log.Status != want {
		return nil, ErrWrongState
	}

	return e.current, nil
}

func newSyncID() string {
	return fmt.Sprintf("sync_%s", ulid.Make().String())
}

func applyOptionDefaults(opts model.SyncOptions, batchSize, retryAttempts int) model.SyncOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = batchSize
	}

	if opts.ConcurrentImages <= 0 {
		opts.ConcurrentImages = 5
	}

	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = retryAttempts
	}

	return opts
}

func (e *Engine) publishStatusChange(syncID string, oldStatus, newStatus model.SyncStatus, message string) {
	e.bus.Publish(progressbus.Event{
		Type:   progressbus.EventStatusChange,
		SyncID: syncID,
		StatusChange: &progressbus.StatusChangeData{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Message:   message,
			Timestamp: time.Now().UTC(),
		},
	})
}
