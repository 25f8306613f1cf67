// Package scheduler implements Scheduler (C8, spec §4.8): cron-
// expression-driven triggers that invoke the engine with a preset mode.
// A trigger that finds a run already active is logged and skipped, never
// queued.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/syncengine"
)

// defaultTimezone is spec §4.8's default when Config.Timezone is empty.
const defaultTimezone = "Asia/Shanghai"

// engine is the subset of *syncengine.Engine the scheduler drives.
type engine interface {
	Start(ctx context.Context, mode model.SyncMode, opts model.SyncOptions, triggeredBy model.TriggerSource) (model.SyncLog, error)
}

// Config holds cron.
type Config struct {
	Engine engine

	// IncrementalCron, FullCron, ValidationCron are standard 5-field cron
	// expressions. An empty string disables that trigger.
	IncrementalCron string
	FullCron        string
	ValidationCron  string

	// Timezone is an IANA location name; empty uses defaultTimezone.
	Timezone string

	Logger *slog.Logger
}

// Scheduler owns a cron.Cron instance and the triggers registered on it.
// The zero value is not usable; use New.
type Scheduler struct {
	cron   *cron.Cron
	engine engine
	logger *slog.Logger
}

// New builds a Scheduler and registers every configured trigger. It does
// not start the cron loop; call Start.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = defaultTimezone
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.New("scheduler: invalid timezone " + tz + ": " + err.Error())
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	s := &Scheduler{cron: c, engine: cfg.Engine, logger: logger}

	triggers := []struct {
		name string
		expr string
		mode model.SyncMode
		opts model.SyncOptions
	}{
		{"incremental", cfg.IncrementalCron, model.SyncModeIncremental, model.SyncOptions{}},
		{"full", cfg.FullCron, model.SyncModeFull, model.SyncOptions{}},
		// "validation" has no dedicated engine mode (spec §4.8 lists it
		// alongside incremental/full but §4.6's main loop only knows
		// full/incremental/selective); modeled as a full sync that skips
		// image resolution and download entirely, since its purpose is to catch
		// drift in document-store state against upstream, not refresh
		// media. See DESIGN.md Open Question decisions.
		{"validation", cfg.ValidationCron, model.SyncModeFull, model.SyncOptions{SkipImageDownload: true}},
	}

	for _, t := range triggers {
		if t.expr == "" {
			continue
		}

		if _, err := c.AddFunc(t.expr, s.trigger(t.name, t.mode, t.opts)); err != nil {
			return nil, errors.New("scheduler: registering " + t.name + " trigger: " + err.Error())
		}
	}

	return s, nil
}

// trigger returns a cron job function that starts a sync in the given
// mode, logging and swallowing ErrAlreadyRunning rather than queuing.
func (s *Scheduler) trigger(name string, mode model.SyncMode, opts model.SyncOptions) func() {
	return func() {
		_, err := s.engine.Start(context.Background(), mode, opts, model.TriggeredByScheduler)
		if err == nil {
			s.logger.Info("scheduler: triggered sync", slog.String("trigger", name), slog.String("mode", string(mode)))
			return
		}

		if errors.Is(err, syncengine.ErrAlreadyRunning) {
			s.logger.Info("scheduler: skipped trigger, a run is already active", slog.String("trigger", name))
			return
		}

		s.logger.Error("scheduler: trigger failed to start sync", slog.String("trigger", name), slog.String("error", err.Error()))
	}
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for any in-flight trigger function
// to return. It does not cancel a sync already started by a trigger.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Healthy reports liveness for GET /health's scheduler dependency check
// (spec §6.1). cron.Cron recovers individual job panics (WithChain
// above) but exposes no running flag of its own, so liveness here just
// confirms the scheduler was constructed; a dead process cannot answer
// /health at all.
func (s *Scheduler) Healthy() bool {
	return s.cron != nil
}
