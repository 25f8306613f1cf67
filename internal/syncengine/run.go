package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acme-retail/tablesync/internal/fieldmap"
	"github.com/acme-retail/tablesync/internal/imagefetch"
	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/progressbus"
	"github.com/acme-retail/tablesync/internal/retry"
	"github.com/acme-retail/tablesync/internal/upstream"
)

// executeRun drives the main loop (spec §4.6) to completion, persisting
// the terminal SyncLog and emitting a Completion event. Panics are not
// recovered here: a misbehaving collaborator should crash loudly rather
// than silently corrupt run state.
func (e *Engine) executeRun(ctx context.Context, run *activeRun) {
	start := time.Now()

	err := e.runLoop(ctx, run)

	status := model.SyncStatusCompleted

	switch {
	case errors.Is(err, context.Canceled):
		status = model.SyncStatusCancelled
	case err != nil:
		status = model.SyncStatusFailed
	}

	e.mu.Lock()
	run.log.Status = status
	endTime := time.Now().UTC()
	run.log.EndTime = &endTime
	run.log.Progress.Stage = model.StageCompleted

	if err != nil && status == model.SyncStatusFailed {
		run.log.Errors = appendError(run.log.Errors, model.SyncError{
			Kind:        "fatal",
			Message:     err.Error(),
			Recoverable: false,
			Timestamp:   endTime,
		})
	}

	finalLog := run.log
	e.mu.Unlock()

	if putErr := e.repo.PutSyncLog(context.Background(), finalLog); putErr != nil {
		e.logger.Error("syncengine: failed to persist final sync log",
			slog.String("sync_id", finalLog.ID), slog.String("error", putErr.Error()))
	}

	e.bus.Publish(progressbus.Event{
		Type:   progressbus.EventCompletion,
		SyncID: finalLog.ID,
		Completion: &progressbus.CompletionData{
			Status:   status,
			Duration: time.Since(start),
			Stats: progressbus.Stats{
				Created: finalLog.Progress.Created,
				Updated: finalLog.Progress.Updated,
				Skipped: finalLog.Progress.Skipped,
				Errors:  finalLog.Progress.Errors,
			},
			Summary: summarize(finalLog),
		},
	})
}

func summarize(log model.SyncLog) string {
	return fmt.Sprintf("%s sync %s: created=%d updated=%d skipped=%d errors=%d",
		log.Mode, log.Status, log.Progress.Created, log.Progress.Updated, log.Progress.Skipped, log.Progress.Errors)
}

// runLoop implements steps 1-5 of spec §4.6's main loop.
func (e *Engine) runLoop(ctx context.Context, run *activeRun) error {
	e.emitProgress(run, model.StagePreparing, 0, 0, "preparing sync")
	e.appendLog(run, "sync starting")

	policy := retry.New(run.log.Options.RetryAttempts, upstream.Classify, e.logger)

	revision, err := retry.DoValue(ctx, policy, e.fetchRevision)
	if err != nil {
		return fmt.Errorf("syncengine: fetching table revision: %w", err)
	}

	seenIDs := make(map[string]struct{})

	cursor := ""
	total := 0

	for {
		if err := run.latch.Wait(ctx); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		e.mu.Lock()
		opts := run.log.Options
		e.mu.Unlock()

		e.emitStage(run, model.StageFetching, "fetching upstream page")

		page, pageErr := retry.DoValue(ctx, policy, func(ctx context.Context) (*upstream.ListPage, error) {
			return e.listRecordsPage(ctx, cursor, opts.BatchSize)
		})
		if pageErr != nil {
			return fmt.Errorf("syncengine: listing records: %w", pageErr)
		}

		if total == 0 && page.TotalHint > 0 {
			total = page.TotalHint
			e.emitProgress(run, model.StagePreparing, 0, total, "total record count known")
		}

		if err := e.processPage(ctx, run, page.Records, revision, run.log.Mode, opts, seenIDs); err != nil {
			return err
		}

		cursor = page.NextCursor

		if err := run.latch.Wait(ctx); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if cursor == "" {
			break
		}
	}

	if run.log.Mode == model.SyncModeFull && !run.log.Options.SkipDelete {
		if err := e.softDeleteAbsent(ctx, run, seenIDs); err != nil {
			return fmt.Errorf("syncengine: soft-deleting absent products: %w", err)
		}
	}

	e.appendLog(run, "sync completed")

	return nil
}

// processPage implements step 3 sub-steps b-g for one upstream page.
func (e *Engine) processPage(
	ctx context.Context,
	run *activeRun,
	records []upstream.RawRecord,
	revision int64,
	mode model.SyncMode,
	opts model.SyncOptions,
	seenIDs map[string]struct{},
) error {
	products := make([]model.Product, 0, len(records))

	for _, rec := range records {
		result, err := fieldmap.Transform(rec)
		if err != nil {
			var failure *fieldmap.TransformFailure
			if errors.As(err, &failure) {
				e.recordError(run, model.SyncError{
					Kind:        "transform",
					Message:     failure.Error(),
					ProductID:   failure.RecordID,
					Recoverable: true,
					Timestamp:   time.Now().UTC(),
				})

				continue
			}

			return fmt.Errorf("syncengine: transforming record %s: %w", rec.RecordID, err)
		}

		for _, warning := range result.Warnings {
			e.appendLog(run, fmt.Sprintf("%s: %s", result.Product.ProductID, warning))
		}

		seenIDs[result.Product.ProductID] = struct{}{}
		products = append(products, result.Product)
	}

	products = filterByMode(products, mode, opts)
	if len(products) == 0 {
		return nil
	}

	if !opts.SkipImageDownload {
		e.emitStage(run, model.StageImages, "resolving and downloading images")

		if err := e.resolveImages(ctx, run, revision, products); err != nil {
			return fmt.Errorf("syncengine: resolving images: %w", err)
		}
	}

	e.emitStage(run, model.StageProcessing, "writing products")

	result, err := e.repo.UpsertBatch(ctx, products)
	if err != nil {
		return fmt.Errorf("syncengine: upserting products: %w", err)
	}

	e.mu.Lock()
	run.log.Progress.Created += result.Created
	run.log.Progress.Updated += result.Updated
	run.log.Progress.Skipped += result.Skipped
	run.log.Progress.Current += len(products)
	progressSnapshot := run.log.Progress
	e.mu.Unlock()

	e.bus.Publish(progressbus.Event{
		Type:   progressbus.EventProgress,
		SyncID: run.log.ID,
		Progress: &progressbus.ProgressData{
			Stage:            model.StageProcessing,
			Current:          progressSnapshot.Current,
			Total:            progressSnapshot.Total,
			CurrentOperation: "batch written",
		},
	})

	return nil
}

// filterByMode implements step 3.c/3.d: incremental skip-unchanged is
// already handled by UpsertBatch's contentDigest comparison (so it is a
// no-op here beyond accounting), selective mode filters to the requested
// product ids.
func filterByMode(products []model.Product, mode model.SyncMode, opts model.SyncOptions) []model.Product {
	if mode != model.SyncModeSelective || len(opts.ProductIDs) == 0 {
		return products
	}

	wanted := make(map[string]struct{}, len(opts.ProductIDs))
	for _, id := range opts.ProductIDs {
		wanted[id] = struct{}{}
	}

	out := products[:0]

	for _, p := range products {
		if _, ok := wanted[p.ProductID]; ok {
			out = append(out, p)
		}
	}

	return out
}

// resolveImages implements step 3.e/3.f: collects attachment tokens,
// fetches/uploads via ImageFetcher, and merges resolved object keys back
// into the products in place.
func (e *Engine) resolveImages(ctx context.Context, run *activeRun, revision int64, products []model.Product) error {
	var requests []imagefetch.Request

	type target struct {
		productIdx int
		role       model.ImageRole
	}

	var targets []target

	for i := range products {
		for _, role := range model.ValidImageRoles {
			ref, ok := products[i].Images[role]
			if !ok || ref.Token == "" || ref.Resolved() {
				continue
			}

			requests = append(requests, imagefetch.Request{
				ProductID: products[i].ProductID,
				Role:      role,
				Token:     ref.Token,
			})
			targets = append(targets, target{productIdx: i, role: role})
		}
	}

	if len(requests) == 0 {
		return nil
	}

	results, err := e.fetcher.Fetch(ctx, revision, requests)
	if err != nil {
		return err
	}

	for i, res := range results {
		t := targets[i]

		if res.Err != nil {
			e.recordError(run, model.SyncError{
				Kind:        "image",
				Message:     res.Err.Error(),
				ProductID:   res.Request.ProductID,
				Recoverable: true,
				Timestamp:   time.Now().UTC(),
			})

			continue
		}

		if res.Image == nil {
			continue
		}

		if err := e.repo.PutImage(ctx, *res.Image); err != nil {
			return fmt.Errorf("syncengine: persisting image %s: %w", res.Image.ImageID, err)
		}

		products[t.productIdx].Images[t.role] = model.ImageRef{Key: res.Image.ObjectKey}
	}

	return nil
}

// softDeleteAbsent implements step 4: diffs observed productIds against
// the repository's full set and soft-deletes the difference.
func (e *Engine) softDeleteAbsent(ctx context.Context, run *activeRun, seenIDs map[string]struct{}) error {
	e.emitStage(run, model.StageValidating, "checking for deleted products")

	allIDs, err := e.repo.FindIDs(ctx, 0)
	if err != nil {
		return err
	}

	var toDelete []string

	for id := range allIDs {
		if _, ok := seenIDs[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}

	if len(toDelete) == 0 {
		return nil
	}

	e.appendLog(run, fmt.Sprintf("soft-deleting %d products absent from upstream", len(toDelete)))

	return e.repo.SoftDelete(ctx, toDelete)
}

func (e *Engine) fetchRevision(ctx context.Context) (int64, error) {
	if e.upstreamBucket != nil {
		if err := e.upstreamBucket.Wait(ctx); err != nil {
			return 0, err
		}
	}

	return e.upstream.TableRevision(ctx)
}

func (e *Engine) listRecordsPage(ctx context.Context, cursor string, pageSize int) (*upstream.ListPage, error) {
	if e.upstreamBucket != nil {
		if err := e.upstreamBucket.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return e.upstream.ListRecords(ctx, cursor, pageSize)
}

func (e *Engine) emitStage(run *activeRun, stage model.SyncStage, operation string) {
	e.mu.Lock()
	run.log.Progress.Stage = stage
	run.log.Progress.CurrentOperation = operation
	snapshot := run.log.Progress
	e.mu.Unlock()

	e.bus.Publish(progressbus.Event{
		Type:   progressbus.EventProgress,
		SyncID: run.log.ID,
		Progress: &progressbus.ProgressData{
			Stage:            snapshot.Stage,
			Current:          snapshot.Current,
			Total:            snapshot.Total,
			CurrentOperation: operation,
		},
	})
}

func (e *Engine) emitProgress(run *activeRun, stage model.SyncStage, current, total int, operation string) {
	e.mu.Lock()
	run.log.Progress.Stage = stage
	run.log.Progress.Current = current

	if total > 0 {
		run.log.Progress.Total = total
	}

	run.log.Progress.CurrentOperation = operation
	snapshot := run.log.Progress
	e.mu.Unlock()

	e.bus.Publish(progressbus.Event{
		Type:   progressbus.EventProgress,
		SyncID: run.log.ID,
		Progress: &progressbus.ProgressData{
			Stage:            snapshot.Stage,
			Current:          snapshot.Current,
			Total:            snapshot.Total,
			CurrentOperation: operation,
		},
	})
}

func (e *Engine) recordError(run *activeRun, syncErr model.SyncError) {
	e.mu.Lock()
	run.log.Errors = appendError(run.log.Errors, syncErr)
	run.log.Progress.Errors++
	e.mu.Unlock()

	e.bus.Publish(progressbus.Event{
		Type:   progressbus.EventError,
		SyncID: run.log.ID,
		Error: &progressbus.ErrorData{
			ErrorType:   syncErr.Kind,
			Message:     syncErr.Message,
			ProductID:   syncErr.ProductID,
			Recoverable: syncErr.Recoverable,
			Timestamp:   syncErr.Timestamp,
		},
	})
}

func (e *Engine) appendLog(run *activeRun, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run.log.Logs = append(run.log.Logs, line)
	if len(run.log.Logs) > maxLogLines {
		run.log.Logs = run.log.Logs[len(run.log.Logs)-maxLogLines:]
	}
}

func appendError(errs []model.SyncError, e model.SyncError) []model.SyncError {
	return append(errs, e)
}
