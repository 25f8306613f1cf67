package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acme-retail/tablesync/internal/model"
)

const sqlUpsertSyncLog = `INSERT INTO sync_logs
	(id, mode, status, triggered_by, start_time, end_time, options_json, progress_json, errors_json, logs_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		end_time = excluded.end_time,
		progress_json = excluded.progress_json,
		errors_json = excluded.errors_json,
		logs_json = excluded.logs_json`

const sqlGetSyncLog = `SELECT id, mode, status, triggered_by, start_time, end_time,
	options_json, progress_json, errors_json, logs_json
	FROM sync_logs WHERE id = ?`

// PutSyncLog upserts the durable record of one sync run, per spec §3.2.
// The engine calls it once, with the run's terminal state; a repeated call
// with the same id updates status, end time, progress, errors and logs.
func (s *Store) PutSyncLog(ctx context.Context, log model.SyncLog) error {
	optionsJSON, err := marshalJSON(log.Options)
	if err != nil {
		return err
	}

	progressJSON, err := marshalJSON(log.Progress)
	if err != nil {
		return err
	}

	errorsJSON, err := marshalJSON(log.Errors)
	if err != nil {
		return err
	}

	logsJSON, err := marshalJSON(log.Logs)
	if err != nil {
		return err
	}

	var endTime sql.NullInt64
	if log.EndTime != nil {
		endTime = sql.NullInt64{Int64: log.EndTime.UnixMilli(), Valid: true}
	}

	_, err = s.stmts.putSyncLog.ExecContext(ctx,
		log.ID, string(log.Mode), string(log.Status), string(log.TriggeredBy),
		log.StartTime.UnixMilli(), endTime, optionsJSON, progressJSON, errorsJSON, logsJSON,
	)
	if err != nil {
		return fmt.Errorf("repository: upserting sync log %s: %w", log.ID, err)
	}

	return nil
}

// GetSyncLog fetches one sync run by id.
func (s *Store) GetSyncLog(ctx context.Context, id string) (model.SyncLog, bool, error) {
	row := s.stmts.getSyncLog.QueryRowContext(ctx, id)

	log, err := scanSyncLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncLog{}, false, nil
	}

	if err != nil {
		return model.SyncLog{}, false, err
	}

	return log, true, nil
}

// ListSyncLogs returns sync runs matching filter, newest first, per
// GET /sync/history (spec §6.1).
func (s *Store) ListSyncLogs(ctx context.Context, filter model.SyncLogFilter, page model.Page) ([]model.SyncLog, error) {
	query := `SELECT id, mode, status, triggered_by, start_time, end_time,
		options_json, progress_json, errors_json, logs_json FROM sync_logs WHERE 1=1`

	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}

	if filter.DateFrom != nil {
		query += ` AND start_time >= ?`
		args = append(args, filter.DateFrom.UnixMilli())
	}

	if filter.DateTo != nil {
		query += ` AND start_time <= ?`
		args = append(args, filter.DateTo.UnixMilli())
	}

	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	pageNumber := page.Number
	if pageNumber < 1 {
		pageNumber = 1
	}

	query += ` ORDER BY start_time DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (pageNumber-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: listing sync logs: %w", err)
	}
	defer rows.Close()

	var out []model.SyncLog

	for rows.Next() {
		log, err := scanSyncLogRows(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, log)
	}

	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncLog(row *sql.Row) (model.SyncLog, error) {
	return scanSyncLogFrom(row)
}

func scanSyncLogRows(rows *sql.Rows) (model.SyncLog, error) {
	return scanSyncLogFrom(rows)
}

func scanSyncLogFrom(scanner rowScanner) (model.SyncLog, error) {
	var (
		id, mode, status, triggeredBy string
		startMS                       int64
		endMS                         sql.NullInt64
		optionsJSON, progressJSON     string
		errorsJSON, logsJSON          string
	)

	err := scanner.Scan(&id, &mode, &status, &triggeredBy, &startMS, &endMS,
		&optionsJSON, &progressJSON, &errorsJSON, &logsJSON)
	if err != nil {
		return model.SyncLog{}, fmt.Errorf("repository: scanning sync log: %w", err)
	}

	options, err := unmarshalJSON[model.SyncOptions](optionsJSON)
	if err != nil {
		return model.SyncLog{}, err
	}

	progress, err := unmarshalJSON[model.SyncProgress](progressJSON)
	if err != nil {
		return model.SyncLog{}, err
	}

	syncErrors, err := unmarshalJSON[[]model.SyncError](errorsJSON)
	if err != nil {
		return model.SyncLog{}, err
	}

	logs, err := unmarshalJSON[[]string](logsJSON)
	if err != nil {
		return model.SyncLog{}, err
	}

	var endTime *time.Time
	if endMS.Valid {
		t := msToTime(endMS.Int64)
		endTime = &t
	}

	return model.SyncLog{
		ID:          id,
		Mode:        model.SyncMode(mode),
		Status:      model.SyncStatus(status),
		TriggeredBy: model.TriggerSource(triggeredBy),
		StartTime:   msToTime(startMS),
		EndTime:     endTime,
		Options:     options,
		Progress:    progress,
		Errors:      syncErrors,
		Logs:        logs,
	}, nil
}
