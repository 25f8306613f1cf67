package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/progressbus"
	"github.com/acme-retail/tablesync/internal/syncengine"
)

// fakeController is a narrow in-memory syncController for handler tests.
type fakeController struct {
	startLog model.SyncLog
	startErr error

	pauseErr  error
	resumeErr error
	cancelErr error

	current   model.SyncLog
	hasCurrent bool

	getLog model.SyncLog
	getOK  bool
	getErr error

	historyLogs []model.SyncLog
	historyErr  error

	lastMode model.SyncMode
	lastOpts model.SyncOptions
}

func (f *fakeController) Start(_ context.Context, mode model.SyncMode, opts model.SyncOptions, _ model.TriggerSource) (model.SyncLog, error) {
	f.lastMode = mode
	f.lastOpts = opts

	return f.startLog, f.startErr
}

func (f *fakeController) Pause(string) error  { return f.pauseErr }
func (f *fakeController) Resume(string) error { return f.resumeErr }
func (f *fakeController) Cancel(string) error { return f.cancelErr }

func (f *fakeController) Current() (model.SyncLog, bool) { return f.current, f.hasCurrent }

func (f *fakeController) Get(_ context.Context, _ string) (model.SyncLog, bool, error) {
	return f.getLog, f.getOK, f.getErr
}

func (f *fakeController) History(_ context.Context, _ model.SyncLogFilter, _ model.Page) ([]model.SyncLog, error) {
	return f.historyLogs, f.historyErr
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(ctrl *fakeController) *Server {
	return New(Config{
		Engine: ctrl,
		Bus:    progressbus.New(0),
		Dependencies: map[string]pinger{
			"documentStore": fakePinger{},
		},
	})
}

func decodeEnvelope(t *testing.T, body *bytes.Buffer) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(body.Bytes(), &env))

	return env
}

func TestSyncStartReturnsSyncID(t *testing.T) {
	ctrl := &fakeController{startLog: model.SyncLog{ID: "sync_1"}}
	srv := newTestServer(ctrl)

	body := bytes.NewBufferString(`{"mode":"full","options":{"batchSize":10}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/start", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec.Body)
	assert.True(t, env.Success)

	assert.Equal(t, model.SyncModeFull, ctrl.lastMode)
	assert.Equal(t, 10, ctrl.lastOpts.BatchSize)
}

func TestSyncStartRejectsUnknownMode(t *testing.T) {
	srv := newTestServer(&fakeController{})

	body := bytes.NewBufferString(`{"mode":"bogus"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/start", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec.Body)
	assert.False(t, env.Success)
	assert.Equal(t, CodeInvalidArgument, env.Error.Code)
}

func TestSyncStartReturnsConflictWhenAlreadyRunning(t *testing.T) {
	ctrl := &fakeController{startErr: syncengine.ErrAlreadyRunning}
	srv := newTestServer(ctrl)

	body := bytes.NewBufferString(`{"mode":"incremental"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/start", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	env := decodeEnvelope(t, rec.Body)
	assert.Equal(t, CodeConflict, env.Error.Code)
}

func TestSyncStartRequiresProductIDsInSelectiveMode(t *testing.T) {
	srv := newTestServer(&fakeController{})

	body := bytes.NewBufferString(`{"mode":"selective"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/start", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncPauseNotFound(t *testing.T) {
	ctrl := &fakeController{pauseErr: syncengine.ErrNotFound}
	srv := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/sync_x/pause", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncPauseWrongStateReturnsConflict(t *testing.T) {
	ctrl := &fakeController{pauseErr: syncengine.ErrWrongState}
	srv := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/sync_x/pause", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncCurrentReturnsNullWhenNoActiveRun(t *testing.T) {
	srv := newTestServer(&fakeController{hasCurrent: false})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/current", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec.Body)
	assert.Nil(t, env.Data)
}

func TestSyncGetNotFound(t *testing.T) {
	srv := newTestServer(&fakeController{getOK: false})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/sync_missing", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncHistoryReturnsLogs(t *testing.T) {
	ctrl := &fakeController{historyLogs: []model.SyncLog{{ID: "sync_1"}, {ID: "sync_2"}}}
	srv := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/history?status=completed&page=2&pageSize=5", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool `json:"success"`
		Data    historyResponse
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Len(t, env.Data.Logs, 2)
	assert.Equal(t, 2, env.Data.Page)
	assert.Equal(t, 5, env.Data.PageSize)
}

func TestHealthReportsUnhealthyDependency(t *testing.T) {
	srv := New(Config{
		Engine: &fakeController{},
		Bus:    progressbus.New(0),
		Dependencies: map[string]pinger{
			"documentStore": fakePinger{err: errors.New("boom")},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var env struct {
		Data healthStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "unhealthy", env.Data.Status)
	assert.Equal(t, depUnhealthy, env.Data.Dependencies["documentStore"].Status)
	assert.Equal(t, depNotConfigured, env.Data.Dependencies["scheduler"].Status)
}

func TestHealthHealthyWhenAllDependenciesOK(t *testing.T) {
	srv := newTestServer(&fakeController{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
