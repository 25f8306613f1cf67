package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/syncengine"
)

// startRequest is the body of POST /sync/start, per spec §6.1:
// "{mode, options, productIds?}". productIds is accepted both at the top
// level and nested in options, for callers that built the options object
// from a previous GET /sync/:id response.
type startRequest struct {
	Mode       string            `json:"mode"`
	Options    model.SyncOptions `json:"options"`
	ProductIDs []string          `json:"productIds"`
}

type startResponse struct {
	SyncID string `json:"syncId"`
}

func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "malformed request body: "+err.Error())
		return
	}

	mode := model.SyncMode(req.Mode)
	if !validMode(mode) {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "mode must be one of full, incremental, selective")
		return
	}

	opts := req.Options
	if len(opts.ProductIDs) == 0 {
		opts.ProductIDs = req.ProductIDs
	}

	if mode == model.SyncModeSelective && len(opts.ProductIDs) == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "selective mode requires a non-empty productIds")
		return
	}

	log, err := s.engine.Start(r.Context(), mode, opts, model.TriggeredByAPI)
	if err != nil {
		if errors.Is(err, syncengine.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, CodeConflict, err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	writeData(w, http.StatusOK, startResponse{SyncID: log.ID})
}

func validMode(m model.SyncMode) bool {
	switch m {
	case model.SyncModeFull, model.SyncModeIncremental, model.SyncModeSelective:
		return true
	default:
		return false
	}
}

func (s *Server) handleSyncPause(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.engine.Pause)
}

func (s *Server) handleSyncResume(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.engine.Resume)
}

func (s *Server) handleSyncCancel(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.engine.Cancel)
}

// handleTransition is shared by pause/resume/cancel: each is "look up the
// named run, apply a one-argument state transition, report the outcome".
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, transition func(string) error) {
	syncID := mux.Vars(r)["id"]

	if err := transition(syncID); err != nil {
		switch {
		case errors.Is(err, syncengine.ErrNotFound):
			writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		case errors.Is(err, syncengine.ErrWrongState):
			writeError(w, http.StatusConflict, CodeConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		}

		return
	}

	writeData(w, http.StatusOK, map[string]string{"syncId": syncID})
}

func (s *Server) handleSyncCurrent(w http.ResponseWriter, r *http.Request) {
	log, ok := s.engine.Current()
	if !ok {
		writeData(w, http.StatusOK, nil)
		return
	}

	writeData(w, http.StatusOK, log)
}

func (s *Server) handleSyncGet(w http.ResponseWriter, r *http.Request) {
	syncID := mux.Vars(r)["id"]

	log, ok, err := s.engine.Get(r.Context(), syncID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "no sync run with that id")
		return
	}

	writeData(w, http.StatusOK, log)
}

type historyResponse struct {
	Logs     []model.SyncLog `json:"logs"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.SyncLogFilter{
		Status: model.SyncStatus(q.Get("status")),
		Mode:   model.SyncMode(q.Get("mode")),
	}

	if v := q.Get("dateFrom"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidArgument, "dateFrom must be RFC3339")
			return
		}

		filter.DateFrom = &t
	}

	if v := q.Get("dateTo"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidArgument, "dateTo must be RFC3339")
			return
		}

		filter.DateTo = &t
	}

	page := model.Page{Number: queryInt(q, "page", 1), PageSize: queryInt(q, "pageSize", 20)}

	logs, err := s.engine.History(r.Context(), filter, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	writeData(w, http.StatusOK, historyResponse{Logs: logs, Page: page.Number, PageSize: page.PageSize})
}

func queryInt(q map[string][]string, key string, fallback int) int {
	v, ok := q[key]
	if !ok || len(v) == 0 || v[0] == "" {
		return fallback
	}

	n, err := strconv.Atoi(v[0])
	if err != nil || n <= 0 {
		return fallback
	}

	return n
}
