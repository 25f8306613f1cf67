package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/progressbus"
)

func TestProgressStreamRelaysEventsAndClosesAfterCompletion(t *testing.T) {
	bus := progressbus.New(0)
	srv := New(Config{Engine: &fakeController{}, Bus: bus})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sync/progress?syncId=sync_1"

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow() //nolint:errcheck

	// Give the server a moment to register the subscription before
	// publishing, since Subscribe happens inside the handler goroutine.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(progressbus.Event{
		Type:   progressbus.EventStatusChange,
		SyncID: "sync_1",
		StatusChange: &progressbus.StatusChangeData{
			OldStatus: model.SyncStatusPending,
			NewStatus: model.SyncStatusRunning,
			Message:   "sync started",
			Timestamp: time.Now(),
		},
	})

	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var frame wireFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	require.Equal(t, progressbus.EventStatusChange, frame.Type)
	require.Equal(t, "sync_1", frame.SyncID)

	bus.Publish(progressbus.Event{
		Type:   progressbus.EventCompletion,
		SyncID: "sync_1",
		Completion: &progressbus.CompletionData{
			Status:   model.SyncStatusCompleted,
			Duration: 2 * time.Second,
			Stats:    progressbus.Stats{Created: 3},
			Summary:  "done",
		},
	})

	_, payload, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &frame))
	require.Equal(t, progressbus.EventCompletion, frame.Type)

	// The server closes shortly after a completion frame for this syncId.
	_, _, err = conn.Read(ctx)
	require.Error(t, err)
}

func TestProgressStreamIgnoresEventsForOtherSyncIDs(t *testing.T) {
	bus := progressbus.New(0)
	srv := New(Config{Engine: &fakeController{}, Bus: bus})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sync/progress?syncId=sync_1"

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow() //nolint:errcheck

	time.Sleep(50 * time.Millisecond)

	bus.Publish(progressbus.Event{
		Type:   progressbus.EventStatusChange,
		SyncID: "sync_other",
		StatusChange: &progressbus.StatusChangeData{
			OldStatus: model.SyncStatusPending,
			NewStatus: model.SyncStatusRunning,
			Timestamp: time.Now(),
		},
	})

	bus.Publish(progressbus.Event{
		Type:   progressbus.EventStatusChange,
		SyncID: "sync_1",
		StatusChange: &progressbus.StatusChangeData{
			OldStatus: model.SyncStatusPending,
			NewStatus: model.SyncStatusRunning,
			Timestamp: time.Now(),
		},
	})

	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var frame wireFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	require.Equal(t, "sync_1", frame.SyncID)
}
