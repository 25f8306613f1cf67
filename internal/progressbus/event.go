// Package progressbus implements ProgressBus (C5, spec §4.5): an
// in-process pub-sub that fans sync events out to HTTP/WebSocket
// subscribers, with per-subscriber bounded buffers and drop-oldest +
// lagged-marker semantics so a slow subscriber never blocks the
// publisher.
package progressbus

import (
	"time"

	"github.com/acme-retail/tablesync/internal/model"
)

// EventType tags the wire shape of one Event, matching spec §6.3's frame
// types verbatim.
type EventType string

const (
	EventStatusChange EventType = "status_change"
	EventProgress     EventType = "progress"
	EventError        EventType = "error"
	EventCompletion   EventType = "completion"
	EventLagged       EventType = "lagged"
)

// StatusChangeData is the payload of a status_change frame.
type StatusChangeData struct {
	OldStatus model.SyncStatus
	NewStatus model.SyncStatus
	Message   string
	Timestamp time.Time
}

// ProgressData is the payload of a progress frame.
type ProgressData struct {
	Stage                     model.SyncStage
	Current                   int
	Total                     int
	CurrentOperation          string
	EstimatedSecondsRemaining *int64
}

// Percentage computes the progress frame's derived percentage field.
func (p ProgressData) Percentage() float64 {
	if p.Total <= 0 {
		return 0
	}

	return float64(p.Current) / float64(p.Total) * 100
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	ErrorType   string
	Message     string
	ProductID   string
	Recoverable bool
	Timestamp   time.Time
}

// Stats is the created/updated/skipped/errors tuple in a completion frame.
type Stats struct {
	Created int
	Updated int
	Skipped int
	Errors  int
}

// CompletionData is the payload of a completion frame.
type CompletionData struct {
	Status   model.SyncStatus
	Duration time.Duration
	Stats    Stats
	Summary  string
}

// LaggedData is the payload of a lagged frame: how many events were
// dropped for this subscriber since the last one it received.
type LaggedData struct {
	Dropped int
}

// Event is one message published to the bus. Exactly one of the data
// fields is populated, matching Type.
type Event struct {
	Type   EventType
	SyncID string

	StatusChange *StatusChangeData
	Progress     *ProgressData
	Error        *ErrorData
	Completion   *CompletionData
	Lagged       *LaggedData
}
