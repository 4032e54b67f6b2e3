package stations

import "time"

// EventType classifies audit log rows.
type EventType string

const (
	EventChangeStatus EventType = "change_status"
	EventClearAll     EventType = "clear_all"
	EventResetAll     EventType = "reset_all"
)

// SourceServer is recorded when no caller source is supplied.
const SourceServer = "server"

// StatusLogEntry is an append-only audit record. Station and status fields
// are nil on summary rows.
type StatusLogEntry struct {
	ID        int64     `json:"id"`
	EventType EventType `json:"event_type"`
	Source    string    `json:"source"`
	StationID *string   `json:"station_id,omitempty"`
	OldStatus *Status   `json:"old_status,omitempty"`
	NewStatus *Status   `json:"new_status,omitempty"`
	Time      time.Time `json:"time"`
}

// NewChangeEntry builds a change_status row.
func NewChangeEntry(stationID string, oldStatus, newStatus Status, source string, at time.Time) *StatusLogEntry {
	id := stationID
	old := oldStatus
	next := newStatus
	return &StatusLogEntry{
		EventType: EventChangeStatus,
		Source:    source,
		StationID: &id,
		OldStatus: &old,
		NewStatus: &next,
		Time:      at,
	}
}

// NewSummaryEntry builds a station-less summary row.
func NewSummaryEntry(eventType EventType, source string, at time.Time) *StatusLogEntry {
	return &StatusLogEntry{EventType: eventType, Source: source, Time: at}
}

// StatusPoint is one (time, new status) sample used by timelines.
type StatusPoint struct {
	Time      time.Time `json:"time"`
	NewStatus Status    `json:"new_status"`
}
