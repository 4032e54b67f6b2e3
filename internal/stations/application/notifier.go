package application

import (
	"context"
	"time"

	stations "andon-board/internal/stations/domain"
)

// Event types pushed to dashboards and integrations.
const (
	EventStationStatusUpdated = "station_status_updated"
	EventStationsReset        = "stations_reset"
	EventStationsData         = "stations_data"
)

// ResetSummary is the payload of the aggregate reset event.
type ResetSummary struct {
	ResetCount int       `json:"reset_count"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// StationEvent is one fan-out message. Exactly one of Transition or Reset is set.
type StationEvent struct {
	Type       string               `json:"type"`
	Transition *stations.Transition `json:"transition,omitempty"`
	Reset      *ResetSummary        `json:"reset,omitempty"`
}

// TransitionEvent wraps a committed transition.
func TransitionEvent(t stations.Transition) StationEvent {
	return StationEvent{Type: EventStationStatusUpdated, Transition: &t}
}

// ResetEvent builds the aggregate event emitted after a bulk reset.
func ResetEvent(result stations.ResetResult, source string) StationEvent {
	return StationEvent{Type: EventStationsReset, Reset: &ResetSummary{
		ResetCount: result.ResetCount,
		Source:     source,
		Timestamp:  result.Timestamp,
	}}
}

// Payload returns the body pushed to subscribers for this event.
func (e StationEvent) Payload() any {
	switch {
	case e.Transition != nil:
		return e.Transition
	case e.Reset != nil:
		return e.Reset
	default:
		return nil
	}
}

// StationID returns the station the event concerns, or "" for aggregates.
func (e StationEvent) StationID() string {
	if e.Transition != nil {
		return e.Transition.StationID
	}
	return ""
}

// Notifier receives committed station events. Implementations must not
// block the caller for long; they run while the station lock is held.
type Notifier interface {
	Notify(ctx context.Context, event StationEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event StationEvent)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event StationEvent) {
	if f != nil {
		f(ctx, event)
	}
}

// Publisher is a typed broadcast sink such as the realtime hub.
type Publisher interface {
	Publish(eventType string, data any)
}

// PublisherNotifier forwards station events to a Publisher.
func PublisherNotifier(p Publisher) Notifier {
	return NotifierFunc(func(_ context.Context, event StationEvent) {
		if p == nil {
			return
		}
		p.Publish(event.Type, event.Payload())
	})
}

// CommitFunc runs after a transition commits, under the station lock.
type CommitFunc func(ctx context.Context, t stations.Transition)

// NotifyOnCommit returns a CommitFunc that emits a station_status_updated
// event to n.
func NotifyOnCommit(n Notifier) CommitFunc {
	if n == nil {
		return nil
	}
	return func(ctx context.Context, t stations.Transition) {
		n.Notify(ctx, TransitionEvent(t))
	}
}
