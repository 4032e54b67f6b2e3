package stations

import (
	"sort"
	"time"
)

// SegmentFuture marks the part of today that has not happened yet.
const SegmentFuture = "future"

// Segment is one contiguous span of a single status.
type Segment struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
	// Default is set on the leading segment that precedes the first log row.
	Default bool `json:"default,omitempty"`
}

// Duration returns End minus Start.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Timeline is the reconstructed status history of one station for one day.
type Timeline struct {
	StationID string           `json:"station_id"`
	DayStart  time.Time        `json:"day_start"`
	DayEnd    time.Time        `json:"day_end"`
	Segments  []Segment        `json:"segments"`
	Seconds   map[string]int64 `json:"seconds"`
}

// BuildTimeline reconstructs [dayStart, dayEnd) from change_status points.
// Before the first point the station is assumed normal, and each point holds
// until the next one. When now falls inside the day, real segments stop at
// now and the remainder is reported as a future segment. Points outside the
// day are ignored.
func BuildTimeline(stationID string, dayStart, dayEnd time.Time, points []StatusPoint, now time.Time) Timeline {
	tl := Timeline{
		StationID: stationID,
		DayStart:  dayStart,
		DayEnd:    dayEnd,
		Seconds:   make(map[string]int64),
	}
	if !dayEnd.After(dayStart) {
		return tl
	}

	sorted := make([]StatusPoint, 0, len(points))
	for _, p := range points {
		if p.Time.Before(dayStart) || !p.Time.Before(dayEnd) {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	limit := dayEnd
	if now.After(dayStart) && now.Before(dayEnd) {
		limit = now
	} else if !now.After(dayStart) {
		limit = dayStart
	}

	cursor := dayStart
	current := StatusNormal
	isDefault := true
	for _, p := range sorted {
		if !p.Time.Before(limit) {
			break
		}
		tl.appendSegment(cursor, p.Time, string(current), isDefault)
		cursor = p.Time
		current = p.NewStatus
		isDefault = false
	}
	tl.appendSegment(cursor, limit, string(current), isDefault)
	if limit.Before(dayEnd) {
		tl.appendSegment(limit, dayEnd, SegmentFuture, false)
	}
	return tl
}

func (tl *Timeline) appendSegment(start, end time.Time, status string, isDefault bool) {
	if !end.After(start) {
		return
	}
	if n := len(tl.Segments); n > 0 && tl.Segments[n-1].Status == status && tl.Segments[n-1].End.Equal(start) && !tl.Segments[n-1].Default {
		tl.Segments[n-1].End = end
	} else {
		tl.Segments = append(tl.Segments, Segment{Start: start, End: end, Status: status, Default: isDefault})
	}
	tl.Seconds[status] += int64(end.Sub(start) / time.Second)
}
