package stations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day time.Time, hh, mm int) time.Time {
	return day.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func TestBuildTimelineWholeDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := day.AddDate(0, 0, 1)
	points := []StatusPoint{
		{Time: at(day, 8, 0), NewStatus: StatusWarning},
		{Time: at(day, 9, 30), NewStatus: StatusNormal},
	}

	tl := BuildTimeline("S1", day, end, points, end.Add(time.Hour))

	require.Len(t, tl.Segments, 3)
	assert.Equal(t, Segment{Start: day, End: at(day, 8, 0), Status: "normal", Default: true}, tl.Segments[0])
	assert.Equal(t, Segment{Start: at(day, 8, 0), End: at(day, 9, 30), Status: "warning"}, tl.Segments[1])
	assert.Equal(t, Segment{Start: at(day, 9, 30), End: end, Status: "normal"}, tl.Segments[2])
	assert.Equal(t, int64(90*60), tl.Seconds["warning"])
	assert.Equal(t, int64(24*3600-90*60), tl.Seconds["normal"])
}

func TestBuildTimelineToday(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := day.AddDate(0, 0, 1)
	now := at(day, 12, 0)
	points := []StatusPoint{
		{Time: at(day, 10, 0), NewStatus: StatusError},
	}

	tl := BuildTimeline("S1", day, end, points, now)

	require.Len(t, tl.Segments, 3)
	assert.Equal(t, "error", tl.Segments[1].Status)
	assert.Equal(t, now, tl.Segments[1].End)
	assert.Equal(t, SegmentFuture, tl.Segments[2].Status)
	assert.Equal(t, end, tl.Segments[2].End)
	assert.Equal(t, int64(12*3600), tl.Seconds[SegmentFuture])
}

func TestBuildTimelineNoPointsAndFutureDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := day.AddDate(0, 0, 1)

	tl := BuildTimeline("S1", day, end, nil, day.Add(-time.Hour))

	require.Len(t, tl.Segments, 1)
	assert.Equal(t, SegmentFuture, tl.Segments[0].Status)
}

func TestBuildTimelineMergesRepeatedStatusAndIgnoresOutOfRange(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := day.AddDate(0, 0, 1)
	points := []StatusPoint{
		{Time: day.Add(-time.Minute), NewStatus: StatusError},
		{Time: at(day, 9, 0), NewStatus: StatusMaintenance},
		{Time: at(day, 6, 0), NewStatus: StatusWarning},
		{Time: at(day, 7, 0), NewStatus: StatusWarning},
		{Time: end, NewStatus: StatusError},
	}

	tl := BuildTimeline("S1", day, end, points, end)

	require.Len(t, tl.Segments, 3)
	assert.Equal(t, "warning", tl.Segments[1].Status)
	assert.Equal(t, at(day, 6, 0), tl.Segments[1].Start)
	assert.Equal(t, at(day, 9, 0), tl.Segments[1].End)
	assert.Equal(t, "maintenance", tl.Segments[2].Status)
}
