package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQualityRate(t *testing.T) {
	assert.Equal(t, 0.0, QualityRate(0, 0))
	assert.Equal(t, 100.0, QualityRate(50, 0))
	assert.Equal(t, 66.67, QualityRate(3, 1))
	assert.Equal(t, 98.5, QualityRate(200, 3))
}

func TestSummarize(t *testing.T) {
	perf := Summarize([]StationPerformance{
		{StationID: "S1", TotalProducts: 100, DefectProducts: 5, DowntimeMinutes: 10},
		{StationID: "S2", TotalProducts: 0},
		{StationID: "S3", TotalProducts: 300, DefectProducts: 15, DowntimeMinutes: 20},
	})
	assert.Equal(t, 95.0, perf.Stations[0].QualityRate)
	assert.Equal(t, 0.0, perf.Stations[1].QualityRate)
	assert.Equal(t, PerformanceTotals{TotalProducts: 400, DefectProducts: 20, DowntimeMinutes: 30, QualityRate: 95}, perf.Totals)

	empty := Summarize(nil)
	assert.NotNil(t, empty.Stations)
	assert.Zero(t, empty.Totals.QualityRate)
}

func TestProductionRecordValidate(t *testing.T) {
	ok := ProductionRecord{StationID: "S1", Date: time.Now(), TotalProducts: 10, DefectProducts: 1, DowntimeMinutes: 5}
	assert.NoError(t, ok.Validate())

	cases := map[string]ProductionRecord{
		"missing station": {TotalProducts: 1},
		"negative":        {StationID: "S1", TotalProducts: -1},
		"defects > total": {StationID: "S1", TotalProducts: 1, DefectProducts: 2},
		"downtime":        {StationID: "S1", DowntimeMinutes: 24*60 + 1},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, rec.Validate(), ErrInvalidProduction)
		})
	}
}
