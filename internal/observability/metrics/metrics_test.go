package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCountersAfterInit(t *testing.T) {
	Init(nil, zerolog.Nop())

	before := testutil.ToFloat64(statusTransitions.WithLabelValues("error", "api"))
	IncStatusTransition("error", "api")
	assert.Equal(t, before+1, testutil.ToFloat64(statusTransitions.WithLabelValues("error", "api")))

	beforeDrop := testutil.ToFloat64(notificationsTotal.WithLabelValues("webhook", ResultDropped))
	IncNotification("webhook", ResultDropped)
	assert.Equal(t, beforeDrop+1, testutil.ToFloat64(notificationsTotal.WithLabelValues("webhook", ResultDropped)))

	AddRealtimeClients("sse", 2)
	AddRealtimeClients("sse", -1)
	assert.Equal(t, float64(1), testutil.ToFloat64(realtimeClients.WithLabelValues("sse")))

	ObserveHTTP("GET", "/api/stations", 200, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/stations", "2xx")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}
