package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		IncCancellation("owner")
		IncCompensation("ok")
		IncNotification("sent")
	})
}

func TestBookingCounter(t *testing.T) {
	before := counterValue(t, bookings.WithLabelValues("slot_taken"))
	IncBooking("slot_taken")
	assert.Equal(t, before+1, counterValue(t, bookings.WithLabelValues("slot_taken")))

	before = counterValue(t, syncTasks.WithLabelValues("sheets_upsert", "completed"))
	IncSyncTask("sheets_upsert", "completed")
	assert.Equal(t, before+1, counterValue(t, syncTasks.WithLabelValues("sheets_upsert", "completed")))
}
