package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics counts booking creation outcomes and settlement paths.
type BookingMetrics struct {
	created    *prometheus.CounterVec
	settlement *prometheus.CounterVec
	retried    *prometheus.CounterVec
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_create_total",
		Help: "Booking creation attempts by result.",
	}, []string{"result"})
	settlement := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_total",
		Help: "Completed settlements by path.",
	}, []string{"path"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_retry_total",
		Help: "Settlement retries on existing bookings by result.",
	}, []string{"result"})
	reg.MustRegister(created, settlement, retried)
	return &BookingMetrics{created: created, settlement: settlement, retried: retried}
}

// IncCreate counts one booking attempt. result is "ok" or an error code.
func (b *BookingMetrics) IncCreate(result string) {
	if b == nil || b.created == nil {
		return
	}
	b.created.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncSettlement counts one settlement that finished on path.
func (b *BookingMetrics) IncSettlement(path string) {
	if b == nil || b.settlement == nil {
		return
	}
	b.settlement.WithLabelValues(normalizeLabel(path)).Inc()
}

// IncRetry counts one settlement retry. result is "ok" or an error code.
func (b *BookingMetrics) IncRetry(result string) {
	if b == nil || b.retried == nil {
		return
	}
	b.retried.WithLabelValues(normalizeLabel(result)).Inc()
}
