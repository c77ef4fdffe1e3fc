package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSagaMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSagaMetrics(reg)

	m.ObservePhase("finalize", "PURCHASED", 12)
	m.ObserveCompensation("release_purse", nil)
	m.ObserveCompensation("cancel_product", errors.New("boom"))
	m.ObserveCompensation("cancel_product", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Phases.WithLabelValues("finalize", "PURCHASED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Gaps.WithLabelValues("cancel_product")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("release_purse", "ok")))
}
