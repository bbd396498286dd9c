package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDAOMetricsCount(t *testing.T) {
	m := DAO()
	if DAO() != m {
		t.Fatalf("expected singleton registry")
	}
	before := testutil.ToFloat64(m.failures.WithLabelValues("onboard", "INVALID_AMOUNT"))
	m.ObserveFailure("onboard", "INVALID_AMOUNT")
	after := testutil.ToFloat64(m.failures.WithLabelValues("onboard", "INVALID_AMOUNT"))
	if after-before != 1 {
		t.Fatalf("expected failure counter to grow by 1, got %v", after-before)
	}
	m.ObserveLootIssued("org", 0)
	m.ObserveSubmitted("")
	if got := testutil.ToFloat64(m.proposalsSubmitted.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("empty labels must be recorded as unknown")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *DAOMetrics
	m.ObserveSubmitted("native")
	m.ObserveProcessed("passed")
	m.ObserveFailure("process", "INVALID_STATE")
}
