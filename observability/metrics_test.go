package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAPIObserveCountsErrors(t *testing.T) {
	m := API()
	before := testutil.ToFloat64(m.errors.WithLabelValues("/onboard", "POST", "422"))
	m.Observe("/onboard", "POST", 422, 5*time.Millisecond)
	m.Observe("/onboard", "POST", 200, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("/onboard", "POST", "422")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("/onboard", "POST", "success")), 1.0)

	m.RecordThrottle("", "")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")), 1.0)
}

func TestEventCounters(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.published.WithLabelValues("dao.loot.issued"))
	m.RecordPublished(" DAO.LOOT.ISSUED ")
	require.Equal(t, before+1, testutil.ToFloat64(m.published.WithLabelValues("dao.loot.issued")))
	m.RecordArchived(errors.New("disk full"))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.archived.WithLabelValues("error")), 1.0)

	var nilMetrics *eventMetrics
	nilMetrics.RecordPublished("x")
}
