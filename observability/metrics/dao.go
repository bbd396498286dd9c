package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DAOMetrics tracks the onboarding lifecycle of every organization served by
// the process.
type DAOMetrics struct {
	proposalsSubmitted *prometheus.CounterVec
	proposalsSponsored *prometheus.CounterVec
	proposalsProcessed *prometheus.CounterVec
	lootIssued         *prometheus.CounterVec
	stakeReceived      *prometheus.CounterVec
	votesCast          *prometheus.CounterVec
	failures           *prometheus.CounterVec
}

var (
	daoOnce     sync.Once
	daoRegistry *DAOMetrics
)

// DAO returns the process-wide DAO metrics, registering them on first use.
func DAO() *DAOMetrics {
	daoOnce.Do(func() {
		daoRegistry = &DAOMetrics{
			proposalsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "guild_proposals_submitted_total",
				Help: "Count of onboarding proposals submitted by asset.",
			}, []string{"asset"}),
			proposalsSponsored: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "guild_proposals_sponsored_total",
				Help: "Count of proposals sponsored into voting.",
			}, []string{"org"}),
			proposalsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "guild_proposals_processed_total",
				Help: "Count of processed proposals by outcome.",
			}, []string{"outcome"}),
			lootIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "guild_loot_issued_units_total",
				Help: "Loot units granted to new members.",
			}, []string{"org"}),
			stakeReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "guild_stake_received_total",
				Help: "Stake accepted into escrow by asset, in base units.",
			}, []string{"asset"}),
			votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "guild_votes_cast_total",
				Help: "Ballots recorded by choice.",
			}, []string{"choice"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "guild_operation_failures_total",
				Help: "Rejected operations by operation and error code.",
			}, []string{"operation", "code"}),
		}
		prometheus.MustRegister(
			daoRegistry.proposalsSubmitted,
			daoRegistry.proposalsSponsored,
			daoRegistry.proposalsProcessed,
			daoRegistry.lootIssued,
			daoRegistry.stakeReceived,
			daoRegistry.votesCast,
			daoRegistry.failures,
		)
	})
	return daoRegistry
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (m *DAOMetrics) ObserveSubmitted(asset string) {
	if m == nil {
		return
	}
	m.proposalsSubmitted.WithLabelValues(label(asset)).Inc()
}

func (m *DAOMetrics) ObserveSponsored(org string) {
	if m == nil {
		return
	}
	m.proposalsSponsored.WithLabelValues(label(org)).Inc()
}

func (m *DAOMetrics) ObserveProcessed(outcome string) {
	if m == nil {
		return
	}
	m.proposalsProcessed.WithLabelValues(label(outcome)).Inc()
}

// ObserveLootIssued adds units to the issued counter. Values beyond float64
// precision are approximated.
func (m *DAOMetrics) ObserveLootIssued(org string, units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.lootIssued.WithLabelValues(label(org)).Add(units)
}

func (m *DAOMetrics) ObserveStake(asset string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.stakeReceived.WithLabelValues(label(asset)).Add(amount)
}

func (m *DAOMetrics) ObserveVote(choice string) {
	if m == nil {
		return
	}
	m.votesCast.WithLabelValues(label(choice)).Inc()
}

func (m *DAOMetrics) ObserveFailure(operation, code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(label(operation), label(code)).Inc()
}
