package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks point ledger writes and ratio migration progress.
type LedgerMetrics struct {
	transactionsWritten *prometheus.CounterVec
	redemptionsRejected *prometheus.CounterVec
	migrationBatches    *prometheus.CounterVec
	migrationCursor     prometheus.Gauge
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics, registering them on
// first use.
func Ledger() *LedgerMetrics {
	return LedgerWithConfig("rewardly", "unknown")
}

// LedgerWithConfig returns the process-wide ledger metrics with explicit labels.
func LedgerWithConfig(serviceName, environment string) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = newLedgerMetrics(prometheus.DefaultRegisterer, serviceName, environment)
	})
	return ledgerMetrics
}

// ResetLedgerMetricsForTest clears the singleton between test registries.
func ResetLedgerMetricsForTest() {
	ledgerMetricsOnce = sync.Once{}
	ledgerMetrics = nil
}

func newLedgerMetrics(registerer prometheus.Registerer, serviceName, environment string) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	service := strings.TrimSpace(serviceName)
	if service == "" {
		service = "rewardly"
	}
	env := strings.TrimSpace(environment)
	if env == "" {
		env = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": service,
		"env":     env,
	}

	transactionsWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "rewardly_points_transactions_total",
			Help:        "Total point transactions appended to the ledger.",
			ConstLabels: constLabels,
		},
		[]string{"type"},
	)

	redemptionsRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "rewardly_points_redemptions_rejected_total",
			Help:        "Redemption attempts rejected by validation.",
			ConstLabels: constLabels,
		},
		[]string{"reason"},
	)

	migrationBatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "rewardly_ratio_migration_batches_total",
			Help:        "Ratio migration batches processed.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // success | failed
	)

	migrationCursor := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "rewardly_ratio_migration_cursor",
			Help:        "Last ledger transaction id covered by the running ratio migration.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		transactionsWritten,
		redemptionsRejected,
		migrationBatches,
		migrationCursor,
	)

	return &LedgerMetrics{
		transactionsWritten: transactionsWritten,
		redemptionsRejected: redemptionsRejected,
		migrationBatches:    migrationBatches,
		migrationCursor:     migrationCursor,
	}
}

// IncTransaction counts an appended ledger transaction by type.
func (m *LedgerMetrics) IncTransaction(transactionType string) {
	if m == nil {
		return
	}
	m.transactionsWritten.WithLabelValues(transactionType).Inc()
}

// IncRedemptionRejected counts a redemption rejected by validation.
func (m *LedgerMetrics) IncRedemptionRejected(reason string) {
	if m == nil {
		return
	}
	m.redemptionsRejected.WithLabelValues(reason).Inc()
}

// IncMigrationBatch counts a processed migration batch.
func (m *LedgerMetrics) IncMigrationBatch(result string) {
	if m == nil {
		return
	}
	m.migrationBatches.WithLabelValues(result).Inc()
}

// SetMigrationCursor records migration progress for dashboards.
func (m *LedgerMetrics) SetMigrationCursor(cursor int64) {
	if m == nil {
		return
	}
	m.migrationCursor.Set(float64(cursor))
}
