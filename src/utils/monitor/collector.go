package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	ChainCurrentHeight                    *prometheus.Desc
	LastSyncedBlock                       *prometheus.Desc
	TargetBlock                           *prometheus.Desc
	SyncProgressPercent                   *prometheus.Desc
	TransactionsPersisted                 *prometheus.Desc
	OperationsSaved                       *prometheus.Desc
	ReorgsDetected                        *prometheus.Desc
	UnresolvableRetries                   *prometheus.Desc
	TransactionsInFlight                  *prometheus.Desc
	AverageTransactionsPersistedPerMinute *prometheus.Desc
	AverageBlocksSyncedPerMinute          *prometheus.Desc
	UpForSeconds                          *prometheus.Desc

	ChainReadErrors      *prometheus.Desc
	CasRetrievalErrors   *prometheus.Desc
	ProcessingErrors     *prometheus.Desc
	StoreErrors          *prometheus.Desc
	LoopFailures         *prometheus.Desc
	UnresolvableRecorded *prometheus.Desc
}

func NewCollector() *Collector {
	labels := prometheus.Labels{
		"app": "observer",
	}

	return &Collector{
		ChainCurrentHeight:                    prometheus.NewDesc("chain_current_height", "", nil, labels),
		LastSyncedBlock:                       prometheus.NewDesc("last_synced_block", "", nil, labels),
		TargetBlock:                           prometheus.NewDesc("target_block", "", nil, labels),
		SyncProgressPercent:                   prometheus.NewDesc("sync_progress_percent", "", nil, labels),
		TransactionsPersisted:                 prometheus.NewDesc("transactions_persisted", "", nil, labels),
		OperationsSaved:                       prometheus.NewDesc("operations_saved", "", nil, labels),
		ReorgsDetected:                        prometheus.NewDesc("reorgs_detected", "", nil, labels),
		UnresolvableRetries:                   prometheus.NewDesc("unresolvable_retries", "", nil, labels),
		TransactionsInFlight:                  prometheus.NewDesc("transactions_in_flight", "", nil, labels),
		AverageTransactionsPersistedPerMinute: prometheus.NewDesc("average_transactions_persisted_per_minute", "", nil, labels),
		AverageBlocksSyncedPerMinute:          prometheus.NewDesc("average_blocks_synced_per_minute", "", nil, labels),
		UpForSeconds:                          prometheus.NewDesc("up_for_seconds", "", nil, labels),

		// Errors
		ChainReadErrors:      prometheus.NewDesc("error_chain_read", "", nil, labels),
		CasRetrievalErrors:   prometheus.NewDesc("error_cas_retrieval", "", nil, labels),
		ProcessingErrors:     prometheus.NewDesc("error_processing", "", nil, labels),
		StoreErrors:          prometheus.NewDesc("error_store", "", nil, labels),
		LoopFailures:         prometheus.NewDesc("error_loop_failures", "", nil, labels),
		UnresolvableRecorded: prometheus.NewDesc("error_unresolvable_recorded", "", nil, labels),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(self, ch)
}

func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	state := &self.monitor.Report.State
	errors := &self.monitor.Report.Errors

	ch <- prometheus.MustNewConstMetric(self.ChainCurrentHeight, prometheus.GaugeValue, float64(state.ChainCurrentHeight.Load()))
	ch <- prometheus.MustNewConstMetric(self.LastSyncedBlock, prometheus.GaugeValue, float64(state.LastSyncedBlock.Load()))
	ch <- prometheus.MustNewConstMetric(self.TargetBlock, prometheus.GaugeValue, float64(state.TargetBlock.Load()))
	ch <- prometheus.MustNewConstMetric(self.SyncProgressPercent, prometheus.GaugeValue, state.SyncProgressPercent.Load())
	ch <- prometheus.MustNewConstMetric(self.TransactionsPersisted, prometheus.CounterValue, float64(state.TransactionsPersisted.Load()))
	ch <- prometheus.MustNewConstMetric(self.OperationsSaved, prometheus.CounterValue, float64(state.OperationsSaved.Load()))
	ch <- prometheus.MustNewConstMetric(self.ReorgsDetected, prometheus.CounterValue, float64(state.ReorgsDetected.Load()))
	ch <- prometheus.MustNewConstMetric(self.UnresolvableRetries, prometheus.CounterValue, float64(state.UnresolvableRetries.Load()))
	ch <- prometheus.MustNewConstMetric(self.TransactionsInFlight, prometheus.GaugeValue, float64(state.TransactionsInFlight.Load()))
	ch <- prometheus.MustNewConstMetric(self.AverageTransactionsPersistedPerMinute, prometheus.GaugeValue, state.AverageTransactionsPersistedPerMinute.Load())
	ch <- prometheus.MustNewConstMetric(self.AverageBlocksSyncedPerMinute, prometheus.GaugeValue, state.AverageBlocksSyncedPerMinute.Load())
	ch <- prometheus.MustNewConstMetric(self.UpForSeconds, prometheus.GaugeValue, float64(state.UpForSeconds.Load()))

	ch <- prometheus.MustNewConstMetric(self.ChainReadErrors, prometheus.CounterValue, float64(errors.ChainReadErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.CasRetrievalErrors, prometheus.CounterValue, float64(errors.CasRetrievalErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.ProcessingErrors, prometheus.CounterValue, float64(errors.ProcessingErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.StoreErrors, prometheus.CounterValue, float64(errors.StoreErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.LoopFailures, prometheus.CounterValue, float64(errors.LoopFailures.Load()))
	ch <- prometheus.MustNewConstMetric(self.UnresolvableRecorded, prometheus.CounterValue, float64(errors.UnresolvableRecorded.Load()))
}
