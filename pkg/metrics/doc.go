/*
Package metrics provides Prometheus metrics collection and exposition for
Stratum's scheduler, executor, index mapper, and webhook notifier.

Metrics are registered at package init and exposed via Handler(), mounted
under /metrics by pkg/api. Collector refreshes the gauges that are cheap to
recompute periodically (queue used-fraction, per-status totals) rather than
on every task mutation; counters and histograms (tasks enqueued, batch
duration, tick duration, webhook outcomes) are updated inline by the
components that produce the events.

	metrics.TasksEnqueuedTotal.WithLabelValues(string(kind)).Inc()
	timer := metrics.NewTimer()
	// ... run a batch ...
	timer.ObserveDuration(metrics.BatchDuration)
*/
package metrics
