/*
Package metrics provides Prometheus metrics collection and exposition
for tinycloud-node.

Counters (delegations, revocations, invocations, kv bytes, errors) are
incremented inline at their call sites in pkg/core.Delegate/Invoke and
pkg/httpapi's request middleware; gauges that reflect stored state
(space count) are polled periodically by pkg/core.MetricsCollector, which
lives beside the Core it polls rather than in this package, so this
package never has to import its own consumers. Metrics are exposed via
an HTTP endpoint for scraping by Prometheus.

# Metrics Catalog

tinycloud_spaces_total:
  - Type: Gauge
  - Description: Total number of hosted spaces
  - Polled by pkg/core.MetricsCollector every 15s

tinycloud_delegations_total{format}:
  - Type: Counter
  - Description: Total delegations committed, by credential format (ucan/cacao)

tinycloud_revocations_total:
  - Type: Counter
  - Description: Total revocations committed

tinycloud_invocations_total{outcome}:
  - Type: Counter
  - Description: Total invocations by outcome (ok/error)

tinycloud_kv_put_bytes_total:
  - Type: Counter
  - Description: Total bytes persisted via kv/put across every space

tinycloud_epoch_commit_duration_seconds:
  - Type: Histogram
  - Description: Time taken to commit an epoch entry across its touched spaces

tinycloud_http_requests_total{route, status}:
  - Type: Counter
  - Description: Total HTTP requests by route and status

tinycloud_http_request_duration_seconds{route}:
  - Type: Histogram
  - Description: HTTP request duration in seconds by route

tinycloud_errors_total{kind}:
  - Type: Counter
  - Description: Total *tcerr.Error responses by Kind (spec.md §7)

# Usage

	timer := metrics.NewTimer()
	// ... commit an epoch entry ...
	timer.ObserveDuration(metrics.EpochCommitDuration)

	metrics.DelegationsTotal.WithLabelValues(string(format)).Inc()
	metrics.ErrorsTotal.WithLabelValues(string(tcerr.KindOf(err))).Inc()

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
