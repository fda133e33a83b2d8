// Package telemetry implements the cluster telemetry collector (C5): a
// periodic PromQL scraper that normalizes a fixed query set into a
// cluster snapshot record, time-aligned to the run clock.
//
// Queries are issued through github.com/prometheus/client_golang/api and
// its api/prometheus/v1 client — the PromQL query-side complement of the
// client_golang exposition library the rest of the corpus already uses.
// The query shapes and the -99 sentinel/active-node averaging policy are
// taken directly from the original implementation's scrape_kn.py and
// scrape_infra.py.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
)

// errorSentinel is substituted for any metric that failed to scrape or
// resolved to NaN (§4.5 policy). Per-function maps from a failed query
// are left empty instead (see queryByLabel).
const errorSentinel = -99

// activeNodeCPUThreshold is the minimum CPU% for a node to count toward
// the "active-node average" (§4.5).
const activeNodeCPUThreshold = 5.0

// ClusterSnapshot is one scrape-interval record (§3).
type ClusterSnapshot struct {
	TimestampUnixNano int64 `json:"timestamp_ns"`

	NodeCPUPercentAvg    float64 `json:"node_cpu_pct_avg"`
	NodeCPUPercentMax    float64 `json:"node_cpu_pct_max"`
	NodeCPUPercentActive float64 `json:"node_cpu_pct_active"`
	NodeMemPercentAvg    float64 `json:"node_mem_pct_avg"`
	NodeMemPercentMax    float64 `json:"node_mem_pct_max"`

	DesiredReplicas     map[string]float64 `json:"desired_replicas"`
	RunningReplicas     map[string]float64 `json:"running_replicas"`
	UnreadyReplicas     map[string]float64 `json:"unready_replicas"`
	PendingReplicas     map[string]float64 `json:"pending_replicas"`
	TerminatingReplicas map[string]float64 `json:"terminating_replicas"`

	ActivatorQueueDepth float64 `json:"activator_queue_depth"`
	SchedulerP50Ms      float64 `json:"scheduler_p50_ms"`
	SchedulerP95Ms      float64 `json:"scheduler_p95_ms"`
	SchedulerP99Ms      float64 `json:"scheduler_p99_ms"`
}

// Queries holds the fixed PromQL query set (§4.5), grounded verbatim in
// the original implementation's scrape_kn.py/scrape_infra.py shapes.
type Queries struct {
	NodeCPUPercent      string
	NodeMemPercent      string
	DesiredReplicas     string
	RunningReplicas     string
	UnreadyReplicas     string
	PendingReplicas     string
	TerminatingReplicas string
	ActivatorQueueDepth string
	SchedulerP50        string
	SchedulerP95        string
	SchedulerP99        string
}

// DefaultQueries returns the stock query set used against a standard
// Knative-on-Kubernetes deployment.
func DefaultQueries() Queries {
	return Queries{
		NodeCPUPercent:      `100 * (1 - avg by (instance) (rate(node_cpu_seconds_total{mode="idle"}[30s])))`,
		NodeMemPercent:      `100 * (1 - node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes)`,
		DesiredReplicas:     `sum by (configuration_name) (autoscaler_desired_pods)`,
		RunningReplicas:     `sum by (configuration_name) (autoscaler_actual_pods)`,
		UnreadyReplicas:     `sum by (configuration_name) (autoscaler_not_ready_pods)`,
		PendingReplicas:     `sum by (configuration_name) (autoscaler_pending_pods)`,
		TerminatingReplicas: `sum by (configuration_name) (autoscaler_terminating_pods)`,
		ActivatorQueueDepth: `sum(activator_request_concurrency)`,
		SchedulerP50:        `histogram_quantile(0.50, sum by (le) (rate(autoscaler_excess_burst_capacity_bucket[30s])))`,
		SchedulerP95:        `histogram_quantile(0.95, sum by (le) (rate(autoscaler_excess_burst_capacity_bucket[30s])))`,
		SchedulerP99:        `histogram_quantile(0.99, sum by (le) (rate(autoscaler_excess_burst_capacity_bucket[30s])))`,
	}
}

// Collector periodically scrapes the query set and appends snapshots.
type Collector struct {
	api     promv1.API
	queries Queries
}

// NewCollector builds a Collector against a Prometheus HTTP address.
func NewCollector(address string, queries Queries) (*Collector, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, err
	}
	return &Collector{api: promv1.NewAPI(client), queries: queries}, nil
}

// Run scrapes every period until ctx is cancelled, sending one snapshot
// per tick to out. out is closed on return.
func (c *Collector) Run(ctx context.Context, period time.Duration, out chan<- ClusterSnapshot) {
	defer close(out)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out <- c.scrapeOnce(ctx)
		}
	}
}

func (c *Collector) scrapeOnce(ctx context.Context) ClusterSnapshot {
	nodeCPU := c.queryVector(ctx, c.queries.NodeCPUPercent)
	nodeMem := c.queryVector(ctx, c.queries.NodeMemPercent)

	snap := ClusterSnapshot{
		TimestampUnixNano:    time.Now().UnixNano(),
		NodeCPUPercentAvg:    average(nodeCPU),
		NodeCPUPercentMax:    maxOf(nodeCPU),
		NodeCPUPercentActive: activeAverage(nodeCPU, activeNodeCPUThreshold),
		NodeMemPercentAvg:    average(nodeMem),
		NodeMemPercentMax:    maxOf(nodeMem),
		DesiredReplicas:      c.queryByLabel(ctx, c.queries.DesiredReplicas, "configuration_name"),
		RunningReplicas:     c.queryByLabel(ctx, c.queries.RunningReplicas, "configuration_name"),
		UnreadyReplicas:     c.queryByLabel(ctx, c.queries.UnreadyReplicas, "configuration_name"),
		PendingReplicas:     c.queryByLabel(ctx, c.queries.PendingReplicas, "configuration_name"),
		TerminatingReplicas: c.queryByLabel(ctx, c.queries.TerminatingReplicas, "configuration_name"),
		ActivatorQueueDepth: c.queryScalar(ctx, c.queries.ActivatorQueueDepth),
		SchedulerP50Ms:      c.queryScalar(ctx, c.queries.SchedulerP50),
		SchedulerP95Ms:      c.queryScalar(ctx, c.queries.SchedulerP95),
		SchedulerP99Ms:      c.queryScalar(ctx, c.queries.SchedulerP99),
	}
	return snap
}

// queryVector runs an instant query and returns its sample values, or nil
// if the query errored. NaN samples are dropped, so an all-NaN result
// reduces to errorSentinel like an empty one.
func (c *Collector) queryVector(ctx context.Context, query string) []float64 {
	value, _, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		logrus.WithError(err).WithField("query", query).Warn("telemetry scrape failed")
		return nil
	}
	vector, ok := value.(model.Vector)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(vector))
	for _, sample := range vector {
		v := float64(sample.Value)
		if isNaN(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// queryScalar runs an instant query and reduces it to a single value,
// returning errorSentinel on failure or an empty result (§4.5 policy).
func (c *Collector) queryScalar(ctx context.Context, query string) float64 {
	values := c.queryVector(ctx, query)
	if len(values) == 0 {
		return errorSentinel
	}
	return values[0]
}

// queryByLabel runs an instant query and buckets its samples by label,
// replacing NaN samples with errorSentinel. When the query fails outright
// it returns an empty map; no sentinel entry is recorded for that case.
func (c *Collector) queryByLabel(ctx context.Context, query, label string) map[string]float64 {
	value, _, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		logrus.WithError(err).WithField("query", query).Warn("telemetry scrape failed")
		return map[string]float64{}
	}
	vector, ok := value.(model.Vector)
	if !ok {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(vector))
	for _, sample := range vector {
		name := string(sample.Metric[model.LabelName(label)])
		v := float64(sample.Value)
		if isNaN(v) {
			v = errorSentinel
		}
		out[name] = v
	}
	return out
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return errorSentinel
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return errorSentinel
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// activeAverage averages only the values at or above threshold (§4.5
// "active-node average"). When no node clears the threshold, the original
// source forces active_node=1 so the ratio evaluates to 0 rather than
// reporting a scrape error — errorSentinel is reserved for genuine query
// failures, not an empty active set.
func activeAverage(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return errorSentinel
	}
	var sum float64
	var n int
	for _, v := range values {
		if v >= threshold {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func isNaN(v float64) bool { return v != v }
