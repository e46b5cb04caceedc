package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallStateCounter returns call counts grouped by call_state.
type CallStateCounter interface {
	CountByState(ctx context.Context) (map[string]int64, error)
}

// EventCounter returns the total number of accepted call events.
type EventCounter interface {
	Count(ctx context.Context) (int64, error)
}

// OutboundStatusCounter returns outbound event counts grouped by status.
type OutboundStatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// WebhookStatsProvider exposes the webhook processor's counters.
type WebhookStatsProvider interface {
	StatsSnapshot() (accepted, duplicates, unknown, softSkips int64)
}

// Collector is a prometheus.Collector that gathers calltrail metrics at
// scrape time.
type Collector struct {
	calls     CallStateCounter
	events    EventCounter
	outbound  OutboundStatusCounter
	webhooks  WebhookStatsProvider
	startTime time.Time

	// Metric descriptors.
	callsDesc              *prometheus.Desc
	eventsDesc             *prometheus.Desc
	outboundDesc           *prometheus.Desc
	webhookAcceptedDesc    *prometheus.Desc
	webhookDuplicatesDesc  *prometheus.Desc
	webhookUnknownDesc     *prometheus.Desc
	webhookSoftSkippedDesc *prometheus.Desc
	uptimeDesc             *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil
// if unavailable.
func NewCollector(
	calls CallStateCounter,
	events EventCounter,
	outbound OutboundStatusCounter,
	webhooks WebhookStatsProvider,
	startTime time.Time,
) *Collector {
	return &Collector{
		calls:     calls,
		events:    events,
		outbound:  outbound,
		webhooks:  webhooks,
		startTime: startTime,

		callsDesc: prometheus.NewDesc(
			"calltrail_calls",
			"Number of call aggregates by lifecycle state",
			[]string{"state"}, nil,
		),
		eventsDesc: prometheus.NewDesc(
			"calltrail_call_events_total",
			"Total accepted (non-duplicate) call events",
			nil, nil,
		),
		outboundDesc: prometheus.NewDesc(
			"calltrail_outbound_events",
			"Number of outbound events by status",
			[]string{"status"}, nil,
		),
		webhookAcceptedDesc: prometheus.NewDesc(
			"calltrail_webhook_accepted_total",
			"Webhook deliveries accepted since process start",
			nil, nil,
		),
		webhookDuplicatesDesc: prometheus.NewDesc(
			"calltrail_webhook_duplicates_total",
			"Duplicate webhook deliveries detected since process start",
			nil, nil,
		),
		webhookUnknownDesc: prometheus.NewDesc(
			"calltrail_webhook_unknown_types_total",
			"Webhook deliveries with an unknown event type since process start",
			nil, nil,
		),
		webhookSoftSkippedDesc: prometheus.NewDesc(
			"calltrail_webhook_soft_skips_total",
			"Webhook deliveries skipped for no_org or module_disabled since process start",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"calltrail_uptime_seconds",
			"Seconds since the calltrail process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callsDesc
	ch <- c.eventsDesc
	ch <- c.outboundDesc
	ch <- c.webhookAcceptedDesc
	ch <- c.webhookDuplicatesDesc
	ch <- c.webhookUnknownDesc
	ch <- c.webhookSoftSkippedDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.calls != nil {
		counts, err := c.calls.CountByState(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls", "error", err)
		} else {
			for state, n := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.callsDesc, prometheus.GaugeValue, float64(n), state,
				)
			}
		}
	}

	if c.events != nil {
		n, err := c.events.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count call events", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.eventsDesc, prometheus.CounterValue, float64(n),
			)
		}
	}

	if c.outbound != nil {
		counts, err := c.outbound.CountByStatus(ctx)
		if err != nil {
			slog.Error("metrics: failed to count outbound events", "error", err)
		} else {
			for status, n := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.outboundDesc, prometheus.GaugeValue, float64(n), status,
				)
			}
		}
	}

	if c.webhooks != nil {
		accepted, duplicates, unknown, softSkips := c.webhooks.StatsSnapshot()
		ch <- prometheus.MustNewConstMetric(
			c.webhookAcceptedDesc, prometheus.CounterValue, float64(accepted))
		ch <- prometheus.MustNewConstMetric(
			c.webhookDuplicatesDesc, prometheus.CounterValue, float64(duplicates))
		ch <- prometheus.MustNewConstMetric(
			c.webhookUnknownDesc, prometheus.CounterValue, float64(unknown))
		ch <- prometheus.MustNewConstMetric(
			c.webhookSoftSkippedDesc, prometheus.CounterValue, float64(softSkips))
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
}
