package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	dnsQueriesMetric     = "cloudflare_dns_record_queries"
	wafEventsMetric      = "cloudflare_waf_events"
	processingTimeMetric = "cloudflare_exporter_processing_time_miliseconds"
)

var wafLabelNames = []string{"action", "source", "rule_id", "host", "country"}

type MetricSample struct {
	LabelValues []string
	Value       float64
}

// MetricFamily is a gauge family computed during a refresh. Label values of
// every sample line up positionally with LabelNames.
type MetricFamily struct {
	Name       string
	Help       string
	LabelNames []string
	Samples    []MetricSample
}

func (f *MetricFamily) Add(value float64, labelValues ...string) {
	f.Samples = append(f.Samples, MetricSample{LabelValues: labelValues, Value: value})
}

// familyCollector exposes precomputed families as constant gauges so they
// can go through a prometheus.Registry for validation and encoding.
type familyCollector struct {
	families []*MetricFamily
	descs    []*prometheus.Desc
}

func newFamilyCollector(families []*MetricFamily) *familyCollector {
	c := &familyCollector{
		families: families,
		descs:    make([]*prometheus.Desc, len(families)),
	}
	for i, f := range families {
		c.descs[i] = prometheus.NewDesc(f.Name, f.Help, f.LabelNames, nil)
	}
	return c
}

func (c *familyCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
}

func (c *familyCollector) Collect(ch chan<- prometheus.Metric) {
	for i, f := range c.families {
		for _, s := range f.Samples {
			m, err := prometheus.NewConstMetric(c.descs[i], prometheus.GaugeValue, s.Value, s.LabelValues...)
			if err != nil {
				ch <- prometheus.NewInvalidMetric(c.descs[i], err)
				continue
			}
			ch <- m
		}
	}
}

// dnsFamily turns a DNS analytics report into one sample per distinct row.
// Label names are the report's dimension names as Cloudflare returns them.
// Rows that end up with the same label values are summed, since the
// exposition cannot carry the same series twice.
func dnsFamily(report *DNSReport) *MetricFamily {
	labelNames := report.Query.Dimensions
	if len(labelNames) == 0 {
		labelNames = dnsDimensions
	}

	family := &MetricFamily{
		Name:       dnsQueriesMetric,
		Help:       "DNS queries per record at PoP location.",
		LabelNames: labelNames,
	}

	index := make(map[string]int, len(report.Data))
	for _, row := range report.Data {
		if len(row.Dimensions) != len(labelNames) {
			log.WithFields(log.Fields{
				"expected": len(labelNames),
				"got":      len(row.Dimensions),
			}).Warn("DNS row dimensions do not match report dimensions")
		}

		values := make([]string, len(labelNames))
		for i := range values {
			if i < len(row.Dimensions) {
				values[i] = labelValue(row.Dimensions[i])
			}
		}

		var count float64
		if len(row.Metrics) > 0 {
			count = row.Metrics[0]
		}

		key := strings.Join(values, "\xff")
		if i, ok := index[key]; ok {
			log.WithField("labels", values).Warn("Duplicate DNS row, adding to existing sample")
			family.Samples[i].Value += count
			continue
		}
		index[key] = len(family.Samples)
		family.Add(count, values...)
	}
	return family
}

// wafFamily counts firewall events across all pages per distinct
// action/source/rule/host/country. Samples keep first-seen order.
func wafFamily(pages [][]FirewallEvent) *MetricFamily {
	family := &MetricFamily{
		Name:       wafEventsMetric,
		Help:       "Firewall events in the last minute.",
		LabelNames: wafLabelNames,
	}

	index := make(map[[5]string]int)
	for _, page := range pages {
		for _, ev := range page {
			key := [5]string{ev.Action, ev.Source, ev.RuleID, ev.Host, ev.Country}
			i, ok := index[key]
			if !ok {
				i = len(family.Samples)
				index[key] = i
				family.Add(0, ev.Action, ev.Source, ev.RuleID, ev.Host, ev.Country)
			}
			family.Samples[i].Value++
		}
	}
	return family
}

func labelValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
