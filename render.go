package main

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Render encodes families in the Prometheus text format. Families are
// written in the order given, samples in the order they were added and
// labels in the order of LabelNames; families without samples are left out.
// The families are first gathered through a private registry, so duplicate
// names, bad label names, duplicate samples or label count mismatches are
// reported as errors.
func Render(families []*MetricFamily) ([]byte, error) {
	var present []*MetricFamily
	for _, f := range families {
		if f != nil && len(f.Samples) > 0 {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(newFamilyCollector(present)); err != nil {
		return nil, fmt.Errorf("register families: %w", err)
	}
	if _, err := registry.Gather(); err != nil {
		return nil, fmt.Errorf("gather families: %w", err)
	}

	var buf bytes.Buffer
	for _, f := range present {
		if _, err := expfmt.MetricFamilyToText(&buf, toMetricFamilyProto(f)); err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Name, err)
		}
	}
	return buf.Bytes(), nil
}

// toMetricFamilyProto keeps sample and label order as given; the registry
// would sort both.
func toMetricFamilyProto(f *MetricFamily) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name:   proto.String(f.Name),
		Help:   proto.String(f.Help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: make([]*dto.Metric, 0, len(f.Samples)),
	}
	for _, s := range f.Samples {
		m := &dto.Metric{
			Label: make([]*dto.LabelPair, len(f.LabelNames)),
			Gauge: &dto.Gauge{Value: proto.Float64(s.Value)},
		}
		for i, name := range f.LabelNames {
			m.Label[i] = &dto.LabelPair{
				Name:  proto.String(name),
				Value: proto.String(s.LabelValues[i]),
			}
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}
