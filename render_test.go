package main

import (
	"bytes"
	"strings"
	"testing"
)

func gauge(name string, labels []string, samples ...MetricSample) *MetricFamily {
	return &MetricFamily{Name: name, Help: "Help for " + name + ".", LabelNames: labels, Samples: samples}
}

func TestRender(t *testing.T) {
	family := gauge("cloudflare_exporter_processing_time_miliseconds", []string{"name"},
		MetricSample{LabelValues: []string{"dns"}, Value: 1.5},
		MetricSample{LabelValues: []string{"waf"}, Value: 12},
	)

	out, err := Render([]*MetricFamily{family})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	want := `# HELP cloudflare_exporter_processing_time_miliseconds Help for cloudflare_exporter_processing_time_miliseconds.
# TYPE cloudflare_exporter_processing_time_miliseconds gauge
cloudflare_exporter_processing_time_miliseconds{name="dns"} 1.5
cloudflare_exporter_processing_time_miliseconds{name="waf"} 12
`
	if string(out) != want {
		t.Errorf("Unexpected output:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderIdempotent(t *testing.T) {
	families := []*MetricFamily{
		dnsFamily(testDNSReport(
			DNSReportRow{Dimensions: []interface{}{"b.example.com", "NOERROR", "primary", false, "IPv4"}, Metrics: []float64{2}},
			DNSReportRow{Dimensions: []interface{}{"a.example.com", "NOERROR", "primary", true, "IPv6"}, Metrics: []float64{5}},
		)),
		wafFamily([][]FirewallEvent{{{Action: "block", Source: "waf"}}}),
	}

	first, err := Render(families)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	second, err := Render(families)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("Rendering twice differs:\n%s\n---\n%s", first, second)
	}
}

func TestRenderKeepsFamilyOrder(t *testing.T) {
	families := []*MetricFamily{
		gauge("zeta_metric", nil, MetricSample{Value: 1}),
		gauge("alpha_metric", nil, MetricSample{Value: 2}),
	}

	out, err := Render(families)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	zeta := strings.Index(string(out), "# HELP zeta_metric")
	alpha := strings.Index(string(out), "# HELP alpha_metric")
	if zeta < 0 || alpha < 0 {
		t.Fatalf("Missing families in output:\n%s", out)
	}
	if zeta > alpha {
		t.Errorf("Expected zeta_metric before alpha_metric:\n%s", out)
	}
}

func TestRenderKeepsSampleAndLabelOrder(t *testing.T) {
	family := dnsFamily(testDNSReport(
		DNSReportRow{Dimensions: []interface{}{"z.example.com", "NOERROR", "primary", false, "IPv4"}, Metrics: []float64{1}},
		DNSReportRow{Dimensions: []interface{}{"a.example.com", "NOERROR", "primary", false, "IPv4"}, Metrics: []float64{2}},
	))

	out, err := Render([]*MetricFamily{family})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	body := string(out)

	z := strings.Index(body, `queryName="z.example.com"`)
	a := strings.Index(body, `queryName="a.example.com"`)
	if z < 0 || a < 0 {
		t.Fatalf("Missing samples in output:\n%s", body)
	}
	if z > a {
		t.Errorf("Expected z.example.com before a.example.com:\n%s", body)
	}

	want := `cloudflare_dns_record_queries{queryName="z.example.com",responseCode="NOERROR",origin="primary",tcp="false",ipVersion="IPv4"} 1` + "\n"
	if !strings.Contains(body, want) {
		t.Errorf("Expected labels in report dimension order, got:\n%s", body)
	}
}

func TestRenderSkipsEmptyFamilies(t *testing.T) {
	out, err := Render([]*MetricFamily{
		nil,
		gauge("empty_metric", []string{"a"}),
		gauge("present_metric", nil, MetricSample{Value: 3}),
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(string(out), "empty_metric") {
		t.Errorf("Empty family should not be rendered:\n%s", out)
	}
	if !strings.Contains(string(out), "present_metric 3\n") {
		t.Errorf("Expected present_metric sample:\n%s", out)
	}
}

func TestRenderNothing(t *testing.T) {
	out, err := Render(nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty output, got %q", out)
	}
}

func TestRenderDuplicateFamily(t *testing.T) {
	_, err := Render([]*MetricFamily{
		gauge("dup_metric", nil, MetricSample{Value: 1}),
		gauge("dup_metric", nil, MetricSample{Value: 2}),
	})
	if err == nil {
		t.Error("Expected error for duplicate family names")
	}
}

func TestRenderLabelMismatch(t *testing.T) {
	_, err := Render([]*MetricFamily{
		gauge("mismatch_metric", []string{"a", "b"}, MetricSample{LabelValues: []string{"only-one"}, Value: 1}),
	})
	if err == nil {
		t.Error("Expected error when label values do not match label names")
	}
}
