package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWebhookMetrics(reg)
	metrics.ObserveProcessing("paylink", "success", 40*time.Millisecond)
	metrics.ObserveProcessing("paylink", "failed", 15*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "mercaflow_webhook_processed_total", "provider", "paylink"); err != nil {
		t.Fatalf("fetch processed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected first label combination counter=1, got %f", got)
	}
}

func TestWebhookMetricsNilRegisterer(t *testing.T) {
	metrics := NewWebhookMetrics(nil)
	metrics.ObserveProcessing("orbitpay", "success", time.Millisecond)
}
