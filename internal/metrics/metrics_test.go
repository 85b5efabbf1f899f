package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if kgrJobsTotal == nil || kgrBatchesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveScrape(t *testing.T) {
	Init()
	before := testutil.ToFloat64(kgrScrapeQueriesTotal.WithLabelValues("zeroed"))
	ObserveScrape(10, 2, 1)
	if got := testutil.ToFloat64(kgrScrapeQueriesTotal.WithLabelValues("ok")); got < 7 {
		t.Errorf("expected at least 7 ok queries, got %f", got)
	}
	if got := testutil.ToFloat64(kgrScrapeQueriesTotal.WithLabelValues("zeroed")) - before; got != 1 {
		t.Errorf("expected zeroed to grow by 1, got %f", got)
	}
}

func TestObserveBatchAndThrottle(t *testing.T) {
	Init()
	ObserveBatch("test_outcome")
	if val := testutil.ToFloat64(kgrBatchesTotal.WithLabelValues("test_outcome")); val != 1 {
		t.Errorf("expected batch counter 1, got %f", val)
	}
	ObserveStoreThrottle("test_store", 20*time.Millisecond)
	if val := testutil.CollectAndCount(kgrStoreThrottleSeconds); val <= 0 {
		t.Errorf("expected throttle histogram to be observed, got %d", val)
	}
}

func TestObserveFetchPromotion(t *testing.T) {
	Init()
	ObserveFetchPromotion("test_reason")
	ObserveFetchPromotion("test_reason")
	if val := testutil.ToFloat64(kgrFetchPromotionsTotal.WithLabelValues("test_reason")); val != 2 {
		t.Errorf("expected promotion counter 2, got %f", val)
	}
}
