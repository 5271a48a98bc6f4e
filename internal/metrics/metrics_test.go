package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePage(t *testing.T) {
	ObservePage("xx-test", "ok")
	ObservePage("xx-test", "ok")
	ObservePage("xx-test", "timeout")

	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("xx-test", "ok")); val != 2 {
		t.Errorf("expected 2 ok pages, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("xx-test", "timeout")); val != 1 {
		t.Errorf("expected 1 timed out page, got %f", val)
	}
}

func TestObserveItemsIgnoresEmptySnapshots(t *testing.T) {
	ObserveItems("yy-test", 0)
	ObserveItems("yy-test", 34)

	if val := testutil.ToFloat64(crawlerItemsTotal.WithLabelValues("yy-test")); val != 34 {
		t.Errorf("expected 34 items, got %f", val)
	}
}

func TestObserveRun(t *testing.T) {
	before := testutil.CollectAndCount(runDurationSeconds)
	ObserveRun("partial success", 90*time.Second)

	if val := testutil.ToFloat64(runsTotal.WithLabelValues("partial success")); val != 1 {
		t.Errorf("expected one partial run, got %f", val)
	}
	if got := testutil.CollectAndCount(runDurationSeconds); got < before || got == 0 {
		t.Errorf("expected run duration histogram to be collected, got %d", got)
	}
}
