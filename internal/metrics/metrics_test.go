package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_BatchArchived(t *testing.T) {
	t.Parallel()

	c := New()
	obs := c.ForJob("orders")
	obs.BatchArchived(100)
	obs.BatchArchived(42)
	c.BatchArchived("events", 7)

	if got := testutil.ToFloat64(c.records.WithLabelValues("orders")); got != 142 {
		t.Errorf("orders records = %v, want 142", got)
	}
	if got := testutil.ToFloat64(c.batches.WithLabelValues("orders")); got != 2 {
		t.Errorf("orders batches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.records.WithLabelValues("events")); got != 7 {
		t.Errorf("events records = %v, want 7", got)
	}

	snap := c.Snapshot()
	if snap.Records != 149 || snap.Batches != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCollector_RunFinished(t *testing.T) {
	t.Parallel()

	c := New()
	c.RunFinished("orders", 2*time.Second, nil)
	c.RunFinished("orders", 4*time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(c.runs.WithLabelValues("orders", StatusSuccess)); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("orders", StatusFailure)); got != 1 {
		t.Errorf("failure runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.lastSuccess.WithLabelValues("orders")); got == 0 {
		t.Error("last success timestamp should be set")
	}

	snap := c.Snapshot()
	if snap.Runs != 2 || snap.Failures != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.AvgDuration != 3*time.Second {
		t.Errorf("avg duration = %v, want 3s", snap.AvgDuration)
	}
}

func TestCollector_Exposition(t *testing.T) {
	t.Parallel()

	c := New()
	c.BatchArchived("orders", 3)

	expected := `
# HELP dbarchiver_records_archived_total Number of records copied to the target.
# TYPE dbarchiver_records_archived_total counter
dbarchiver_records_archived_total{job="orders"} 3
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "dbarchiver_records_archived_total"); err != nil {
		t.Error(err)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	t.Parallel()

	c := New()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.BatchArchived("orders", 1)
			c.RunFinished("orders", time.Millisecond, nil)
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.Records != 50 || snap.Runs != 50 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	t.Parallel()

	if snap := New().Snapshot(); snap.AvgDuration != 0 || snap.Runs != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}
