package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequestIncrementsCounterAndHistogram(t *testing.T) {
	before := testutil.ToFloat64(requestsTotal.WithLabelValues("GET", "/v1/jobs/next", "2xx"))

	RecordRequest("GET", "/v1/jobs/next", 200, 0.042)

	after := testutil.ToFloat64(requestsTotal.WithLabelValues("GET", "/v1/jobs/next", "2xx"))
	if after != before+1 {
		t.Fatalf("requestsTotal = %v, want %v", after, before+1)
	}

	count := testutil.CollectAndCount(requestDuration)
	if count == 0 {
		t.Fatal("expected requestDuration to have at least one series")
	}
}

func TestRecordJobClaimedAndExhausted(t *testing.T) {
	beforeClaimed := testutil.ToFloat64(jobsClaimedTotal)
	beforeExhausted := testutil.ToFloat64(jobsExhaustedTotal)

	RecordJobClaimed()
	RecordJobClaimExhausted()

	if got := testutil.ToFloat64(jobsClaimedTotal); got != beforeClaimed+1 {
		t.Fatalf("jobsClaimedTotal = %v, want %v", got, beforeClaimed+1)
	}
	if got := testutil.ToFloat64(jobsExhaustedTotal); got != beforeExhausted+1 {
		t.Fatalf("jobsExhaustedTotal = %v, want %v", got, beforeExhausted+1)
	}
}

func TestRecordJobOutcome(t *testing.T) {
	before := testutil.ToFloat64(jobsOutcomeTotal.WithLabelValues("ok"))
	RecordJobOutcome("ok")
	if got := testutil.ToFloat64(jobsOutcomeTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("jobsOutcomeTotal{ok} = %v, want %v", got, before+1)
	}
}

func TestStatusLabelBuckets(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 500: "5xx", 0: "other"}
	for status, want := range cases {
		if got := statusLabel(status); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestRecordWorkerBackoffObserves(t *testing.T) {
	RecordWorkerBackoff(1.5)
	if testutil.CollectAndCount(workerBackoffSeconds) == 0 {
		t.Fatal("expected workerBackoffSeconds to have recorded a sample")
	}
	// sanity: the metric family's name survives collection.
	if !strings.Contains(workerBackoffSeconds.Desc().String(), "siftcrawl_worker_backoff_seconds") {
		t.Fatalf("unexpected histogram descriptor: %s", workerBackoffSeconds.Desc().String())
	}
}
