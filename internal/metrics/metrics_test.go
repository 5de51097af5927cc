package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCycle(t *testing.T) {
	before := testutil.ToFloat64(CyclesTotal.WithLabelValues(StatusPartial))
	finished := time.Unix(1_800_000_000, 0)

	RecordCycle(StatusPartial, 2*time.Second, finished)

	if got := testutil.ToFloat64(CyclesTotal.WithLabelValues(StatusPartial)); got != before+1 {
		t.Errorf("partial cycles = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(LastSuccessTimestamp); got != 1_800_000_000 {
		t.Errorf("last success = %v", got)
	}

	RecordCycle(StatusFailed, time.Second, finished.Add(time.Hour))
	if got := testutil.ToFloat64(LastSuccessTimestamp); got != 1_800_000_000 {
		t.Errorf("failed cycle moved last success to %v", got)
	}
}

func TestRecordTargetWrite(t *testing.T) {
	writes := TargetWrites.WithLabelValues("archive", "unchanged")
	commits := ArchiveCommits.WithLabelValues("unchanged")
	kv := TargetWrites.WithLabelValues("fastKv", "failed")
	beforeWrites, beforeCommits, beforeKV := testutil.ToFloat64(writes), testutil.ToFloat64(commits), testutil.ToFloat64(kv)

	RecordTargetWrite("archive", "unchanged")
	RecordTargetWrite("fastKv", "failed")

	if got := testutil.ToFloat64(writes); got != beforeWrites+1 {
		t.Errorf("archive writes = %v", got)
	}
	if got := testutil.ToFloat64(commits); got != beforeCommits+1 {
		t.Errorf("archive commits = %v", got)
	}
	if got := testutil.ToFloat64(kv); got != beforeKV+1 {
		t.Errorf("fast kv writes = %v", got)
	}
}

func TestRecordVariant(t *testing.T) {
	failed := VariantTransforms.WithLabelValues("mobile", "failed")
	before := testutil.ToFloat64(failed)

	RecordVariant("mobile", false)
	RecordVariant("mobile", true)

	if got := testutil.ToFloat64(failed); got != before+1 {
		t.Errorf("failed mobile transforms = %v, want %v", got, before+1)
	}
}
