package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

// The tests below swap the package-global backend and therefore do not run
// in parallel.

func TestRecordFile_SuccessAndFailure(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordFile("sparkify", "songs", nil, 2*time.Second)
	RecordFile("sparkify", "logs", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls: counters=%d hists=%d, want 2/2", len(fb.callsCounters), len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != FilesTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v", cc0)
	}
	if cc0.labels["job"] != "sparkify" || cc0.labels["tree"] != "songs" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0] labels = %v", cc0.labels)
	}
	h0 := fb.callsHistograms[0]
	if h0.name != FileDurationSeconds || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v", h0)
	}

	cc1 := fb.callsCounters[1]
	if cc1.labels["tree"] != "logs" || cc1.labels["status"] != "failure" {
		t.Fatalf("counter[1] labels = %v", cc1.labels)
	}
	if h1 := fb.callsHistograms[1]; h1.value < 1.499 || h1.value > 1.501 {
		t.Fatalf("hist[1].value=%v; want ~1.5", h1.value)
	}
}

func TestRecordRowsSkippedAndBulk(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordRows("sparkify", "songs", 3)
	RecordRows("sparkify", "songs", 0) // ignored
	RecordSkipped("sparkify", "null_user", 2)
	RecordSkipped("sparkify", "null_user", -1) // ignored
	RecordBulkLoad("sparkify", "songplays", errors.New("copy failed"))

	want := []counterCall{
		{RowsTotal, 3, Labels{"job": "sparkify", "table": "songs"}},
		{SkippedTotal, 2, Labels{"job": "sparkify", "reason": "null_user"}},
		{BulkLoadsTotal, 1, Labels{"job": "sparkify", "table": "songplays", "status": "failure"}},
	}
	if len(fb.callsCounters) != len(want) {
		t.Fatalf("expected %d counter calls, got %d: %#v", len(want), len(fb.callsCounters), fb.callsCounters)
	}
	for i, w := range want {
		got := fb.callsCounters[i]
		if got.name != w.name || got.delta != w.delta || len(got.labels) != len(w.labels) {
			t.Fatalf("counter[%d] = %#v, want %#v", i, got, w)
		}
		for k, v := range w.labels {
			if got.labels[k] != v {
				t.Fatalf("counter[%d].labels[%s] = %q, want %q", i, k, got.labels[k], v)
			}
		}
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)

	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	// SetBackend(nil) should not nil out the backend.
	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
