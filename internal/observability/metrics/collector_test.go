package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestCollector_CounterIncrement(t *testing.T) {
	c := NewCollector()
	labels := Labels{"endpoint": "issues", "status": "success"}

	for i := 0; i < 42; i++ {
		c.Inc("api_calls_total", labels)
	}

	if got := c.CounterValue("api_calls_total", labels); got != 42 {
		t.Errorf("expected counter 42, got %v", got)
	}
}

func TestCollector_CounterLabelsIsolateSeries(t *testing.T) {
	c := NewCollector()
	c.Inc("api_calls_total", Labels{"status": "success"})
	c.Inc("api_calls_total", Labels{"status": "failure"})
	c.Inc("api_calls_total", Labels{"status": "failure"})

	if got := c.CounterValue("api_calls_total", Labels{"status": "success"}); got != 1 {
		t.Errorf("expected success counter 1, got %v", got)
	}
	if got := c.CounterValue("api_calls_total", Labels{"status": "failure"}); got != 2 {
		t.Errorf("expected failure counter 2, got %v", got)
	}
}

func TestCollector_CounterIgnoresNegativeDelta(t *testing.T) {
	c := NewCollector()
	c.Add("total", 5, nil)
	c.Add("total", -3, nil)

	if got := c.CounterValue("total", nil); got != 5 {
		t.Errorf("expected counter 5, got %v", got)
	}
}

func TestCollector_GaugeLastWriteWins(t *testing.T) {
	c := NewCollector()
	c.SetGauge("queue_depth", 10, nil)
	c.SetGauge("queue_depth", 3, nil)

	got, ok := c.GaugeValue("queue_depth", nil)
	if !ok {
		t.Fatal("expected gauge to exist")
	}
	if got != 3 {
		t.Errorf("expected gauge 3, got %v", got)
	}
}

func TestCollector_HistogramStats(t *testing.T) {
	c := NewCollector()
	for _, v := range []float64{10, 20, 30} {
		c.Observe("duration_ms", v, nil)
	}

	stats := c.HistogramValues("duration_ms", nil)
	if stats.Count != 3 {
		t.Errorf("expected count 3, got %d", stats.Count)
	}
	if stats.Sum != 60 {
		t.Errorf("expected sum 60, got %v", stats.Sum)
	}
	if stats.Min != 10 {
		t.Errorf("expected min 10, got %v", stats.Min)
	}
	if stats.Max != 30 {
		t.Errorf("expected max 30, got %v", stats.Max)
	}
	if stats.Avg != 20 {
		t.Errorf("expected avg 20, got %v", stats.Avg)
	}
}

func TestCollector_ExportText(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 42; i++ {
		c.Inc("api_calls_total", Labels{"endpoint": "issues", "status": "success"})
	}
	c.Observe("api_call_duration_ms", 1890.5, Labels{"endpoint": "issues"})

	out := c.ExportText()

	wantLines := []string{
		`api_calls_total{endpoint="issues",status="success"} 42`,
		`api_call_duration_ms_count{endpoint="issues"} 1`,
		`api_call_duration_ms_sum{endpoint="issues"} 1890.5`,
	}
	for _, want := range wantLines {
		if !strings.Contains(out, want+"\n") {
			t.Errorf("export missing line %q, got:\n%s", want, out)
		}
	}
}

func TestCollector_ExportTextSortsLabels(t *testing.T) {
	c := NewCollector()
	// Insertion order of label keys must not matter.
	c.Inc("m", Labels{"z": "1", "a": "2"})

	out := c.ExportText()
	if !strings.Contains(out, `m{a="2",z="1"} 1`) {
		t.Errorf("expected sorted labels, got:\n%s", out)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.Inc("total", nil)
	c.SetGauge("depth", 1, nil)
	c.Observe("dur", 5, nil)

	c.Reset()

	if c.SeriesCount() != 0 {
		t.Errorf("expected 0 series after reset, got %d", c.SeriesCount())
	}
	if out := c.ExportText(); out != "" {
		t.Errorf("expected empty export after reset, got %q", out)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector()
	const goroutines = 20
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.Inc("concurrent_total", nil)
				c.Observe("concurrent_dur", 1, nil)
			}
		}()
	}
	wg.Wait()

	if got := c.CounterValue("concurrent_total", nil); got != goroutines*perGoroutine {
		t.Errorf("lost counter updates: expected %d, got %v", goroutines*perGoroutine, got)
	}
	if stats := c.HistogramValues("concurrent_dur", nil); stats.Count != goroutines*perGoroutine {
		t.Errorf("lost histogram samples: expected %d, got %d", goroutines*perGoroutine, stats.Count)
	}
}

func TestInstrumentCall_RecordsOutcomes(t *testing.T) {
	c := NewCollector()

	fail := errors.New("boom")
	calls := 0
	op := InstrumentCall(c, "github_api", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fail
		}
		return nil
	})

	ctx := context.Background()
	_ = op(ctx)
	_ = op(ctx)
	if err := op(ctx); err != nil {
		t.Fatalf("expected success on third call, got %v", err)
	}

	if got := c.CounterValue("github_api_attempts_total", Labels{"result": "failure"}); got != 2 {
		t.Errorf("expected 2 failures, got %v", got)
	}
	if got := c.CounterValue("github_api_attempts_total", Labels{"result": "success"}); got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if stats := c.HistogramValues("github_api_call_duration_ms", nil); stats.Count != 3 {
		t.Errorf("expected 3 duration samples, got %d", stats.Count)
	}
}

func TestInstrumentCall_NilCollectorPassesThrough(t *testing.T) {
	called := false
	op := InstrumentCall(nil, "scope", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err := op(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected operation to be invoked")
	}
}
