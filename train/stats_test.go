package train

import (
	"math"
	"strings"
	"testing"
)

func TestStatsDerivedMetrics(t *testing.T) {
	s := NewStats()
	s.Update(10.0, 20, 8, 6)

	if got := s.Loss(); got != 10.0/8 {
		t.Errorf("Loss = %v, want %v", got, 10.0/8)
	}
	if got := s.Perplexity(); math.Abs(got-math.Exp(10.0/8)) > 1e-12 {
		t.Errorf("Perplexity = %v, want %v", got, math.Exp(10.0/8))
	}
	if got := s.Accuracy(); got != 6.0/8 {
		t.Errorf("Accuracy = %v, want %v", got, 6.0/8)
	}
}

// Derived metrics are never cached: a second update must be visible on the
// very next read.
func TestStatsMetricsFollowUpdates(t *testing.T) {
	s := NewStats()
	s.Update(2.0, 1, 2, 1)
	before := s.Loss()

	s.Update(1.0, 3, 4, 2)
	after := s.Loss()

	if before != 1.0 {
		t.Errorf("Loss before second update = %v, want 1", before)
	}
	if before == after {
		t.Fatal("Loss did not change after update")
	}
	if want := 3.0 / 6.0; after != want {
		t.Errorf("Loss = %v, want %v", after, want)
	}
	if got, want := s.Accuracy(), 3.0/6.0; got != want {
		t.Errorf("Accuracy = %v, want %v", got, want)
	}
}

func TestStatsString(t *testing.T) {
	s := NewStats()
	s.Update(1.0, 5, 4, 2)

	out := s.String()
	for _, field := range []string{"src tok", "tgt tok", "acc", "ppl", "tok/s"} {
		if !strings.Contains(out, field) {
			t.Errorf("summary %q is missing %q", out, field)
		}
	}
}
