package train

import (
	"fmt"
	"math"
	"time"
)

// Stats accumulates loss and token counts over one reporting or checkpoint
// window. Derived metrics are computed from the current totals on every
// read, never cached.
//
// TgtWords must be > 0 before any derived metric is read; windows are only
// read after at least one non-empty batch has been folded in.
type Stats struct {
	StartTime  time.Time
	TotalLoss  float64
	SrcWords   int
	TgtWords   int
	NumCorrect int
}

func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// Update folds one step's results into the running totals.
func (s *Stats) Update(loss float64, srcWords, tgtWords, numCorrect int) {
	s.TotalLoss += loss
	s.SrcWords += srcWords
	s.TgtWords += tgtWords
	s.NumCorrect += numCorrect
}

func (s *Stats) Accuracy() float64 {
	return float64(s.NumCorrect) / float64(s.TgtWords)
}

// Loss is the per-token normalized loss.
func (s *Stats) Loss() float64 {
	return s.TotalLoss / float64(s.TgtWords)
}

func (s *Stats) Perplexity() float64 {
	return math.Exp(s.Loss())
}

func (s *Stats) String() string {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}
	return fmt.Sprintf("[num_correct: %6d; %3d src tok; %3d tgt tok; acc: %6.2f; ppl: %6.2f; %3.0f src tok/s; %3.0f tgt tok/s]",
		s.NumCorrect, s.SrcWords, s.TgtWords,
		s.Accuracy()*100, s.Perplexity(),
		float64(s.SrcWords)/elapsed, float64(s.TgtWords)/elapsed)
}
