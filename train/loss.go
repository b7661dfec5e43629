package train

// Criterion is a summed negative log-likelihood over non-padding tokens.
// Scores are expected to be log-probabilities, so the loss for one token
// is simply -score[target].
type Criterion struct {
	padIndex int
}

func NewCriterion(padIndex int) *Criterion {
	return &Criterion{padIndex: padIndex}
}

func (c *Criterion) PadIndex() int { return c.padIndex }

// Loss sums -score[target] over all rows whose target is not padding.
func (c *Criterion) Loss(scores *Matrix, targets []int) float64 {
	var loss float64
	for i, tgt := range targets {
		if tgt == c.padIndex {
			continue
		}
		loss -= scores.At(i, tgt)
	}
	return loss
}

// NumCorrect counts rows whose arg-max prediction matches a non-padding
// target.
func (c *Criterion) NumCorrect(scores *Matrix, targets []int) int {
	correct := 0
	for i, tgt := range targets {
		if tgt == c.padIndex {
			continue
		}
		row := scores.Row(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		if best == tgt {
			correct++
		}
	}
	return correct
}

// Gradient writes the loss gradient with respect to the log-prob scores
// into out, scaled by scale: -scale at the target column of every
// non-padding row, zero elsewhere.
func (c *Criterion) Gradient(targets []int, scale float64, out *Matrix) {
	out.Reset()
	for i, tgt := range targets {
		if tgt == c.padIndex {
			continue
		}
		out.Set(i, tgt, -scale)
	}
}

// ChunkedLoss computes the summed loss and correct-token count for a whole
// decoded sequence while capping any single generator/criterion call at
// maxChunk timesteps. Splitting is what bounds peak memory: materializing
// (steps x batch x vocab) scores at once is the dominant cost, and loss
// and correctness are additive over time positions, so the result matches
// an unchunked computation.
//
// In training mode each chunk's loss is back-propagated immediately
// (scaled by 1/batch) and the per-chunk hidden-state gradients are
// reassembled into one tensor aligned with outputs. Under evaluation the
// gradient is nil.
func ChunkedLoss(outputs *Tensor, targets *IntMatrix, gen Generator, crit *Criterion, maxChunk int, evaluation bool) (float64, *Tensor, int) {
	if maxChunk <= 0 {
		panic("ChunkedLoss: chunk size must be positive")
	}
	steps, batch, features := outputs.Steps(), outputs.Batch(), outputs.Features()
	if targets.Steps() != steps || targets.Batch() != batch {
		panic("ChunkedLoss: outputs/targets shape mismatch")
	}

	var grad *Tensor
	if !evaluation {
		grad = NewTensor(steps, batch, features)
	}

	// float64 totals keep many small per-chunk additions stable over a
	// long run.
	var totalLoss float64
	totalCorrect := 0

	for from := 0; from < steps; from += maxChunk {
		to := from + maxChunk
		if to > steps {
			to = steps
		}

		hidden := outputs.SliceSteps(from, to).Matrix2D()
		tgt := targets.SliceSteps(from, to).Flat()

		scores := gen.Forward(hidden)
		totalLoss += crit.Loss(scores, tgt)
		totalCorrect += crit.NumCorrect(scores, tgt)

		if !evaluation {
			gradScores := NewMatrix(scores.Rows(), scores.Cols())
			crit.Gradient(tgt, 1.0/float64(batch), gradScores)
			gradHidden := gen.Backward(hidden, scores, gradScores)
			copy(grad.SliceSteps(from, to).Data(), gradHidden.Data())
		}
	}

	return totalLoss, grad, totalCorrect
}
