package model

import (
	"math"

	"github.com/seqtrain/seqtrain/train"
)

// Generator is the shared hidden-state to vocabulary head: a linear layer
// followed by a row-wise log-softmax.
type Generator struct {
	W *train.Matrix // (features x vocab)
	B *train.Matrix // (1 x vocab)

	dW *train.Matrix
	dB *train.Matrix
}

func newGenerator(features, vocab int) *Generator {
	g := &Generator{
		W:  train.NewMatrix(features, vocab),
		B:  train.NewMatrix(1, vocab),
		dW: train.NewMatrix(features, vocab),
		dB: train.NewMatrix(1, vocab),
	}
	g.W.RandomizeXavier()
	return g
}

func (g *Generator) Forward(hidden *train.Matrix) *train.Matrix {
	rows := hidden.Rows()
	vocab := g.W.Cols()

	scores := train.NewMatrix(rows, vocab)
	train.MatMul(hidden, g.W, scores)

	bias := g.B.Data()
	for i := 0; i < rows; i++ {
		row := scores.Row(i)
		for j := range row {
			row[j] += bias[j]
		}
		logSoftmaxRow(row)
	}
	return scores
}

// Backward folds gradScores (loss gradient w.r.t. the log-probs) through
// the log-softmax and the linear layer, accumulating dW/dB, and returns
// the gradient with respect to hidden.
func (g *Generator) Backward(hidden, scores, gradScores *train.Matrix) *train.Matrix {
	rows := hidden.Rows()
	vocab := g.W.Cols()

	// dLogit[j] = gradScore[j] - exp(score[j]) * sum_k gradScore[k]
	dLogits := train.NewMatrix(rows, vocab)
	for i := 0; i < rows; i++ {
		gRow := gradScores.Row(i)
		sRow := scores.Row(i)
		dRow := dLogits.Row(i)

		var gSum float64
		for _, v := range gRow {
			gSum += v
		}
		for j := range dRow {
			dRow[j] = gRow[j] - math.Exp(sRow[j])*gSum
		}
	}

	// dW += hidden^T * dLogits ; dB += column sums of dLogits
	dW := train.NewMatrix(g.W.Rows(), vocab)
	train.MatMulAT(hidden, dLogits, dW)
	dwData, dwAcc := dW.Data(), g.dW.Data()
	for k := range dwAcc {
		dwAcc[k] += dwData[k]
	}
	dbAcc := g.dB.Data()
	for i := 0; i < rows; i++ {
		row := dLogits.Row(i)
		for j := range row {
			dbAcc[j] += row[j]
		}
	}

	// dHidden = dLogits * W^T
	dHidden := train.NewMatrix(rows, hidden.Cols())
	train.MatMulBT(dLogits, g.W, dHidden)
	return dHidden
}

// logSoftmaxRow converts one row of logits into log-probabilities in place.
func logSoftmaxRow(row []float64) {
	maxVal := -math.MaxFloat64
	for _, v := range row {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	for _, v := range row {
		sum += math.Exp(v - maxVal)
	}
	logSum := maxVal + math.Log(sum)
	for j := range row {
		row[j] -= logSum
	}
}
