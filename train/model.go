package train

// Batch is one step worth of aligned source/target token matrices,
// time-major, padded to the longest example in the batch.
type Batch struct {
	Source *IntMatrix
	Target *IntMatrix
}

// Generator maps per-position hidden states to vocabulary log-probs.
type Generator interface {
	// Forward takes a (tokens x features) matrix and returns a
	// (tokens x vocab) matrix of log-probabilities.
	Forward(hidden *Matrix) *Matrix
	// Backward accumulates the generator's own parameter gradients from
	// gradScores (the loss gradient with respect to the log-probs that
	// Forward produced as scores) and returns the gradient with respect
	// to hidden.
	Backward(hidden, scores, gradScores *Matrix) *Matrix
}

// Model is the external sequence model the Trainer drives. The Trainer
// owns the training/inference mode flag transitions; implementations only
// have to honor them.
type Model interface {
	// Forward runs the model over a batch and returns the per-position
	// hidden states shaped (steps, batch, features).
	Forward(b *Batch) *Tensor
	// Backward propagates the hidden-state gradient produced by the
	// chunked loss back into the model's parameter gradients.
	Backward(grad *Tensor)
	// ZeroGrad clears all accumulated parameter gradients.
	ZeroGrad()
	Generator() Generator
	// SetTrain toggles between training and inference mode.
	SetTrain(train bool)
	// Parameters returns every trainable weight with its gradient buffer.
	Parameters() []*Param
	// Save persists the weights as one or more files sharing the path
	// prefix (e.g. <path>.dat).
	Save(path string) error
}

// Dataset is a lazy, restartable stream of batches.
type Dataset interface {
	// Iterator yields batches in sequence. With loop set the stream
	// restarts forever, advancing an epoch each full pass. startPosition
	// resumes the global step counter mid-stream.
	Iterator(batchSize int, shuffle, loop bool, startPosition int) BatchIterator
	// Len reports steps per full pass at the given batch size.
	Len(batchSize int) int
}

type BatchIterator interface {
	// Next returns the global step index of the batch it yields. ok is
	// false once a non-looping stream is drained.
	Next() (step int, b *Batch, ok bool)
}
