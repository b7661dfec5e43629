package train

// Tensor is a time-major stack of (batch x features) slices backed by one
// flat data slice, the shape every decoder output comes in.
type Tensor struct {
	steps, batch, features int
	data                   []float64
}

func NewTensor(steps, batch, features int) *Tensor {
	return &Tensor{
		steps:    steps,
		batch:    batch,
		features: features,
		data:     make([]float64, steps*batch*features),
	}
}

func NewTensorFromSlice(steps, batch, features int, data []float64) *Tensor {
	if len(data) != steps*batch*features {
		panic("Slice length mismatch")
	}
	return &Tensor{steps: steps, batch: batch, features: features, data: data}
}

func (t *Tensor) Steps() int    { return t.steps }
func (t *Tensor) Batch() int    { return t.batch }
func (t *Tensor) Features() int { return t.features }

// Data exposes the flat backing slice (step-major, then batch, then feature).
func (t *Tensor) Data() []float64 { return t.data }

// SliceSteps returns a view over timesteps [from, to). The view shares the
// backing slice, so writes through it land in the parent tensor.
func (t *Tensor) SliceSteps(from, to int) *Tensor {
	if from < 0 || to > t.steps || from > to {
		panic("SliceSteps out of range")
	}
	stride := t.batch * t.features
	return &Tensor{
		steps:    to - from,
		batch:    t.batch,
		features: t.features,
		data:     t.data[from*stride : to*stride],
	}
}

// Matrix2D reshapes the tensor to a (steps*batch x features) matrix sharing
// the same backing slice.
func (t *Tensor) Matrix2D() *Matrix {
	return NewMatrixFromSlice(t.steps*t.batch, t.features, t.data)
}

// IntMatrix holds token ids in time-major (steps x batch) layout; the shape
// of every target slab the criterion consumes.
type IntMatrix struct {
	steps, batch int
	data         []int
}

func NewIntMatrix(steps, batch int) *IntMatrix {
	return &IntMatrix{steps: steps, batch: batch, data: make([]int, steps*batch)}
}

func NewIntMatrixFromSlice(steps, batch int, data []int) *IntMatrix {
	if len(data) != steps*batch {
		panic("Slice length mismatch")
	}
	return &IntMatrix{steps: steps, batch: batch, data: data}
}

func (m *IntMatrix) Steps() int { return m.steps }
func (m *IntMatrix) Batch() int { return m.batch }

func (m *IntMatrix) At(step, b int) int { return m.data[step*m.batch+b] }

func (m *IntMatrix) Set(step, b, id int) { m.data[step*m.batch+b] = id }

// Flat returns the backing slice (step-major).
func (m *IntMatrix) Flat() []int { return m.data }

// SliceSteps returns a view over timesteps [from, to) sharing the backing slice.
func (m *IntMatrix) SliceSteps(from, to int) *IntMatrix {
	if from < 0 || to > m.steps || from > to {
		panic("SliceSteps out of range")
	}
	return &IntMatrix{
		steps: to - from,
		batch: m.batch,
		data:  m.data[from*m.batch : to*m.batch],
	}
}

// CountNonPad counts tokens that are not the padding id.
func (m *IntMatrix) CountNonPad(pad int) int {
	n := 0
	for _, id := range m.data {
		if id != pad {
			n++
		}
	}
	return n
}
