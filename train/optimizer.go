package train

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimKind = "sgd"
	OptMomentum OptimKind = "momentum"
	OptAdam     OptimKind = "adam"
)

// Defaults generally recommended for Adam and momentum.
const (
	adamBeta1  = 0.9
	adamBeta2  = 0.999
	adamEps    = 1e-8
	momentumMu = 0.9
)

type OptimKind string

// Param pairs one trainable weight matrix with its gradient buffer.
type Param struct {
	Value *Matrix
	Grad  *Matrix
}

// paramState holds the per-parameter moment buffers for momentum and Adam.
type paramState struct {
	m []float64
	v []float64
}

// Optim applies gradient updates to a model's parameters. It owns the
// mutable learning rate and the decay schedule constants; whether decay is
// armed is the Trainer's state, not the optimizer's.
type Optim struct {
	Kind           OptimKind
	LR             float64
	MaxGradNorm    float64
	LRDecay        float64
	LRDecayStartAt int

	params   []*Param
	states   []paramState
	timeStep int
}

func NewOptim(kind OptimKind, lr, maxGradNorm, lrDecay float64, lrDecayStartAt int) *Optim {
	switch kind {
	case OptSGD, OptMomentum, OptAdam:
	default:
		kind = OptSGD
	}
	return &Optim{
		Kind:           kind,
		LR:             lr,
		MaxGradNorm:    maxGradNorm,
		LRDecay:        lrDecay,
		LRDecayStartAt: lrDecayStartAt,
	}
}

// SetParameters binds the optimizer to a parameter set and resets all
// moment state.
func (o *Optim) SetParameters(params []*Param) {
	o.params = params
	o.timeStep = 0
	o.states = make([]paramState, len(params))
	for i, p := range params {
		o.states[i] = paramState{
			m: make([]float64, len(p.Grad.Data())),
			v: make([]float64, len(p.Grad.Data())),
		}
	}
}

// clipGradients rescales all gradients so their global L2 norm does not
// exceed MaxGradNorm.
func (o *Optim) clipGradients() {
	if o.MaxGradNorm <= 0 {
		return
	}
	var sumSq float64
	for _, p := range o.params {
		n := floats.Norm(p.Grad.Data(), 2)
		sumSq += n * n
	}
	norm := math.Sqrt(sumSq)
	if norm <= o.MaxGradNorm {
		return
	}
	scale := o.MaxGradNorm / norm
	for _, p := range o.params {
		floats.Scale(scale, p.Grad.Data())
	}
}

// Step applies one gradient update to every bound parameter.
func (o *Optim) Step() {
	o.clipGradients()

	switch o.Kind {
	case OptAdam:
		o.timeStep++
		t := float64(o.timeStep)
		correction1 := 1.0 - math.Pow(adamBeta1, t)
		correction2 := 1.0 - math.Pow(adamBeta2, t)

		for i, p := range o.params {
			params, grads := p.Value.Data(), p.Grad.Data()
			m, v := o.states[i].m, o.states[i].v
			for j := range params {
				g := grads[j]

				// m_t = beta1 * m_{t-1} + (1 - beta1) * g
				m[j] = adamBeta1*m[j] + (1.0-adamBeta1)*g

				// v_t = beta2 * v_{t-1} + (1 - beta2) * g^2
				v[j] = adamBeta2*v[j] + (1.0-adamBeta2)*(g*g)

				mHat := m[j] / correction1
				vHat := v[j] / correction2

				params[j] -= o.LR * mHat / (math.Sqrt(vHat) + adamEps)
			}
		}

	case OptMomentum:
		// v = mu * v - lr * grad ; w = w + v
		for i, p := range o.params {
			params, grads := p.Value.Data(), p.Grad.Data()
			vel := o.states[i].m
			for j := range params {
				vel[j] = momentumMu*vel[j] - o.LR*grads[j]
				params[j] += vel[j]
			}
		}

	default:
		// Simple update: W = W - (lr * gradient)
		for _, p := range o.params {
			floats.AddScaled(p.Value.Data(), -o.LR, p.Grad.Data())
		}
	}
}

// UpdateLearningRate applies one decay multiplication.
func (o *Optim) UpdateLearningRate() {
	o.LR *= o.LRDecay
}
