package train

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
)

// Options is the immutable configuration snapshot for one training run.
type Options struct {
	BatchSize           int
	MaxGeneratorBatches int // max timesteps per generator/loss call

	ReportSteps     int // log a report-window summary every N steps
	ValidationSteps int // compute the validation score every N steps
	CheckpointSteps int // drop a checkpoint every N steps
	StepsLimit      int // run at most N steps; 0 means no limit

	Optimizer      OptimKind
	LearningRate   float64
	MaxGradNorm    float64
	LRDecay        float64
	LRDecaySteps   int // while decay is armed, decay the rate every N steps
	LRDecayStartAt int // arming is possible only after N steps

	EarlyStop       int // tolerated consecutive non-improving validations
	NAvgCheckpoints int // checkpoints retained for later averaging

	PadIndex int // padding token id, excluded from loss and counts
}

func DefaultOptions() Options {
	return Options{
		BatchSize:           64,
		MaxGeneratorBatches: 32,
		ReportSteps:         100,
		ValidationSteps:     10000,
		CheckpointSteps:     10000,
		StepsLimit:          0,
		Optimizer:           OptSGD,
		LearningRate:        1.0,
		MaxGradNorm:         5,
		LRDecay:             0.9,
		LRDecaySteps:        10000,
		LRDecayStartAt:      50000,
		EarlyStop:           10,
		NAvgCheckpoints:     5,
		PadIndex:            0,
	}
}

// StopReason reports why a training run ended.
type StopReason string

const (
	StopEarly       StopReason = "early_stop"
	StopStepLimit   StopReason = "step_limit"
	StopInterrupted StopReason = "interrupted"
)

// Trainer drives the per-step state machine: step, periodic report,
// periodic validation, learning-rate decay arming, periodic checkpointing
// and termination. One Trainer drives one model/optimizer pair in a single
// sequential flow.
type Trainer struct {
	model Model
	opts  Options
	optim *Optim
	state *State

	// decayArmed is controller-owned training state: the optimizer only
	// carries the rate and the schedule constants.
	decayArmed bool
}

// NewTrainer wires a trainer. Passing a nil optimizer builds one from the
// options and binds it to the model's parameters; passing a nil state
// starts with an empty ledger sized for NAvgCheckpoints.
func NewTrainer(model Model, opts Options, optim *Optim, state *State) *Trainer {
	if optim == nil {
		optim = NewOptim(opts.Optimizer, opts.LearningRate, opts.MaxGradNorm, opts.LRDecay, opts.LRDecayStartAt)
		optim.SetParameters(model.Parameters())
	}
	if state == nil {
		state = NewState(opts.NAvgCheckpoints)
	}
	return &Trainer{
		model: model,
		opts:  opts,
		optim: optim,
		state: state,
	}
}

func (t *Trainer) State() *State { return t.state }

func (t *Trainer) Optim() *Optim { return t.optim }

// ResetLearningRate rebinds the optimizer at a fresh learning rate,
// discarding accumulated moment state.
func (t *Trainer) ResetLearningRate(value float64) {
	t.optim.LR = value
	t.optim.SetParameters(t.model.Parameters())
}

// clampedPerplexity caps the loss before exponentiating so a pathological
// window can not produce a non-finite score and corrupt the ledger's
// ranking.
func clampedPerplexity(loss float64) float64 {
	return math.Exp(math.Min(loss, 100))
}

// trainStep runs one gradient-update step over a batch and folds the
// results into every given stats window.
func (t *Trainer) trainStep(b *Batch, crit *Criterion, stats []*Stats) {
	t.model.ZeroGrad()
	outputs := t.model.Forward(b)

	loss, grad, numCorrect := ChunkedLoss(outputs, b.Target, t.model.Generator(), crit, t.opts.MaxGeneratorBatches, false)
	t.model.Backward(grad)
	t.optim.Step()

	srcWords := b.Source.CountNonPad(t.opts.PadIndex)
	tgtWords := b.Target.CountNonPad(t.opts.PadIndex)
	for _, s := range stats {
		s.Update(loss, srcWords, tgtWords, numCorrect)
	}
}

// evaluate runs the model in inference mode over the full validation
// stream and returns the validation perplexity. The model is back in
// training mode when it returns.
func (t *Trainer) evaluate(step int, crit *Criterion, valid Dataset) float64 {
	var totalLoss float64
	totalWords := 0
	totalCorrect := 0

	t.model.SetTrain(false)

	it := valid.Iterator(t.opts.BatchSize, false, false, 0)
	for {
		_, b, ok := it.Next()
		if !ok {
			break
		}
		outputs := t.model.Forward(b)
		loss, _, numCorrect := ChunkedLoss(outputs, b.Target, t.model.Generator(), crit, t.opts.MaxGeneratorBatches, true)
		totalLoss += loss
		totalCorrect += numCorrect
		totalWords += b.Target.CountNonPad(t.opts.PadIndex)
	}

	t.model.SetTrain(true)

	validLoss := totalLoss / float64(totalWords)
	validAcc := float64(totalCorrect) / float64(totalWords)
	validPPL := clampedPerplexity(validLoss)

	fmt.Printf("Validation set at step %d: loss = %g, perplexity = %g, accuracy = %g\n",
		step, validLoss, validPPL, validAcc*100)

	return validPPL
}

// applyDecayPolicy arms or disarms learning-rate decay for the current
// stall count and applies one decay multiplication when due. Arming only
// happens past the decay-activation step threshold; both transitions are
// logged exactly once.
func (t *Trainer) applyDecayPolicy(step, stalled int) {
	if stalled > 0 {
		if step > t.optim.LRDecayStartAt {
			if !t.decayArmed {
				fmt.Printf("Learning rate decay activated at step %d with decay value %f; current lr value: %f\n",
					step, t.optim.LRDecay, t.optim.LR)
			}
			t.decayArmed = true
		}
	} else {
		if t.decayArmed {
			fmt.Printf("Learning rate decay de-activated at step %d; current lr value: %f\n", step, t.optim.LR)
		}
		t.decayArmed = false
	}

	if t.decayArmed && t.opts.LRDecaySteps > 0 && step%t.opts.LRDecaySteps == 0 {
		t.optim.UpdateLearningRate()
		fmt.Printf("Learning rate after step %d set to lr = %g\n", step, t.optim.LR)
	}
}

// Train runs the loop until a termination condition fires or ctx is
// cancelled. It always returns the ledger as last persisted — partial
// progress is never rolled back. validSet may be nil (no validation) and
// savePath may be empty (no checkpointing).
func (t *Trainer) Train(ctx context.Context, trainSet, validSet Dataset, savePath string) (*State, StopReason, error) {
	statePath := ""
	if savePath != "" {
		statePath = filepath.Join(savePath, "state.json")
	}

	t.model.SetTrain(true)
	crit := NewCriterion(t.opts.PadIndex)

	step := t.state.LastStep()
	bestPPL := math.Inf(1)
	stalled := 0 // consecutive validations that did not improve bestPPL

	checkpointStats := NewStats()
	reportStats := NewStats()

	epochLen := trainSet.Len(t.opts.BatchSize)

	it := trainSet.Iterator(t.opts.BatchSize, true, true, step)
	for {
		// The cancellation token is only examined here, so a signal
		// raised mid-iteration takes effect at the iteration boundary
		// and the last persisted ledger is what comes back.
		select {
		case <-ctx.Done():
			return t.state, StopInterrupted, nil
		default:
		}

		// Terminate policy
		if t.opts.EarlyStop > 0 && stalled >= t.opts.EarlyStop {
			return t.state, StopEarly, nil
		}
		if t.opts.StepsLimit > 0 && step >= t.opts.StepsLimit {
			return t.state, StopStepLimit, nil
		}

		// The training stream is asked to loop forever, so running dry only
		// happens with a finite stream; treat it as the end of the
		// scheduled steps.
		_, b, ok := it.Next()
		if !ok {
			return t.state, StopStepLimit, nil
		}

		// Run step
		t.trainStep(b, crit, []*Stats{checkpointStats, reportStats})
		step++

		// Report
		if t.opts.ReportSteps > 0 && step%t.opts.ReportSteps == 0 {
			fmt.Printf("Step %d: %s\n", step, reportStats)
			reportStats = NewStats()
		}

		if epochLen > 0 && step%epochLen == 0 {
			fmt.Printf("New epoch %d is starting at step %d\n", step/epochLen, step)
		}

		validPPL := 0.0
		validRan := false

		// Validation
		if validSet != nil && t.opts.ValidationSteps > 0 && step%t.opts.ValidationSteps == 0 {
			validPPL = t.evaluate(step, crit, validSet)
			validRan = true

			if validPPL < bestPPL {
				bestPPL = validPPL
				stalled = 0
			} else {
				stalled++
			}
			fmt.Printf("Validation perplexity stalled %d times\n", stalled)
		}

		// Learning rate update
		t.applyDecayPolicy(step, stalled)

		// Checkpoint
		if savePath != "" && t.opts.CheckpointSteps > 0 && step%t.opts.CheckpointSteps == 0 {
			if !validRan && validSet != nil {
				validPPL = t.evaluate(step, crit, validSet)
				validRan = true

				// A validation is a validation: the early-stop counter
				// tracks this one too.
				if validPPL < bestPPL {
					bestPPL = validPPL
					stalled = 0
				} else {
					stalled++
				}
			}

			checkpointPPL := clampedPerplexity(checkpointStats.Loss())
			if validRan {
				checkpointPPL = validPPL
			}

			file := filepath.Join(savePath, fmt.Sprintf("checkpoint_%d", step))
			fmt.Printf("Checkpoint at %d: %s\n", step, checkpointStats)

			if err := t.model.Save(file); err != nil {
				return t.state, StopInterrupted, fmt.Errorf("failed to save checkpoint %s: %v", file, err)
			}
			t.state.AddCheckpoint(step, file, checkpointPPL)
			if err := t.state.Save(statePath); err != nil {
				return t.state, StopInterrupted, err
			}
			fmt.Printf("Checkpoint saved: path = %s ppl = %.2f\n", file, checkpointPPL)

			checkpointStats = NewStats()
		}
	}
}
