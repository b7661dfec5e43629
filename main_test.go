package main

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/seqtrain/seqtrain/data"
	"github.com/seqtrain/seqtrain/model"
	"github.com/seqtrain/seqtrain/train"
)

// toyPairs builds a small synthetic corpus over a vocabulary of the given
// size (id 0 is padding).
func toyPairs(n, vocab, maxLen int) []data.Pair {
	pairs := make([]data.Pair, n)
	for i := range pairs {
		srcLen := 1 + rand.IntN(maxLen)
		tgtLen := 1 + rand.IntN(maxLen)
		src := make([]int, srcLen)
		tgt := make([]int, tgtLen)
		for j := range src {
			src[j] = 1 + rand.IntN(vocab-1)
		}
		for j := range tgt {
			tgt[j] = 1 + rand.IntN(vocab-1)
		}
		pairs[i] = data.Pair{Source: src, Target: tgt}
	}
	return pairs
}

// TestTrainingRun drives a full (tiny) training session end to end:
// reports, validations, checkpoints and the persisted ledger.
func TestTrainingRun(t *testing.T) {
	saveDir := t.TempDir()

	const vocab = 12
	trainSet := data.NewDataset(toyPairs(16, vocab, 6), 0)
	validSet := data.NewDataset(toyPairs(4, vocab, 6), 0)

	m := model.New(vocab, 8, 8)

	opts := train.DefaultOptions()
	opts.BatchSize = 4
	opts.MaxGeneratorBatches = 2
	opts.ReportSteps = 5
	opts.ValidationSteps = 5
	opts.CheckpointSteps = 5
	opts.StepsLimit = 20
	opts.LearningRate = 0.1
	opts.NAvgCheckpoints = 2

	trainer := train.NewTrainer(m, opts, nil, nil)
	state, reason, err := trainer.Train(context.Background(), trainSet, validSet, saveDir)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if reason != train.StopStepLimit {
		t.Fatalf("expected stop reason %q, got %q", train.StopStepLimit, reason)
	}

	// 20 steps at checkpoint cadence 5 => 4 checkpoints, 2 retained
	if len(state.History) != 2 {
		t.Fatalf("expected 2 retained checkpoints, got %d", len(state.History))
	}
	if state.History[0].Perplexity > state.History[1].Perplexity {
		t.Fatalf("history not sorted ascending: %v", state.History)
	}
	if state.LastStep() != 20 {
		t.Fatalf("expected last step 20, got %d", state.LastStep())
	}

	// The current checkpoint artifact is always on disk
	if _, err := os.Stat(state.Checkpoint.File + ".dat"); err != nil {
		t.Fatalf("current checkpoint artifact missing: %v", err)
	}

	// The persisted ledger round-trips to the in-memory one
	loaded, err := train.LoadState(filepath.Join(saveDir, "state.json"))
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded == nil {
		t.Fatal("state.json not written")
	}
	if !reflect.DeepEqual(state, loaded) {
		t.Fatalf("persisted state differs:\n  mem:  %+v\n  disk: %+v", state, loaded)
	}
}

// TestResumeContinuesStepCounter restarts training from a persisted ledger
// and checks the step counter picks up where it stopped.
func TestResumeContinuesStepCounter(t *testing.T) {
	saveDir := t.TempDir()

	const vocab = 12
	trainSet := data.NewDataset(toyPairs(8, vocab, 5), 0)

	opts := train.DefaultOptions()
	opts.BatchSize = 4
	opts.MaxGeneratorBatches = 2
	opts.ReportSteps = 10
	opts.CheckpointSteps = 5
	opts.StepsLimit = 10
	opts.LearningRate = 0.1
	opts.NAvgCheckpoints = 3

	m := model.New(vocab, 8, 8)
	trainer := train.NewTrainer(m, opts, nil, nil)
	if _, _, err := trainer.Train(context.Background(), trainSet, nil, saveDir); err != nil {
		t.Fatalf("first run: %v", err)
	}

	state, err := train.LoadState(filepath.Join(saveDir, "state.json"))
	if err != nil || state == nil {
		t.Fatalf("LoadState: state=%v err=%v", state, err)
	}
	if state.LastStep() != 10 {
		t.Fatalf("expected last step 10, got %d", state.LastStep())
	}

	opts.StepsLimit = 15
	resumed := train.NewTrainer(model.New(vocab, 8, 8), opts, nil, state)
	state2, reason, err := resumed.Train(context.Background(), trainSet, nil, saveDir)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if reason != train.StopStepLimit {
		t.Fatalf("expected stop reason %q, got %q", train.StopStepLimit, reason)
	}
	if state2.LastStep() != 15 {
		t.Fatalf("expected last step 15 after resume, got %d", state2.LastStep())
	}
}
