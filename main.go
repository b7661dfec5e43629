package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/seqtrain/seqtrain/data"
	"github.com/seqtrain/seqtrain/model"
	"github.com/seqtrain/seqtrain/train"
)

// -------- MAIN -------- //
func main() {
	srcPath := flag.String("src", "assets/train.src", "source side of the training corpus")
	tgtPath := flag.String("tgt", "assets/train.tgt", "target side of the training corpus")
	validSrc := flag.String("valid-src", "", "source side of the validation corpus (optional)")
	validTgt := flag.String("valid-tgt", "", "target side of the validation corpus (optional)")
	savePath := flag.String("save", "runs/base", "directory for checkpoints, tokenizer and trainer state")
	vocabSize := flag.Int("vocab", 8000, "BPE vocabulary size")
	features := flag.Int("features", 128, "hidden feature width")
	stepsLimit := flag.Int("steps", 0, "absolute step limit (0 = unlimited)")
	resume := flag.Bool("resume", false, "resume from the persisted trainer state")
	flag.Parse()

	if err := os.MkdirAll(*savePath, 0o755); err != nil {
		fatal(err)
	}

	// 1. Load Data
	fmt.Println("Loading corpus...")

	tok, err := data.TrainOrLoadBPE([]string{*srcPath, *tgtPath}, filepath.Join(*savePath, "tokenizer.json"), *vocabSize)
	if err != nil {
		fatal(err)
	}
	fmt.Println("Vocabulary size:", tok.VocabSize())

	pairs, err := data.LoadPairs(*srcPath, *tgtPath, tok)
	if err != nil {
		fatal(err)
	}
	trainSet := data.NewDataset(pairs, tok.PadID())
	fmt.Printf("Loaded corpus: %d pairs\n", len(pairs))

	maxSteps := longestExample(pairs)

	var validSet train.Dataset
	if *validSrc != "" && *validTgt != "" {
		validPairs, err := data.LoadPairs(*validSrc, *validTgt, tok)
		if err != nil {
			fatal(err)
		}
		if n := longestExample(validPairs); n > maxSteps {
			maxSteps = n
		}
		validSet = data.NewDataset(validPairs, tok.PadID())
		fmt.Printf("Loaded validation corpus: %d pairs\n", len(validPairs))
	}

	// 2. Initialize Model
	m := model.New(tok.VocabSize(), *features, maxSteps)

	// 3. Configure & Train
	opts := train.DefaultOptions()
	opts.StepsLimit = *stepsLimit
	opts.PadIndex = tok.PadID()

	var state *train.State
	if *resume {
		// A malformed state file fails loudly; a missing one is a fresh
		// start.
		state, err = train.LoadState(filepath.Join(*savePath, "state.json"))
		if err != nil {
			fatal(err)
		}
		if state != nil && state.Checkpoint != nil {
			fmt.Println("Found existing checkpoint. Loading weights...")
			if err := m.LoadFromFile(state.Checkpoint.File); err != nil {
				fatal(fmt.Errorf("cannot load checkpoint %s: %v", state.Checkpoint.File, err))
			}
			fmt.Printf("Resuming from step %d\n", state.LastStep())
		}
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	trainer := train.NewTrainer(m, opts, nil, state)
	state, reason, err := trainer.Train(ctx, trainSet, validSet, *savePath)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Training finished (%s), %d checkpoints retained\n", reason, len(state.History))
	if !state.Empty() {
		best := state.History[0]
		fmt.Printf("Best checkpoint: %s (step %d, ppl %.2f)\n", best.File, best.Step, best.Perplexity)
	}
}

// setupSignalHandler maps SIGINT/SIGTERM onto context cancellation so the
// training loop exits at the next iteration boundary with its ledger
// intact.
func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt! Finishing the current step...")
		cancel()
	}()
	return ctx, cancel
}

func longestExample(pairs []data.Pair) int {
	n := 0
	for _, p := range pairs {
		if len(p.Source) > n {
			n = len(p.Source)
		}
		if len(p.Target) > n {
			n = len(p.Target)
		}
	}
	return n
}

func fatal(err error) {
	fmt.Println("Error:", err)
	os.Exit(1)
}
