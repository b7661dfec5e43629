package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Checkpoint is one persisted snapshot of model weights plus the
// perplexity it scored when it was written. Identity is the file prefix.
type Checkpoint struct {
	Step       int     `json:"step"`
	File       string  `json:"file"`
	Perplexity float64 `json:"perplexity"`
}

// State is the bounded, perplexity-ranked archive of checkpoints.
// Checkpoint points at the most recently written snapshot; History holds
// the Size best snapshots sorted ascending by perplexity. The snapshot
// referenced by Checkpoint is never deleted from disk, even when it is
// absent from History.
type State struct {
	Size       int          `json:"size"`
	Checkpoint *Checkpoint  `json:"checkpoint"`
	History    []Checkpoint `json:"history"`
}

func NewState(size int) *State {
	return &State{Size: size}
}

func (s *State) Empty() bool {
	return len(s.History) == 0
}

// LastStep is the step the most recent checkpoint was taken at, used to
// resume the training loop's step counter. Zero when no checkpoint exists.
func (s *State) LastStep() int {
	if s.Checkpoint != nil {
		return s.Checkpoint.Step
	}
	return 0
}

func (s *State) contains(c *Checkpoint) bool {
	for i := range s.History {
		if s.History[i].File == c.File {
			return true
		}
	}
	return false
}

// deleteCheckpoint removes every artifact file sharing the checkpoint's
// path prefix (a snapshot may be stored as several sibling files).
// Best-effort: a file that is already gone never aborts the caller.
func deleteCheckpoint(c *Checkpoint) {
	matches, err := filepath.Glob(c.File + ".*")
	if err != nil {
		fmt.Printf("Could not list checkpoint files for %s: %v\n", c.File, err)
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Could not remove checkpoint file %s: %v\n", path, err)
		}
	}
}

// AddCheckpoint registers a freshly written snapshot. A previous current
// checkpoint that never made the retained set is disposable and its
// artifacts are deleted. The new entry joins History, History is re-sorted
// ascending by perplexity (stable, so ties keep insertion order) and
// trimmed back to Size entries, deleting the artifacts of everything that
// fell off — except the snapshot just written, which stays on disk as the
// current checkpoint no matter how poorly it ranks.
func (s *State) AddCheckpoint(step int, file string, perplexity float64) {
	if s.Checkpoint != nil && !s.contains(s.Checkpoint) {
		deleteCheckpoint(s.Checkpoint)
	}

	s.Checkpoint = &Checkpoint{Step: step, File: file, Perplexity: perplexity}

	s.History = append(s.History, *s.Checkpoint)
	sort.SliceStable(s.History, func(i, j int) bool {
		return s.History[i].Perplexity < s.History[j].Perplexity
	})

	if len(s.History) > s.Size {
		for i := s.Size; i < len(s.History); i++ {
			if s.History[i].File != file {
				deleteCheckpoint(&s.History[i])
			}
		}
		s.History = s.History[:s.Size]
	}
}

// Save persists the ledger as JSON, fully replacing any prior version.
// The file is written to a temporary sibling and renamed into place so a
// crash mid-write never leaves a half-written ledger behind.
func (s *State) Save(path string) error {
	buf, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode trainer state: %v", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write trainer state: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace trainer state: %v", err)
	}
	return nil
}

// LoadState reconstructs a persisted ledger. A missing file is not an
// error at this layer: the caller treats (nil, nil) as a fresh start. A
// malformed file is an error the caller must fail loudly on.
func LoadState(path string) (*State, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trainer state %s: %v", path, err)
	}

	state := &State{}
	if err := json.Unmarshal(buf, state); err != nil {
		return nil, fmt.Errorf("failed to decode trainer state %s: %v", path, err)
	}
	return state, nil
}
