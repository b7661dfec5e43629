package train

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeArtifacts fakes one saved checkpoint as a weights + metadata file
// family sharing the path prefix.
func writeArtifacts(t *testing.T, file string) {
	t.Helper()
	for _, suffix := range []string{".dat", ".meta"} {
		if err := os.WriteFile(file+suffix, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func artifactsExist(file string) bool {
	matches, _ := filepath.Glob(file + ".*")
	return len(matches) > 0
}

func TestAddCheckpointRetention(t *testing.T) {
	dir := t.TempDir()
	s := NewState(3)

	ppls := []float64{5.0, 3.0, 4.0, 2.0, 6.0}
	files := make([]string, len(ppls))
	for i, ppl := range ppls {
		files[i] = filepath.Join(dir, "checkpoint_"+string(rune('1'+i)))
		writeArtifacts(t, files[i])
		s.AddCheckpoint((i+1)*100, files[i], ppl)
	}

	want := []float64{2.0, 3.0, 4.0}
	if len(s.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(s.History))
	}
	for i, c := range s.History {
		if c.Perplexity != want[i] {
			t.Errorf("history[%d].Perplexity = %v, want %v", i, c.Perplexity, want[i])
		}
	}

	// The 5.0 checkpoint fell off the retained set and is gone
	if artifactsExist(files[0]) {
		t.Error("worst retired checkpoint artifacts still on disk")
	}

	// The 6.0 checkpoint ranks worst but is the current one: absent from
	// history, retained on disk.
	if s.Checkpoint == nil || s.Checkpoint.File != files[4] {
		t.Fatalf("current checkpoint = %+v, want %s", s.Checkpoint, files[4])
	}
	if s.contains(s.Checkpoint) {
		t.Error("current checkpoint should not be in history")
	}
	if !artifactsExist(files[4]) {
		t.Error("current checkpoint artifacts were deleted")
	}

	// The next add makes the old current disposable
	next := filepath.Join(dir, "checkpoint_next")
	writeArtifacts(t, next)
	s.AddCheckpoint(600, next, 1.0)
	if artifactsExist(files[4]) {
		t.Error("disposable previous checkpoint artifacts still on disk")
	}
}

func TestAddCheckpointDeletionBestEffort(t *testing.T) {
	dir := t.TempDir()
	s := NewState(1)

	// No artifacts ever written: deletions must be silent no-ops
	s.AddCheckpoint(1, filepath.Join(dir, "a"), 3.0)
	s.AddCheckpoint(2, filepath.Join(dir, "b"), 2.0)
	s.AddCheckpoint(3, filepath.Join(dir, "c"), 1.0)

	if len(s.History) != 1 || s.History[0].Perplexity != 1.0 {
		t.Fatalf("history = %+v, want the single 1.0 entry", s.History)
	}
}

func TestStateSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := NewState(2)
	s.AddCheckpoint(100, filepath.Join(dir, "checkpoint_100"), 4.5)
	s.AddCheckpoint(200, filepath.Join(dir, "checkpoint_200"), 3.5)

	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !reflect.DeepEqual(s, loaded) {
		t.Fatalf("round trip mismatch:\n  saved:  %+v\n  loaded: %+v", s, loaded)
	}

	// Re-persisting a reloaded ledger changes nothing
	if err := loaded.Save(path); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	again, err := LoadState(path)
	if err != nil {
		t.Fatalf("re-LoadState: %v", err)
	}
	if !reflect.DeepEqual(loaded, again) {
		t.Fatal("re-persisted ledger differs from its source")
	}
}

func TestLoadStateMissingFile(t *testing.T) {
	s, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
	if s != nil {
		t.Fatalf("missing file should yield nil state, got %+v", s)
	}
}

func TestLoadStateMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(path); err == nil {
		t.Fatal("malformed state file must fail loudly")
	}
}

func TestLastStep(t *testing.T) {
	s := NewState(3)
	if got := s.LastStep(); got != 0 {
		t.Errorf("empty ledger LastStep = %d, want 0", got)
	}
	s.AddCheckpoint(700, "checkpoint_700", 2.0)
	if got := s.LastStep(); got != 700 {
		t.Errorf("LastStep = %d, want 700", got)
	}
	if s.Empty() {
		t.Error("ledger with history should not be empty")
	}
}
