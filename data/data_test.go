package data

import (
	"testing"
)

func TestCleanLine(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello, World!", "hello, world!"},
		{"  spaced\tout \n text ", "spaced out text"},
		{"symbols @#$% removed", "symbols removed"},
		{"keep don't-stop. ok?", "keep don't-stop. ok?"},
		{"", ""},
		{"@#$%", ""},
	}
	for _, c := range cases {
		if got := CleanLine(c.in); got != c.want {
			t.Errorf("CleanLine(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func smallPairs() []Pair {
	return []Pair{
		{Source: []int{1, 2, 3}, Target: []int{4, 5}},
		{Source: []int{6}, Target: []int{7, 8, 9, 10}},
		{Source: []int{2, 2}, Target: []int{3}},
		{Source: []int{5, 4, 3, 2}, Target: []int{1}},
		{Source: []int{9}, Target: []int{9}},
	}
}

func TestDatasetLen(t *testing.T) {
	d := NewDataset(smallPairs(), 0)

	cases := []struct{ batch, want int }{
		{1, 5}, {2, 3}, {5, 1}, {10, 1},
	}
	for _, c := range cases {
		if got := d.Len(c.batch); got != c.want {
			t.Errorf("Len(%d) = %d, want %d", c.batch, got, c.want)
		}
	}
}

func TestIteratorDrainsWithoutLoop(t *testing.T) {
	d := NewDataset(smallPairs(), 0)

	it := d.Iterator(2, false, false, 0)
	examples := 0
	batches := 0
	for {
		step, b, ok := it.Next()
		if !ok {
			break
		}
		if step != batches {
			t.Errorf("step = %d, want %d", step, batches)
		}
		batches++
		examples += b.Source.Batch()
	}
	if batches != 3 {
		t.Errorf("batches = %d, want 3", batches)
	}
	if examples != 5 {
		t.Errorf("examples seen = %d, want 5", examples)
	}
}

func TestIteratorLoopsForever(t *testing.T) {
	d := NewDataset(smallPairs(), 0)

	it := d.Iterator(2, true, true, 0)
	for want := 0; want < 10; want++ {
		step, b, ok := it.Next()
		if !ok {
			t.Fatal("looping iterator must never stop")
		}
		if step != want {
			t.Errorf("step = %d, want %d", step, want)
		}
		if b.Source.Steps() != b.Target.Steps() {
			t.Error("source and target must share one step count")
		}
	}
}

func TestIteratorResumesStepCounter(t *testing.T) {
	d := NewDataset(smallPairs(), 0)

	it := d.Iterator(2, false, true, 7)
	step, _, ok := it.Next()
	if !ok || step != 7 {
		t.Fatalf("first step = %d (ok=%v), want 7", step, ok)
	}
	step, _, _ = it.Next()
	if step != 8 {
		t.Errorf("second step = %d, want 8", step)
	}
}

func TestEmptyDatasetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("iterating an empty dataset must panic")
		}
	}()
	NewDataset(nil, 0).Iterator(2, false, false, 0)
}

func TestBuildBatchPadsToSharedLength(t *testing.T) {
	const pad = 0
	d := NewDataset([]Pair{
		{Source: []int{1, 2, 3}, Target: []int{4, 5}},
		{Source: []int{6}, Target: []int{7, 8, 9, 10}},
	}, pad)

	_, b, ok := d.Iterator(2, false, false, 0).Next()
	if !ok {
		t.Fatal("expected a batch")
	}

	// Longest side anywhere in the batch is the target of length 4
	if b.Source.Steps() != 4 || b.Target.Steps() != 4 {
		t.Fatalf("steps = (%d, %d), want (4, 4)", b.Source.Steps(), b.Target.Steps())
	}
	if b.Source.Batch() != 2 || b.Target.Batch() != 2 {
		t.Fatalf("batch = (%d, %d), want (2, 2)", b.Source.Batch(), b.Target.Batch())
	}

	// First example: source [1 2 3 pad], target [4 5 pad pad]
	wantSrc := []int{1, 2, 3, pad}
	wantTgt := []int{4, 5, pad, pad}
	for step := 0; step < 4; step++ {
		if got := b.Source.At(step, 0); got != wantSrc[step] {
			t.Errorf("source[%d] = %d, want %d", step, got, wantSrc[step])
		}
		if got := b.Target.At(step, 0); got != wantTgt[step] {
			t.Errorf("target[%d] = %d, want %d", step, got, wantTgt[step])
		}
	}
}

func TestIteratorShufflePreservesPairs(t *testing.T) {
	pairs := smallPairs()
	d := NewDataset(pairs, 0)

	// Batch size 1 keeps each pair intact; collect one full pass
	it := d.Iterator(1, true, false, 0)
	seen := map[int]bool{}
	for {
		_, b, ok := it.Next()
		if !ok {
			break
		}
		// The first source token identifies the pair in this fixture
		seen[b.Source.At(0, 0)] = true
	}
	for _, p := range pairs {
		if !seen[p.Source[0]] {
			t.Errorf("pair starting with %d never yielded", p.Source[0])
		}
	}
}
