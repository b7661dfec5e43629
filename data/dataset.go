package data

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/seqtrain/seqtrain/train"
)

// Pair is one aligned source/target example, already tokenized.
type Pair struct {
	Source []int
	Target []int
}

// Dataset is an in-memory parallel corpus implementing train.Dataset.
type Dataset struct {
	pairs []Pair
	pad   int
}

func NewDataset(pairs []Pair, pad int) *Dataset {
	return &Dataset{pairs: pairs, pad: pad}
}

func (d *Dataset) Pairs() int { return len(d.pairs) }

// Len reports batches per full pass at the given batch size.
func (d *Dataset) Len(batchSize int) int {
	if batchSize <= 0 {
		panic("batch size must be positive")
	}
	return (len(d.pairs) + batchSize - 1) / batchSize
}

// Iterator yields padded time-major batches. With loop set the stream
// restarts forever, reshuffling each pass when shuffle is set.
// startPosition resumes the global step counter mid-pass.
func (d *Dataset) Iterator(batchSize int, shuffle, loop bool, startPosition int) train.BatchIterator {
	if len(d.pairs) == 0 {
		panic("empty dataset")
	}
	it := &iterator{
		d:         d,
		batchSize: batchSize,
		shuffle:   shuffle,
		loop:      loop,
		step:      startPosition,
		pos:       startPosition % d.Len(batchSize),
		order:     make([]int, len(d.pairs)),
	}
	for i := range it.order {
		it.order[i] = i
	}
	if shuffle {
		rand.Shuffle(len(it.order), func(i, j int) { it.order[i], it.order[j] = it.order[j], it.order[i] })
	}
	return it
}

type iterator struct {
	d         *Dataset
	batchSize int
	shuffle   bool
	loop      bool

	step  int // global step counter
	pos   int // batch index within the current pass
	order []int
}

func (it *iterator) Next() (int, *train.Batch, bool) {
	perPass := it.d.Len(it.batchSize)
	if it.pos >= perPass {
		if !it.loop {
			return it.step, nil, false
		}
		it.pos = 0
		if it.shuffle {
			rand.Shuffle(len(it.order), func(i, j int) { it.order[i], it.order[j] = it.order[j], it.order[i] })
		}
	}

	from := it.pos * it.batchSize
	to := from + it.batchSize
	if to > len(it.order) {
		to = len(it.order)
	}

	b := it.d.buildBatch(it.order[from:to])
	step := it.step
	it.step++
	it.pos++
	return step, b, true
}

// buildBatch pads the selected pairs to the longest example and lays them
// out time-major. Source and target share one step count so the model's
// per-position outputs line up with the targets.
func (d *Dataset) buildBatch(indices []int) *train.Batch {
	steps := 0
	for _, idx := range indices {
		if n := len(d.pairs[idx].Source); n > steps {
			steps = n
		}
		if n := len(d.pairs[idx].Target); n > steps {
			steps = n
		}
	}

	src := train.NewIntMatrix(steps, len(indices))
	tgt := train.NewIntMatrix(steps, len(indices))
	fill(src, d.pad)
	fill(tgt, d.pad)

	for bi, idx := range indices {
		for t, id := range d.pairs[idx].Source {
			src.Set(t, bi, id)
		}
		for t, id := range d.pairs[idx].Target {
			tgt.Set(t, bi, id)
		}
	}
	return &train.Batch{Source: src, Target: tgt}
}

func fill(m *train.IntMatrix, id int) {
	flat := m.Flat()
	for i := range flat {
		flat[i] = id
	}
}

// LoadPairs reads two line-aligned corpus files, cleans and tokenizes each
// line pair, and drops pairs where either side comes out empty.
func LoadPairs(srcPath, tgtPath string, tok *Tokenizer) ([]Pair, error) {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer srcFile.Close()

	tgtFile, err := os.Open(tgtPath)
	if err != nil {
		return nil, err
	}
	defer tgtFile.Close()

	srcScan := bufio.NewScanner(srcFile)
	tgtScan := bufio.NewScanner(tgtFile)

	var pairs []Pair
	line := 0
	for srcScan.Scan() {
		line++
		if !tgtScan.Scan() {
			return nil, fmt.Errorf("%s ends before %s at line %d", tgtPath, srcPath, line)
		}

		srcIDs, err := tok.Encode(CleanLine(srcScan.Text()))
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}
		tgtIDs, err := tok.Encode(CleanLine(tgtScan.Text()))
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}

		if len(srcIDs) == 0 || len(tgtIDs) == 0 {
			continue
		}
		pairs = append(pairs, Pair{Source: srcIDs, Target: tgtIDs})
	}
	if err := srcScan.Err(); err != nil {
		return nil, err
	}
	if err := tgtScan.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}
