// Package model provides a compact reference sequence model satisfying the
// collaborator contracts in package train: per-position source embeddings
// with additive positional encoding feed a shared linear generator with a
// log-softmax head.
package model

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"github.com/seqtrain/seqtrain/train"
)

type SeqModel struct {
	vocabSize int
	features  int

	Embed  *train.Matrix // (vocab x features) token embeddings
	dEmbed *train.Matrix
	posEnc []float64 // flat (maxSteps x features) sinusoid table

	gen      *Generator
	training bool

	// forward cache, consumed by Backward to scatter gradients into the
	// embedding rows that were looked up
	lastSource *train.IntMatrix
}

// New builds a model over a shared vocabulary. maxSteps bounds the
// sequence length the positional table covers.
func New(vocabSize, features, maxSteps int) *SeqModel {
	m := &SeqModel{
		vocabSize: vocabSize,
		features:  features,
		Embed:     train.NewMatrix(vocabSize, features),
		dEmbed:    train.NewMatrix(vocabSize, features),
		posEnc:    makePositionalEncoding(maxSteps, features),
		gen:       newGenerator(features, vocabSize),
		training:  true,
	}
	m.Embed.Randomize()
	return m
}

// makePositionalEncoding builds the standard sinusoid table:
// PE(pos, 2i)   = sin(pos / 10000^(2i/d))
// PE(pos, 2i+1) = cos(pos / 10000^(2i/d))
func makePositionalEncoding(maxSteps, features int) []float64 {
	pe := make([]float64, maxSteps*features)
	for pos := 0; pos < maxSteps; pos++ {
		for i := 0; i < features; i++ {
			exponent := float64(2*(i/2)) / float64(features)
			divTerm := math.Pow(10000.0, exponent)
			val := float64(pos) / divTerm
			if i%2 == 0 {
				pe[pos*features+i] = math.Sin(val)
			} else {
				pe[pos*features+i] = math.Cos(val)
			}
		}
	}
	return pe
}

// Forward embeds every source position and adds its positional term,
// producing the (steps, batch, features) hidden-state tensor the chunked
// loss consumes.
func (m *SeqModel) Forward(b *train.Batch) *train.Tensor {
	steps, batch := b.Source.Steps(), b.Source.Batch()
	maxSteps := len(m.posEnc) / m.features
	if steps > maxSteps {
		panic(fmt.Sprintf("sequence length %d exceeds positional table %d", steps, maxSteps))
	}

	out := train.NewTensor(steps, batch, m.features)
	outData := out.Data()
	embData := m.Embed.Data()

	for t := 0; t < steps; t++ {
		pe := m.posEnc[t*m.features : (t+1)*m.features]
		for bi := 0; bi < batch; bi++ {
			id := b.Source.At(t, bi)
			if id < 0 || id >= m.vocabSize {
				panic(fmt.Sprintf("token id %d out of bounds (vocab: %d)", id, m.vocabSize))
			}
			dst := outData[(t*batch+bi)*m.features : (t*batch+bi+1)*m.features]
			src := embData[id*m.features : (id+1)*m.features]
			for k := range dst {
				dst[k] = src[k] + pe[k]
			}
		}
	}

	m.lastSource = b.Source
	return out
}

// Backward scatter-adds the hidden-state gradient into the embedding rows
// looked up by the last Forward.
func (m *SeqModel) Backward(grad *train.Tensor) {
	if m.lastSource == nil {
		panic("Backward called before Forward")
	}
	steps, batch := grad.Steps(), grad.Batch()
	gradData := grad.Data()
	dEmb := m.dEmbed.Data()

	for t := 0; t < steps; t++ {
		for bi := 0; bi < batch; bi++ {
			id := m.lastSource.At(t, bi)
			g := gradData[(t*batch+bi)*m.features : (t*batch+bi+1)*m.features]
			row := dEmb[id*m.features : (id+1)*m.features]
			for k := range row {
				row[k] += g[k]
			}
		}
	}
}

func (m *SeqModel) ZeroGrad() {
	m.dEmbed.Reset()
	m.gen.dW.Reset()
	m.gen.dB.Reset()
}

func (m *SeqModel) Generator() train.Generator { return m.gen }

func (m *SeqModel) SetTrain(training bool) { m.training = training }

func (m *SeqModel) Parameters() []*train.Param {
	return []*train.Param{
		{Value: m.Embed, Grad: m.dEmbed},
		{Value: m.gen.W, Grad: m.gen.dW},
		{Value: m.gen.B, Grad: m.gen.dB},
	}
}

// modelData is the explicit on-disk schema; the live struct is never
// serialized directly.
type modelData struct {
	VocabSize int
	Features  int
	Embed     *train.Matrix
	GenW      *train.Matrix
	GenB      *train.Matrix
}

// Save persists the weights as <path>.dat so every checkpoint is a file
// family sharing the path prefix.
func (m *SeqModel) Save(path string) error {
	file, err := os.Create(path + ".dat")
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	return encoder.Encode(modelData{
		VocabSize: m.vocabSize,
		Features:  m.features,
		Embed:     m.Embed,
		GenW:      m.gen.W,
		GenB:      m.gen.B,
	})
}

// LoadFromFile restores weights saved by Save into a model of the same
// shape.
func (m *SeqModel) LoadFromFile(path string) error {
	file, err := os.Open(path + ".dat")
	if err != nil {
		return err
	}
	defer file.Close()

	var loaded modelData
	if err := gob.NewDecoder(file).Decode(&loaded); err != nil {
		return fmt.Errorf("failed to decode gob file: %v", err)
	}

	if loaded.VocabSize != m.vocabSize || loaded.Features != m.features {
		return fmt.Errorf("architecture mismatch: current model is (%d, %d), file is (%d, %d)",
			m.vocabSize, m.features, loaded.VocabSize, loaded.Features)
	}

	copy(m.Embed.Data(), loaded.Embed.Data())
	copy(m.gen.W.Data(), loaded.GenW.Data())
	copy(m.gen.B.Data(), loaded.GenB.Data())
	return nil
}
