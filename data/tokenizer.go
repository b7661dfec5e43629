package data

import (
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/bpe"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// Special tokens shared between the tokenizer and the model.
const (
	PadToken = "<pad>"
	BosToken = "<bos>"
	EosToken = "<eos>"
	UnkToken = "<unk>"
)

// Tokenizer wraps a BPE tokenizer with the id lookups training needs.
type Tokenizer struct {
	bpe   *tk.Tokenizer
	vocab map[string]int
}

// TrainOrLoadBPE trains a BPE tokenizer over the corpus files when tokPath
// does not exist yet, otherwise loads the saved one.
func TrainOrLoadBPE(corpusPaths []string, tokPath string, vocabSize int) (*Tokenizer, error) {
	if _, err := os.Stat(tokPath); err == nil {
		t := tk.NewTokenizerFromFile(tokPath)
		if t == nil {
			return nil, fmt.Errorf("cannot load tokenizer from %s", tokPath)
		}
		return newTokenizer(t)
	}

	bpeModel, err := bpe.DefaultBPE()
	if err != nil {
		return nil, err
	}
	t := tk.NewTokenizer(bpeModel)

	// Normalize to NFKC lower; whitespace pretokenization is robust for
	// line-aligned corpora.
	t.WithNormalizer(normalizer.NewSequence([]normalizer.Normalizer{
		normalizer.NewNFKC(),
		normalizer.Lowercase(),
	}))
	t.WithPreTokenizer(pretokenizer.NewWhitespaceSplit())

	tr := bpe.NewBpeTrainer(0, vocabSize)
	tr.SpecialTokens = []tk.AddedToken{
		tk.NewAddedToken(PadToken, true),
		tk.NewAddedToken(BosToken, true),
		tk.NewAddedToken(EosToken, true),
		tk.NewAddedToken(UnkToken, true),
	}

	if err := t.Train(tr, corpusPaths); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(tokPath), 0o755); err != nil {
		return nil, err
	}
	if err := t.Save(tokPath, false); err != nil {
		return nil, err
	}
	return newTokenizer(t)
}

func newTokenizer(t *tk.Tokenizer) (*Tokenizer, error) {
	vocab := t.GetVocab(true)
	if _, ok := vocab[PadToken]; !ok {
		return nil, fmt.Errorf("tokenizer vocabulary is missing %s", PadToken)
	}
	return &Tokenizer{bpe: t, vocab: vocab}, nil
}

// Encode turns raw text into token ids (no BOS/EOS).
func (t *Tokenizer) Encode(text string) ([]int, error) {
	enc, err := t.bpe.EncodeSingle(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(enc.Ids))
	for i, v := range enc.Ids {
		ids[i] = int(v)
	}
	return ids, nil
}

func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

func (t *Tokenizer) PadID() int { return t.vocab[PadToken] }
