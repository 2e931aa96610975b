package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// HashEmbedder is an offline embedder based on feature hashing. Every word
// and every character trigram of a word is hashed into one signed bucket of a
// Dimension-wide vector; token vectors are mean-pooled. The Generator applies
// the L2 normalization.
//
// It is deterministic and needs no model download, at the cost of only
// capturing lexical overlap.
type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, Dimension)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		features := append([]string{"w:" + tok}, trigrams(tok)...)
		weight := 1 / float32(len(features))
		for _, f := range features {
			sum := xxhash.Sum64String(f)
			idx := sum % Dimension
			if sum&(1<<63) != 0 {
				vec[idx] -= weight
			} else {
				vec[idx] += weight
			}
		}
	}

	n := float32(len(tokens))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func trigrams(tok string) []string {
	runes := []rune("<" + tok + ">")
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, "t:"+string(runes[i:i+3]))
	}
	return out
}
