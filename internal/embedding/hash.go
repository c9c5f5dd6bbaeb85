package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDim is the vector width of the hash provider.
const DefaultDim = 384

// HashProvider is an offline, deterministic embedder. Each token is hashed
// into a signed bucket, so texts sharing vocabulary land close together under
// cosine similarity. It needs no model and is the default for benchmarks.
type HashProvider struct {
	dim int
}

// NewHashProvider returns a HashProvider producing vectors of width dim.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &HashProvider{dim: dim}
}

// Dim returns the vector width.
func (h *HashProvider) Dim() int { return h.dim }

// Embed returns an L2-normalised bag-of-words vector. Text with no usable
// tokens yields the zero vector.
func (h *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, tok := range Tokenize(text) {
		hasher := fnv.New64a()
		hasher.Write([]byte(tok))
		sum := hasher.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	return Normalize(vec), nil
}

// Close is a no-op.
func (h *HashProvider) Close() error { return nil }

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"did": {}, "do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"why": {}, "with": {}, "you": {},
}

// Tokenize lowercases text, splits on anything that is not a letter or digit
// and drops stop words and single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, skip := stopWords[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Normalize scales vec to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	factor := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= factor
	}
	return vec
}
