// Package embed turns text into vectors for relevance ranking.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/time/rate"
)

// Embedder encodes text as a fixed-dimension vector. Identical input must
// give identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder is an offline embedder that hashes lower-cased word unigrams
// and bigrams into a fixed number of buckets.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dim: dimension}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dim)
	words := tokenize(text)
	for i, w := range words {
		e.add(vec, w, 1)
		if i > 0 {
			e.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	l2normalize(vec)
	return vec, nil
}

// add places weight into the token's bucket with a hash-derived sign.
func (e *HashEmbedder) add(vec []float32, token string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimension returns the embedding dimension.
func (e *HashEmbedder) Dimension() int { return e.dim }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// l2normalize normalizes a vector to unit length.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// Limited throttles an Embedder with a token bucket.
type Limited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewLimited allows rps calls per second with bursts of burst. A
// non-positive rps returns next unchanged.
func NewLimited(next Embedder, rps float64, burst int) Embedder {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Embed(ctx, text)
}
