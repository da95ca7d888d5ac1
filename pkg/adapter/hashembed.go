package adapter

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
)

// HashEmbedder is an offline embedder using feature hashing: each lowercased word adds
// a signed unit to one bucket. Texts sharing words get similar vectors, which is enough
// for local runs and tests without a model endpoint.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) (*HashEmbedder, error) {
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive",
			goerr.V("dimension", dimension),
			goerr.T(model.ErrTagConfig))
	}
	return &HashEmbedder{dimension: dimension}, nil
}

func (x *HashEmbedder) Dimension() int {
	return x.dimension
}

func (x *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, goerr.New("no words to embed", goerr.T(model.ErrTagEmbedding))
	}

	vec := make([]float32, x.dimension)
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()

		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(x.dimension)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}

	return vec, nil
}
