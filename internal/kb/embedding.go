package kb

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"
)

// LocalEmbedding returns a deterministic hashed bag-of-words embedding. It is
// the default when no embedding provider is configured, which keeps the
// server and tests working offline; deployments wanting semantic quality
// plug in chromem's provider-backed functions instead.
func LocalEmbedding(dim int) chromem.EmbeddingFunc {
	if dim <= 0 {
		dim = 256
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dim)
		for _, token := range tokenize(text) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[h.Sum32()%uint32(dim)]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
