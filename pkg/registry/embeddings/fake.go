// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
)

// FakeClient produces deterministic pseudo-random unit vectors derived
// from the input text. Identical texts always map to identical vectors,
// so similarity ordering is stable across runs. It exists for tests and
// for running the service without an embedding backend.
type FakeClient struct {
	dimension int
}

// NewFakeClient returns a FakeClient emitting vectors of the given width.
func NewFakeClient(dimension int) *FakeClient {
	return &FakeClient{dimension: dimension}
}

func (f *FakeClient) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8])) // #nosec G404 -- deterministic, not cryptographic
	rng := rand.New(rand.NewSource(seed))           // #nosec G404

	vec := make([]float32, f.dimension)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (f *FakeClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (f *FakeClient) Dimension() int {
	return f.dimension
}

func (*FakeClient) Health(context.Context) error {
	return nil
}
