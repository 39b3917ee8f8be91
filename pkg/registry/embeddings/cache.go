// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStats reports cumulative hit and miss counts for a CachedClient.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// CachedClient wraps a Client with an in-memory LRU keyed by the
// SHA-256 of the input text. Query embeddings repeat heavily during
// agent sessions, so a small cache removes most gateway round trips.
type CachedClient struct {
	inner  Client
	cache  *lru.Cache[string, []float32]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedClient wraps inner with an LRU of the given capacity.
func NewCachedClient(inner Client, capacity int) (*CachedClient, error) {
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedClient{inner: inner, cache: cache}, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves cached entries and forwards only the misses to the
// wrapped client, preserving input order in the result.
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			c.hits.Add(1)
			vectors[i] = vec
			continue
		}
		c.misses.Add(1)
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fetched {
		idx := missingIdx[j]
		vectors[idx] = vec
		c.cache.Add(cacheKey(texts[idx]), vec)
	}
	return vectors, nil
}

func (c *CachedClient) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedClient) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

// Stats returns cumulative cache counters.
func (c *CachedClient) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.cache.Len(),
	}
}
