// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"sort"

	"github.com/arcfield/toolgate/pkg/registry/models"
)

// semanticScore converts a pgvector cosine distance into a similarity
// in [0, 1]. Cosine distance ranges over [0, 2]; anything past 1 means
// the vectors point away from each other and scores as zero.
func semanticScore(distance float64) float64 {
	return clamp01(1 - distance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// blendScore combines the semantic and lexical components of a hybrid
// match. alpha weights the semantic side; 1-alpha the lexical side.
func blendScore(alpha, semantic, lexical float64) float64 {
	return clamp01(alpha*semantic + (1-alpha)*lexical)
}

// candidate is one leg's view of a tool during hybrid merging.
type candidate struct {
	tool     *models.Tool
	semantic float64
	lexical  float64
	hasSem   bool
}

// mergeHybrid unions the semantic and lexical candidate lists, blends
// per-tool scores, and returns the top limit results ordered by score
// descending with id ascending as the tiebreak. A tool found by only
// one leg scores zero on the other.
func mergeHybrid(semantic, lexical []scoredRow, alpha float64, limit int) []*models.ScoredTool {
	byID := make(map[int64]*candidate, len(semantic)+len(lexical))
	for i := range semantic {
		row := &semantic[i]
		byID[row.tool.ID] = &candidate{tool: row.tool, semantic: row.score, hasSem: true}
	}
	for i := range lexical {
		row := &lexical[i]
		if c, ok := byID[row.tool.ID]; ok {
			c.lexical = row.score
			continue
		}
		byID[row.tool.ID] = &candidate{tool: row.tool, lexical: row.score}
	}

	merged := make([]*models.ScoredTool, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, &models.ScoredTool{
			Tool:          c.tool,
			Score:         blendScore(alpha, c.semantic, c.lexical),
			SemanticScore: c.semantic,
		})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Tool.ID < merged[j].Tool.ID
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// scoredRow pairs a tool with one leg's raw score.
type scoredRow struct {
	tool  *models.Tool
	score float64
}

// normalizeLexical rescales raw ts_rank_cd values to [0, 1] by dividing
// by the maximum in the result set. An empty or all-zero set stays zero.
func normalizeLexical(rows []scoredRow) {
	var maxScore float64
	for i := range rows {
		if rows[i].score > maxScore {
			maxScore = rows[i].score
		}
	}
	if maxScore <= 0 {
		return
	}
	for i := range rows {
		rows[i].score = clamp01(rows[i].score / maxScore)
	}
}
