// Package retrieval implements hybrid (vector + keyword) search and
// Reciprocal Rank Fusion over the chunk store.
package retrieval

import (
	"sort"

	"lorekeeper/internal/domain"

	"github.com/google/uuid"
)

// DefaultRRFK is the standard RRF smoothing constant. k=60 damps rank-1
// dominance and is the widely used default; it is tunable configuration,
// not a calibrated optimum.
const DefaultRRFK = 60

// FuseHybrid merges the vector and keyword ranked lists with Reciprocal
// Rank Fusion: a chunk at 1-based rank r in a list contributes 1/(k+r) to
// its fused score, and contributions sum when a chunk appears in both
// lists. Fusion operates purely on rank position, so the incommensurable
// distance and rank scales never need reconciling.
//
// The fused set is deduplicated by chunk identity, sorted by fused score
// descending (ties broken by the better rank in either source list), score-
// normalized so the top candidate scores 1.0, and truncated to limit.
func FuseHybrid(vector []domain.VectorHit, keyword []domain.KeywordHit, k float64, limit int) []domain.SearchCandidate {
	if k <= 0 {
		k = DefaultRRFK
	}
	if len(vector) == 0 && len(keyword) == 0 {
		return []domain.SearchCandidate{}
	}

	fused := make(map[uuid.UUID]*domain.SearchCandidate, len(vector)+len(keyword))

	for i, hit := range vector {
		rank := i + 1
		cand, ok := fused[hit.Chunk.ChunkID]
		if !ok {
			cand = &domain.SearchCandidate{Chunk: hit.Chunk}
			fused[hit.Chunk.ChunkID] = cand
		}
		cand.VectorRank = rank
		cand.Score += 1.0 / (k + float64(rank))
	}

	for _, hit := range keyword {
		cand, ok := fused[hit.Chunk.ChunkID]
		if !ok {
			cand = &domain.SearchCandidate{Chunk: hit.Chunk}
			fused[hit.Chunk.ChunkID] = cand
		}
		cand.KeywordRank = hit.Rank
		cand.Score += 1.0 / (k + float64(hit.Rank))
	}

	candidates := make([]domain.SearchCandidate, 0, len(fused))
	for _, cand := range fused {
		candidates = append(candidates, *cand)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		bi, bj := bestRank(candidates[i]), bestRank(candidates[j])
		if bi != bj {
			return bi < bj
		}
		// Stable final ordering for identical signals.
		return candidates[i].Chunk.ChunkID.String() < candidates[j].Chunk.ChunkID.String()
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	normalize(candidates)
	return candidates
}

// bestRank returns the lower (better) 1-based rank across both source
// lists, treating absence as worse than any real rank.
func bestRank(c domain.SearchCandidate) int {
	switch {
	case c.VectorRank == 0:
		return c.KeywordRank
	case c.KeywordRank == 0:
		return c.VectorRank
	case c.VectorRank < c.KeywordRank:
		return c.VectorRank
	default:
		return c.KeywordRank
	}
}

// normalize rescales fused scores so the top candidate scores 1.0. Raw RRF
// scores live near 1/k and would otherwise be meaningless against the
// relevance thresholds shared with reranked scores.
func normalize(candidates []domain.SearchCandidate) {
	if len(candidates) == 0 || candidates[0].Score <= 0 {
		return
	}
	top := candidates[0].Score
	for i := range candidates {
		candidates[i].Score /= top
	}
}
