package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"lorekeeper/internal/domain"
)

// Reranker asks the inference service to judge true relevance of each
// candidate to the question and reorders the set accordingly.
//
// Failure policy is total fallback, not partial: if the call fails or the
// response does not parse as the expected structure, the original list is
// returned completely unchanged. The reranker is a quality enhancement,
// never a correctness requirement.
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []domain.SearchCandidate) []domain.SearchCandidate
}

// RerankerConfig tunes the LLM-judged reranking pass.
type RerankerConfig struct {
	// PassageCharCap truncates each candidate passage in the prompt.
	PassageCharCap int
	// MinScore drops candidates whose normalized score falls below it.
	MinScore float64
}

func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{PassageCharCap: 1000, MinScore: 0.2}
}

type llmReranker struct {
	llm    domain.LLMClient
	cfg    RerankerConfig
	logger *slog.Logger
}

func NewReranker(llm domain.LLMClient, cfg RerankerConfig, logger *slog.Logger) Reranker {
	if cfg.PassageCharCap <= 0 {
		cfg.PassageCharCap = DefaultRerankerConfig().PassageCharCap
	}
	return &llmReranker{llm: llm, cfg: cfg, logger: logger}
}

const rerankSystemPrompt = "You rate how relevant each numbered passage is to a question. " +
	"Rate every passage from 1 (irrelevant) to 10 (directly answers the question). " +
	"Respond with ONLY a JSON array of objects, one per passage: " +
	`[{"index": 1, "score": 7}, ...]`

// rerankRating is the strict schema expected from the model. Anything that
// does not unmarshal into it is treated as total failure; LLM output is
// untrusted free text and partial recovery is never attempted.
type rerankRating struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (r *llmReranker) Rerank(ctx context.Context, question string, candidates []domain.SearchCandidate) []domain.SearchCandidate {
	if len(candidates) == 0 {
		return candidates
	}

	start := time.Now()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nPassages:\n", question)
	for i, cand := range candidates {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, truncate(cand.Chunk.Content, r.cfg.PassageCharCap))
	}

	resp, err := r.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: rerankSystemPrompt},
		{Role: "user", Content: sb.String()},
	}, domain.ChatOptions{Temperature: 0, MaxTokens: 20 * len(candidates), Format: "json"})
	if err != nil {
		r.logger.Warn("reranking_failed_using_original_order",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return candidates
	}

	ratings, err := parseRatings(resp.Content)
	if err != nil {
		r.logger.Warn("rerank_response_unparseable_using_original_order",
			slog.String("error", err.Error()))
		return candidates
	}

	reranked := make([]domain.SearchCandidate, 0, len(candidates))
	seen := make(map[int]bool, len(ratings))
	for _, rating := range ratings {
		if rating.Index < 1 || rating.Index > len(candidates) || seen[rating.Index] {
			continue
		}
		seen[rating.Index] = true

		score := rating.Score / 10.0
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		if score < r.cfg.MinScore {
			continue
		}
		cand := candidates[rating.Index-1]
		cand.Score = score
		reranked = append(reranked, cand)
	}
	if len(seen) == 0 {
		// No usable rating at all: equivalent to total parse failure.
		r.logger.Warn("rerank_response_empty_using_original_order")
		return candidates
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	r.logger.Info("reranking_completed",
		slog.Int("candidate_count", len(candidates)),
		slog.Int("kept_count", len(reranked)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return reranked
}

func parseRatings(raw string) ([]rerankRating, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var ratings []rerankRating
	if err := json.Unmarshal([]byte(trimmed), &ratings); err != nil {
		return nil, fmt.Errorf("failed to parse rerank ratings: %w", err)
	}
	return ratings, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
