package usecase

import (
	"context"
	"log/slog"
	"strings"

	"lorekeeper/internal/domain"
)

// Confidence scoring weights. The formula is cheap, explainable, and
// monotonic in retrieval quality: the single best source counts for more
// than the average, and corroborating sources earn a diminishing bonus.
const (
	confidenceNoSources    = 0.1
	confidenceUnanswerable = 0.15
	confidenceTopWeight    = 0.5
	confidenceMeanWeight   = 0.3
	confidenceCountBonus   = 0.05
	confidenceBase         = 0.05
	confidenceBonusCap     = 3
)

// hedgePhrases are scanned (case-insensitive) in generated text to detect
// an answer that concedes it cannot be grounded in the context.
var hedgePhrases = []string{
	"i don't have enough information",
	"i do not have enough information",
	"not mentioned in",
	"cannot find",
	"could not find",
	"can't find",
	"no information about",
	"the context does not",
	"the provided context does not",
	"not covered in the campaign documents",
	"unable to answer",
}

// ResponseGenerator builds the generation prompt, invokes the inference
// service once (no retries at this layer), and scores the answer.
type ResponseGenerator interface {
	Generate(ctx context.Context, question string, bc BuiltContext) (*GeneratedAnswer, error)
	// GenerateStream starts a streamed generation for the same prompt. The
	// caller assembles the full text and applies ScoreAnswer at the end.
	GenerateStream(ctx context.Context, question string, bc BuiltContext) (<-chan domain.StreamChunk, <-chan error, error)
}

// GeneratorConfig tunes answer generation.
type GeneratorConfig struct {
	Temperature float64
	MaxTokens   int
}

type responseGenerator struct {
	llm           domain.LLMClient
	promptBuilder PromptBuilder
	cfg           GeneratorConfig
	logger        *slog.Logger
}

func NewResponseGenerator(llm domain.LLMClient, promptBuilder PromptBuilder, cfg GeneratorConfig, logger *slog.Logger) ResponseGenerator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &responseGenerator{llm: llm, promptBuilder: promptBuilder, cfg: cfg, logger: logger}
}

func (g *responseGenerator) Generate(ctx context.Context, question string, bc BuiltContext) (*GeneratedAnswer, error) {
	messages := g.promptBuilder.Build(question, bc)

	resp, err := g.llm.Chat(ctx, messages, domain.ChatOptions{
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrGenerationFailed, "inference call failed", err)
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return nil, domain.NewPipelineError(domain.ErrGenerationFailed, "inference returned empty answer", nil)
	}

	scored := ScoreAnswer(answer, bc.Sources)
	scored.Usage = resp.Usage

	g.logger.Info("answer_generated",
		slog.Float64("confidence", scored.Confidence),
		slog.Bool("is_unanswerable", scored.IsUnanswerable),
		slog.Int("source_count", len(scored.Sources)))
	return scored, nil
}

func (g *responseGenerator) GenerateStream(ctx context.Context, question string, bc BuiltContext) (<-chan domain.StreamChunk, <-chan error, error) {
	messages := g.promptBuilder.Build(question, bc)
	chunks, errs, err := g.llm.ChatStream(ctx, messages, domain.ChatOptions{
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, nil, domain.NewPipelineError(domain.ErrGenerationFailed, "inference stream setup failed", err)
	}
	return chunks, errs, nil
}

// ScoreAnswer applies unanswerable detection and confidence scoring to a
// completed answer.
func ScoreAnswer(answer string, sources []SourceCitation) *GeneratedAnswer {
	unanswerable := DetectUnanswerable(answer)
	return &GeneratedAnswer{
		Answer:         answer,
		Confidence:     ComputeConfidence(sources, unanswerable),
		Sources:        sources,
		IsUnanswerable: unanswerable,
	}
}

// DetectUnanswerable reports whether the generated text contains one of
// the fixed hedge phrases.
func DetectUnanswerable(answer string) bool {
	lowered := strings.ToLower(answer)
	for _, phrase := range hedgePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// ComputeConfidence derives the answer confidence from the source scores:
//
//	0.5*top + 0.3*mean + 0.05*min(n-1, 3) + 0.05, clamped to [0,1]
//
// with fixed floors of 0.1 for no sources and 0.15 for an unanswerable
// answer.
func ComputeConfidence(sources []SourceCitation, unanswerable bool) float64 {
	if len(sources) == 0 {
		return confidenceNoSources
	}
	if unanswerable {
		return confidenceUnanswerable
	}

	top := 0.0
	sum := 0.0
	for _, src := range sources {
		if src.RelevanceScore > top {
			top = src.RelevanceScore
		}
		sum += src.RelevanceScore
	}
	mean := sum / float64(len(sources))

	extra := len(sources) - 1
	if extra > confidenceBonusCap {
		extra = confidenceBonusCap
	}

	confidence := confidenceTopWeight*top +
		confidenceMeanWeight*mean +
		confidenceCountBonus*float64(extra) +
		confidenceBase

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
