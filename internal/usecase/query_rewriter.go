package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lorekeeper/internal/domain"
)

// QueryRewriter condenses a question plus prior conversation turns into one
// self-contained search query. It always returns a usable query: on any
// failure the original question comes back unchanged, so this stage can
// never abort the pipeline.
type QueryRewriter interface {
	Rewrite(ctx context.Context, question string, history []ConversationTurn) string
}

type llmQueryRewriter struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewQueryRewriter(llm domain.LLMClient, logger *slog.Logger) QueryRewriter {
	return &llmQueryRewriter{llm: llm, logger: logger}
}

const rewriteSystemPrompt = "You rewrite follow-up questions into standalone search queries. " +
	"Given a conversation and a final question, produce ONE self-contained query that resolves " +
	"pronouns and references from the conversation. Output only the query text, nothing else."

// historyWindow bounds how many prior turns feed the rewrite prompt.
const historyWindow = 6

func (r *llmQueryRewriter) Rewrite(ctx context.Context, question string, history []ConversationTurn) string {
	if len(history) == 0 {
		return question
	}

	turns := history
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}

	var sb strings.Builder
	sb.WriteString("Conversation:\n")
	for _, turn := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s", question)

	resp, err := r.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: rewriteSystemPrompt},
		{Role: "user", Content: sb.String()},
	}, domain.ChatOptions{Temperature: 0.1, MaxTokens: 100})
	if err != nil {
		r.logger.Warn("query_rewrite_failed_using_original",
			slog.String("error", err.Error()))
		return question
	}

	rewritten := strings.Trim(strings.TrimSpace(resp.Content), "\"")
	if rewritten == "" {
		r.logger.Warn("query_rewrite_empty_using_original")
		return question
	}

	r.logger.Info("query_rewritten",
		slog.String("original", question),
		slog.String("rewritten", rewritten))
	return rewritten
}
