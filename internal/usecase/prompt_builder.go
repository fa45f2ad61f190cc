package usecase

import (
	"fmt"
	"strings"

	"lorekeeper/internal/domain"
)

// PromptBuilder composes the chat messages for answer generation.
type PromptBuilder interface {
	Build(question string, bc BuiltContext) []domain.Message
}

type groundedPromptBuilder struct{}

// NewPromptBuilder creates the standard grounded-answer prompt builder.
func NewPromptBuilder() PromptBuilder {
	return &groundedPromptBuilder{}
}

const generationSystemPrompt = `You are an assistant for a tabletop campaign. Answer the question using ONLY the numbered context passages provided. Rules:
1. Base every statement on the context; never use outside knowledge.
2. Cite sources inline by their bracketed number, e.g. [1] or [2].
3. If the context does not contain the answer, say you don't have enough information in the campaign documents to answer.
4. Be concise and concrete; quote names, numbers, and dates exactly as written.`

// Build embeds the context text, the rendered source legend, and the
// user's question verbatim. The rewritten search query is a retrieval aid
// only and is never shown to the generation stage.
func (b *groundedPromptBuilder) Build(question string, bc BuiltContext) []domain.Message {
	var sb strings.Builder
	sb.WriteString("Context passages:\n\n")
	sb.WriteString(bc.ContextText)
	sb.WriteString("Sources:\n")
	sb.WriteString(RenderSourceLegend(bc.Sources))
	fmt.Fprintf(&sb, "\nQuestion: %s", question)

	return []domain.Message{
		{Role: "system", Content: generationSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}

// RenderSourceLegend renders the citation legend shown under the context.
func RenderSourceLegend(sources []SourceCitation) string {
	var sb strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s (%s", src.Index, src.DocumentName, src.DocumentType)
		if src.Section != nil && *src.Section != "" {
			fmt.Fprintf(&sb, ", %s", *src.Section)
		}
		if src.PageNumber != nil {
			fmt.Fprintf(&sb, ", p. %d", *src.PageNumber)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}
