package domain

// TokenCharDivisor is the fixed characters-per-token approximation used
// everywhere tokens are counted: chunking, context budgeting, and reranker
// passage truncation. Keeping a single estimator prevents budget drift
// between stages that would otherwise assume different token models.
const TokenCharDivisor = 4

// EstimateTokens approximates the token count of text from its rune length.
// It rounds up so a budget check never under-counts.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for range text {
		n++
	}
	return (n + TokenCharDivisor - 1) / TokenCharDivisor
}

// TokensToChars converts a token budget into the equivalent character budget.
func TokensToChars(tokens int) int {
	return tokens * TokenCharDivisor
}
