// Package chunker estimates token counts and trims section text to fit an
// embedding model's input window.
package chunker

import "strings"

// tokensPerWord is the rough English token-to-word ratio.
const tokensPerWord = 1.33

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * tokensPerWord)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
