package chunker

import "strings"

// Clip shortens text to roughly maxTokens. Whole sentences are kept while
// they fit; a first sentence that is already too long is cut on a word
// boundary. Text within budget is returned unchanged.
func Clip(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}

	var kept strings.Builder
	keptTokens := 0
	for _, sent := range splitSentences(text) {
		t := EstimateTokens(sent)
		if keptTokens+t > maxTokens {
			break
		}
		if kept.Len() > 0 {
			kept.WriteString(" ")
		}
		kept.WriteString(sent)
		keptTokens += t
	}
	if kept.Len() > 0 {
		return kept.String()
	}
	return leadingWords(text, maxTokens)
}

// splitSentences does basic sentence splitting on terminal punctuation and
// the section body delimiter.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for i, r := range text {
		if r == '|' {
			flush()
			continue
		}
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			flush()
		}
	}
	flush()
	return sentences
}

// leadingWords returns the first maxTokens worth of words.
func leadingWords(text string, maxTokens int) string {
	words := strings.Fields(text)
	n := int(float64(maxTokens) / tokensPerWord)
	if n < 1 {
		n = 1
	}
	if n > len(words) {
		n = len(words)
	}
	return strings.Join(words[:n], " ")
}
