package irc

import (
	"strings"
	"unicode/utf8"
)

// wrap splits text into chunks of at most limit bytes, breaking on
// word boundaries where possible. A single word longer than the limit
// is split mid-word, but never mid-rune.
func wrap(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	for _, word := range words {
		for len(word) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			head, rest := splitWord(word, limit)
			chunks = append(chunks, head)
			word = rest
		}
		if word == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(word) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitWord cuts off at most limit bytes, backing up to the nearest
// rune boundary so no chunk carries invalid UTF-8. A single rune wider
// than the limit is emitted whole.
func splitWord(word string, limit int) (head, rest string) {
	if len(word) <= limit {
		return word, ""
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(word[cut]) {
		cut--
	}
	if cut == 0 {
		_, cut = utf8.DecodeRuneInString(word)
	}
	return word[:cut], word[cut:]
}
