package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RE2's \s is ASCII only; the extra classes add the remaining characters
// that count as whitespace in extracted text, such as U+00A0 and U+2028.
var sentenceEnd = regexp.MustCompile(`[.!?][\s\v\x{1c}-\x{1f}\x{85}\p{Z}]+`)

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// SplitSentences splits text after sentence-ending punctuation followed by
// whitespace, then splits each piece again on blank-line paragraph breaks.
// Segments are trimmed and empty ones dropped.
func SplitSentences(text string) []string {
	var segments []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// keep the punctuation, drop the whitespace run
		segments = append(segments, text[last:loc[0]+1])
		last = loc[1]
	}
	segments = append(segments, text[last:])

	var sentences []string
	for _, segment := range segments {
		for _, part := range strings.Split(segment, "\n\n") {
			if trimmed := strings.TrimFunc(part, isSpace); trimmed != "" {
				sentences = append(sentences, trimmed)
			}
		}
	}
	return sentences
}

// ChunkText groups whole sentences into chunks of at most chunkSize
// characters, counting one separator per sentence. A sentence longer than
// chunkSize becomes a chunk of its own. Each new chunk starts with as many
// trailing sentences of the previous one as fit in overlap characters.
func ChunkText(text string, chunkSize, overlap int) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)

		if n > chunkSize {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
				current, currentLen = nil, 0
			}
			chunks = append(chunks, sentence)
			continue
		}

		if currentLen+n+1 > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current, currentLen = overlapTail(current, overlap)
		}

		current = append(current, sentence)
		currentLen += n + 1
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// overlapTail returns the longest run of trailing sentences whose combined
// length (plus separators) fits in overlap. It stops at the first sentence
// that does not fit, so an oversized last sentence yields no overlap.
func overlapTail(sentences []string, overlap int) ([]string, int) {
	start := len(sentences)
	length := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(sentences[i]) + 1
		if length+n > overlap {
			break
		}
		length += n
		start = i
	}
	tail := make([]string, len(sentences)-start)
	copy(tail, sentences[start:])
	return tail, length
}
