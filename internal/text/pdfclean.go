package text

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	iconPrefixRe  = regexp.MustCompile(`(?i)/[a-z][a-z0-9\-]+\b`)
	nonTextRe     = regexp.MustCompile(`[^\x{00}-\x{7F}\x{A0}-\x{24F}\x{2013}\x{2014}\x{2018}\x{2019}\x{201C}\x{201D}\x{2022}\x{2026}\x{20B9}]`)
	glyphRe       = regexp.MustCompile(`[⌢♂¶▪◦●◆■□▶►]`)
	iconResidueRe = regexp.MustCompile(`(?i)\b(mobile-alt|envelope|alt)\b`)
	multiSpaceRe  = regexp.MustCompile(` {2,}`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	nonAlnumRe    = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// CleanPDFText prepares one extracted PDF page for chunking. Spaced-out
// characters are collapsed before icon-font residue is stripped; the order
// matters because the collapse needs the original spacing.
func CleanPDFText(page string) string {
	page = strings.TrimSpace(page)
	page = CollapseSpacedChars(page)
	return StripPDFSymbols(page)
}

// CollapseSpacedChars joins runs of three or more single alphanumeric
// characters separated by single spaces, e.g. "N a x c u r e" -> "Naxcure".
// A run must not touch other word characters on either side. It repeats
// until nothing changes.
func CollapseSpacedChars(text string) string {
	for {
		next := collapseOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func collapseOnce(text string) string {
	rs := []rune(text)
	var out strings.Builder
	out.Grow(len(text))

	for i := 0; i < len(rs); {
		if !isAlnumASCII(rs[i]) || (i > 0 && isWordRune(rs[i-1])) {
			out.WriteRune(rs[i])
			i++
			continue
		}

		// ends[k] is the index just past the k-th " X" pair after rs[i]
		var ends []int
		j := i + 1
		for j+1 < len(rs) && rs[j] == ' ' && isAlnumASCII(rs[j+1]) {
			j += 2
			ends = append(ends, j)
		}

		// take the longest run (at least two pairs) not followed by a word rune
		match := -1
		for k := len(ends) - 1; k >= 1; k-- {
			if ends[k] >= len(rs) || !isWordRune(rs[ends[k]]) {
				match = ends[k]
				break
			}
		}
		if match < 0 {
			out.WriteRune(rs[i])
			i++
			continue
		}

		for _, r := range rs[i:match] {
			if r != ' ' {
				out.WriteRune(r)
			}
		}
		i = match
	}
	return out.String()
}

// StripPDFSymbols removes glyph artefacts left by symbol fonts and
// normalises whitespace. Blank lines survive so paragraph breaks still reach
// the chunker.
func StripPDFSymbols(text string) string {
	text = iconPrefixRe.ReplaceAllString(text, "")
	text = nonTextRe.ReplaceAllString(text, "")
	text = glyphRe.ReplaceAllString(text, "")
	text = iconResidueRe.ReplaceAllString(text, "")
	text = multiSpaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		switch {
		case len(nonAlnumRe.ReplaceAllString(stripped, "")) >= 2:
			kept = append(kept, stripped)
		case stripped == "":
			kept = append(kept, "")
		}
	}

	text = strings.Join(kept, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func isAlnumASCII(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
