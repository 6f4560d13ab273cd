// Package sentences splits streamed text into units that can be spoken one
// at a time.
//
// A sentence boundary is a run of whitespace that directly follows one of
// the terminal marks (. ? ! : # or a newline) and is itself followed by an
// uppercase ASCII letter, an ASCII digit, or the end of the text. The
// whitespace run is the delimiter and is not part of either sentence.
package sentences

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segmenter turns an incrementally arriving text stream into sentences
// without waiting for the full text. It holds exactly one pending remainder
// between calls and is not safe for concurrent use.
type Segmenter struct {
	pending string
}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Append adds fragment to the pending text and returns every sentence that
// is now complete, in order. The text after the last boundary stays pending.
func (s *Segmenter) Append(fragment string) []string {
	parts := split(s.pending + fragment)
	s.pending = parts[len(parts)-1]

	completed := parts[:len(parts)-1]
	if len(completed) == 0 {
		return nil
	}
	for i := range completed {
		completed[i] = normalize(completed[i])
	}
	return completed
}

// Flush returns the pending remainder as the final sentence, even when it is
// empty, and resets the segmenter. It must be called once at stream end.
func (s *Segmenter) Flush() string {
	final := normalize(s.pending)
	s.pending = ""
	return final
}

// Split segments a complete text at once. The last element is the flushed
// remainder and may be empty.
func Split(text string) []string {
	segmenter := NewSegmenter()
	return append(segmenter.Append(text), segmenter.Flush())
}

func split(text string) []string {
	var parts []string
	start := 0
	previous := utf8.RuneError

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) && isTerminal(previous) {
			end := i + size
			for end < len(text) {
				next, n := utf8.DecodeRuneInString(text[end:])
				if !unicode.IsSpace(next) {
					break
				}
				end += n
			}

			if end == len(text) || opensSentence(text[end:]) {
				parts = append(parts, text[start:i])
				start = end
				previous, _ = utf8.DecodeLastRuneInString(text[:end])
				i = end
				continue
			}
		}

		previous = r
		i += size
	}

	return append(parts, text[start:])
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '?', '!', ':', '#', '\n':
		return true
	}
	return false
}

func opensSentence(text string) bool {
	c := text[0]
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func normalize(sentence string) string {
	return strings.ReplaceAll(sentence, "\n", " ")
}
