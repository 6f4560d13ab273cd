package sentences

import (
	"slices"
	"strings"
	"testing"
	"unicode"
)

func TestSegmenterSplitsAcrossFragments(t *testing.T) {
	segmenter := NewSegmenter()

	var got []string
	got = append(got, segmenter.Append("Hello wor")...)
	if len(got) != 0 {
		t.Fatalf("expected no sentence before a boundary, got %q", got)
	}
	got = append(got, segmenter.Append("ld. How are you?")...)
	got = append(got, segmenter.Flush())

	expected := []string{"Hello world.", "How are you?"}
	if !slices.Equal(got, expected) {
		t.Fatalf("expected %q, got %q", expected, got)
	}
	if final := segmenter.Flush(); final != "" {
		t.Fatalf("expected nothing pending after flush, got %q", final)
	}
}

func TestSegmenterWithoutBoundaryHoldsEverythingUntilFlush(t *testing.T) {
	segmenter := NewSegmenter()

	for _, fragment := range []string{"no ", "boundary ", "here"} {
		if sentences := segmenter.Append(fragment); len(sentences) != 0 {
			t.Fatalf("expected no sentences, got %q", sentences)
		}
	}

	if final := segmenter.Flush(); final != "no boundary here" {
		t.Fatalf("expected whole text on flush, got %q", final)
	}
}

func TestSegmenterBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "question and exclamation",
			text:     "Really? Yes! Great.",
			expected: []string{"Really?", "Yes!", "Great."},
		},
		{
			name:     "lowercase continuation is not a boundary",
			text:     "It costs approx. ten dollars.",
			expected: []string{"It costs approx. ten dollars."},
		},
		{
			name:     "digit opens a sentence",
			text:     "Steps follow: 1 mix. 2 bake.",
			expected: []string{"Steps follow:", "1 mix.", "2 bake."},
		},
		{
			name:     "ellipsis",
			text:     "Well... Maybe.",
			expected: []string{"Well...", "Maybe."},
		},
		{
			name:     "paragraph break",
			text:     "First part\n\nSecond part",
			expected: []string{"First part ", "Second part"},
		},
		{
			name:     "trailing whitespace ends the last sentence",
			text:     "Done. ",
			expected: []string{"Done.", ""},
		},
		{
			name:     "newlines are normalized inside sentences",
			text:     "one\ntwo. Three",
			expected: []string{"one two.", "Three"},
		},
		{
			name:     "empty text",
			text:     "",
			expected: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Split(tt.text); !slices.Equal(got, tt.expected) {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSegmenterDeliversEveryCharacterOnce(t *testing.T) {
	text := "Why did the chicken cross the road? To get to the other side.\n" +
		"That is the joke: 42 times over... Really! Ok then. Bye"

	for _, size := range []int{1, 2, 3, 5, 7, 13, len(text)} {
		segmenter := NewSegmenter()
		var sentences []string
		for start := 0; start < len(text); start += size {
			end := min(start+size, len(text))
			sentences = append(sentences, segmenter.Append(text[start:end])...)
		}
		sentences = append(sentences, segmenter.Flush())

		if got, expected := withoutSpace(strings.Join(sentences, "")), withoutSpace(text); got != expected {
			t.Fatalf("fragment size %d: expected %q, got %q", size, expected, got)
		}
		if !slices.Equal(sentences, Split(text)) {
			t.Fatalf("fragment size %d: expected %q, got %q", size, Split(text), sentences)
		}
	}
}

func TestSegmenterEmittedSentencesHaveNoNewlines(t *testing.T) {
	segmenter := NewSegmenter()
	sentences := segmenter.Append("Line one\ncontinues. Line two\n")
	sentences = append(sentences, segmenter.Flush())

	for _, sentence := range sentences {
		if strings.Contains(sentence, "\n") {
			t.Fatalf("expected newline-free sentence, got %q", sentence)
		}
	}
}

func withoutSpace(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}
