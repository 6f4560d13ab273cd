package orchestration

import (
	"strings"
	"unicode"
)

type State string

const (
	StateWaitingWake    State = "waiting_wake"
	StateNotifying      State = "notifying"
	StateListeningQuery State = "listening_query"
	StateAction         State = "action"
	StateGenerating     State = "generating"
	StatePlaying        State = "playing"
)

func (s State) String() string { return string(s) }

// normalizePhrase lower cases text, drops punctuation and collapses
// whitespace so that "Hey, Hopper." matches "hey hopper".
func normalizePhrase(text string) string {
	var b strings.Builder
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
				return r
			}
			return -1
		}, field)
		if word == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	return b.String()
}

func normalizePhrases(phrases []string) []string {
	normalized := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if phrase := normalizePhrase(phrase); phrase != "" {
			normalized = append(normalized, phrase)
		}
	}
	return normalized
}
