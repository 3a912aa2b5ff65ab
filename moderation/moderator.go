// Package moderation censors configured words in message bodies before they
// are persisted. Matching runs on a normalized view of the text (lowercased,
// punctuation stripped, common leet substitutions folded) so padding a word
// with dots or digits does not defeat the filter.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"chat-relay/errors"
)

type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds the Aho-Corasick automaton over the normalized word
// list. An empty list is a configuration error.
func NewModerator(words []string, replacement rune) (*Moderator, error) {
	if len(words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	patterns := make([][]rune, len(words))
	for i, word := range words {
		normalized, _ := normalize(word)
		patterns[i] = normalized
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: machine, replacement: replacement}, nil
}

// Censor replaces every matched span in the original text with the
// replacement rune, preserving the untouched characters around it.
func (m *Moderator) Censor(original string) string {
	normalized, origIdx := normalize(original)
	if len(normalized) == 0 {
		return original
	}

	spans := m.machine.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return original
	}

	runes := []rune(original)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		// Map normalized positions back to the original rune span.
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes)
}

// normalize lowercases and folds the input, dropping separator runes.
// The second return value maps each normalized rune back to its index in the
// original text.
func normalize(input string) ([]rune, []int) {
	original := []rune(input)
	normalized := make([]rune, 0, len(original))
	origIdx := make([]int, 0, len(original))

	for i, r := range original {
		folded := foldLeet(r)
		if unicode.IsPunct(folded) || unicode.IsSpace(folded) || unicode.IsSymbol(folded) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(folded))
		origIdx = append(origIdx, i)
	}
	return normalized, origIdx
}

// foldLeet maps common leet-speak characters back to their alphabet
// counterparts.
func foldLeet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
