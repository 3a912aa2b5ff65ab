package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func TestNewModerator_EmptyWords(t *testing.T) {
	req := require.New(t)

	_, err := NewModerator(nil, '*')
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"badger", "mushroom"}, '*')
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean text untouched", "a perfectly fine sentence", "a perfectly fine sentence"},
		{"single word", "honey badger", "honey ******"},
		{"case insensitive", "Honey BADGER", "Honey ******"},
		{"leet folding", "honey b4dg3r", "honey ******"},
		{"multiple words", "badger badger mushroom", "****** ****** ********"},
		{"inside a sentence", "the badger does not care", "the ****** does not care"},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, moderator.Censor(tt.input))
		})
	}
}

func TestModerator_Censor_PunctuationPadding(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"badger"}, '*')
	req.NoError(err)

	// Dots inside the word do not defeat the filter; the whole padded span
	// gets masked.
	censored := moderator.Censor("b.a.d.g.e.r sighted")
	req.Equal("*********** sighted", censored)
}
