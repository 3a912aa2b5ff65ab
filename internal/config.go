package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,required=true"`
	Port                 int           `env:"PORT,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	JWTIssuer            string        `env:"JWT_ISSUER,default=chat-relay"`
	UploadDir            string        `env:"UPLOAD_DIR,required=true"`
	UploadBaseURL        string        `env:"UPLOAD_BASE_URL,required=true"`

	// Moderation is off when no words are configured.
	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Words splits the configured censored-word list, dropping blanks.
func (c Config) Words() []string {
	var words []string
	for _, w := range strings.Split(c.CensoredWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
