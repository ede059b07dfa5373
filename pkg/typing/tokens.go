// Package typing reveals finished answers a token at a time.
package typing

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var tokenRegex = regexp.MustCompile(`\s+|\S+`)

// Base delays applied after a token is revealed, before speed scaling
const (
	WhitespaceDelay = 5 * time.Millisecond
	MarkupDelay     = 15 * time.Millisecond
	WordDelay       = 30 * time.Millisecond
	MediumWordDelay = 50 * time.Millisecond
	LongWordDelay   = 70 * time.Millisecond
	ClauseDelay     = 100 * time.Millisecond
	SentenceDelay   = 200 * time.Millisecond
)

// Tokenize splits text into alternating word and whitespace runs.
// Joining the tokens gives back text exactly.
func Tokenize(text string) []string {
	return tokenRegex.FindAllString(text, -1)
}

// TokenDelay is the pause after revealing token. speed scales the cadence;
// 2 is twice as fast and values <= 0 mean 1.
func TokenDelay(token string, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(float64(baseDelay(token)) / speed)
}

func baseDelay(token string) time.Duration {
	if strings.TrimSpace(token) == "" {
		return WhitespaceDelay
	}

	last, _ := utf8.DecodeLastRuneInString(token)
	switch last {
	case '.', '!', '?':
		return SentenceDelay
	case ',', ';', ':':
		return ClauseDelay
	}

	switch token[0] {
	case '#', '*', '`', '-':
		return MarkupDelay
	}

	switch n := utf8.RuneCountInString(token); {
	case n > 15:
		return LongWordDelay
	case n > 10:
		return MediumWordDelay
	}
	return WordDelay
}
