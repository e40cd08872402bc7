// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnterminatedQuote is returned by Parse for an odd number of
// double quotes.
var ErrUnterminatedQuote = errors.New("unterminated double quote")

// Invocation is a parsed command message.
type Invocation struct {
	// Name is the lowercased command word. A bare prefix parses as
	// "help".
	Name string

	// Args are the remaining words with quotes removed.
	Args []string
}

// Parse recognizes a command message. ok is false when body does not
// start with prefix as a whole word.
func Parse(prefix, body string) (invocation Invocation, ok bool, err error) {
	body = strings.TrimSpace(body)
	rest, found := strings.CutPrefix(body, prefix)
	if !found || prefix == "" {
		return Invocation{}, false, nil
	}
	if rest != "" && !unicode.IsSpace([]rune(rest)[0]) {
		return Invocation{}, false, nil
	}

	words, err := split(rest)
	if err != nil {
		return Invocation{}, true, err
	}
	if len(words) == 0 {
		return Invocation{Name: "help"}, true, nil
	}
	return Invocation{Name: strings.ToLower(words[0]), Args: words[1:]}, true, nil
}

// split breaks text into whitespace-separated words. A double-quoted
// run is part of one word and may contain whitespace; "" is an empty
// word.
func split(text string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quoted  bool
	)
	for _, r := range text {
		switch {
		case r == '"':
			quoted = !quoted
			inWord = true
		case unicode.IsSpace(r) && !quoted:
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quoted {
		return nil, ErrUnterminatedQuote
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}
