// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package faction

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is counted in runes after normalization.
const MaxNameLength = 64

const (
	maxSlugBase   = 40
	slugDigestLen = 10
)

// ValidateName normalizes a user-supplied name (NFC, trimmed, internal
// whitespace collapsed to single spaces) and checks it. The returned
// string is what gets stored.
func ValidateName(raw string) (string, error) {
	name := strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if length := utf8.RuneCountInString(name); length > MaxNameLength {
		return "", fmt.Errorf("%w: %d characters, maximum is %d", ErrInvalidName, length, MaxNameLength)
	}
	hasAlphanumeric := false
	for _, r := range name {
		switch {
		case r == '"':
			return "", fmt.Errorf("%w: double quotes are not allowed", ErrInvalidName)
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return "", fmt.Errorf("%w: contains control character %U", ErrInvalidName, r)
		case unicode.IsLetter(r), unicode.IsDigit(r):
			hasAlphanumeric = true
		}
	}
	if !hasAlphanumeric {
		return "", fmt.Errorf("%w: needs at least one letter or digit", ErrInvalidName)
	}
	return name, nil
}

// Slug maps a validated name to the lowercase ASCII token used in room
// aliases. Names that lose information on the way (non-ASCII letters,
// symbols, excessive length) get a short BLAKE3 digest of the
// case-folded name appended so distinct names stay distinct.
func Slug(name string) string {
	// Casers carry state, so each call builds its own.
	folded := cases.Fold().String(norm.NFC.String(name))

	var builder strings.Builder
	lossy := false
	pendingDash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			pendingDash = false
			builder.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			pendingDash = true
		default:
			lossy = true
			pendingDash = true
		}
	}

	base := builder.String()
	if !lossy && base != "" && len(base) <= maxSlugBase {
		return base
	}
	if len(base) > maxSlugBase {
		base = strings.TrimRight(base[:maxSlugBase], "-")
	}
	sum := blake3.Sum256([]byte(folded))
	digest := hex.EncodeToString(sum[:])[:slugDigestLen]
	if base == "" {
		return digest
	}
	return base + "-" + digest
}

// ChannelGroupName is the display name of a faction's space:
// "Red Team" becomes "RED TEAM FACTION".
func ChannelGroupName(name string) string {
	return cases.Upper(language.Und).String(name) + " FACTION"
}
