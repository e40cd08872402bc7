// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// maxAliasLocalpartLength bounds alias localparts built from faction
// names. The Matrix limit is on the whole alias (255 bytes); this
// leaves headroom for the server name.
const maxAliasLocalpartLength = 128

// localpartChars is the set of characters Matrix allows in user and
// alias localparts that factionkeep constructs itself.
var localpartChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		localpartChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		localpartChars[c] = true
	}
	for _, c := range []byte("._=-/") {
		localpartChars[c] = true
	}
}

// IsLocalpartChar reports whether c may appear in a constructed
// localpart.
func IsLocalpartChar(c byte) bool {
	return localpartChars[c]
}

func validateLocalpart(localpart string) error {
	if localpart == "" {
		return fmt.Errorf("localpart is empty")
	}
	if len(localpart) > maxAliasLocalpartLength {
		return fmt.Errorf("localpart %q is %d bytes, maximum is %d", localpart, len(localpart), maxAliasLocalpartLength)
	}
	for i := 0; i < len(localpart); i++ {
		if !localpartChars[localpart[i]] {
			return fmt.Errorf("localpart %q: invalid character %q at position %d (allowed: a-z, 0-9, ., _, =, -, /)", localpart, localpart[i], i)
		}
	}
	return nil
}

// validateServer checks that a server name is non-empty and contains
// no control characters or Matrix sigils.
func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for i := 0; i < len(server); i++ {
		c := server[i]
		if c <= ' ' || c == '@' || c == '#' || c == '!' {
			return fmt.Errorf("server name %q: invalid character at position %d", server, i)
		}
	}
	return nil
}

// parseSigilID splits "<sigil>localpart:server". The first colon ends
// the localpart; the server may itself contain a port.
func parseSigilID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if len(identifier) < 2 || identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with %c", kind, identifier, sigil)
	}
	colonIndex := strings.IndexByte(identifier[1:], ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid %s %q: missing :server", kind, identifier)
	}
	if colonIndex == 0 {
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	}
	localpart = identifier[1 : colonIndex+1]
	server = identifier[colonIndex+2:]
	if err := validateServer(server); err != nil {
		return "", "", fmt.Errorf("invalid %s %q: %w", kind, identifier, err)
	}
	return localpart, server, nil
}
