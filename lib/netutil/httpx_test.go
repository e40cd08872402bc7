// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
	"strings"
	"testing"
)

type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for index := range p {
		p[index] = 'x'
	}
	return len(p), nil
}

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("data = %q", data)
	}
}

func TestReadResponseIsBounded(t *testing.T) {
	data, err := ReadResponse(io.Reader(endlessReader{}))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if int64(len(data)) != MaxResponseSize {
		t.Errorf("len = %d, want %d", len(data), MaxResponseSize)
	}
}
