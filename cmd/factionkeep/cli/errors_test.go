// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"testing"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/service"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"invalid name", fmt.Errorf("create: %w", faction.ErrInvalidName), CategoryValidation},
		{"not found", faction.ErrNotFound, CategoryNotFound},
		{"permission", faction.ErrPermissionDenied, CategoryForbidden},
		{"already exists", faction.ErrAlreadyExists, CategoryConflict},
		{"resource conflict", faction.ErrResourceConflict, CategoryConflict},
		{"homeserver down", faction.ErrExternalUnavailable, CategoryUnavailable},
		{"daemon not running", fmt.Errorf("connecting: %w", syscall.ECONNREFUSED), CategoryUnavailable},
		{"socket missing", fmt.Errorf("connecting: %w", fs.ErrNotExist), CategoryUnavailable},
		{"partial", &service.ServiceError{Action: "repair", Code: "partial", Message: "space failed"}, CategoryPartial},
		{"service sentinel", &service.ServiceError{Action: "repair", Code: faction.Code(faction.ErrNotFound), Message: "no such faction"}, CategoryNotFound},
		{"internal", &service.ServiceError{Action: "status", Code: "internal", Message: "boom"}, CategoryInternal},
		{"plain", errors.New("boom"), CategoryInternal},
		{"already categorized", Validation("bad"), CategoryValidation},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Categorize(test.err)
			if got.Category != test.want {
				t.Errorf("Categorize(%v) = %s, want %s", test.err, got.Category, test.want)
			}
		})
	}

	if Categorize(nil) != nil {
		t.Error("Categorize(nil) != nil")
	}
}

func TestCategorizeUnavailableHint(t *testing.T) {
	err := Categorize(fmt.Errorf("connecting: %w", syscall.ECONNREFUSED))
	if !strings.Contains(err.Error(), "Is factionkeep-service running?") {
		t.Errorf("error = %q, want a hint about the service", err)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Error("hinted error no longer wraps the cause")
	}
}

func TestExitCodes(t *testing.T) {
	seen := make(map[int]ErrorCategory)
	for _, category := range []ErrorCategory{
		CategoryInternal, CategoryValidation, CategoryNotFound, CategoryForbidden,
		CategoryConflict, CategoryUnavailable, CategoryPartial,
	} {
		code := category.ExitCode()
		if code == 0 {
			t.Errorf("%s exits 0", category)
		}
		if previous, exists := seen[code]; exists {
			t.Errorf("%s and %s share exit code %d", category, previous, code)
		}
		seen[code] = category
	}
	if got := NotFound("x").ExitCode(); got != 3 {
		t.Errorf("NotFound exit code = %d, want 3", got)
	}
	if got := ErrorCategory("bogus").ExitCode(); got != 1 {
		t.Errorf("unknown category exit code = %d, want 1", got)
	}
}

func TestWriteJSONNilSlice(t *testing.T) {
	var buffer bytes.Buffer
	var groups []faction.TrustedGroup
	if err := WriteJSON(&buffer, groups); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buffer.String()); got != "[]" {
		t.Errorf("WriteJSON(nil slice) = %q, want []", got)
	}
}
