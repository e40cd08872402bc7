// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/factionkeep/factionkeep/lib/secret"
)

func testPassword(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("creating password buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(ClientConfig{HomeserverURL: "https://matrix.example.org/"}); err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	for _, homeserver := range []string{"", "://invalid", "matrix.example.org", "ftp://example.org"} {
		if _, err := NewClient(ClientConfig{HomeserverURL: homeserver}); err == nil {
			t.Errorf("NewClient(%q) succeeded, want error", homeserver)
		}
	}
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost || request.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		var body LoginRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Errorf("decoding login body: %v", err)
		}
		if body.Identifier.User != "factionkeep" || body.Password != "hunter2" {
			writer.WriteHeader(http.StatusForbidden)
			json.NewEncoder(writer).Encode(MatrixError{Code: ErrCodeForbidden, Message: "Invalid password"})
			return
		}
		json.NewEncoder(writer).Encode(map[string]string{
			"user_id":      "@factionkeep:example.org",
			"access_token": "syt_token",
			"device_id":    "DEVICE",
		})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	session, err := client.Login(context.Background(), "factionkeep", testPassword(t, "hunter2"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	defer session.Close()
	if session.UserID().String() != "@factionkeep:example.org" {
		t.Errorf("UserID = %q", session.UserID())
	}
	if session.DeviceID() != "DEVICE" {
		t.Errorf("DeviceID = %q", session.DeviceID())
	}
	if session.AccessToken() != "syt_token" {
		t.Errorf("AccessToken = %q", session.AccessToken())
	}

	_, err = client.Login(context.Background(), "factionkeep", testPassword(t, "wrong"))
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Fatalf("Login with wrong password error = %v, want M_FORBIDDEN", err)
	}
}

func TestNonJSONErrorKeepsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		writer.Write([]byte("<html>not found</html>"))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.doRequest(context.Background(), http.MethodGet, "/anything", nil, nil)

	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("error = %v, want *MatrixError", err)
	}
	if matrixErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", matrixErr.StatusCode)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound = false for bare 404")
	}
}
