// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the admin socket
// protocol. Matrix traffic and CLI --json output stay JSON; anything
// that crosses the operator socket is CBOR.
//
// Socket protocol types carry `json` tags only. fxamacker/cbor falls
// back to them when `cbor` tags are absent, so the same struct renders
// identically on the socket and in `factionkeep --json` output.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	// ref.UserID and ref.RoomID have unexported fields; encode them
	// through MarshalText so they travel as plain strings.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("codec: CBOR encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

type (
	Encoder    = cbor.Encoder
	Decoder    = cbor.Decoder
	RawMessage = cbor.RawMessage
)

// NewEncoder returns a stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
