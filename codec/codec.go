// Package codec centralizes record serialization and the compression framing
// applied to serialized block payloads.
//
// The store treats codec selection as a caller decision: bytes written through
// one Manager configuration may not decode under another.
package codec

import (
	"encoding/json"
	"io"
)

// Serializer encodes and decodes record streams.
// Implementations must be safe for concurrent use.
type Serializer interface {
	Name() string
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
}

// Encoder appends records to a stream.
type Encoder interface {
	Encode(v any) error
}

// Decoder reads records back from a stream.
type Decoder interface {
	Decode(v any) error
}

// Default is the serializer used when none is configured.
var Default Serializer = JSON{}

// JSON serializes records with encoding/json.
type JSON struct{}

// Name implements Serializer.
func (JSON) Name() string { return "json" }

// NewEncoder implements Serializer.
func (JSON) NewEncoder(w io.Writer) Encoder { return json.NewEncoder(w) }

// NewDecoder implements Serializer.
func (JSON) NewDecoder(r io.Reader) Decoder { return json.NewDecoder(r) }

// ByName returns a built-in serializer by its stable name.
func ByName(name string) (Serializer, bool) {
	switch name {
	case "json":
		return JSON{}, true
	default:
		return nil, false
	}
}
