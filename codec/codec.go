// Package codec converts cached values to bytes and back.
//
// A codec never fails loudly: Encode and Decode report failure through the
// boolean result, and callers treat it as "skip the write" or "cache miss".
package codec

import "unicode/utf8"

// Codec is the per-type serialization capability of a storable value.
type Codec[V any] interface {
	Encode(v V) ([]byte, bool)
	Decode(data []byte) (V, bool)
}

// Bytes is the identity codec over raw bytes.
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, bool) {
	if v == nil {
		return nil, false
	}
	return v, true
}

func (Bytes) Decode(data []byte) ([]byte, bool) {
	if data == nil {
		return nil, false
	}
	return data, true
}

// String encodes text as UTF-8. Decoding rejects invalid UTF-8.
type String struct{}

func (String) Encode(v string) ([]byte, bool) {
	if !utf8.ValidString(v) {
		return nil, false
	}
	return []byte(v), true
}

func (String) Decode(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

var (
	_ Codec[[]byte] = Bytes{}
	_ Codec[string] = String{}
)
