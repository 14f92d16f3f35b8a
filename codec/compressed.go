package codec

import (
	"bytes"
	"compress/gzip"
	"io"
)

// Compressed wraps another codec and gzips its output.
//   - Supported levels:
//     gzip.NoCompression      = 0
//     gzip.BestSpeed          = 1
//     gzip.BestCompression    = 9
//     gzip.DefaultCompression = -1
//     gzip.HuffmanOnly        = -2
type Compressed[V any] struct {
	Inner Codec[V]
	Level int
}

func NewCompressed[V any](inner Codec[V], level int) Compressed[V] {
	return Compressed[V]{Inner: inner, Level: level}
}

func (c Compressed[V]) Encode(v V) ([]byte, bool) {
	raw, ok := c.Inner.Encode(v)
	if !ok {
		return nil, false
	}

	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, false
	}
	if _, err = gw.Write(raw); err != nil {
		return nil, false
	}
	if err = gw.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func (c Compressed[V]) Decode(data []byte) (V, bool) {
	var zero V

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return zero, false
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return zero, false
	}
	return c.Inner.Decode(raw)
}
