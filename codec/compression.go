package codec

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/blockstore/model"
)

// Compression selects the framing applied to serialized block payloads.
type Compression uint8

const (
	// CompressionNone stores serialized bytes as written.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 framing (fast, good for hot data).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD framing (better ratio, good for cold data).
	CompressionZSTD Compression = 2
)

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder(w io.Writer) *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		enc := v.(*zstd.Encoder)
		enc.Reset(w)
		return enc
	}
	enc, _ := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	enc.Reset(nil)
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder(r io.Reader) (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		dec := v.(*zstd.Decoder)
		if err := dec.Reset(r); err != nil {
			return nil, err
		}
		return dec, nil
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

func putZstdDecoder(dec *zstd.Decoder) {
	_ = dec.Reset(nil)
	zstdDecoderPool.Put(dec)
}

// Manager pairs a Serializer with a compression codec. It is the seam the
// store uses to wrap serialized block output and input streams.
type Manager struct {
	serializer  Serializer
	compression Compression
}

// NewManager creates a Manager. A nil serializer falls back to Default.
func NewManager(s Serializer, c Compression) *Manager {
	if s == nil {
		s = Default
	}
	return &Manager{serializer: s, compression: c}
}

// Serializer returns the serializer for the given tag. With autoPick the
// manager's configured serializer wins; otherwise the tag is resolved against
// the built-in registry and falls back to the configured one.
func (m *Manager) Serializer(tag string, autoPick bool) Serializer {
	if !autoPick {
		if s, ok := ByName(tag); ok {
			return s
		}
	}
	return m.serializer
}

// WrapForCompression wraps the output stream of block id with the configured
// compression codec. The returned WriteCloser must be closed to flush framing.
func (m *Manager) WrapForCompression(id model.BlockID, w io.Writer) io.WriteCloser {
	switch m.compression {
	case CompressionLZ4:
		return lz4.NewWriter(w)
	case CompressionZSTD:
		return &pooledZstdWriter{enc: getZstdEncoder(w)}
	default:
		return nopWriteCloser{w}
	}
}

// WrapForDecompression wraps the input stream of block id symmetrically to
// WrapForCompression.
func (m *Manager) WrapForDecompression(id model.BlockID, r io.Reader) (io.ReadCloser, error) {
	switch m.compression {
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZSTD:
		dec, err := getZstdDecoder(r)
		if err != nil {
			return nil, err
		}
		return &pooledZstdReader{dec: dec}, nil
	default:
		return io.NopCloser(r), nil
	}
}

type pooledZstdWriter struct {
	enc    *zstd.Encoder
	closed bool
}

func (w *pooledZstdWriter) Write(p []byte) (int, error) {
	return w.enc.Write(p)
}

func (w *pooledZstdWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.enc.Close()
	putZstdEncoder(w.enc)
	w.enc = nil
	return err
}

type pooledZstdReader struct {
	dec    *zstd.Decoder
	closed bool
}

func (r *pooledZstdReader) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

func (r *pooledZstdReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	putZstdDecoder(r.dec)
	r.dec = nil
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
