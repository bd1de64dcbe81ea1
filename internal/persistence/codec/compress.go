package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compressor is a whole-buffer compressor. Implementations are safe for concurrent
// use.
type Compressor interface {
	Name() string
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// NewCompressor returns the compressor called name ("zstd", "zlib" or "none").
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case "", "zstd":
		return NewZstd()
	case "zlib":
		return Zlib{Level: zlib.DefaultCompression}, nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

// Zstd shares one encoder and decoder; EncodeAll and DecodeAll may be called
// concurrently.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) Name() string { return "zstd" }

func (z *Zstd) Compress(p []byte) ([]byte, error) {
	return z.enc.EncodeAll(p, nil), nil
}

func (z *Zstd) Decompress(p []byte) ([]byte, error) {
	return z.dec.DecodeAll(p, nil)
}

// Zlib matches the format chunk databases have traditionally used.
type Zlib struct {
	Level int
}

func (Zlib) Name() string { return "zlib" }

func (z Zlib) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Zlib) Decompress(p []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type None struct{}

func (None) Name() string                        { return "none" }
func (None) Compress(p []byte) ([]byte, error)   { return append([]byte(nil), p...), nil }
func (None) Decompress(p []byte) ([]byte, error) { return append([]byte(nil), p...), nil }
