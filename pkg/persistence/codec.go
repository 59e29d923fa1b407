package persistence

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is the compression applied to a frame payload.
type Codec uint8

const (
	// CodecNone stores payloads as-is.
	CodecNone Codec = 0
	// CodecLZ4 is LZ4 block compression: fast, moderate ratio.
	CodecLZ4 Codec = 1
	// CodecZstd is Zstandard: better ratio, slower.
	CodecZstd Codec = 2
)

// ErrUnsupportedCodec is returned for unknown codec names or ids.
var ErrUnsupportedCodec = errors.New("unsupported codec")

// ParseCodec maps a codec name to its id. The empty string means none.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	}
	return CodecNone, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compress returns the codec actually used and the encoded bytes.
// Incompressible LZ4 input falls back to CodecNone.
func compress(codec Codec, data []byte) (Codec, []byte, error) {
	if len(data) == 0 {
		return CodecNone, data, nil
	}
	switch codec {
	case CodecNone:
		return CodecNone, data, nil
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return codec, nil, err
		}
		if n == 0 {
			return CodecNone, data, nil
		}
		return CodecLZ4, buf[:n], nil
	case CodecZstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return CodecZstd, enc.EncodeAll(data, nil), nil
	}
	return codec, nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
}

func decompress(codec Codec, data []byte, rawLength int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(data) != rawLength {
			return nil, fmt.Errorf("payload size mismatch: %d != %d", len(data), rawLength)
		}
		return data, nil
	case CodecLZ4:
		out := make([]byte, rawLength)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress lz4 payload: %w", err)
		}
		if n != rawLength {
			return nil, fmt.Errorf("decompressed size mismatch: %d != %d", n, rawLength)
		}
		return out, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, rawLength))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress zstd payload: %w", err)
		}
		if len(out) != rawLength {
			return nil, fmt.Errorf("decompressed size mismatch: %d != %d", len(out), rawLength)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
}
