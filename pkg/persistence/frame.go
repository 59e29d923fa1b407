package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Constants for the binary frame format.
const (
	// MagicByte marks the start of a valid frame.
	MagicByte = 0xA5

	// FormatVersion is written in every frame header.
	FormatVersion = 1

	// HeaderSize is the fixed size of the frame metadata:
	// Magic(1) + Kind(1) + Codec(1) + Version(1) + Length(4) + RawLength(4) + CRC32(4).
	HeaderSize = 16
)

// Kind tells what a frame payload holds.
type Kind uint8

const (
	// KindSnapshot is a full index snapshot.
	KindSnapshot Kind = 0x01
	// KindRecord is one journal entry.
	KindRecord Kind = 0x02
)

var (
	// ErrInvalidMagic indicates the stream lost synchronization or is not a frame file.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the stream ended in the middle of a frame.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrUnsupportedVersion is returned for frames written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported format version")
)

// Frame is one decoded frame. Payload is already decompressed.
type Frame struct {
	Kind    Kind
	Codec   Codec
	Payload []byte
}

// FrameWriter writes frames to an io.Writer.
type FrameWriter struct {
	w     io.Writer
	codec Codec
}

// NewFrameWriter creates a writer that compresses payloads with codec.
func NewFrameWriter(w io.Writer, codec Codec) *FrameWriter {
	return &FrameWriter{w: w, codec: codec}
}

// WriteFrame compresses payload and writes it as a frame of the given kind.
// Frame format: [Magic][Kind][Codec][Version][Length][RawLength][CRC][Payload].
func (fw *FrameWriter) WriteFrame(kind Kind, payload []byte) (int, error) {
	codec, body, err := compress(fw.codec, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to compress payload: %w", err)
	}

	header := make([]byte, HeaderSize)
	header[0] = MagicByte
	header[1] = byte(kind)
	header[2] = byte(codec)
	header[3] = FormatVersion
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[12:16], crc32.ChecksumIEEE(body))

	// fw.w should be buffered so header and body reach the file in one write.
	if _, err := fw.w.Write(header); err != nil {
		return 0, err
	}
	if _, err := fw.w.Write(body); err != nil {
		return HeaderSize, err
	}
	return HeaderSize + len(body), nil
}

// ReadFrame reads and validates the next frame.
// It returns io.EOF when the stream ends cleanly between frames.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, HeaderSize)

	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, ErrIncompleteFrame
	}

	if header[0] != MagicByte {
		return Frame{}, ErrInvalidMagic
	}
	if header[3] > FormatVersion {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header[3])
	}

	kind := Kind(header[1])
	codec := Codec(header[2])
	length := binary.LittleEndian.Uint32(header[4:8])
	rawLength := binary.LittleEndian.Uint32(header[8:12])
	expectedCRC := binary.LittleEndian.Uint32(header[12:16])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, ErrIncompleteFrame
	}

	if crc32.ChecksumIEEE(body) != expectedCRC {
		return Frame{}, ErrChecksumMismatch
	}

	payload, err := decompress(codec, body, int(rawLength))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: kind, Codec: codec, Payload: payload}, nil
}
