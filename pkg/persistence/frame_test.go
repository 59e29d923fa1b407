package persistence

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("iris-code "), 200)

	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			var buf bytes.Buffer
			fw := NewFrameWriter(&buf, codec)
			n, err := fw.WriteFrame(KindRecord, payload)
			require.NoError(t, err)
			assert.Equal(t, buf.Len(), n)
			_, err = fw.WriteFrame(KindSnapshot, []byte("second"))
			require.NoError(t, err)

			if codec != CodecNone {
				assert.Less(t, buf.Len(), len(payload), "repetitive payload compresses")
			}

			f, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, KindRecord, f.Kind)
			assert.Equal(t, codec, f.Codec)
			assert.Equal(t, payload, f.Payload)

			f, err = ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, KindSnapshot, f.Kind)
			assert.Equal(t, []byte("second"), f.Payload)

			_, err = ReadFrame(&buf)
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestFrameCorruption(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewFrameWriter(&buf, CodecNone).WriteFrame(KindRecord, []byte("payload"))
	require.NoError(t, err)
	good := buf.Bytes()

	t.Run("magic", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[0] = 0x00
		_, err := ReadFrame(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})
	t.Run("checksum", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[len(bad)-1] ^= 0xff
		_, err := ReadFrame(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})
	t.Run("truncated payload", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(good[:len(good)-2]))
		assert.ErrorIs(t, err, ErrIncompleteFrame)
	})
	t.Run("truncated header", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(good[:5]))
		assert.ErrorIs(t, err, ErrIncompleteFrame)
	})
	t.Run("version", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[3] = FormatVersion + 1
		_, err := ReadFrame(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
	t.Run("codec", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[2] = 9
		_, err := ReadFrame(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrUnsupportedCodec)
	})
}

func TestParseCodec(t *testing.T) {
	cases := map[string]Codec{"": CodecNone, "none": CodecNone, "LZ4": CodecLZ4, " zstd ": CodecZstd}
	for name, want := range cases {
		got, err := ParseCodec(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := ParseCodec("gzip")
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.Equal(t, "codec(7)", Codec(7).String())
}
