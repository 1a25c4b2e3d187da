package keyValStore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"
)

// Stored values start with one byte naming their compression, so a
// store can change its Compression setting and still read old values.
const (
	codecNone byte = iota
	codecZstd
	codecLZMA
)

var errCorruptValue = errors.New("corrupt stored value")

type codec struct {
	write   byte
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec(name string) (*codec, error) {
	c := &codec{}
	switch name {
	case "", "zstd":
		c.write = codecZstd
	case "lzma":
		c.write = codecLZMA
	case "none":
		c.write = codecNone
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}

	var err error
	c.encoder, err = zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	c.decoder, err = zstd.NewReader(nil)
	if err != nil {
		c.encoder.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return c, nil
}

func (c *codec) encode(data []byte) ([]byte, error) {
	switch c.write {
	case codecZstd:
		out := []byte{codecZstd}
		return c.encoder.EncodeAll(data, out), nil
	case codecLZMA:
		compressed, err := compressWithLzma(data)
		if err != nil {
			return nil, err
		}
		return append([]byte{codecLZMA}, compressed...), nil
	default:
		return append([]byte{codecNone}, data...), nil
	}
}

func (c *codec) decode(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, errCorruptValue
	}
	switch value[0] {
	case codecNone:
		return value[1:], nil
	case codecZstd:
		out, err := c.decoder.DecodeAll(value[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptValue, err)
		}
		return out, nil
	case codecLZMA:
		out, err := decompressWithLzma(value[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptValue, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", errCorruptValue, value[0])
	}
}

func (c *codec) close() {
	c.encoder.Close()
	c.decoder.Close()
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(data)
	if err != nil {
		return nil, err
	}

	err = w.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
