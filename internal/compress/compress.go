package compress

import (
	"errors"
	"strings"
)

// ErrUnknownCompression is returned for an unsupported codec name.
var ErrUnknownCompression = errors.New("unknown compression")

// Compress encodes and decodes stored cache records.
type Compress interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// ByName returns the codec registered under name. An empty name means none.
func ByName(name string) (Compress, error) {
	switch strings.ToLower(name) {
	case "", "none", "nop":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "lz4":
		return NewLZ4(), nil
	case "brotli":
		return NewBrotli(), nil
	case "zstd":
		return NewZstd(), nil
	}

	return nil, ErrUnknownCompression
}
