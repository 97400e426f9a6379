package compress

import (
	"github.com/klauspost/compress/zstd"
)

// Zstd shares one encoder and one decoder, both are safe for concurrent
// EncodeAll/DecodeAll calls.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewZstd() Zstd {
	// nil writer/reader with default options cannot fail
	encoder, _ := zstd.NewWriter(nil)
	decoder, _ := zstd.NewReader(nil)
	return Zstd{encoder: encoder, decoder: decoder}
}

func (z Zstd) Encode(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z Zstd) Decode(data []byte) ([]byte, error) {
	return z.decoder.DecodeAll(data, nil)
}
