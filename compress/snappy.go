package compress

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
)

type SnappyCodec struct{}

func (SnappyCodec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return snappy.Encode(nil, data), nil
}

func (SnappyCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return snappy.Decode(nil, data)
}

type S2Codec struct{}

func (S2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Encode(nil, data), nil
}

func (S2Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Decode(nil, data)
}
