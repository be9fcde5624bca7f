package compress

import (
	"errors"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4Codec uses the LZ4 block format. The decompressed size isn't stored, so Decompress grows its output buffer
// until the block fits.
type LZ4Codec struct{}

func (LZ4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	lc := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errLZ4Incompressible
	}
	return dst[:n], nil
}

var errLZ4Incompressible = errors.New("lz4: data is not compressible")

func (LZ4Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	const maxSize = 128 << 20
	for size := len(data) * 4; ; size *= 2 {
		if size > maxSize {
			return nil, lz4.ErrInvalidSourceShortBuffer
		}
		buf := make([]byte, size)
		n, err := lz4.UncompressBlock(data, buf)
		if err != nil {
			if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
				continue
			}
			return nil, err
		}
		return buf[:n], nil
	}
}
