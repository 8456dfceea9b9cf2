package manifest

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// maxDocumentSize caps launcher and index documents after decompression.
const maxDocumentSize = 64 << 20

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// decodeBody returns the plain document bytes. The Content-Encoding header is
// honoured first; otherwise the payload is sniffed, since some mirrors serve
// pre-compressed files without declaring it.
func decodeBody(body io.Reader, contentEncoding string) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxDocumentSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if len(raw) > maxDocumentSize {
		return nil, errors.Errorf("document exceeds %d bytes", maxDocumentSize)
	}

	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	switch {
	case strings.Contains(encoding, "zstd"), bytes.HasPrefix(raw, zstdMagic):
		return decodeZstd(raw)
	case strings.Contains(encoding, "gzip"), bytes.HasPrefix(raw, gzipMagic):
		return decodeGzip(raw)
	default:
		return raw, nil
	}
}

func decodeGzip(raw []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "error decompressing gzip content")
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxDocumentSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "error decompressing gzip content")
	}
	if len(data) > maxDocumentSize {
		return nil, errors.Errorf("decompressed document exceeds %d bytes", maxDocumentSize)
	}
	return data, nil
}

func decodeZstd(raw []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDocumentSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd decoder")
	}
	defer decoder.Close()

	data, err := decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error decompressing zstd content")
	}
	return data, nil
}
