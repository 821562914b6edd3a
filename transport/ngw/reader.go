package ngw

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errDecompressedTooLarge is a sentinel error for decompressed size limit violations
var errDecompressedTooLarge = errors.New("decompressed data exceeds maximum size limit")

// errBodyTooLarge is returned when the raw body exceeds MaxBodyBytes.
var errBodyTooLarge = errors.New("response body exceeds maximum size limit")

// maxDecompressedReader wraps an io.Reader to enforce decompressed size limits
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		return 0, errDecompressedTooLarge
	}

	maxRead := r.limit - r.consumed
	if int64(len(p)) > maxRead {
		p = p[:maxRead]
	}

	n, err := r.reader.Read(p)
	r.consumed += int64(n)

	if r.consumed >= r.limit && err == nil {
		// At the limit: peek one byte to tell "exactly limit" from "more data"
		var dummy [1]byte
		if _, peekErr := r.reader.Read(dummy[:]); peekErr == nil {
			return n, errDecompressedTooLarge
		}
	}

	return n, err
}

// limitedBodyReader fails instead of truncating when the limit is exceeded.
type limitedBodyReader struct {
	reader    io.Reader
	remaining int64
}

func (r *limitedBodyReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		var dummy [1]byte
		if n, _ := r.reader.Read(dummy[:]); n > 0 {
			return 0, errBodyTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.reader.Read(p)
	r.remaining -= int64(n)
	return n, err
}

// readResponseBody reads the whole body enforcing both the compressed and
// the decompressed size limits.
func readResponseBody(resp *http.Response, limits Limits) ([]byte, error) {
	var reader io.Reader = &limitedBodyReader{reader: resp.Body, remaining: limits.MaxBodyBytes}

	encoding := strings.TrimSpace(strings.ToLower(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
	case "gzip":
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip data: %w", err)
		}
		defer gzReader.Close()
		reader = &maxDecompressedReader{reader: gzReader, limit: limits.MaxDecompressedBytes}
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
	}

	return io.ReadAll(reader)
}
