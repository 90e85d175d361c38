package fetchkit

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// decodeBody decompresses body according to the Content-Encoding header
// value. An empty or "identity" header passes the body through unchanged
// and a known codec that fails to decode is an error; only an unrecognized
// header value falls back to trying each known codec in turn. (Fetcher
// separately retries the raw bytes when a 200 body does not read as text.)
func decodeBody(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip":
		return decodeGzip(body)
	case "deflate":
		return decodeDeflate(body)
	case "br":
		return decodeBrotli(body)
	case "zstd":
		return decodeZstd(body)
	}

	if out, err := decodeAnyCodec(body); err == nil {
		return out, nil
	}
	return nil, fmt.Errorf("%w: unrecognized content-encoding %q", ErrDecode, encoding)
}

// decodeAnyCodec tries each codec in order against raw bytes, keeping the
// first result that reads as text.
func decodeAnyCodec(body []byte) ([]byte, error) {
	for _, try := range []func([]byte) ([]byte, error){decodeGzip, decodeDeflate, decodeBrotli, decodeZstd} {
		if out, err := try(body); err == nil && looksLikeText(out) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: no codec decoded to text", ErrDecode)
}

// looksLikeText reports whether body is plausibly HTML/JSON rather than
// still-compressed or binary bytes: non-empty, no NUL bytes, and almost
// entirely printable in its first window.
func looksLikeText(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	window := body
	if len(window) > 512 {
		window = window[:512]
	}
	if bytes.IndexByte(window, 0) >= 0 {
		return false
	}
	printable := 0
	for _, b := range window {
		if b == '\n' || b == '\r' || b == '\t' || b >= 0x20 {
			printable++
		}
	}
	return printable*10 >= len(window)*9
}

func decodeGzip(body []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrDecode, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrDecode, err)
	}
	return out, nil
}

func decodeDeflate(body []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: deflate: %v", ErrDecode, err)
	}
	return out, nil
}

func decodeBrotli(body []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(body))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: brotli: %v", ErrDecode, err)
	}
	return out, nil
}

func decodeZstd(body []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrDecode, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrDecode, err)
	}
	return out, nil
}
