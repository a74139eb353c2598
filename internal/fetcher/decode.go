package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// readBody decompresses r according to contentEncoding and reads at most
// limit bytes. truncated reports whether the body was cut.
func readBody(r io.Reader, contentEncoding string, limit int64) (body []byte, truncated bool, err error) {
	reader := r
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, false, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(r)
	case "deflate":
		fl := flate.NewReader(r)
		defer fl.Close()
		reader = fl
	}

	body, err = io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// toUTF8 converts an HTML body to UTF-8 using the Content-Type charset,
// a BOM or a <meta> declaration, in that order.
func toUTF8(body []byte, contentType string) []byte {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || enc == nil {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return bytes.TrimPrefix(decoded, []byte("\xef\xbb\xbf"))
}
