// Package attachment turns an uploaded supporting document into plain text
// the council can read.
package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"github.com/linnemanlabs/boardroom/internal/council"
)

// MaxTextBytes bounds the extracted text handed to the council.
const MaxTextBytes = 20_000

// ErrUnsupported is returned for documents that are neither text nor HTML.
var ErrUnsupported = errors.New("unsupported attachment type")

var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".json":     "application/json",
	".html":     "text/html",
	".htm":      "text/html",
}

// Extract returns the readable text of a. A nil or empty attachment yields
// an empty string. HTML is reduced to its main article text.
func Extract(a *council.Attachment) (string, error) {
	if a == nil || len(a.Data) == 0 {
		return "", nil
	}

	var text string
	switch kind := mediaType(a); {
	case kind == "text/html" || kind == "application/xhtml+xml":
		article, err := readability.FromReader(bytes.NewReader(a.Data), &url.URL{Scheme: "file", Path: "/" + a.Name})
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", a.Name, err)
		}
		text = article.TextContent
	case strings.HasPrefix(kind, "text/") || kind == "application/json":
		if !utf8.Valid(a.Data) {
			return "", fmt.Errorf("%s: %w: not valid UTF-8 text", a.Name, ErrUnsupported)
		}
		text = string(a.Data)
	default:
		return "", fmt.Errorf("%s: %w: %s", a.Name, ErrUnsupported, kind)
	}

	return truncate(strings.TrimSpace(text), MaxTextBytes), nil
}

// mediaType prefers the declared content type, then the file extension,
// then sniffing.
func mediaType(a *council.Attachment) string {
	if a.ContentType != "" && a.ContentType != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(a.ContentType); err == nil {
			return mt
		}
	}
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(a.Name))]; ok {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(a.Data))
	return mt
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
