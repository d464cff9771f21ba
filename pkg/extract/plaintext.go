package extract

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/htmlindex"
)

// PlainText extracts text documents. Non UTF-8 charsets reported by mimetype are
// transcoded to UTF-8.
type PlainText struct{}

// Extract implements Extractor.
func (PlainText) Extract(_ context.Context, data []byte, mimeHint string) (string, error) {
	decoded, err := toUTF8(data, charsetOf(data, mimeHint))
	if err != nil {
		return "", err
	}

	text := strings.TrimPrefix(string(decoded), "\ufeff")
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return "", fmt.Errorf("%w: document is empty", ErrExtraction)
	}

	return text, nil
}

// charsetOf prefers an explicit charset on the hint and falls back to sniffing.
func charsetOf(data []byte, mimeHint string) string {
	if charset := charsetParam(mimeHint); charset != "" {
		return charset
	}
	return charsetParam(mimetype.Detect(data).String())
}

func charsetParam(value string) string {
	if value == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

func toUTF8(data []byte, charset string) ([]byte, error) {
	switch charset {
	case "", "utf-8", "utf8", "us-ascii":
		data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: text is not valid utf-8", ErrExtraction)
		}
		return data, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown charset %q", ErrExtraction, charset)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrExtraction, charset, err)
	}
	if !utf8.Valid(decoded) || bytes.ContainsRune(decoded, utf8.RuneError) {
		return nil, fmt.Errorf("%w: text is not valid %s", ErrExtraction, charset)
	}

	return decoded, nil
}
