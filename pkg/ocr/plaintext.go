package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// PlainTextExtractor returns the contents of text documents unchanged.
type PlainTextExtractor struct {
	MaxBytes int64
}

// NewPlainTextExtractor builds an extractor for text/* files.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{MaxBytes: 10 << 20}
}

func (e *PlainTextExtractor) Extract(ctx context.Context, filePath string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("stat submission file: %w", err)
	}
	if e.MaxBytes > 0 && info.Size() > e.MaxBytes {
		return Result{}, fmt.Errorf("submission file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("read submission file: %w", err)
	}
	if !utf8.Valid(data) {
		return Result{}, fmt.Errorf("%w: file is not valid utf-8 text", ErrUnsupportedMedia)
	}

	text := strings.TrimSpace(string(data))
	return Result{
		Success:    text != "",
		Text:       text,
		Confidence: 1,
		Provider:   "plaintext",
		MimeType:   "text/plain",
	}, nil
}
