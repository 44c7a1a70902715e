package ocr

import (
	"context"
	"errors"
)

// ErrUnsupportedMedia indicates no extractor can read the file's content type.
var ErrUnsupportedMedia = errors.New("unsupported media type for text extraction")

// Result is the outcome of a text extraction.
type Result struct {
	Success    bool    `json:"success"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Provider   string  `json:"provider"`
	MimeType   string  `json:"mime_type"`
	Pages      int     `json:"pages,omitempty"`
}

// TextExtractor reads the text out of a stored submission file.
type TextExtractor interface {
	Extract(ctx context.Context, filePath string) (Result, error)
}
