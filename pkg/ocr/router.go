package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// Router dispatches extraction by the detected MIME type of the file.
type Router struct {
	text   TextExtractor
	images TextExtractor
	pdfs   TextExtractor
	logger zerolog.Logger
}

// NewRouter builds a MIME-routing extractor. Any of the extractors may be nil.
func NewRouter(text, images, pdfs TextExtractor, logger zerolog.Logger) *Router {
	return &Router{
		text:   text,
		images: images,
		pdfs:   pdfs,
		logger: logger.With().Str("component", "ocr_router").Logger(),
	}
}

func (r *Router) Extract(ctx context.Context, filePath string) (Result, error) {
	mime, err := mimetype.DetectFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("detect submission type: %w", err)
	}

	target := r.route(mime)
	if target == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mime.String())
	}

	r.logger.Debug().Str("mime", mime.String()).Str("path", filePath).Msg("extracting submission text")
	result, err := target.Extract(ctx, filePath)
	if err != nil {
		return Result{}, err
	}
	if result.MimeType == "" {
		result.MimeType = mime.String()
	}
	return result, nil
}

// IsAvailable reports whether at least one extractor is configured.
func (r *Router) IsAvailable() bool {
	return r.text != nil || r.images != nil || r.pdfs != nil
}

func (r *Router) route(mime *mimetype.MIME) TextExtractor {
	switch {
	case mime.Is("application/pdf"):
		return r.pdfs
	case strings.HasPrefix(mime.String(), "image/"):
		return r.images
	}

	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return r.text
		}
	}
	return nil
}
