package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// FallbackExtractor tries each extractor in order until one returns text.
type FallbackExtractor struct {
	extractors []TextExtractor
	logger     zerolog.Logger
}

// NewFallbackExtractor chains extractors. Nil entries are skipped.
func NewFallbackExtractor(logger zerolog.Logger, extractors ...TextExtractor) *FallbackExtractor {
	chain := make([]TextExtractor, 0, len(extractors))
	for _, e := range extractors {
		if e != nil {
			chain = append(chain, e)
		}
	}
	return &FallbackExtractor{
		extractors: chain,
		logger:     logger.With().Str("component", "ocr_fallback").Logger(),
	}
}

func (f *FallbackExtractor) Extract(ctx context.Context, filePath string) (Result, error) {
	if len(f.extractors) == 0 {
		return Result{}, fmt.Errorf("%w: no extractor configured", ErrUnsupportedMedia)
	}

	var errs []error
	var last Result
	for i, extractor := range f.extractors {
		result, err := extractor.Extract(ctx, filePath)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			f.logger.Warn().Err(err).Int("position", i).Msg("extractor failed, trying next")
			errs = append(errs, err)
			continue
		}
		if result.Success {
			return result, nil
		}
		last = result
	}

	if len(errs) == len(f.extractors) {
		return Result{}, errors.Join(errs...)
	}
	return last, nil
}
