package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// visionPagesPerRequest is the page limit for synchronous file annotation.
const visionPagesPerRequest = 5

// Annotator is the subset of the Vision client used for document OCR.
type Annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)
	BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest) (*visionpb.BatchAnnotateFilesResponse, error)
	Close() error
}

type visionClient struct {
	client *vision.ImageAnnotatorClient
}

func (c visionClient) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	return c.client.BatchAnnotateImages(ctx, req)
}

func (c visionClient) BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest) (*visionpb.BatchAnnotateFilesResponse, error) {
	return c.client.BatchAnnotateFiles(ctx, req)
}

func (c visionClient) Close() error {
	return c.client.Close()
}

// NewVisionAnnotator dials Google Cloud Vision. An empty credentials file
// falls back to application default credentials.
func NewVisionAnnotator(ctx context.Context, credentialsFile string) (Annotator, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return visionClient{client: client}, nil
}

// VisionExtractor runs DOCUMENT_TEXT_DETECTION on images and PDFs.
type VisionExtractor struct {
	annotator Annotator
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewVisionExtractor wraps an annotator as a TextExtractor.
func NewVisionExtractor(annotator Annotator, timeout time.Duration, logger zerolog.Logger) *VisionExtractor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &VisionExtractor{
		annotator: annotator,
		timeout:   timeout,
		logger:    logger.With().Str("component", "gcp_vision").Logger(),
	}
}

func (e *VisionExtractor) Extract(ctx context.Context, filePath string) (Result, error) {
	if e.annotator == nil {
		return Result{}, fmt.Errorf("vision annotator not configured")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("read submission file: %w", err)
	}
	mime := mimetype.Detect(data).String()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if strings.HasPrefix(mime, "application/pdf") {
		return e.extractPDF(ctx, filePath, data)
	}
	return e.extractImage(ctx, data, mime)
}

// IsAvailable reports whether a Vision client has been configured.
func (e *VisionExtractor) IsAvailable() bool {
	return e.annotator != nil
}

func (e *VisionExtractor) extractImage(ctx context.Context, data []byte, mime string) (Result, error) {
	resp, err := e.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}

	var pages pageAccumulator
	for _, r := range resp.GetResponses() {
		if err := pages.add(r); err != nil {
			return Result{}, err
		}
	}
	return pages.result(mime), nil
}

func (e *VisionExtractor) extractPDF(ctx context.Context, filePath string, data []byte) (Result, error) {
	pageCount, err := api.PageCountFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("count pdf pages: %w", err)
	}
	if pageCount <= 0 {
		return Result{Provider: "gcp_vision", MimeType: "application/pdf"}, nil
	}

	var pages pageAccumulator
	for start := 1; start <= pageCount; start += visionPagesPerRequest {
		window := make([]int32, 0, visionPagesPerRequest)
		for p := start; p < start+visionPagesPerRequest && p <= pageCount; p++ {
			window = append(window, int32(p))
		}

		resp, err := e.annotator.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig: &visionpb.InputConfig{Content: data, MimeType: "application/pdf"},
				Features:    []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
				Pages:       window,
			}},
		})
		if err != nil {
			return Result{}, fmt.Errorf("vision BatchAnnotateFiles pages %d-%d: %w", window[0], window[len(window)-1], err)
		}

		for _, fileResp := range resp.GetResponses() {
			if msg := fileResp.GetError().GetMessage(); msg != "" {
				return Result{}, fmt.Errorf("vision annotate error: %s", msg)
			}
			for _, r := range fileResp.GetResponses() {
				if err := pages.add(r); err != nil {
					return Result{}, err
				}
			}
		}
		e.logger.Debug().Int("from", int(window[0])).Int("to", int(window[len(window)-1])).Int("total", pageCount).Msg("pdf window annotated")
	}

	result := pages.result("application/pdf")
	result.Pages = pageCount
	return result, nil
}

type pageAccumulator struct {
	texts      []string
	confidence float64
	scored     int
	pages      int
}

func (a *pageAccumulator) add(r *visionpb.AnnotateImageResponse) error {
	if r == nil {
		return nil
	}
	if msg := r.GetError().GetMessage(); msg != "" {
		return fmt.Errorf("vision annotate error: %s", msg)
	}

	annotation := r.GetFullTextAnnotation()
	if text := strings.TrimSpace(annotation.GetText()); text != "" {
		a.texts = append(a.texts, text)
	}
	for _, page := range annotation.GetPages() {
		a.pages++
		if c := page.GetConfidence(); c > 0 {
			a.confidence += float64(c)
			a.scored++
		}
	}
	return nil
}

func (a *pageAccumulator) result(mime string) Result {
	text := strings.Join(a.texts, "\n\n")
	confidence := 0.0
	if a.scored > 0 {
		confidence = a.confidence / float64(a.scored)
	}
	return Result{
		Success:    text != "",
		Text:       text,
		Confidence: confidence,
		Provider:   "gcp_vision",
		MimeType:   mime,
		Pages:      a.pages,
	}
}
