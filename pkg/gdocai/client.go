// Package gdocai recognizes text in images with a Google Document AI OCR
// processor.
//
// Authentication uses the credentials file from the configuration or, when
// empty, GOOGLE_APPLICATION_CREDENTIALS.
package gdocai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/menta2k/ocr-overlay/pkg/client"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// Config names the Document AI processor
type Config struct {
	ProjectID       string `yaml:"project_id" json:"project_id"`
	Location        string `yaml:"location" json:"location"`
	ProcessorID     string `yaml:"processor_id" json:"processor_id"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// Validate checks that the processor is fully named
func (c Config) Validate() error {
	if c.ProjectID == "" || c.Location == "" || c.ProcessorID == "" {
		return fmt.Errorf("project_id, location and processor_id are required")
	}
	return nil
}

// ProcessorName returns the resource name of the processor
func (c Config) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

var _ client.TextRecognizer = (*Recognizer)(nil)

type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.Document, error)

// Recognizer implements client.TextRecognizer with Document AI
type Recognizer struct {
	cfg     Config
	process processFunc
	close   func() error
}

// New creates a Document AI client for the configured processor
func New(ctx context.Context, cfg Config) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	credentials := cfg.CredentialsFile
	if credentials == "" {
		credentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}

	dc, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}

	return &Recognizer{
		cfg: cfg,
		process: func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.Document, error) {
			resp, err := dc.ProcessDocument(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp.GetDocument(), nil
		},
		close: dc.Close,
	}, nil
}

// Close releases the underlying connection
func (r *Recognizer) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// Recognize sends the image as a raw document and returns the document text
// with the mean token confidence
func (r *Recognizer) Recognize(ctx context.Context, data []byte) (types.Recognition, error) {
	req := &documentaipb.ProcessRequest{
		Name: r.cfg.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: http.DetectContentType(data),
			},
		},
		SkipHumanReview: true,
	}

	doc, err := r.process(ctx, req)
	if err != nil {
		return types.Recognition{}, fmt.Errorf("%w: failed to process document: %v", types.ErrNetwork, err)
	}
	return recognitionFromDocument(doc), nil
}

func recognitionFromDocument(doc *documentaipb.Document) types.Recognition {
	if doc == nil {
		return types.Recognition{}
	}

	var sum float64
	var n int
	for _, page := range doc.GetPages() {
		for _, token := range page.GetTokens() {
			if token.GetLayout() == nil {
				continue
			}
			sum += float64(token.GetLayout().GetConfidence() * 100)
			n++
		}
	}

	rec := types.Recognition{Text: strings.TrimSpace(doc.GetText())}
	if n > 0 {
		rec.Confidence = sum / float64(n)
	}
	return rec
}
