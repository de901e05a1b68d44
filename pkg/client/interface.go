package client

import (
	"context"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

// Extractor uploads an image and returns the text extracted from it along
// with the artifact id the renderer will later need.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (*types.ExtractionResult, error)
}

// Renderer burns the edits of a request into the referenced artifact and
// streams the resulting image back.
type Renderer interface {
	Render(ctx context.Context, req types.RenderRequest) (*types.RenderedImage, error)
}

// TextRecognizer runs OCR on raw image bytes
type TextRecognizer interface {
	Recognize(ctx context.Context, data []byte) (types.Recognition, error)
}

// Backend is a collaborator that can both extract and render
type Backend interface {
	Extractor
	Renderer
}
