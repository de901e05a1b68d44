//go:build tesseract

package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

// Enabled reports whether Tesseract support was compiled in
const Enabled = true

// Recognizer implements client.TextRecognizer with gosseract
type Recognizer struct {
	opts Options

	// a gosseract client is not safe for concurrent use
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Recognizer. Close releases the engine.
func New(opts Options) (*Recognizer, error) {
	c := gosseract.NewClient()
	if len(opts.Languages) > 0 {
		if err := c.SetLanguage(opts.Languages...); err != nil {
			c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	// the image is read as one uniform block of text
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		c.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	return &Recognizer{opts: opts, client: c}, nil
}

// Close releases the Tesseract engine
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

// Recognize returns the words above the confidence floor and their average
// confidence
func (r *Recognizer) Recognize(ctx context.Context, data []byte) (types.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return types.Recognition{}, err
	}

	if r.opts.Preprocess {
		processed, err := Preprocess(data)
		if err != nil {
			return types.Recognition{}, err
		}
		data = processed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(data); err != nil {
		return types.Recognition{}, fmt.Errorf("set image: %w", err)
	}
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return types.Recognition{}, fmt.Errorf("recognize text: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{Text: b.Word, Confidence: b.Confidence})
	}
	return Collect(words, r.opts.MinConfidence), nil
}
