//go:build !tesseract

package tesseract

import (
	"context"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

// Enabled reports whether Tesseract support was compiled in
const Enabled = false

// Recognizer is the stub used without the tesseract build tag
type Recognizer struct{}

// New returns ErrNotEnabled
func New(opts Options) (*Recognizer, error) {
	return nil, ErrNotEnabled
}

// Close does nothing
func (r *Recognizer) Close() error {
	return nil
}

// Recognize returns ErrNotEnabled
func (r *Recognizer) Recognize(ctx context.Context, data []byte) (types.Recognition, error) {
	return types.Recognition{}, ErrNotEnabled
}
