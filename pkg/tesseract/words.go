// Package tesseract recognizes text with the Tesseract OCR engine.
//
// The engine is reached through gosseract, which needs cgo and the
// Tesseract development headers. It is compiled in with the "tesseract"
// build tag:
//
//	go build -tags tesseract ./...
//
// Without the tag, Recognize returns ErrNotEnabled.
package tesseract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ocr-overlay/pkg/processing"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// ErrNotEnabled is returned when Tesseract support was not compiled in.
// Rebuild with -tags tesseract to enable it.
var ErrNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags tesseract")

// DefaultMinConfidence drops words Tesseract is not sure about
const DefaultMinConfidence = 30

// Options configures a Recognizer
type Options struct {
	Languages     []string
	MinConfidence float64
	// Preprocess binarizes the image before recognition
	Preprocess bool
}

// DefaultOptions returns English recognition with preprocessing
func DefaultOptions() Options {
	return Options{
		Languages:     []string{"eng"},
		MinConfidence: DefaultMinConfidence,
		Preprocess:    true,
	}
}

// Word is one recognized word and Tesseract's confidence in it (0-100)
type Word struct {
	Text       string
	Confidence float64
}

// Collect joins the words whose confidence is above minConfidence and
// averages their confidences
func Collect(words []Word, minConfidence float64) types.Recognition {
	var texts []string
	var sum float64
	for _, w := range words {
		if w.Confidence <= minConfidence {
			continue
		}
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		sum += w.Confidence
	}
	if len(texts) == 0 {
		return types.Recognition{}
	}
	return types.Recognition{
		Text:       strings.Join(texts, " "),
		Confidence: sum / float64(len(texts)),
	}
}

// Preprocess converts the image to a black and white PNG using Otsu's
// threshold on its grayscale version
func Preprocess(data []byte) ([]byte, error) {
	img, err := processing.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", types.ErrInput, err)
	}

	gray := imaging.Grayscale(img)
	threshold := otsuThreshold(gray)

	out := image.NewGray(gray.Bounds())
	for y := gray.Bounds().Min.Y; y < gray.Bounds().Max.Y; y++ {
		for x := gray.Bounds().Min.X; x < gray.Bounds().Max.X; x++ {
			if gray.NRGBAAt(x, y).R > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := processing.Encode(&buf, out, "png", 0, false); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// otsuThreshold picks the level that maximizes between-class variance
func otsuThreshold(img *image.NRGBA) uint8 {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.NRGBAAt(x, y).R]++
		}
	}

	total := b.Dx() * b.Dy()
	if total == 0 {
		return 127
	}

	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i * n)
	}

	var (
		sumB    float64
		weightB int
		best    float64
		level   uint8
	)
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		meanB := sumB / float64(weightB)
		meanF := (sumAll - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			level = uint8(t)
		}
	}
	return level
}
