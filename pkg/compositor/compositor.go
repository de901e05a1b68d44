// Package compositor is an in-process stand-in for the OCR converter
// server. It keeps uploaded images in memory under generated ids, asks a
// TextRecognizer for their text and burns text edits into copies of them.
package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/ocr-overlay/pkg/client"
	"github.com/menta2k/ocr-overlay/pkg/processing"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// ErrArtifactNotFound is returned when a render names an unknown artifact
var ErrArtifactNotFound = errors.New("image not found")

var _ client.Backend = (*Compositor)(nil)

type artifact struct {
	id       string
	filename string
	img      image.Image
	result   types.ExtractionResult
}

// Compositor implements client.Extractor and client.Renderer in memory
type Compositor struct {
	recognizer client.TextRecognizer
	font       *opentype.Font
	format     string
	quality    int
	logger     *log.Logger

	mu        sync.RWMutex
	artifacts map[string]*artifact
	faces     map[int]font.Face

	// font faces are not safe for concurrent drawing
	drawMu sync.Mutex
}

// Option configures a Compositor
type Option func(*Compositor) error

// WithOutputFormat sets the encoding of rendered images (png, jpg or webp)
func WithOutputFormat(format string, quality int) Option {
	return func(c *Compositor) error {
		c.format = format
		c.quality = quality
		return nil
	}
}

// WithFontFile draws text with the TrueType/OpenType font at path instead
// of Go Regular
func WithFontFile(path string) Option {
	return func(c *Compositor) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read font: %w", err)
		}
		f, err := opentype.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to parse font: %w", err)
		}
		c.font = f
		return nil
	}
}

// WithLogger sets where skipped edits are reported
func WithLogger(logger *log.Logger) Option {
	return func(c *Compositor) error {
		c.logger = logger
		return nil
	}
}

// New creates a Compositor. recognizer may be nil, in which case uploads get
// empty text with zero confidence.
func New(recognizer client.TextRecognizer, opts ...Option) (*Compositor, error) {
	c := &Compositor{
		recognizer: recognizer,
		format:     "png",
		quality:    90,
		logger:     log.New(io.Discard, "", 0),
		artifacts:  map[string]*artifact{},
		faces:      map[int]font.Face{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.font == nil {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return nil, fmt.Errorf("failed to parse default font: %w", err)
		}
		c.font = f
	}
	return c, nil
}

// Extract stores the image under a new id and recognizes its text.
// Recognition failures are logged and yield an empty result, like the
// server does.
func (c *Compositor) Extract(ctx context.Context, filename string, data []byte) (*types.ExtractionResult, error) {
	if _, err := processing.DetectMediaType(data); err != nil {
		return nil, err
	}
	img, err := processing.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", types.ErrInput, err)
	}

	var rec types.Recognition
	if c.recognizer != nil {
		rec, err = c.recognizer.Recognize(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Printf("text extraction failed for %s: %v", filename, err)
			rec = types.Recognition{}
		}
	}

	result := types.ExtractionResult{
		ArtifactID:        uuid.NewString(),
		Filename:          filename,
		ExtractedText:     rec.Text,
		ConfidencePercent: rec.Confidence,
		Timestamp:         time.Now().UTC(),
	}

	c.mu.Lock()
	c.artifacts[result.ArtifactID] = &artifact{
		id:       result.ArtifactID,
		filename: filename,
		img:      img,
		result:   result,
	}
	c.mu.Unlock()

	return &result, nil
}

// Render draws every edit in order onto a copy of the artifact and returns
// the encoded image. Edits that cannot be drawn are logged and skipped.
func (c *Compositor) Render(ctx context.Context, req types.RenderRequest) (*types.RenderedImage, error) {
	c.mu.RLock()
	a, ok := c.artifacts[req.FileID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, req.FileID)
	}

	canvas := imaging.Clone(a.img)
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	for i, edit := range req.Edits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.drawEdit(canvas, edit); err != nil {
			c.logger.Printf("failed to add text %d: %v", i, err)
		}
	}

	var buf bytes.Buffer
	if err := processing.Encode(&buf, canvas, c.format, c.quality, false); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &types.RenderedImage{
		Body:        io.NopCloser(&buf),
		ContentType: processing.ContentType(c.format),
		Filename:    "edited_" + a.filename,
	}, nil
}

// Image returns the stored original of an artifact
func (c *Compositor) Image(id string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.artifacts[id]
	if !ok {
		return nil, false
	}
	return a.img, true
}

// Results returns the stored extraction results
func (c *Compositor) Results() []types.ExtractionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ExtractionResult, 0, len(c.artifacts))
	for _, a := range c.artifacts {
		out = append(out, a.result)
	}
	return out
}

// drawEdit places the text with its top-left corner at (X, Y)
func (c *Compositor) drawEdit(dst *image.NRGBA, edit types.TextEdit) error {
	r, g, b, err := types.ParseHexColor(edit.FontColor)
	if err != nil {
		return err
	}
	size := edit.FontSize
	if size <= 0 {
		size = types.DefaultFontSize
	}
	face, err := c.face(size)
	if err != nil {
		return err
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: r, G: g, B: b, A: 255}),
		Face: face,
		Dot:  fixed.P(edit.X, edit.Y).Add(fixed.Point26_6{Y: face.Metrics().Ascent}),
	}
	d.DrawString(edit.Text)
	return nil
}

func (c *Compositor) face(size int) (font.Face, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	c.faces[size] = f
	return f, nil
}
