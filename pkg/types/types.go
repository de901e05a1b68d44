package types

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Font size bounds accepted for an annotation
const (
	MinFontSize = 12
	MaxFontSize = 72
)

// Defaults used by the rendering server when a field is omitted
const (
	DefaultFontSize  = 24
	DefaultFontColor = "#000000"
)

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Annotation is a single piece of user-added text destined to be burned
// into the rendered image. X and Y are in original-image pixel space.
type Annotation struct {
	Text      string `json:"text"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
}

// NewAnnotation validates its arguments and returns the annotation
func NewAnnotation(text string, x, y, fontSize int, fontColor string) (Annotation, error) {
	if strings.TrimSpace(text) == "" {
		return Annotation{}, fmt.Errorf("%w: annotation text is empty", ErrValidation)
	}
	if x < 0 || y < 0 {
		return Annotation{}, fmt.Errorf("%w: position (%d,%d) is negative", ErrValidation, x, y)
	}
	if err := ValidateFontSize(fontSize); err != nil {
		return Annotation{}, err
	}
	if err := ValidateFontColor(fontColor); err != nil {
		return Annotation{}, err
	}
	return Annotation{
		Text:      text,
		X:         x,
		Y:         y,
		FontSize:  fontSize,
		FontColor: fontColor,
	}, nil
}

// ValidateFontSize checks that size lies in [MinFontSize, MaxFontSize]
func ValidateFontSize(size int) error {
	if size < MinFontSize || size > MaxFontSize {
		return fmt.Errorf("%w: font size %d outside [%d,%d]", ErrValidation, size, MinFontSize, MaxFontSize)
	}
	return nil
}

// ValidateFontColor checks that color is a #RRGGBB hex string
func ValidateFontColor(color string) error {
	if !hexColorRe.MatchString(color) {
		return fmt.Errorf("%w: font color %q is not #RRGGBB", ErrValidation, color)
	}
	return nil
}

// ParseHexColor returns the red, green and blue components of a #RRGGBB string.
// The leading '#' is optional, matching what the rendering server accepts.
func ParseHexColor(s string) (r, g, b uint8, err error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: invalid hex color %q", ErrValidation, s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: invalid hex color %q", ErrValidation, s)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

// ExtractionResult is what the OCR collaborator returns for an uploaded image
type ExtractionResult struct {
	ArtifactID        string    `json:"id"`
	Filename          string    `json:"filename"`
	ExtractedText     string    `json:"extracted_text"`
	ConfidencePercent float64   `json:"confidence"`
	Timestamp         time.Time `json:"timestamp"`
}

// RoundedConfidence returns the confidence as displayed to the user
func (r ExtractionResult) RoundedConfidence() int {
	return int(math.Round(r.ConfidencePercent))
}

// Recognition is the raw output of a text recognizer
type Recognition struct {
	Text string
	// Confidence on a 0-100 scale
	Confidence float64
}

// TextEdit is one entry of the render request wire contract
type TextEdit struct {
	Text      string `json:"text"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
}

// RenderRequest is the body sent to the rendering collaborator
type RenderRequest struct {
	FileID string     `json:"file_id"`
	Edits  []TextEdit `json:"edits"`
}

// RenderedImage is the streamed reply of the rendering collaborator.
// The receiver owns Body and must close it.
type RenderedImage struct {
	Body        io.ReadCloser
	ContentType string
	// Filename suggested by the renderer, empty if none was given
	Filename string
}

// ToEdit converts an annotation to its wire form
func (a Annotation) ToEdit() TextEdit {
	return TextEdit{
		Text:      a.Text,
		X:         a.X,
		Y:         a.Y,
		FontSize:  a.FontSize,
		FontColor: a.FontColor,
	}
}
