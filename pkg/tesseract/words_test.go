package tesseract

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

func TestCollect(t *testing.T) {
	words := []Word{
		{Text: "Hello", Confidence: 90},
		{Text: "~~", Confidence: 12},
		{Text: "world", Confidence: 80},
		{Text: "  ", Confidence: 95},
		{Text: "edge", Confidence: 30},
	}

	got := Collect(words, DefaultMinConfidence)
	if got.Text != "Hello world" {
		t.Errorf("Expected %q, got %q", "Hello world", got.Text)
	}
	if got.Confidence != 85 {
		t.Errorf("Expected confidence 85, got %f", got.Confidence)
	}
}

func TestCollectNothingConfident(t *testing.T) {
	got := Collect([]Word{{Text: "noise", Confidence: 10}}, DefaultMinConfidence)
	if got != (types.Recognition{}) {
		t.Errorf("Expected empty recognition, got %+v", got)
	}
	if got := Collect(nil, DefaultMinConfidence); got != (types.Recognition{}) {
		t.Errorf("Expected empty recognition, got %+v", got)
	}
}

func TestPreprocess(t *testing.T) {
	// dark text block on a light background with some noise in between
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(220 + (x+y)%20)
			if x >= 10 && x < 30 && y >= 5 && y < 15 {
				v = uint8(20 + (x*y)%25)
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	data, err := Preprocess(buf.Bytes())
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	out, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Preprocess output is not PNG: %v", err)
	}
	if out.Bounds() != img.Bounds() {
		t.Errorf("Expected bounds %v, got %v", img.Bounds(), out.Bounds())
	}

	for _, p := range []image.Point{{0, 0}, {39, 19}, {5, 10}} {
		if v := color.GrayModel.Convert(out.At(p.X, p.Y)).(color.Gray).Y; v != 255 {
			t.Errorf("Expected white background at %v, got %d", p, v)
		}
	}
	for _, p := range []image.Point{{10, 5}, {20, 10}, {29, 14}} {
		if v := color.GrayModel.Convert(out.At(p.X, p.Y)).(color.Gray).Y; v != 0 {
			t.Errorf("Expected black text at %v, got %d", p, v)
		}
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	if _, err := Preprocess([]byte("not an image")); !errors.Is(err, types.ErrInput) {
		t.Errorf("Expected ErrInput, got %v", err)
	}
}
