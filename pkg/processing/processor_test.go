package processing

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

// createTestImage creates a simple gradient test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.RGBA{r, g, 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetectMediaType(t *testing.T) {
	data := encodePNG(t, createTestImage(10, 10))
	mt, err := DetectMediaType(data)
	if err != nil {
		t.Fatalf("DetectMediaType failed: %v", err)
	}
	if mt != "image/png" {
		t.Errorf("Expected image/png, got %s", mt)
	}
}

func TestDetectMediaTypeRejects(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty": nil,
		"text":  []byte("hello, this is not an image"),
		"pdf":   []byte("%PDF-1.7\n"),
	} {
		if _, err := DetectMediaType(data); !errors.Is(err, types.ErrInput) {
			t.Errorf("%s: expected ErrInput, got %v", name, err)
		}
	}
}

func TestDimensions(t *testing.T) {
	data := encodePNG(t, createTestImage(120, 160))
	w, h, err := Dimensions(data)
	if err != nil {
		t.Fatalf("Dimensions failed: %v", err)
	}
	if w != 120 || h != 160 {
		t.Errorf("Expected 120x160, got %dx%d", w, h)
	}

	if _, _, err := Dimensions([]byte("junk")); err == nil {
		t.Error("Expected error for junk data")
	}
}

func TestDecode(t *testing.T) {
	img, err := Decode(encodePNG(t, createTestImage(30, 20)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 20 {
		t.Errorf("Expected 30x20, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestMakePreview(t *testing.T) {
	p := MakePreview(createTestImage(1200, 1600), 300, 0)
	if p.Width != 300 || p.Height != 400 {
		t.Errorf("Expected 300x400 preview, got %dx%d", p.Width, p.Height)
	}
	if p.NaturalWidth != 1200 || p.NaturalHeight != 1600 {
		t.Errorf("Expected natural 1200x1600, got %dx%d", p.NaturalWidth, p.NaturalHeight)
	}
}

func TestMakePreviewNoUpscale(t *testing.T) {
	p := MakePreview(createTestImage(200, 100), 800, 800)
	if p.Width != 200 || p.Height != 100 {
		t.Errorf("Expected 200x100 preview, got %dx%d", p.Width, p.Height)
	}
}

func TestEncode(t *testing.T) {
	img := createTestImage(40, 30)
	for _, format := range []string{"png", "jpg"} {
		var buf bytes.Buffer
		if err := Encode(&buf, img, format, 90, false); err != nil {
			t.Fatalf("Encode %s failed: %v", format, err)
		}
		mt, err := DetectMediaType(buf.Bytes())
		if err != nil {
			t.Fatalf("Encoded %s not detected: %v", format, err)
		}
		if mt != ContentType(format) {
			t.Errorf("Expected %s, got %s", ContentType(format), mt)
		}
	}

	if err := Encode(&bytes.Buffer{}, img, "gif", 90, false); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestLoadSourceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, encodePNG(t, createTestImage(8, 8)), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewProcessor().LoadSource(path)
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	if src.Filename != "photo.png" {
		t.Errorf("Expected photo.png, got %s", src.Filename)
	}
	if src.MediaType != "image/png" {
		t.Errorf("Expected image/png, got %s", src.MediaType)
	}
}

func TestLoadSourceRejects(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "notes.png")
	if err := os.WriteFile(textPath, []byte("just some notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor()
	for _, source := range []string{"", "   ", filepath.Join(dir, "missing.png"), textPath} {
		if _, err := p.LoadSource(source); !errors.Is(err, types.ErrInput) {
			t.Errorf("LoadSource(%q): expected ErrInput, got %v", source, err)
		}
	}
}

func TestLoadSourceURL(t *testing.T) {
	data := encodePNG(t, createTestImage(16, 16))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img/scan.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessor()
	src, err := p.LoadSource(srv.URL + "/img/scan.png")
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	if src.Filename != "scan.png" || !bytes.Equal(src.Data, data) {
		t.Errorf("Unexpected source %s (%d bytes)", src.Filename, len(src.Data))
	}

	if _, err := p.LoadSource(srv.URL + "/page.html"); !errors.Is(err, types.ErrInput) {
		t.Errorf("Expected ErrInput for html, got %v", err)
	}
	if _, err := p.LoadSource(srv.URL + "/missing.png"); !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Expected ErrNetwork for 404, got %v", err)
	}
}

func BenchmarkDimensions(b *testing.B) {
	var buf bytes.Buffer
	png.Encode(&buf, createTestImage(1920, 1080))
	data := buf.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Dimensions(data)
	}
}
