package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp", "e.tif"} {
		if !IsImageFile(name) {
			t.Errorf("%s should be an image", name)
		}
	}
	for _, name := range []string{"a.txt", "b", "c.pdf"} {
		if IsImageFile(name) {
			t.Errorf("%s should not be an image", name)
		}
	}
}

func TestImageFormat(t *testing.T) {
	tests := map[string]string{
		"a.PNG":     "png",
		"b.jpeg":    "jpg",
		"c.tif":     "tiff",
		"dir/d.gif": "gif",
		"e.txt":     "",
		"noext":     "",
	}
	for path, want := range tests {
		if got := ImageFormat(path); got != want {
			t.Errorf("ImageFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSiblingPath(t *testing.T) {
	if got := SiblingPath("out/photo.jpg", "_preview", "png"); got != "out/photo_preview.png" {
		t.Errorf("Unexpected result %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("Expected directory %s to exist", dir)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KB",
		5 << 20: "5.0 MB",
		3 << 30: "3.0 GB",
		1 << 60: "1.0 EB",
	}
	for size, want := range tests {
		if got := FormatFileSize(size); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", size, got, want)
		}
	}
}
