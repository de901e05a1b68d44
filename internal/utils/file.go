// Package utils holds small path and formatting helpers shared by the CLI
// and the download writer.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// imageFormats maps accepted image extensions to the format name the
// encoders in pkg/processing expect
var imageFormats = map[string]string{
	"png":  "png",
	"jpg":  "jpg",
	"jpeg": "jpg",
	"webp": "webp",
	"gif":  "gif",
	"bmp":  "bmp",
	"tif":  "tiff",
	"tiff": "tiff",
}

// EnsureDir creates dir and any missing parents
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// ImageFormat returns the encoder format for the extension of path, or ""
// when the extension is not an image type
func ImageFormat(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return imageFormats[ext]
}

// IsImageFile reports whether path has an image extension
func IsImageFile(path string) bool {
	return ImageFormat(path) != ""
}

// SiblingPath returns path with its extension replaced by ext and suffix
// appended to the base name, e.g. photo.jpg -> photo_preview.png
func SiblingPath(path, suffix, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return fmt.Sprintf("%s%s.%s", base, suffix, strings.TrimPrefix(ext, "."))
}

var sizeUnits = []string{"KB", "MB", "GB", "TB", "PB", "EB"}

// FormatFileSize renders a byte count in binary units, e.g. "2.0 KB"
func FormatFileSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	v := float64(size) / 1024
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, sizeUnits[i])
}
