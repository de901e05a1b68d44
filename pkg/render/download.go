package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/menta2k/ocr-overlay/internal/utils"
)

// DownloadPrefix is put in front of the original filename of a rendered image
const DownloadPrefix = "edited_"

const fallbackName = "image.png"

// reservedNameChars are path separators or characters that some
// filesystems refuse in file names
const reservedNameChars = `/\:*?"<>|`

// DownloadName returns the file name a rendered image is saved under
func DownloadName(original string) string {
	base := cleanName(filepath.Base(filepath.ToSlash(original)))
	if base == "" {
		base = fallbackName
	}
	return DownloadPrefix + base
}

// cleanName NFC-normalizes name, replaces reserved and control characters
// with underscores and trims surrounding dots and spaces
func cleanName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(reservedNameChars, r) {
			return '_'
		}
		return r
	}, norm.NFC.String(name))
	return strings.Trim(name, " .")
}

// Saver stores a downloaded payload under name and returns where it went
type Saver interface {
	Save(name string, r io.Reader) (string, error)
}

// FileSaver writes downloads into a directory
type FileSaver struct {
	Dir string
}

// NewFileSaver creates a FileSaver for dir
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir}
}

// Save streams r into a temporary file next to the target and renames it
// into place once complete. On failure the temporary file is removed.
func (s *FileSaver) Save(name string, r io.Reader) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return target, nil
}
