package processing

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

// MaxUploadSize bounds what LoadSource reads, matching the server's form limit
const MaxUploadSize = 50 << 20

// Processor loads and inspects the images a session works on
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Source is a loaded upload candidate
type Source struct {
	Filename  string
	Data      []byte
	MediaType string
}

// LoadSource reads an image from a file path or an http(s) URL and checks
// that it really is an image. Anything else fails with types.ErrInput
// before a collaborator is contacted.
func (p *Processor) LoadSource(source string) (*Source, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: no file selected", types.ErrInput)
	}

	var (
		data []byte
		name string
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, name, err = p.loadFromURL(source)
	} else {
		data, name, err = p.loadFromFile(source)
	}
	if err != nil {
		return nil, err
	}

	mediaType, err := DetectMediaType(data)
	if err != nil {
		return nil, err
	}
	return &Source{Filename: name, Data: data, MediaType: mediaType}, nil
}

func (p *Processor) loadFromFile(source string) ([]byte, string, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrInput, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read %s: %v", types.ErrInput, source, err)
	}
	if len(data) > MaxUploadSize {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", types.ErrInput, source, MaxUploadSize)
	}
	return data, filepath.Base(source), nil
}

func (p *Processor) loadFromURL(imageURL string) ([]byte, string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid URL: %v", types.ErrInput, err)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "ocr-overlay/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to download image: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: failed to download image: HTTP %d", types.ErrNetwork, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: URL does not point to an image (Content-Type: %s)", types.ErrInput, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxUploadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read image data: %v", types.ErrNetwork, err)
	}
	if len(data) > MaxUploadSize {
		return nil, "", fmt.Errorf("%w: download exceeds %d bytes", types.ErrInput, MaxUploadSize)
	}

	name := path.Base(parsedURL.Path)
	if name == "/" || name == "." {
		name = "download"
	}
	return data, name, nil
}

// DetectMediaType sniffs data and returns its image/* media type. Non-image
// content fails with types.ErrInput.
func DetectMediaType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", types.ErrInput)
	}
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct, nil
	}
	// tiff is not known to the sniffer but has a registered decoder
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format, nil
	}
	return "", fmt.Errorf("%w: only image files are supported", types.ErrInput)
}

// Dimensions returns the natural pixel size of an encoded image without
// decoding its pixels
func Dimensions(data []byte) (int, int, error) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, nil
	}
	if w, h, _, err := webp.GetInfo(data); err == nil {
		return w, h, nil
	}
	return 0, 0, fmt.Errorf("image: unknown or unsupported format")
}

// Decode decodes an image from byte data with WebP support
func Decode(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Preview is a downscaled copy of an image as the user sees it
type Preview struct {
	Image         image.Image
	Width, Height int
	NaturalWidth  int
	NaturalHeight int
}

// MakePreview scales img to fit in maxWidth x maxHeight keeping its aspect
// ratio. Images that already fit are not enlarged. A non-positive bound
// leaves that axis unconstrained.
func MakePreview(img image.Image, maxWidth, maxHeight int) Preview {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth <= 0 {
		maxWidth = w
	}
	if maxHeight <= 0 {
		maxHeight = h
	}

	scaled := image.Image(imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos))
	sb := scaled.Bounds()
	return Preview{
		Image:         scaled,
		Width:         sb.Dx(),
		Height:        sb.Dy(),
		NaturalWidth:  w,
		NaturalHeight: h,
	}
}

// Encode writes img to w in the given format (png, jpg or webp)
func Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case "png", "":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		return enc.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// ContentType returns the media type produced by Encode for format
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// SaveImage saves an image to a file with the specified format and quality
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return Encode(f, img, format, quality, lossless)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}
