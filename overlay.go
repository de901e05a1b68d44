// Package ocroverlay lets a user annotate an image with text and download a
// re-rendered copy with the text burned in.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		ocroverlay "github.com/menta2k/ocr-overlay"
//		"github.com/menta2k/ocr-overlay/pkg/httpapi"
//	)
//
//	func main() {
//		api, err := httpapi.NewClient("http://localhost:8001/api", 0)
//		if err != nil {
//			log.Fatal(err)
//		}
//		editor := ocroverlay.New(api, api)
//
//		// Upload the image and wait for its extracted text
//		result, err := editor.Load(context.Background(), "receipt.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("%s (%d%%)\n", result.ExtractedText, result.RoundedConfidence())
//
//		// The preview is shown 300 pixels wide; clicks arrive in preview space
//		editor.SetDisplaySize(300, 400)
//		editor.Store().SetEditMode(true)
//		editor.Store().SetPendingText("PAID")
//		if _, err := editor.Click(50, 50); err != nil {
//			log.Fatal(err)
//		}
//
//		path, err := editor.Render(context.Background())
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println("saved", path)
//	}
//
// The package consists of four core components:
//
// 1. Coords (pkg/coords): maps preview clicks to original pixels
// 2. Annotation (pkg/annotation): the ordered annotation list and edit mode
// 3. Session (pkg/session): the active artifact and its upload token
// 4. Render (pkg/render): render request building and download saving
//
// Extraction and rendering are delegated to the collaborators in pkg/client,
// implemented by pkg/httpapi (the OCR converter API) and pkg/compositor (in
// process).
package ocroverlay

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/menta2k/ocr-overlay/pkg/annotation"
	"github.com/menta2k/ocr-overlay/pkg/client"
	"github.com/menta2k/ocr-overlay/pkg/coords"
	"github.com/menta2k/ocr-overlay/pkg/processing"
	"github.com/menta2k/ocr-overlay/pkg/render"
	"github.com/menta2k/ocr-overlay/pkg/session"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// Version of the ocr-overlay library
const Version = "1.0.0"

// loadedImage is the file behind the current upload token
type loadedImage struct {
	token    session.Token
	filename string
	data     []byte
	natural  coords.Size
}

// Editor drives one editing session: it loads images, maps preview clicks
// into annotations and renders the result
type Editor struct {
	extractor client.Extractor
	processor *processing.Processor
	session   *session.Session
	builder   *render.Builder
	logger    *log.Logger

	mu        sync.Mutex
	image     *loadedImage
	displayed coords.Size
}

type settings struct {
	storeConfig annotation.Config
	saver       render.Saver
	logger      *log.Logger
}

// Option configures an Editor
type Option func(*settings)

// WithLogger sets the logger for session events. The default discards.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithStoreConfig sets the annotation defaults and style policy
func WithStoreConfig(config annotation.Config) Option {
	return func(s *settings) {
		s.storeConfig = config
	}
}

// WithSaver sets where rendered downloads go. The default saves into the
// working directory.
func WithSaver(saver render.Saver) Option {
	return func(s *settings) {
		s.saver = saver
	}
}

// WithOutputDir saves rendered downloads into dir
func WithOutputDir(dir string) Option {
	return WithSaver(render.NewFileSaver(dir))
}

// New creates an Editor that extracts through extractor and renders through
// renderer
func New(extractor client.Extractor, renderer client.Renderer, opts ...Option) *Editor {
	s := settings{
		storeConfig: annotation.DefaultConfig(),
		logger:      log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.saver == nil {
		s.saver = render.NewFileSaver(".")
	}

	return &Editor{
		extractor: extractor,
		processor: processing.NewProcessor(),
		session:   session.New(annotation.NewWithConfig(s.storeConfig)),
		builder:   render.NewBuilder(renderer, s.saver),
		logger:    s.logger,
	}
}

// Store returns the annotation store of the session
func (e *Editor) Store() *annotation.Store {
	return e.session.Store()
}

// Session returns the editing session
func (e *Editor) Session() *session.Session {
	return e.session
}

// Load reads an image from a file path or URL, uploads it and installs the
// extraction result
func (e *Editor) Load(ctx context.Context, source string) (*types.ExtractionResult, error) {
	src, err := e.processor.LoadSource(source)
	if err != nil {
		return nil, err
	}
	return e.LoadData(ctx, src.Filename, src.Data)
}

// LoadData uploads an in-memory image and installs the extraction result.
// Input errors are returned before anything is sent.
func (e *Editor) LoadData(ctx context.Context, filename string, data []byte) (*types.ExtractionResult, error) {
	tok, err := e.begin(filename, data)
	if err != nil {
		return nil, err
	}
	return e.extract(ctx, tok, filename, data)
}

// ExtractOutcome is delivered by ExtractAsync
type ExtractOutcome struct {
	Result *types.ExtractionResult
	Err    error
}

// ExtractAsync is LoadData on a goroutine. The outcome is delivered on the
// returned channel, which is then closed. If another image is loaded before
// the extraction completes the outcome carries types.ErrStaleResult and the
// session is left to the newer image.
func (e *Editor) ExtractAsync(ctx context.Context, filename string, data []byte) <-chan ExtractOutcome {
	out := make(chan ExtractOutcome, 1)

	tok, err := e.begin(filename, data)
	if err != nil {
		out <- ExtractOutcome{Err: err}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		res, err := e.extract(ctx, tok, filename, data)
		out <- ExtractOutcome{Result: res, Err: err}
	}()
	return out
}

// begin validates the file and makes it the current upload
func (e *Editor) begin(filename string, data []byte) (session.Token, error) {
	if _, err := processing.DetectMediaType(data); err != nil {
		return 0, err
	}
	w, h, err := processing.Dimensions(data)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read image size: %v", types.ErrInput, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	tok := e.session.BeginUpload()
	natural := coords.Size{Width: float64(w), Height: float64(h)}
	e.image = &loadedImage{
		token:    tok,
		filename: filename,
		data:     data,
		natural:  natural,
	}
	// until a preview is shown, clicks are taken in original pixels
	e.displayed = natural
	e.logger.Printf("loaded %s (%dx%d), upload %d", filename, w, h, tok)
	return tok, nil
}

func (e *Editor) extract(ctx context.Context, tok session.Token, filename string, data []byte) (*types.ExtractionResult, error) {
	res, err := e.extractor.Extract(ctx, filename, data)
	if err != nil {
		if !e.session.IsCurrent(tok) {
			e.logger.Printf("dropping failed extraction of superseded upload %d: %v", tok, err)
			return nil, types.ErrStaleResult
		}
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if res.Filename == "" {
		res.Filename = filename
	}

	if err := e.session.ApplyResult(tok, *res); err != nil {
		e.logger.Printf("dropping extraction result of superseded upload %d", tok)
		return nil, err
	}
	e.logger.Printf("extracted %d characters from %s (confidence %d%%)", len(res.ExtractedText), filename, res.RoundedConfidence())
	return res, nil
}

// Result returns the current extraction result
func (e *Editor) Result() (types.ExtractionResult, bool) {
	return e.session.Result()
}

// Filename returns the name of the loaded image
func (e *Editor) Filename() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.image == nil {
		return ""
	}
	return e.image.filename
}

// NaturalSize returns the pixel size of the loaded image
func (e *Editor) NaturalSize() coords.Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.image == nil {
		return coords.Size{}
	}
	return e.image.natural
}

// DisplaySize returns the size the preview is shown at
func (e *Editor) DisplaySize() coords.Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayed
}

// SetDisplaySize records the on-screen size of the preview
func (e *Editor) SetDisplaySize(width, height float64) error {
	size := coords.Size{Width: width, Height: height}
	if !size.Valid() {
		return coords.ErrInvalidDimensions
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.displayed = size
	return nil
}

// Preview scales the loaded image to fit maxWidth x maxHeight (0 means
// unbounded) and records the preview as the displayed size
func (e *Editor) Preview(maxWidth, maxHeight int) (processing.Preview, error) {
	e.mu.Lock()
	img := e.image
	e.mu.Unlock()
	if img == nil {
		return processing.Preview{}, fmt.Errorf("%w: no image loaded", types.ErrInput)
	}

	decoded, err := processing.Decode(img.data)
	if err != nil {
		return processing.Preview{}, fmt.Errorf("%w: failed to decode image: %v", types.ErrInput, err)
	}
	p := processing.MakePreview(decoded, maxWidth, maxHeight)

	e.mu.Lock()
	if e.image == img {
		e.displayed = coords.Size{Width: float64(p.Width), Height: float64(p.Height)}
	}
	e.mu.Unlock()
	return p, nil
}

// Click maps a click on the preview to original pixels and places the
// pending annotation there
func (e *Editor) Click(x, y float64) (types.Annotation, error) {
	e.mu.Lock()
	displayed := e.displayed
	var natural coords.Size
	if e.image != nil {
		natural = e.image.natural
	}
	e.mu.Unlock()

	ox, oy, err := coords.MapClickToOriginal(coords.Point{X: x, Y: y}, displayed, natural)
	if err != nil {
		return types.Annotation{}, err
	}
	return e.Place(ox, oy)
}

// Place puts the pending annotation at original pixel coordinates
func (e *Editor) Place(x, y int) (types.Annotation, error) {
	a, err := e.session.Store().AddAnnotation(x, y)
	if err != nil {
		return types.Annotation{}, err
	}
	e.logger.Printf("added %q at (%d,%d)", a.Text, a.X, a.Y)
	return a, nil
}

// Annotations returns the pending annotations in order
func (e *Editor) Annotations() []types.Annotation {
	return e.session.Annotations()
}

// ClearAnnotations drops every pending annotation
func (e *Editor) ClearAnnotations() {
	e.session.Store().ClearAll()
}

// Render sends the annotations to the renderer and saves the download. It
// returns the path of the saved file.
func (e *Editor) Render(ctx context.Context) (string, error) {
	path, err := e.builder.Render(ctx, e.session)
	if err != nil {
		e.logger.Printf("render failed: %v", err)
		return "", err
	}
	e.logger.Printf("saved %s", path)
	return path, nil
}

// GetVersion returns the version of the library
func GetVersion() string {
	return Version
}
