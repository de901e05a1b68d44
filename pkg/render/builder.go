// Package render turns an editing session into a render request, sends it
// to the rendering collaborator and saves the returned image.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/menta2k/ocr-overlay/pkg/client"
	"github.com/menta2k/ocr-overlay/pkg/session"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

var (
	// ErrNoArtifact is returned when no extraction result is loaded
	ErrNoArtifact = fmt.Errorf("%w: no artifact loaded", types.ErrValidation)
	// ErrNoAnnotations is returned when there is nothing to render
	ErrNoAnnotations = fmt.Errorf("%w: no annotations to render", types.ErrValidation)
	// ErrRenderInFlight is returned when a render is already outstanding
	ErrRenderInFlight = fmt.Errorf("%w: a render is already in progress", types.ErrValidation)
)

// RenderFailedError wraps a failed call to the rendering collaborator.
// It matches types.ErrNetwork as well as the underlying cause.
type RenderFailedError struct {
	Cause error
}

func (e *RenderFailedError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Cause)
}

func (e *RenderFailedError) Unwrap() []error {
	return []error{types.ErrNetwork, e.Cause}
}

// ArtifactSource supplies the artifact id of the session
type ArtifactSource interface {
	ArtifactID() (string, bool)
}

// AnnotationSource supplies the annotations of the session in order
type AnnotationSource interface {
	Annotations() []types.Annotation
}

// BuildRequest composes the render request. The edits keep the stored
// order since later annotations are drawn over earlier ones.
func BuildRequest(artifact ArtifactSource, anns AnnotationSource) (types.RenderRequest, error) {
	id, ok := artifact.ArtifactID()
	if !ok {
		return types.RenderRequest{}, ErrNoArtifact
	}

	list := anns.Annotations()
	if len(list) == 0 {
		return types.RenderRequest{}, ErrNoAnnotations
	}

	edits := make([]types.TextEdit, len(list))
	for i, a := range list {
		edits[i] = a.ToEdit()
	}
	return types.RenderRequest{FileID: id, Edits: edits}, nil
}

// Builder sends render requests and saves the results. At most one render
// runs at a time.
type Builder struct {
	renderer client.Renderer
	saver    Saver

	mu       sync.Mutex
	inFlight bool
}

// NewBuilder creates a Builder that renders through renderer and stores
// downloads with saver
func NewBuilder(renderer client.Renderer, saver Saver) *Builder {
	return &Builder{renderer: renderer, saver: saver}
}

// Render builds a request from sess, sends it and saves the reply. It
// returns the path of the saved download.
//
// Collaborator failures come back as *RenderFailedError and leave the
// session untouched so the call can be retried. If a new file is selected
// or the annotations change while the render is outstanding, the reply is
// dropped with types.ErrStaleResult.
func (b *Builder) Render(ctx context.Context, sess *session.Session) (string, error) {
	tok := sess.Current()
	gen := sess.Store().Generation()
	result, _ := sess.Result()

	req, err := BuildRequest(sess, sess)
	if err != nil {
		return "", err
	}

	if !b.acquire() {
		return "", ErrRenderInFlight
	}
	defer b.release()

	img, err := b.renderer.Render(ctx, req)
	if err != nil {
		return "", &RenderFailedError{Cause: err}
	}
	if img == nil || img.Body == nil {
		return "", &RenderFailedError{Cause: fmt.Errorf("empty render reply")}
	}
	defer img.Body.Close()

	if img.ContentType != "" && !strings.HasPrefix(img.ContentType, "image/") {
		return "", &RenderFailedError{Cause: fmt.Errorf("unexpected content type %q", img.ContentType)}
	}

	if !sess.IsCurrent(tok) || sess.Store().Generation() != gen {
		return "", types.ErrStaleResult
	}

	name := result.Filename
	if name == "" {
		name = strings.TrimPrefix(img.Filename, DownloadPrefix)
	}
	return b.HandleRenderResponse(img.Body, name)
}

// HandleRenderResponse saves payload under the download name derived from
// originalFilename. The payload is streamed, never held in memory whole.
func (b *Builder) HandleRenderResponse(payload io.Reader, originalFilename string) (string, error) {
	path, err := b.saver.Save(DownloadName(originalFilename), payload)
	if err != nil {
		return "", fmt.Errorf("failed to save download: %w", err)
	}
	return path, nil
}

// InFlight reports whether a render is outstanding
func (b *Builder) InFlight() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

func (b *Builder) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight {
		return false
	}
	b.inFlight = true
	return true
}

func (b *Builder) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight = false
}
