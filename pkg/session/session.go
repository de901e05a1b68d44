// Package session holds the artifact of the active editing session and
// ties its lifetime to the annotation store.
//
// A new extraction result always resets the store in the same step, so an
// annotation list placed on one artifact can never be sent with another.
// Uploads are keyed by a monotonically increasing token; a result carrying
// an old token is rejected when it arrives (last request wins).
package session

import (
	"sync"

	"github.com/menta2k/ocr-overlay/pkg/annotation"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// Token identifies one file selection
type Token uint64

// Session is the EditSession aggregate: the current extraction result plus
// the annotation store that belongs to it.
type Session struct {
	mu     sync.Mutex
	store  *annotation.Store
	result *types.ExtractionResult
	token  Token
}

// New creates an empty session around store. A nil store gets a default one.
func New(store *annotation.Store) *Session {
	if store == nil {
		store = annotation.New()
	}
	return &Session{store: store}
}

// Store returns the annotation store owned by the session
func (s *Session) Store() *annotation.Store {
	return s.store
}

// BeginUpload marks a new file selection. The current result is dropped and
// the returned token must accompany the extraction result of this upload.
func (s *Session) BeginUpload() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token++
	s.clearLocked()
	return s.token
}

// Current returns the token of the latest file selection
func (s *Session) Current() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IsCurrent reports whether tok still belongs to the latest file selection
func (s *Session) IsCurrent(tok Token) bool {
	return s.Current() == tok
}

// ApplyResult installs r if tok is still current. Otherwise it returns
// types.ErrStaleResult and leaves the session untouched.
func (s *Session) ApplyResult(tok Token, r types.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok != s.token {
		return types.ErrStaleResult
	}
	s.setLocked(r)
	return nil
}

// SetResult replaces the current result and resets the annotation store
func (s *Session) SetResult(r types.ExtractionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(r)
}

// Clear removes the current result and resets the annotation store
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Result returns the current extraction result, if any
func (s *Session) Result() (types.ExtractionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return types.ExtractionResult{}, false
	}
	return *s.result, true
}

// ArtifactID returns the identifier the renderer uses to find the source image
func (s *Session) ArtifactID() (string, bool) {
	r, ok := s.Result()
	if !ok || r.ArtifactID == "" {
		return "", false
	}
	return r.ArtifactID, true
}

// Annotations returns the annotations of the session in insertion order
func (s *Session) Annotations() []types.Annotation {
	return s.store.Annotations()
}

func (s *Session) setLocked(r types.ExtractionResult) {
	s.result = &r
	s.store.Reset()
}

func (s *Session) clearLocked() {
	s.result = nil
	s.store.Reset()
}
