// Package annotation keeps the ordered list of pending text annotations
// together with the edit-mode flag and the attributes of the next one.
package annotation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

var (
	// ErrEditModeDisabled is returned by AddAnnotation while edit mode is off
	ErrEditModeDisabled = fmt.Errorf("%w: edit mode is disabled", types.ErrValidation)
	// ErrEmptyText is returned by AddAnnotation when the pending text is blank
	ErrEmptyText = fmt.Errorf("%w: pending text is empty", types.ErrValidation)
)

// StylePolicy decides what Reset does with the pending font size and color
type StylePolicy int

const (
	// KeepStyle carries font size and color over to the next image
	KeepStyle StylePolicy = iota
	// ResetStyle restores the default font size and color
	ResetStyle
)

// Config holds the defaults of a Store
type Config struct {
	DefaultFontSize  int
	DefaultFontColor string
	StylePolicy      StylePolicy
}

// DefaultConfig returns the defaults used by the rendering server
func DefaultConfig() Config {
	return Config{
		DefaultFontSize:  types.DefaultFontSize,
		DefaultFontColor: types.DefaultFontColor,
		StylePolicy:      KeepStyle,
	}
}

// Pending is a snapshot of the attributes of the next annotation
type Pending struct {
	Text      string
	FontSize  int
	FontColor string
}

// Store owns the annotation sequence. It is mutated only through its methods
// and is safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	config      Config
	annotations []types.Annotation
	editMode    bool
	pending     Pending
	// generation changes whenever the annotation list does
	generation uint64
}

// New creates a Store with default configuration
func New() *Store {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Store with custom defaults. Invalid defaults fall
// back to the server defaults.
func NewWithConfig(config Config) *Store {
	if types.ValidateFontSize(config.DefaultFontSize) != nil {
		config.DefaultFontSize = types.DefaultFontSize
	}
	if types.ValidateFontColor(config.DefaultFontColor) != nil {
		config.DefaultFontColor = types.DefaultFontColor
	}
	return &Store{
		config: config,
		pending: Pending{
			FontSize:  config.DefaultFontSize,
			FontColor: config.DefaultFontColor,
		},
	}
}

// SetEditMode toggles edit mode. Pending fields and annotations are kept.
func (s *Store) SetEditMode(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editMode = enabled
}

// EditMode reports whether clicks currently create annotations
func (s *Store) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// SetPendingText sets the text of the next annotation
func (s *Store) SetPendingText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Text = text
}

// SetPendingFontSize sets the font size of the next annotation
func (s *Store) SetPendingFontSize(size int) error {
	if err := types.ValidateFontSize(size); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.FontSize = size
	return nil
}

// SetPendingFontColor sets the #RRGGBB font color of the next annotation
func (s *Store) SetPendingFontColor(color string) error {
	if err := types.ValidateFontColor(color); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.FontColor = color
	return nil
}

// Pending returns the attributes the next annotation will get
func (s *Store) Pending() Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// AddAnnotation appends an annotation at original-image position (x, y)
// built from the pending attributes. The pending text is cleared afterwards;
// font size and color stay so several labels can share a style.
//
// With edit mode off or blank pending text nothing changes and
// ErrEditModeDisabled or ErrEmptyText is returned.
func (s *Store) AddAnnotation(x, y int) (types.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.editMode {
		return types.Annotation{}, ErrEditModeDisabled
	}
	if strings.TrimSpace(s.pending.Text) == "" {
		return types.Annotation{}, ErrEmptyText
	}

	ann, err := types.NewAnnotation(s.pending.Text, x, y, s.pending.FontSize, s.pending.FontColor)
	if err != nil {
		return types.Annotation{}, err
	}

	s.annotations = append(s.annotations, ann)
	s.generation++
	s.pending.Text = ""
	return ann, nil
}

// Annotations returns a copy of the sequence in insertion order
func (s *Store) Annotations() []types.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Annotation, len(s.annotations))
	copy(out, s.annotations)
	return out
}

// Len returns the number of annotations
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.annotations)
}

// Generation returns a counter that changes on every add, clear or reset.
// Callers compare it across a deferred operation to detect edits made in
// the meantime.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ClearAll removes every annotation
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations = nil
	s.generation++
}

// Reset prepares the store for a newly loaded image: annotations are
// dropped, edit mode is switched off and the pending text is cleared.
// Font size and color follow the configured StylePolicy.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.annotations = nil
	s.generation++
	s.editMode = false
	s.pending.Text = ""
	if s.config.StylePolicy == ResetStyle {
		s.pending.FontSize = s.config.DefaultFontSize
		s.pending.FontColor = s.config.DefaultFontColor
	}
}
