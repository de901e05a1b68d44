// Package shell reads editing commands line by line and applies them to an
// Editor. It is the interactive front end of the CLI and can also replay a
// script of commands.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"

	ocroverlay "github.com/menta2k/ocr-overlay"
	"github.com/menta2k/ocr-overlay/internal/utils"
	"github.com/menta2k/ocr-overlay/pkg/processing"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// ErrQuit is returned by Exec for the quit command
var ErrQuit = errors.New("quit")

// HistorySource lists past extraction results
type HistorySource interface {
	ListResults(ctx context.Context) ([]types.ExtractionResult, error)
}

// PreviewOptions controls the preview images written by the preview command
type PreviewOptions struct {
	MaxWidth  int
	MaxHeight int
	Format    string
	Quality   int
}

// Shell interprets commands against an Editor
type Shell struct {
	editor  *ocroverlay.Editor
	out     io.Writer
	history HistorySource
	preview PreviewOptions
	prompt  bool
}

// New creates a Shell that writes its replies to out
func New(editor *ocroverlay.Editor, out io.Writer) *Shell {
	return &Shell{
		editor:  editor,
		out:     out,
		preview: PreviewOptions{MaxWidth: 800, Format: "png", Quality: 85},
	}
}

// SetHistory enables the history command
func (s *Shell) SetHistory(h HistorySource) {
	s.history = h
}

// SetPreviewOptions sets how preview images are scaled and encoded
func (s *Shell) SetPreviewOptions(opts PreviewOptions) {
	s.preview = opts
}

// Run reads commands from in until EOF or quit. A prompt is shown only when
// in is a terminal. Command errors are reported and the loop continues.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	if f, ok := in.(*os.File); ok {
		s.prompt = term.IsTerminal(int(f.Fd()))
	}

	scanner := bufio.NewScanner(in)
	for {
		if s.prompt {
			fmt.Fprint(s.out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.Exec(ctx, scanner.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// Exec runs one command line
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "load", "open":
		return s.load(ctx, args)
	case "edit":
		return s.edit(args)
	case "text":
		// keep the user's spacing after the command word
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		s.editor.Store().SetPendingText(text)
		return nil
	case "size":
		n, err := intArg(args, 0, "size")
		if err != nil {
			return err
		}
		return s.editor.Store().SetPendingFontSize(n)
	case "color":
		if len(args) != 1 {
			return fmt.Errorf("usage: color #RRGGBB")
		}
		return s.editor.Store().SetPendingFontColor(args[0])
	case "click":
		return s.place(args, true)
	case "place":
		return s.place(args, false)
	case "display":
		w, err := floatArg(args, 0, "width")
		if err != nil {
			return err
		}
		h, err := floatArg(args, 1, "height")
		if err != nil {
			return err
		}
		return s.editor.SetDisplaySize(w, h)
	case "preview":
		return s.writePreview(args)
	case "list":
		s.list()
		return nil
	case "clear":
		s.editor.ClearAnnotations()
		fmt.Fprintln(s.out, "annotations cleared")
		return nil
	case "render":
		path, err := s.editor.Render(ctx)
		if err != nil {
			return err
		}
		if fi, err := os.Stat(path); err == nil {
			fmt.Fprintf(s.out, "saved %s (%s)\n", path, utils.FormatFileSize(fi.Size()))
		} else {
			fmt.Fprintf(s.out, "saved %s\n", path)
		}
		return nil
	case "info":
		s.info()
		return nil
	case "history":
		return s.showHistory(ctx)
	case "help":
		fmt.Fprint(s.out, helpText)
		return nil
	case "quit", "exit":
		return ErrQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

const helpText = `commands:
  load <path|url>       upload an image and extract its text
  edit on|off           arm or disarm annotation placement
  text <words>          text of the next annotation
  size <12-72>          font size of the next annotation
  color #RRGGBB         font color of the next annotation
  display <w> <h>       size the preview is shown at
  preview [file]        write a scaled preview and use its size for clicks
  click <x> <y>         place the annotation at preview coordinates
  place <x> <y>         place the annotation at original pixel coordinates
  list                  show pending annotations
  clear                 remove all pending annotations
  render                render the annotations and save the download
  info                  show the loaded image and extracted text
  history               list results stored by the server
  quit                  leave
`

func (s *Shell) load(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: load <path|url>", types.ErrInput)
	}
	res, err := s.editor.Load(ctx, args[0])
	if errors.Is(err, types.ErrStaleResult) {
		return nil
	}
	if err != nil {
		return err
	}
	n := s.editor.NaturalSize()
	fmt.Fprintf(s.out, "loaded %s (%.0fx%.0f), confidence %d%%\n", res.Filename, n.Width, n.Height, res.RoundedConfidence())
	if res.ExtractedText != "" {
		fmt.Fprintln(s.out, res.ExtractedText)
	}
	return nil
}

func (s *Shell) edit(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: edit on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		s.editor.Store().SetEditMode(true)
	case "off":
		s.editor.Store().SetEditMode(false)
	default:
		return fmt.Errorf("usage: edit on|off")
	}
	return nil
}

func (s *Shell) place(args []string, preview bool) error {
	var a types.Annotation
	if preview {
		x, err := floatArg(args, 0, "x")
		if err != nil {
			return err
		}
		y, err := floatArg(args, 1, "y")
		if err != nil {
			return err
		}
		a, err = s.editor.Click(x, y)
		if err != nil {
			return err
		}
	} else {
		x, err := intArg(args, 0, "x")
		if err != nil {
			return err
		}
		y, err := intArg(args, 1, "y")
		if err != nil {
			return err
		}
		a, err = s.editor.Place(x, y)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(s.out, "added %q at (%d,%d)\n", a.Text, a.X, a.Y)
	return nil
}

func (s *Shell) writePreview(args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: preview [file]")
	}

	format := s.preview.Format
	var path string
	if len(args) == 1 {
		path = args[0]
		if !utils.IsImageFile(path) {
			return fmt.Errorf("%w: %s does not have an image extension", types.ErrValidation, path)
		}
		format = utils.ImageFormat(path)
	} else {
		name := s.editor.Filename()
		if name == "" {
			return fmt.Errorf("%w: no image loaded", types.ErrInput)
		}
		path = utils.SiblingPath(filepath.Base(name), "_preview", format)
	}

	p, err := s.editor.Preview(s.preview.MaxWidth, s.preview.MaxHeight)
	if err != nil {
		return err
	}
	if err := processing.SaveImage(p.Image, path, format, s.preview.Quality, false); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "preview %s (%dx%d of %dx%d)\n", path, p.Width, p.Height, p.NaturalWidth, p.NaturalHeight)
	return nil
}

func (s *Shell) list() {
	anns := s.editor.Annotations()
	if len(anns) == 0 {
		fmt.Fprintln(s.out, "no annotations")
		return
	}
	for i, a := range anns {
		fmt.Fprintf(s.out, "%d. %q at (%d,%d) size %d color %s\n", i+1, a.Text, a.X, a.Y, a.FontSize, a.FontColor)
	}
}

func (s *Shell) info() {
	res, ok := s.editor.Result()
	if !ok {
		fmt.Fprintln(s.out, "no image loaded")
		return
	}
	n := s.editor.NaturalSize()
	d := s.editor.DisplaySize()
	p := s.editor.Store().Pending()
	mode := "off"
	if s.editor.Store().EditMode() {
		mode = "on"
	}
	fmt.Fprintf(s.out, "file: %s (id %s)\n", res.Filename, res.ArtifactID)
	fmt.Fprintf(s.out, "size: %.0fx%.0f shown at %.0fx%.0f\n", n.Width, n.Height, d.Width, d.Height)
	fmt.Fprintf(s.out, "confidence: %d%%\n", res.RoundedConfidence())
	fmt.Fprintf(s.out, "edit mode: %s, next: %q size %d color %s\n", mode, p.Text, p.FontSize, p.FontColor)
	fmt.Fprintf(s.out, "text:\n%s\n", res.ExtractedText)
}

func (s *Shell) showHistory(ctx context.Context) error {
	if s.history == nil {
		return fmt.Errorf("history is not available with this backend")
	}
	results, err := s.history.ListResults(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(s.out, "no results")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(s.out, "%s  %s  %d%%\n", r.ArtifactID, r.Filename, r.RoundedConfidence())
	}
	return nil
}

func intArg(args []string, i int, name string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing %s", types.ErrValidation, name)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", types.ErrValidation, name)
	}
	return n, nil
}

func floatArg(args []string, i int, name string) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing %s", types.ErrValidation, name)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", types.ErrValidation, name)
	}
	return v, nil
}
