package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	ocroverlay "github.com/menta2k/ocr-overlay"
	"github.com/menta2k/ocr-overlay/internal/config"
	"github.com/menta2k/ocr-overlay/internal/shell"
	"github.com/menta2k/ocr-overlay/pkg/annotation"
	"github.com/menta2k/ocr-overlay/pkg/client"
	"github.com/menta2k/ocr-overlay/pkg/compositor"
	"github.com/menta2k/ocr-overlay/pkg/gdocai"
	"github.com/menta2k/ocr-overlay/pkg/httpapi"
	"github.com/menta2k/ocr-overlay/pkg/ollama"
	"github.com/menta2k/ocr-overlay/pkg/tesseract"
)

func main() {
	var in, configPath, backend, url, engine, outDir, script string
	var previewWidth int
	var verbose, writeConfig bool

	flag.StringVar(&in, "in", "", "image path or URL to load on start")
	flag.StringVar(&configPath, "config", "", "config file (YAML or JSON, default "+config.GetConfigPath()+")")
	flag.StringVar(&backend, "backend", "", "backend: remote (OCR converter API) or local (in process)")
	flag.StringVar(&url, "url", "", "OCR converter API base URL (remote backend)")
	flag.StringVar(&engine, "engine", "", "text recognizer of the local backend: tesseract|ollama|gdocai|none")
	flag.StringVar(&outDir, "out", "", "directory for rendered downloads")
	flag.IntVar(&previewWidth, "preview-width", 0, "max width of preview images")
	flag.StringVar(&script, "script", "", "read commands from this file instead of stdin")
	flag.BoolVar(&verbose, "v", false, "log session events")
	flag.BoolVar(&writeConfig, "write-config", false, "write the effective config to -config and exit")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flags override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = backend
		case "url":
			cfg.Server.BaseURL = url
		case "engine":
			cfg.Extraction.Engine = engine
		case "out":
			cfg.Output.Dir = outDir
		case "preview-width":
			cfg.Preview.MaxWidth = previewWidth
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if writeConfig {
		path := configPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := cfg.SaveToFile(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := log.New(io.Discard, "", 0)
	if verbose {
		logger = log.Default()
	}

	extractor, renderer, history, closeBackend, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}
	defer closeBackend()

	storeConfig := annotation.DefaultConfig()
	storeConfig.DefaultFontSize = cfg.Editor.DefaultFontSize
	storeConfig.DefaultFontColor = cfg.Editor.DefaultFontColor
	if cfg.Editor.ResetStyle {
		storeConfig.StylePolicy = annotation.ResetStyle
	}

	editor := ocroverlay.New(extractor, renderer,
		ocroverlay.WithStoreConfig(storeConfig),
		ocroverlay.WithOutputDir(cfg.Output.Dir),
		ocroverlay.WithLogger(logger),
	)

	sh := shell.New(editor, os.Stdout)
	sh.SetPreviewOptions(shell.PreviewOptions{
		MaxWidth:  cfg.Preview.MaxWidth,
		MaxHeight: cfg.Preview.MaxHeight,
		Format:    cfg.Preview.Format,
		Quality:   cfg.Preview.Quality,
	})
	if history != nil {
		sh.SetHistory(history)
	}

	if in != "" {
		if err := sh.Exec(ctx, "load "+in); err != nil {
			log.Printf("load %s failed: %v", in, err)
		}
	}

	input := os.Stdin
	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		input = f
	}

	if err := sh.Run(ctx, input); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("shell: %v", err)
	}
}

// loadConfig reads path, or the default config file when it exists, or
// falls back to the built-in defaults
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if _, err := os.Stat(config.GetConfigPath()); err == nil {
		return config.LoadFromFile(config.GetConfigPath())
	}
	return config.Default(), nil
}

// buildBackend creates the extraction and render collaborators selected by
// the config
func buildBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (client.Extractor, client.Renderer, shell.HistorySource, func(), error) {
	noop := func() {}

	if cfg.Backend == config.BackendRemote {
		api, err := httpapi.NewClient(cfg.Server.BaseURL, cfg.ServerTimeout())
		if err != nil {
			return nil, nil, nil, noop, err
		}
		log.Printf("using OCR converter API at %s", cfg.Server.BaseURL)
		return api, api, api, noop, nil
	}

	recognizer, closeRecognizer, err := buildRecognizer(ctx, cfg)
	if err != nil {
		return nil, nil, nil, noop, err
	}

	opts := []compositor.Option{
		compositor.WithOutputFormat(cfg.Output.Format, cfg.Output.Quality),
		compositor.WithLogger(logger),
	}
	if cfg.Editor.FontFile != "" {
		opts = append(opts, compositor.WithFontFile(cfg.Editor.FontFile))
	}
	comp, err := compositor.New(recognizer, opts...)
	if err != nil {
		closeRecognizer()
		return nil, nil, nil, noop, err
	}
	log.Printf("using local backend with %s recognizer", cfg.Extraction.Engine)
	return comp, comp, nil, closeRecognizer, nil
}

func buildRecognizer(ctx context.Context, cfg *config.Config) (client.TextRecognizer, func(), error) {
	noop := func() {}
	ext := cfg.Extraction

	switch ext.Engine {
	case config.EngineTesseract:
		r, err := tesseract.New(tesseract.Options{
			Languages:     ext.Tesseract.Languages,
			MinConfidence: ext.Tesseract.MinConfidence,
			Preprocess:    ext.Tesseract.Preprocess,
		})
		if errors.Is(err, tesseract.ErrNotEnabled) {
			log.Printf("%v; extracted text will be empty", err)
			return nil, noop, nil
		}
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Tesseract recognizer: %w", err)
		}
		return r, func() { r.Close() }, nil

	case config.EngineOllama:
		r, err := ollama.NewClient(ext.Ollama.URL, ext.Ollama.Model)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		r.SetPrompt(ext.Ollama.Prompt)
		r.SetTimeout(time.Duration(ext.Ollama.TimeoutSeconds) * time.Second)
		return r, noop, nil

	case config.EngineGDocAI:
		r, err := gdocai.New(ctx, ext.GDocAI)
		if err != nil {
			return nil, noop, err
		}
		return r, func() { r.Close() }, nil

	default:
		return nil, noop, nil
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-in image|URL] [-backend remote|local] [-url api_url] [-engine tesseract|ollama|gdocai|none] [-out dir] [-script file]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}
