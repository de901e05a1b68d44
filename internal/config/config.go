package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/ocr-overlay/pkg/gdocai"
	"github.com/menta2k/ocr-overlay/pkg/types"
)

// Backends
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Extraction engines used by the local backend
const (
	EngineNone      = "none"
	EngineTesseract = "tesseract"
	EngineOllama    = "ollama"
	EngineGDocAI    = "gdocai"
)

// Config holds the application configuration
type Config struct {
	Backend    string           `yaml:"backend" json:"backend"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Editor     EditorConfig     `yaml:"editor" json:"editor"`
	Preview    PreviewConfig    `yaml:"preview" json:"preview"`
	Output     OutputConfig     `yaml:"output" json:"output"`
}

// ServerConfig holds the address of the OCR converter API
type ServerConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ExtractionConfig selects and configures the text recognizer of the local backend
type ExtractionConfig struct {
	Engine    string          `yaml:"engine" json:"engine"`
	Ollama    OllamaConfig    `yaml:"ollama" json:"ollama"`
	Tesseract TesseractConfig `yaml:"tesseract" json:"tesseract"`
	GDocAI    gdocai.Config   `yaml:"gdocai" json:"gdocai"`
}

// OllamaConfig holds configuration for the Ollama recognizer
type OllamaConfig struct {
	URL            string `yaml:"url" json:"url"`
	Model          string `yaml:"model" json:"model"`
	Prompt         string `yaml:"prompt" json:"prompt"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// TesseractConfig holds configuration for the Tesseract recognizer
type TesseractConfig struct {
	Languages     []string `yaml:"languages" json:"languages"`
	MinConfidence float64  `yaml:"min_confidence" json:"min_confidence"`
	Preprocess    bool     `yaml:"preprocess" json:"preprocess"`
}

// EditorConfig holds the annotation defaults
type EditorConfig struct {
	DefaultFontSize  int    `yaml:"default_font_size" json:"default_font_size"`
	DefaultFontColor string `yaml:"default_font_color" json:"default_font_color"`
	// ResetStyle restores the default size and color when a new image is loaded
	ResetStyle bool   `yaml:"reset_style" json:"reset_style"`
	FontFile   string `yaml:"font_file" json:"font_file"`
}

// PreviewConfig holds configuration for preview generation
type PreviewConfig struct {
	MaxWidth  int    `yaml:"max_width" json:"max_width"`
	MaxHeight int    `yaml:"max_height" json:"max_height"`
	Format    string `yaml:"format" json:"format"`
	Quality   int    `yaml:"quality" json:"quality"`
}

// OutputConfig holds configuration for rendered downloads
type OutputConfig struct {
	Dir     string `yaml:"dir" json:"dir"`
	Format  string `yaml:"format" json:"format"`
	Quality int    `yaml:"quality" json:"quality"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backend: BackendRemote,
		Server: ServerConfig{
			BaseURL:        "http://localhost:8001/api",
			TimeoutSeconds: 300,
		},
		Extraction: ExtractionConfig{
			Engine: EngineTesseract,
			Ollama: OllamaConfig{
				URL:            "http://localhost:11434",
				Model:          "llava",
				TimeoutSeconds: 300,
			},
			Tesseract: TesseractConfig{
				Languages:     []string{"eng"},
				MinConfidence: 30,
				Preprocess:    true,
			},
		},
		Editor: EditorConfig{
			DefaultFontSize:  types.DefaultFontSize,
			DefaultFontColor: types.DefaultFontColor,
		},
		Preview: PreviewConfig{
			MaxWidth:  800,
			MaxHeight: 0,
			Format:    "png",
			Quality:   85,
		},
		Output: OutputConfig{
			Dir:     "./output",
			Format:  "png",
			Quality: 95,
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file. Fields missing
// from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isJSON(filename) {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as YAML, or JSON for a .json file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isJSON(filename) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRemote:
		if c.Server.BaseURL == "" {
			return fmt.Errorf("server.base_url cannot be empty")
		}
	case BackendLocal:
	default:
		return fmt.Errorf("backend must be %q or %q", BackendRemote, BackendLocal)
	}

	if c.Server.TimeoutSeconds < 0 {
		return fmt.Errorf("server.timeout_seconds cannot be negative")
	}

	switch c.Extraction.Engine {
	case EngineNone, EngineTesseract:
	case EngineOllama:
		if c.Extraction.Ollama.URL == "" || c.Extraction.Ollama.Model == "" {
			return fmt.Errorf("extraction.ollama.url and extraction.ollama.model are required")
		}
	case EngineGDocAI:
		if err := c.Extraction.GDocAI.Validate(); err != nil {
			return fmt.Errorf("extraction.gdocai: %w", err)
		}
	default:
		return fmt.Errorf("extraction.engine %q is not supported", c.Extraction.Engine)
	}

	if c.Extraction.Tesseract.MinConfidence < 0 || c.Extraction.Tesseract.MinConfidence > 100 {
		return fmt.Errorf("extraction.tesseract.min_confidence must be between 0 and 100")
	}

	if err := types.ValidateFontSize(c.Editor.DefaultFontSize); err != nil {
		return fmt.Errorf("editor.default_font_size: %w", err)
	}
	if err := types.ValidateFontColor(c.Editor.DefaultFontColor); err != nil {
		return fmt.Errorf("editor.default_font_color: %w", err)
	}

	if c.Preview.MaxWidth < 0 || c.Preview.MaxHeight < 0 {
		return fmt.Errorf("preview dimensions cannot be negative")
	}
	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		return fmt.Errorf("preview.quality must be between 1 and 100")
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	for name, format := range map[string]string{"preview.format": c.Preview.Format, "output.format": c.Output.Format} {
		switch strings.ToLower(format) {
		case "png", "jpg", "jpeg", "webp":
		default:
			return fmt.Errorf("%s %q is not supported", name, format)
		}
	}

	return nil
}

// ServerTimeout returns the API timeout as a duration
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "ocr-overlay", "config.yaml")
}

func isJSON(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".json")
}
