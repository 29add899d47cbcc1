package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/digestbot/digestbot/internal/filter"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrInvalid marks configuration errors. The CLI maps these to a
// distinct exit code so schedulers can tell a bad config from a failed
// run.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Meta       Meta       `yaml:"meta"`
	Sources    []Source   `yaml:"sources"`
	Filters    Filters    `yaml:"filters"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Summarizer Summarizer `yaml:"summarizer"`
	Outputs    []Output   `yaml:"outputs"`
	StateDir   string     `yaml:"state_dir"`
}

type Meta struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	Schedule    string `yaml:"schedule"`
}

// Source configures one content source. Type selects the adapter; the
// remaining fields are interpreted per adapter and validated by its
// constructor.
type Source struct {
	Name         string              `yaml:"name"`
	Type         string              `yaml:"type"`
	URL          string              `yaml:"url"`
	BaseURL      string              `yaml:"base_url"`
	ListAddress  string              `yaml:"list_address"`
	Categories   []DiscourseCategory `yaml:"categories"`
	Tags         []string            `yaml:"tags"`
	FetchContent bool                `yaml:"fetch_content"`
	Method       string              `yaml:"method"`
	Headers      map[string]string   `yaml:"headers"`
	Mapping      map[string]string   `yaml:"mapping"`
	MaxPages     int                 `yaml:"max_pages"`
}

type DiscourseCategory struct {
	Path string `yaml:"path"`
	ID   int    `yaml:"id"`
}

type Filters struct {
	TimeWindow       string   `yaml:"time_window"`
	UseState         bool     `yaml:"use_state"`
	Keywords         Keywords `yaml:"keywords"`
	MinContentLength int      `yaml:"min_content_length"`
}

type Keywords struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// RateLimit holds inter-source and inter-request delays in seconds.
// These are a backpressure policy toward upstream services, which is
// why sources are fetched sequentially.
type RateLimit struct {
	DelayBetweenSources  float64 `yaml:"delay_between_sources"`
	DelayBetweenRequests float64 `yaml:"delay_between_requests"`
}

type Summarizer struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	MaxTokens  int    `yaml:"max_tokens"`
	Prompt     string `yaml:"prompt"`
	PromptFile string `yaml:"prompt_file"`
	APIKeyEnv  string `yaml:"api_key_env"`
	OllamaURL  string `yaml:"ollama_url"`
}

type Output struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`
	Frontmatter bool   `yaml:"frontmatter"`
	Enabled     bool   `yaml:"enabled"`
	Format      string `yaml:"format"`
	To          string `yaml:"to"`
	Subject     string `yaml:"subject"`
}

// ConfigDir returns the XDG config directory for digestbot.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "digestbot")
}

// DataDir returns the XDG data directory for digestbot.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "digestbot")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/digestbot/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: config file not found: %s", ErrInvalid, explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"%w: no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'digestbot init' to create a default config",
		ErrInvalid, xdgConfig,
	)
}

// Load reads, interpolates, parses and validates a config YAML file.
// Prompt files are resolved relative to the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.Summarizer.Prompt == "" && cfg.Summarizer.PromptFile != "" {
		promptPath := cfg.Summarizer.PromptFile
		if !filepath.IsAbs(promptPath) {
			promptPath = filepath.Join(filepath.Dir(path), promptPath)
		}
		prompt, err := os.ReadFile(promptPath)
		if err != nil {
			return nil, fmt.Errorf("%w: prompt file: %v", ErrInvalid, err)
		}
		cfg.Summarizer.Prompt = string(prompt)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults and
// interpolating ${VAR} environment references.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Filters: Filters{
			TimeWindow:       "24h",
			UseState:         true,
			MinContentLength: 50,
		},
		RateLimit: RateLimit{
			DelayBetweenSources:  2.0,
			DelayBetweenRequests: 1.0,
		},
		Summarizer: Summarizer{
			Provider:  "ollama",
			MaxTokens: 4096,
			OllamaURL: "http://localhost:11434",
		},
	}

	if err := yaml.Unmarshal(interpolateEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing: %v", ErrInvalid, err)
	}

	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateEnv replaces ${VAR} references with environment values.
// Unset variables keep the literal pattern so collaborators can resolve
// them lazily at runtime.
func interpolateEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		if value, ok := os.LookupEnv(string(name)); ok {
			return []byte(value)
		}
		return match
	})
}

// Validate checks the parts of the config the pipeline depends on.
// Invalid configuration aborts a run before any fetch happens.
func (c *Config) Validate() error {
	if c.Meta.Name == "" {
		return fmt.Errorf("%w: missing 'meta.name'", ErrInvalid)
	}
	if c.Meta.Slug == "" {
		return fmt.Errorf("%w: missing 'meta.slug'", ErrInvalid)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: no sources configured", ErrInvalid)
	}
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("%w: source %d missing 'name'", ErrInvalid, i)
		}
		if s.Type == "" {
			return fmt.Errorf("%w: source %q missing 'type'", ErrInvalid, s.Name)
		}
	}

	if _, err := filter.ParseWindow(c.Filters.TimeWindow); err != nil {
		return fmt.Errorf("%w: filters.time_window: %v", ErrInvalid, err)
	}
	if c.Filters.MinContentLength < 0 {
		return fmt.Errorf("%w: filters.min_content_length must not be negative", ErrInvalid)
	}

	if c.Summarizer.Provider == "" {
		return fmt.Errorf("%w: missing 'summarizer.provider'", ErrInvalid)
	}
	if c.Summarizer.Model == "" {
		return fmt.Errorf("%w: missing 'summarizer.model'", ErrInvalid)
	}
	if c.Summarizer.Prompt == "" && c.Summarizer.PromptFile == "" {
		return fmt.Errorf("%w: missing 'summarizer.prompt' or 'summarizer.prompt_file'", ErrInvalid)
	}

	for i, o := range c.Outputs {
		if o.Type == "" {
			return fmt.Errorf("%w: output %d missing 'type'", ErrInvalid, i)
		}
	}

	return nil
}

// GetStateDir returns the effective state directory from config or the
// XDG default, scoped by slug so configs never share state.
func (c *Config) GetStateDir() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	return filepath.Join(DataDir(), c.Meta.Slug)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
