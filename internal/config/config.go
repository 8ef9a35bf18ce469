// Package config loads lorekeeper settings from YAML with defaults for anything unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chriscorrea/lorekeeper/internal/analyze"
	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/extract"
	"github.com/chriscorrea/lorekeeper/internal/llm"
	"github.com/chriscorrea/lorekeeper/internal/relevance"
	"github.com/chriscorrea/lorekeeper/internal/retry"
	"github.com/chriscorrea/lorekeeper/internal/token"
)

// SourceEnv overrides CorpusConfig.Source when set.
const SourceEnv = "LOREKEEPER_BOOKS"

// CorpusConfig says where the books come from.
type CorpusConfig struct {
	Source    string     `yaml:"source"` // directory or http(s) base URL
	Documents []string   `yaml:"documents"`
	HTML      HTMLConfig `yaml:"html"`
}

// HTMLConfig controls extraction of HTML editions.
type HTMLConfig struct {
	Selector    string `yaml:"selector"`
	Readability bool   `yaml:"readability"`
}

// AnalysisConfig holds the gazetteers and the alias table.
type AnalysisConfig struct {
	Characters      []string            `yaml:"characters"`
	EventIndicators []string            `yaml:"event_indicators"`
	Locations       []string            `yaml:"locations,omitempty"`
	Spells          []string            `yaml:"spells,omitempty"`
	Aliases         map[string][]string `yaml:"aliases"`
}

// SearchConfig holds the scorer constants and the window shape.
type SearchConfig struct {
	Threshold      *float64 `yaml:"threshold"`
	PositionSpread float64  `yaml:"position_spread"`
	Normalizer     float64  `yaml:"normalizer"`
	WindowBefore   *int     `yaml:"window_before"`
	WindowAfter    *int     `yaml:"window_after"`
	FallbackChars  int      `yaml:"fallback_chars"`
}

// RetryConfig bounds corpus load attempts.
type RetryConfig struct {
	Attempts    int  `yaml:"attempts"`
	DelayMillis int  `yaml:"delay_ms"`
	Exponential bool `yaml:"exponential"`
}

// AssistantConfig shapes the grounded chat prompt.
type AssistantConfig struct {
	Persona       string `yaml:"persona"`
	Passages      int    `yaml:"passages"`       // top passages quoted per answer
	HistoryLimit  int    `yaml:"history_limit"`  // messages kept per session
	HistoryWindow int    `yaml:"history_window"` // messages sent with each request
	ContextTokens int    `yaml:"context_tokens"` // budget for the full-context system block
}

// LLMConfig points at an OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// Config is the root configuration.
type Config struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Search    SearchConfig    `yaml:"search"`
	Retry     RetryConfig     `yaml:"retry"`
	Assistant AssistantConfig `yaml:"assistant"`
	LLM       LLMConfig       `yaml:"llm"`
}

// Load reads the config at path. A missing file yields the defaults.
// The LOREKEEPER_BOOKS environment variable overrides the corpus source.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
			}
		}
	}
	applyDefaults(cfg)
	if source := os.Getenv(SourceEnv); source != "" {
		cfg.Corpus.Source = source
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyDefaults(cfg *Config) {
	if cfg.Corpus.Source == "" {
		cfg.Corpus.Source = "books"
	}
	if len(cfg.Corpus.Documents) == 0 {
		cfg.Corpus.Documents = corpus.DefaultDocuments()
	}

	if cfg.Analysis.Characters == nil {
		cfg.Analysis.Characters = analyze.DefaultCharacters()
	}
	if cfg.Analysis.EventIndicators == nil {
		cfg.Analysis.EventIndicators = analyze.DefaultEventIndicators()
	}
	if cfg.Analysis.Aliases == nil {
		cfg.Analysis.Aliases = token.DefaultAliases()
	}

	if cfg.Search.Threshold == nil {
		threshold := corpus.DefaultThreshold
		cfg.Search.Threshold = &threshold
	}
	params := relevance.DefaultParams()
	if cfg.Search.PositionSpread <= 0 {
		cfg.Search.PositionSpread = params.PositionSpread
	}
	if cfg.Search.Normalizer <= 0 {
		cfg.Search.Normalizer = params.Normalizer
	}
	window := relevance.DefaultWindow()
	if cfg.Search.WindowBefore == nil || *cfg.Search.WindowBefore < 0 {
		cfg.Search.WindowBefore = &window.Before
	}
	if cfg.Search.WindowAfter == nil || *cfg.Search.WindowAfter < 0 {
		cfg.Search.WindowAfter = &window.After
	}
	if cfg.Search.FallbackChars <= 0 {
		cfg.Search.FallbackChars = window.FallbackChars
	}

	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.DelayMillis <= 0 {
		cfg.Retry.DelayMillis = 1000
	}

	if cfg.Assistant.Persona == "" {
		cfg.Assistant.Persona = "standard"
	}
	if cfg.Assistant.Passages <= 0 {
		cfg.Assistant.Passages = 3
	}
	if cfg.Assistant.HistoryLimit <= 0 {
		cfg.Assistant.HistoryLimit = 20
	}
	if cfg.Assistant.HistoryWindow <= 0 {
		cfg.Assistant.HistoryWindow = 4
	}
	if cfg.Assistant.ContextTokens <= 0 {
		cfg.Assistant.ContextTokens = 6000
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = llm.DefaultBaseURL
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = llm.DefaultModel
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.TimeoutSecs <= 0 {
		cfg.LLM.TimeoutSecs = 30
	}
}

// ExtractOptions returns the HTML extraction settings.
func (c *Config) ExtractOptions() extract.Options {
	return extract.Options{Selector: c.Corpus.HTML.Selector, Readability: c.Corpus.HTML.Readability}
}

// AnalyzerOptions returns the gazetteer settings for analyze.New.
func (c *Config) AnalyzerOptions() []analyze.Option {
	return []analyze.Option{
		analyze.WithCharacters(c.Analysis.Characters),
		analyze.WithEventIndicators(c.Analysis.EventIndicators),
		analyze.WithLocations(c.Analysis.Locations),
		analyze.WithSpells(c.Analysis.Spells),
	}
}

// ScorerOptions returns the scoring constants and window shape for relevance.NewScorer.
func (c *Config) ScorerOptions() []relevance.Option {
	return []relevance.Option{
		relevance.WithParams(relevance.Params{
			PositionSpread: c.Search.PositionSpread,
			Normalizer:     c.Search.Normalizer,
		}),
		relevance.WithWindow(relevance.WindowShape{
			Before:        *c.Search.WindowBefore,
			After:         *c.Search.WindowAfter,
			FallbackChars: c.Search.FallbackChars,
		}),
	}
}

// RetryPolicy returns the load retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	delay := time.Duration(c.Retry.DelayMillis) * time.Millisecond
	backoff := retry.Fixed(delay)
	if c.Retry.Exponential {
		backoff = retry.Exponential(delay)
	}
	return retry.Policy{Attempts: c.Retry.Attempts, Backoff: backoff}
}

// ClientConfig returns the chat client settings, reading the key from the environment.
func (c *Config) ClientConfig() llm.ClientConfig {
	cc := llm.DefaultConfig(c.APIKey())
	cc.BaseURL = c.LLM.BaseURL
	cc.Model = c.LLM.Model
	cc.Temperature = c.LLM.Temperature
	cc.MaxTokens = c.LLM.MaxTokens
	cc.Timeout = time.Duration(c.LLM.TimeoutSecs) * time.Second
	return cc
}

// APIKey reads the LLM API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}
