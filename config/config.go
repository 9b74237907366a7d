package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and run manager settings
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs"`
	EventBuffer       int           `mapstructure:"event_buffer"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model serves each agent role
type LLMRoutingConfig struct {
	Research  string `mapstructure:"research"`  // background researcher, news tracker
	Analysis  string `mapstructure:"analysis"`  // data analyst
	Synthesis string `mapstructure:"synthesis"` // synthesizer, summarizer
	Planning  string `mapstructure:"planning"`  // topic decomposer
	Fallback  string `mapstructure:"fallback"`
}

// Model roles used by Model.
const (
	RoleResearch  = "research"
	RoleAnalysis  = "analysis"
	RoleSynthesis = "synthesis"
	RolePlanning  = "planning"
)

// AgentsConfig contains agent execution settings
type AgentsConfig struct {
	Parallel        bool          `mapstructure:"parallel"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	MaxIterations   int           `mapstructure:"max_iterations"`
	MaxSubquestions int           `mapstructure:"max_subquestions"`
	AgentTimeout    time.Duration `mapstructure:"agent_timeout"`
	Temperature     float64       `mapstructure:"temperature"`

	// Per run LLM limits, zero is unlimited.
	MaxRunCostUSD float64 `mapstructure:"max_run_cost_usd"`
	MaxRunTokens  int64   `mapstructure:"max_run_tokens"`
}

// SourcesConfig contains tool backends available to agents
type SourcesConfig struct {
	Tavily    TavilyConfig    `mapstructure:"tavily"`
	NewsAPI   NewsAPIConfig   `mapstructure:"newsapi"`
	Wikipedia WikipediaConfig `mapstructure:"wikipedia"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// TavilyConfig contains Tavily search settings
type TavilyConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Endpoint    string `mapstructure:"endpoint"`
	MaxResults  int    `mapstructure:"max_results"`
	SearchDepth string `mapstructure:"search_depth"`
}

// NewsAPIConfig contains NewsAPI settings
type NewsAPIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	MaxResults int    `mapstructure:"max_results"`
}

// WikipediaConfig contains MediaWiki search settings
type WikipediaConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	TopK      int    `mapstructure:"top_k"`
	MaxChars  int    `mapstructure:"max_chars"`
	UserAgent string `mapstructure:"user_agent"`
	Disabled  bool   `mapstructure:"disabled"`
}

// WebSearchConfig contains secondary web search backends
type WebSearchConfig struct {
	BraveAPIKey    string `mapstructure:"brave_api_key"`
	BraveEndpoint  string `mapstructure:"brave_endpoint"`
	SerperAPIKey   string `mapstructure:"serper_api_key"`
	SerperEndpoint string `mapstructure:"serper_endpoint"`
	MaxResults     int    `mapstructure:"max_results"`
}

// FetchConfig controls the page fetch tool
type FetchConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxChars int  `mapstructure:"max_chars"`
}

// HTTPConfig controls the shared outbound HTTP client used by tools
type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether enough settings are present to connect.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a connection string from the discrete settings when URL is empty.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Timeout      time.Duration `mapstructure:"timeout"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Model returns the routed model for the role, or the fallback.
func (c LLMConfig) Model(role string) string {
	var m string
	switch role {
	case RoleResearch:
		m = c.Routing.Research
	case RoleAnalysis:
		m = c.Routing.Analysis
	case RoleSynthesis:
		m = c.Routing.Synthesis
	case RolePlanning:
		m = c.Routing.Planning
	}
	if m == "" {
		m = c.Routing.Fallback
	}
	return m
}

// ProviderNames returns configured provider names in a stable order.
func (c LLMConfig) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize fills model names from their map keys and provider types from names.
func (c LLMConfig) Normalize() LLMConfig {
	for pname, p := range c.Providers {
		if strings.TrimSpace(p.Type) == "" {
			p.Type = pname
		}
		for key, m := range p.Models {
			if m.Name == "" {
				m.Name = key
			}
			p.Models[key] = m
		}
		c.Providers[pname] = p
	}
	return c
}

// Validate ensures at least one provider exists and every routed model is known.
func (c LLMConfig) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}
	routed := []string{c.Routing.Research, c.Routing.Analysis, c.Routing.Synthesis, c.Routing.Planning, c.Routing.Fallback}
	for _, model := range routed {
		if model == "" {
			continue
		}
		if !c.hasModel(model) {
			return fmt.Errorf("routing model '%s' not found in any provider", model)
		}
	}
	if c.Model(RoleSynthesis) == "" {
		return fmt.Errorf("llm.routing.synthesis or llm.routing.fallback is required")
	}
	return nil
}

func (c LLMConfig) hasModel(model string) bool {
	for _, p := range c.Providers {
		for _, m := range p.Models {
			if m.Name == model {
				return true
			}
		}
	}
	return false
}

func (a AgentsConfig) Validate() error {
	if a.MaxConcurrency < 1 {
		return fmt.Errorf("agents.max_concurrency must be >= 1")
	}
	if a.MaxIterations < 1 {
		return fmt.Errorf("agents.max_iterations must be >= 1")
	}
	if a.MaxSubquestions < 1 {
		return fmt.Errorf("agents.max_subquestions must be >= 1")
	}
	if a.MaxRunCostUSD < 0 || a.MaxRunTokens < 0 {
		return fmt.Errorf("agents.max_run_cost_usd and agents.max_run_tokens cannot be negative")
	}
	return nil
}

func (s ServerConfig) Validate() error {
	if s.MaxConcurrentRuns < 1 {
		return fmt.Errorf("server.max_concurrent_runs must be >= 1")
	}
	if s.RunTimeout <= 0 {
		return fmt.Errorf("server.run_timeout must be positive")
	}
	return nil
}

// Validate runs every section validator.
func (c *Config) Validate() error {
	var errs []error
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Agents.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Storage.Postgres.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "30s")

	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.run_timeout", "15m")
	v.SetDefault("server.max_concurrent_runs", 4)
	v.SetDefault("server.event_buffer", 256)

	v.SetDefault("llm.routing.fallback", "gpt-3.5-turbo")

	v.SetDefault("agents.parallel", true)
	v.SetDefault("agents.max_concurrency", 3)
	v.SetDefault("agents.max_iterations", 6)
	v.SetDefault("agents.max_subquestions", 4)
	v.SetDefault("agents.agent_timeout", "3m")
	v.SetDefault("agents.temperature", 0.1)
	v.SetDefault("agents.max_run_cost_usd", 0)
	v.SetDefault("agents.max_run_tokens", 0)

	v.SetDefault("sources.tavily.endpoint", "https://api.tavily.com/search")
	v.SetDefault("sources.tavily.max_results", 3)
	v.SetDefault("sources.tavily.search_depth", "advanced")
	v.SetDefault("sources.newsapi.endpoint", "https://newsapi.org/v2/everything")
	v.SetDefault("sources.newsapi.max_results", 10)
	v.SetDefault("sources.wikipedia.endpoint", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("sources.wikipedia.top_k", 3)
	v.SetDefault("sources.wikipedia.max_chars", 4000)
	v.SetDefault("sources.wikipedia.user_agent", "research-agents/1.0")
	v.SetDefault("sources.web_search.brave_endpoint", "https://api.search.brave.com/res/v1/web/search")
	v.SetDefault("sources.web_search.serper_endpoint", "https://google.serper.dev/search")
	v.SetDefault("sources.web_search.max_results", 5)
	v.SetDefault("sources.fetch.enabled", true)
	v.SetDefault("sources.fetch.max_chars", 6000)
	v.SetDefault("sources.http.timeout", "15s")
	v.SetDefault("sources.http.retries", 2)
	v.SetDefault("sources.http.backoff", "300ms")
	v.SetDefault("sources.http.rate_per_sec", 5.0)
	v.SetDefault("sources.http.burst", 5)

	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "5s")
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.redis.stream_max_len", 1000)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)
	v.SetDefault("telemetry.service_name", "research-agents")
}

// defaultProviders is used when no provider block is present: a single
// OpenAI provider serving the fallback model, matching the stock setup.
func defaultProviders(v *viper.Viper) {
	if v.IsSet("llm.providers") {
		return
	}
	v.Set("llm.providers", map[string]interface{}{
		"openai": map[string]interface{}{
			"type":    "openai",
			"timeout": "60s",
			"models": map[string]interface{}{
				"gpt-3.5-turbo": map[string]interface{}{
					"name":               "gpt-3.5-turbo",
					"max_tokens":         2048,
					"temperature":        0.1,
					"cost_per_1k_input":  0.0005,
					"cost_per_1k_output": 0.0015,
				},
			},
		},
	})
}

// providerKeyEnv maps provider types to the environment variable holding their key.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// applyProviderKeys fills empty provider keys from the environment. It runs on
// the decoded config since a nested viper Set would replace the provider map.
func applyProviderKeys(c LLMConfig) LLMConfig {
	for pname, p := range c.Providers {
		if strings.TrimSpace(p.APIKey) != "" {
			continue
		}
		env, ok := providerKeyEnv[p.Type]
		if !ok {
			continue
		}
		if key := os.Getenv(env); key != "" {
			p.APIKey = key
			c.Providers[pname] = p
		}
	}
	return c
}

// overrideFromEnv applies well-known environment variables for secrets
func overrideFromEnv(v *viper.Viper) {
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		v.Set("sources.tavily.api_key", key)
	}
	if key := os.Getenv("NEWSAPI_API_KEY"); key != "" {
		v.Set("sources.newsapi.api_key", key)
	}
	if key := os.Getenv("BRAVE_SEARCH_KEY"); key != "" {
		v.Set("sources.web_search.brave_api_key", key)
	}
	if key := os.Getenv("SERPER_API_KEY"); key != "" {
		v.Set("sources.web_search.serper_api_key", key)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		v.Set("storage.postgres.url", url)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		v.Set("storage.redis.addr", addr)
	}
}

// Load reads configuration from path (or the default search paths when empty),
// environment variables and defaults. A missing file is only an error when the
// path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	SetDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	defaultProviders(v)
	overrideFromEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LLM = applyProviderKeys(cfg.LLM.Normalize())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
