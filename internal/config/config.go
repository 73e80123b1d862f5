package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/research-brief/internal/cost"
)

// MaxTimeoutSecs is the hard ceiling on a run's wall-clock budget.
const MaxTimeoutSecs = 3600

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Keywords   KeywordsConfig   `yaml:"keywords" mapstructure:"keywords"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings. An empty key disables the
// Perplexity proof-signal tier.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// KeywordsConfig holds keyword-volume provider settings.
type KeywordsConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	Login             string  `yaml:"login" mapstructure:"login"`
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Location          string  `yaml:"location" mapstructure:"location"`
	Language          string  `yaml:"language" mapstructure:"language"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// Configured reports whether the keyword provider can be called at all.
func (k KeywordsConfig) Configured() bool {
	return k.Enabled && k.Key != ""
}

// ModelsConfig names the model used by each component.
type ModelsConfig struct {
	Classification string `yaml:"classification" mapstructure:"classification"`
	Description    string `yaml:"description" mapstructure:"description"`
	Problem        string `yaml:"problem" mapstructure:"problem"`
	Competition    string `yaml:"competition" mapstructure:"competition"`
	Keywords       string `yaml:"keywords" mapstructure:"keywords"`
	ProofSignals   string `yaml:"proof_signals" mapstructure:"proof_signals"`
	Repair         string `yaml:"repair" mapstructure:"repair"`
}

// ResearchConfig configures the synthesis pipeline.
type ResearchConfig struct {
	BackgroundProofSignals bool         `yaml:"background_proof_signals" mapstructure:"background_proof_signals"`
	TimeoutSecs            int          `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ComponentTimeoutSecs   int          `yaml:"component_timeout_secs" mapstructure:"component_timeout_secs"`
	PollIntervalSecs       int          `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPolls               int          `yaml:"max_polls" mapstructure:"max_polls"`
	WebSearchMaxUses       int          `yaml:"web_search_max_uses" mapstructure:"web_search_max_uses"`
	Models                 ModelsConfig `yaml:"models" mapstructure:"models"`
	// TaxonomyFile replaces the embedded taxonomy when set.
	TaxonomyFile string `yaml:"taxonomy_file" mapstructure:"taxonomy_file"`
}

// Timeout returns the run's wall-clock budget, clamped to MaxTimeoutSecs.
func (r ResearchConfig) Timeout() time.Duration {
	secs := r.TimeoutSecs
	if secs <= 0 {
		secs = 1500
	}
	if secs > MaxTimeoutSecs {
		secs = MaxTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

// ComponentTimeout returns the budget for a single synchronous LLM component.
func (r ResearchConfig) ComponentTimeout() time.Duration {
	if r.ComponentTimeoutSecs <= 0 {
		return 2 * time.Minute
	}
	return min(time.Duration(r.ComponentTimeoutSecs)*time.Second, r.Timeout())
}

// PollInterval returns the spacing between background job polls.
func (r ResearchConfig) PollInterval() time.Duration {
	if r.PollIntervalSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.PollIntervalSecs) * time.Second
}

// ResilienceConfig configures retry and circuit breaker behavior.
type ResilienceConfig struct {
	RateLimitRetries   int `yaml:"rate_limit_retries" mapstructure:"rate_limit_retries"`
	RateLimitBackoffMs int `yaml:"rate_limit_backoff_ms" mapstructure:"rate_limit_backoff_ms"`
	BreakerFailures    int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs   int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run-health alerting for the API server.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	DegradedRateThreshold float64 `yaml:"degraded_rate_threshold" mapstructure:"degraded_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rates := cost.DefaultRates()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.degraded_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("keywords.enabled", false)
	v.SetDefault("keywords.login", "")
	v.SetDefault("keywords.key", "")
	v.SetDefault("keywords.base_url", "https://api.dataforseo.com")
	v.SetDefault("keywords.location", "United States")
	v.SetDefault("keywords.language", "English")
	v.SetDefault("keywords.requests_per_second", 2.0)
	v.SetDefault("research.background_proof_signals", false)
	v.SetDefault("research.timeout_secs", 1500)
	v.SetDefault("research.component_timeout_secs", 120)
	v.SetDefault("research.poll_interval_secs", 5)
	v.SetDefault("research.max_polls", 240)
	v.SetDefault("research.web_search_max_uses", 8)
	v.SetDefault("research.taxonomy_file", "")
	v.SetDefault("research.models.classification", "claude-haiku-4-5-20251001")
	v.SetDefault("research.models.description", "claude-sonnet-4-5-20250929")
	v.SetDefault("research.models.problem", "claude-sonnet-4-5-20250929")
	v.SetDefault("research.models.competition", "claude-sonnet-4-5-20250929")
	v.SetDefault("research.models.keywords", "claude-haiku-4-5-20251001")
	v.SetDefault("research.models.proof_signals", "claude-sonnet-4-5-20250929")
	v.SetDefault("research.models.repair", "claude-haiku-4-5-20251001")
	v.SetDefault("resilience.rate_limit_retries", 2)
	v.SetDefault("resilience.rate_limit_backoff_ms", 2000)
	v.SetDefault("resilience.breaker_failures", 5)
	v.SetDefault("resilience.breaker_reset_secs", 30)
	v.SetDefault("pricing.anthropic", rates.Anthropic)
	v.SetDefault("pricing.perplexity.per_query", rates.Perplexity.PerQuery)
	v.SetDefault("pricing.perplexity.per_mtok", rates.Perplexity.PerMTok)
	v.SetDefault("pricing.keywords.per_request", rates.Keywords.PerRequest)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
