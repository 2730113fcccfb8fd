package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JGarfunkel/ordinizer-sub000/internal/analyzer"
	"github.com/JGarfunkel/ordinizer-sub000/internal/budget"
	"github.com/JGarfunkel/ordinizer-sub000/internal/indexer"
	"github.com/JGarfunkel/ordinizer-sub000/internal/orchestrator"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/anthropic"
)

// Config holds the full application configuration.
type Config struct {
	Data         DataConfig          `yaml:"data" mapstructure:"data"`
	Vecstore     VecstoreConfig      `yaml:"vecstore" mapstructure:"vecstore"`
	Anthropic    AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	Jina         JinaConfig          `yaml:"jina" mapstructure:"jina"`
	Budget       budget.Config       `yaml:"budget" mapstructure:"budget"`
	Analyzer     analyzer.Config     `yaml:"analyzer" mapstructure:"analyzer"`
	Indexer      indexer.Config      `yaml:"indexer" mapstructure:"indexer"`
	Orchestrator orchestrator.Config `yaml:"orchestrator" mapstructure:"orchestrator"`
	Pricing      PricingConfig       `yaml:"pricing" mapstructure:"pricing"`
	Server       ServerConfig        `yaml:"server" mapstructure:"server"`
	Log          LogConfig           `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the flat-file data tree.
type DataConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// VecstoreConfig configures the similarity index backend.
type VecstoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PricingConfig holds per-model token pricing for cost attribution logs.
type PricingConfig struct {
	Anthropic map[string]anthropic.Pricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ServerConfig configures the read-only records API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ORDINIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.root", "data")
	v.SetDefault("vecstore.driver", "sqlite")
	v.SetDefault("vecstore.dsn", "data/vectors.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jina.base_url", "https://api.jina.ai/v1")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("jina.requests_per_second", 5)
	v.SetDefault("analyzer.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("analyzer.embed_model", "jina-embeddings-v3")
	v.SetDefault("analyzer.max_tokens", 1024)
	v.SetDefault("analyzer.short_doc_words", 1000)
	v.SetDefault("analyzer.conversation_max_chars", 50000)
	v.SetDefault("analyzer.retrieval_top_k", 4)
	v.SetDefault("analyzer.found_confidence", 80)
	v.SetDefault("analyzer.cited_confidence", 90)
	v.SetDefault("indexer.max_chunk_chars", 2000)
	v.SetDefault("indexer.soft_token_limit", 6000)
	v.SetDefault("indexer.hard_token_limit", 8000)
	v.SetDefault("indexer.embed_model", "jina-embeddings-v3")
	v.SetDefault("orchestrator.jurisdiction_pause", "5s")
	v.SetDefault("budget.per_model", map[string]int{
		"claude-sonnet-4-5-20250929": 80_000,
		"jina-embeddings-v3":         500_000,
	})
	v.SetDefault("pricing.anthropic", map[string]anthropic.Pricing{
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Analyzer.Pricing = cfg.Pricing.Anthropic

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
