// Package config loads the application configuration: a .env file when
// present, then environment variables, then an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"agreegraph/internal/fetch"
	"agreegraph/internal/graphdb"
	"agreegraph/internal/llm"
	"agreegraph/internal/logger"
)

// ErrInvalid marks a configuration that fails validation
var ErrInvalid = errors.New("invalid configuration")

// ConfigFileEnv names the variable pointing at the YAML overlay
const ConfigFileEnv = "AGREEGRAPH_CONFIG_FILE"

type Config struct {
	AppName       string `envconfig:"APP_NAME" default:"AgreeGraph" yaml:"app_name"`
	DefaultUserID string `envconfig:"DEFAULT_USER_ID" default:"default_user" yaml:"default_user_id"`
	UserName      string `envconfig:"USER_NAME" yaml:"user_name"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" yaml:"metrics_addr"`

	Log      logger.LogConfig   `envconfig:"" yaml:"log"`
	Cache    CacheConfig        `envconfig:"" yaml:"cache"`
	Session  SessionConfig      `envconfig:"" yaml:"session"`
	LLM      llm.ProviderConfig `envconfig:"" yaml:"llm"`
	Stages   StageConfig        `envconfig:"" yaml:"stages"`
	Pipeline PipelineConfig     `envconfig:"" yaml:"pipeline"`
	Fetch    fetch.Config       `envconfig:"" yaml:"fetch"`
	Graph    GraphConfig        `envconfig:"" yaml:"graph"`
}

type CacheConfig struct {
	Enabled           bool          `envconfig:"CACHE_ENABLED" default:"true" yaml:"enabled"`
	Backend           string        `envconfig:"CACHE_BACKEND" default:"memory" yaml:"backend"`
	RedisURL          string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0" yaml:"redis_url"`
	EntityTTL         time.Duration `envconfig:"ENTITY_CACHE_TTL" default:"1h" yaml:"entity_ttl"`
	WebFetchTTL       time.Duration `envconfig:"WEB_FETCH_CACHE_TTL" default:"30m" yaml:"web_fetch_ttl"`
	LLMTTL            time.Duration `envconfig:"LLM_CACHE_TTL" default:"2h" yaml:"llm_ttl"`
	KnowledgeGraphTTL time.Duration `envconfig:"KNOWLEDGE_GRAPH_CACHE_TTL" default:"1h" yaml:"knowledge_graph_ttl"`
	MaxSize           int           `envconfig:"MAX_CACHE_SIZE" default:"1000" yaml:"max_size"`
}

type SessionConfig struct {
	Backend string        `envconfig:"SESSION_BACKEND" default:"memory" yaml:"backend"`
	TTL     time.Duration `envconfig:"SESSION_TTL" default:"1h" yaml:"ttl"`
}

// StageConfig holds per-stage model overrides. A blank model means the
// provider's default model.
type StageConfig struct {
	EntityModel               string  `envconfig:"ENTITY_MODEL" yaml:"entity_model"`
	EntityTemperature         float32 `envconfig:"ENTITY_TEMPERATURE" default:"0.2" yaml:"entity_temperature"`
	KnowledgeGraphModel       string  `envconfig:"KNOWLEDGE_GRAPH_MODEL" yaml:"knowledge_graph_model"`
	KnowledgeGraphTemperature float32 `envconfig:"KNOWLEDGE_GRAPH_TEMPERATURE" default:"0.3" yaml:"knowledge_graph_temperature"`
	JudgeModel                string  `envconfig:"JUDGE_MODEL" yaml:"judge_model"`
	JudgeTemperature          float32 `envconfig:"JUDGE_TEMPERATURE" default:"0.3" yaml:"judge_temperature"`
}

type PipelineConfig struct {
	MaxEntities  int           `envconfig:"MAX_ENTITIES_PER_QUERY" default:"20" yaml:"max_entities"`
	MaxNews      int           `envconfig:"MAX_NEWS_ARTICLES_PER_ENTITY" default:"3" yaml:"max_news"`
	FetchTimeout time.Duration `envconfig:"WEB_FETCH_TIMEOUT" default:"30s" yaml:"fetch_timeout"`
}

type GraphConfig struct {
	Enabled bool                `envconfig:"GRAPH_ENABLED" default:"false" yaml:"enabled"`
	Neo4j   graphdb.Neo4jConfig `envconfig:"" yaml:"neo4j"`
}

// Load reads .env (a missing file is fine), the environment and the YAML
// file named by AGREEGRAPH_CONFIG_FILE, then validates the result
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := config.Overlay(path); err != nil {
			return nil, err
		}
	}

	config.resolveDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Overlay applies the keys present in a YAML file on top of the current values
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing YAML: %w", err)
	}
	return nil
}

func (c *Config) resolveDefaults() {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))

	for _, m := range []*string{&c.Stages.EntityModel, &c.Stages.KnowledgeGraphModel, &c.Stages.JudgeModel} {
		if strings.TrimSpace(*m) == "" {
			*m = c.LLM.Model
		}
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.AppName) == "":
		return fmt.Errorf("%w: APP_NAME must not be blank", ErrInvalid)
	case strings.TrimSpace(c.DefaultUserID) == "":
		return fmt.Errorf("%w: DEFAULT_USER_ID must not be blank", ErrInvalid)
	case c.Cache.Backend != "memory" && c.Cache.Backend != "redis":
		return fmt.Errorf("%w: CACHE_BACKEND must be memory or redis, got %q", ErrInvalid, c.Cache.Backend)
	case c.Session.Backend != "memory" && c.Session.Backend != "redis":
		return fmt.Errorf("%w: SESSION_BACKEND must be memory or redis, got %q", ErrInvalid, c.Session.Backend)
	case c.Cache.MaxSize <= 0:
		return fmt.Errorf("%w: MAX_CACHE_SIZE must be positive", ErrInvalid)
	case c.Cache.EntityTTL <= 0 || c.Cache.WebFetchTTL <= 0 || c.Cache.LLMTTL <= 0 || c.Cache.KnowledgeGraphTTL <= 0:
		return fmt.Errorf("%w: cache TTLs must be positive", ErrInvalid)
	case c.Session.TTL <= 0:
		return fmt.Errorf("%w: SESSION_TTL must be positive", ErrInvalid)
	case c.Pipeline.MaxEntities <= 0:
		return fmt.Errorf("%w: MAX_ENTITIES_PER_QUERY must be positive", ErrInvalid)
	case c.Pipeline.MaxNews < 0:
		return fmt.Errorf("%w: MAX_NEWS_ARTICLES_PER_ENTITY must not be negative", ErrInvalid)
	case c.Pipeline.FetchTimeout <= 0:
		return fmt.Errorf("%w: WEB_FETCH_TIMEOUT must be positive", ErrInvalid)
	}

	switch c.LLM.Provider {
	case llm.ProviderOpenAI, llm.ProviderOllama, llm.ProviderDeepSeek, llm.ProviderArk:
	default:
		return fmt.Errorf("%w: unknown LLM_PROVIDER %q", ErrInvalid, c.LLM.Provider)
	}

	for name, t := range map[string]float32{
		"ENTITY_TEMPERATURE":          c.Stages.EntityTemperature,
		"KNOWLEDGE_GRAPH_TEMPERATURE": c.Stages.KnowledgeGraphTemperature,
		"JUDGE_TEMPERATURE":           c.Stages.JudgeTemperature,
	} {
		if t < 0 || t > 2 {
			return fmt.Errorf("%w: %s must be between 0 and 2, got %v", ErrInvalid, name, t)
		}
	}
	return nil
}
