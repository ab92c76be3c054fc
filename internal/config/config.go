package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	envconfig "github.com/wekeepgrowing/semo-membership/pkg/config"
	"github.com/wekeepgrowing/semo-membership/pkg/logger"
)

const (
	defaultConfigPath = "./configs/membership.yaml"
	envPrefix         = "membership"
)

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      logger.Config  `yaml:"log"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Program  ProgramConfig  `yaml:"program"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
}

// LoadConfig reads the YAML file at CONFIG_PATH, applies defaults and
// environment overrides, then validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides(envconfig.FromEnv(envPrefix))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct level constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "membership"
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	c.Program.applyDefaults()
	c.Metrics.applyDefaults()
	if c.Redis.Channel == "" {
		c.Redis.Channel = "membership.lifecycle"
	}
}

// applyEnvOverrides lets deployments inject secrets without touching the YAML file.
func (c *Config) applyEnvOverrides(env envconfig.Config) {
	overrides := map[string]*string{
		"stripe.secret_key":     &c.Stripe.SecretKey,
		"stripe.webhook_secret": &c.Stripe.WebhookSecret,
		"stripe.api_url":        &c.Stripe.APIURL,
		"database.host":         &c.Database.Host,
		"database.user":         &c.Database.User,
		"database.password":     &c.Database.Password,
		"database.name":         &c.Database.Name,
		"redis.addr":            &c.Redis.Addr,
		"redis.password":        &c.Redis.Password,
		"auth.jwt_secret":       &c.Auth.JWTSecret,
		"service.environment":   &c.Service.Environment,
	}
	for key, target := range overrides {
		if value := env.GetString(key); value != "" {
			*target = value
		}
	}
	if port := env.GetInt("database.port"); port != 0 {
		c.Database.Port = port
	}

	// Space separated lists, e.g. MEMBERSHIP_PROGRAM_ANNUAL_PRICE_IDS="price_a price_b".
	if env.IsSet("program.annual_price_ids") {
		c.Program.AnnualPriceIDs = env.GetStringSlice("program.annual_price_ids")
	}
	if env.IsSet("program.trial_price_ids") {
		c.Program.TrialPriceIDs = env.GetStringSlice("program.trial_price_ids")
	}
}
