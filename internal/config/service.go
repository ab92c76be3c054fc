package config

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	ClientURL   string `yaml:"client_url"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key" validate:"required"`
	WebhookSecret string `yaml:"webhook_secret"`
	// APIURL overrides the Stripe API base URL (stripe-mock, tests).
	APIURL            string `yaml:"api_url"`
	MaxNetworkRetries int64  `yaml:"max_network_retries"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether cache invalidation fan-out is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" validate:"required"`
}
