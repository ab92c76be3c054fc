// Package config exposes environment backed configuration lookups built on viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config gives read access to configuration values.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	IsSet(key string) bool
}

type viperConfig struct {
	v *viper.Viper
}

func (c *viperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *viperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *viperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *viperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

func (c *viperConfig) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

func (c *viperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// FromEnv returns a Config that resolves dotted keys from environment variables.
// With prefix "membership" the key "stripe.secret_key" reads MEMBERSHIP_STRIPE_SECRET_KEY.
func FromEnv(prefix string) Config {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &viperConfig{v: v}
}
