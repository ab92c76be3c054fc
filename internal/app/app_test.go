package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.Parse([]byte(`
stripe:
  secret_key: sk_test_123
  api_url: http://127.0.0.1:1
program:
  annual_price_ids: [price_annual]
auth:
  jwt_secret: secret
database:
  driver: sqlite
`))
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "membership.db")
	return cfg
}

func TestNew(t *testing.T) {
	a, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Migrate())
	assert.NoError(t, a.PingDatabase(context.Background()))
	assert.Nil(t, a.Redis)
	assert.NotNil(t, a.Cache)
	assert.NotNil(t, a.Ingestion)
	assert.Equal(t, "stripe", a.Provider.GetProviderName())

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_MissingStripeKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stripe.SecretKey = ""

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}
