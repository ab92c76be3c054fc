package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/domain/provider"
	stripeProvider "github.com/wekeepgrowing/semo-membership/internal/infrastructure/provider/stripe"
)

// PaymentProvider is everything the membership engine reads from a payment processor
type PaymentProvider interface {
	provider.LedgerSource
	provider.RefundSource
	provider.EventSource
}

// Factory creates payment providers based on the provider name
type Factory struct {
	config *config.Config
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// GetProvider returns a payment provider by name. An empty name selects Stripe.
func (f *Factory) GetProvider(name string) (PaymentProvider, error) {
	switch name {
	case "", stripeProvider.ProviderName:
		return f.createStripeProvider()
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", name)
	}
}

// createStripeProvider creates a new Stripe provider instance
func (f *Factory) createStripeProvider() (PaymentProvider, error) {
	if f.config.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("Stripe secret key not configured")
	}

	return stripeProvider.NewStripeProvider(f.config.Stripe, f.logger), nil
}
