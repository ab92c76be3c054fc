package stripe

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// ProviderName identifies the Stripe provider
const ProviderName = "stripe"

// StripeProvider reads the Stripe ledger and lifecycle events.
// Every list call fetches a single page; paging is driven by the caller.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeProvider creates a new Stripe provider
func NewStripeProvider(cfg config.StripeConfig, logger *zap.Logger) *StripeProvider {
	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     logger.Named("stripe").Sugar(),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}

	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// GetProviderName returns the provider name
func (s *StripeProvider) GetProviderName() string {
	return ProviderName
}

// pageIter is the part of the Stripe list iterators used to read one page.
type pageIter interface {
	Next() bool
	Err() error
	Current() interface{}
	Meta() *stripe.ListMeta
}

// collectPage drains a single-page iterator.
func collectPage[S any, T any](it pageIter, convert func(S) T, idOf func(S) string) (entity.Page[T], error) {
	var page entity.Page[T]
	for it.Next() {
		raw, ok := it.Current().(S)
		if !ok {
			continue
		}
		page.Items = append(page.Items, convert(raw))
		page.NextCursor = idOf(raw)
	}
	if err := it.Err(); err != nil {
		return entity.Page[T]{}, err
	}
	if meta := it.Meta(); meta != nil {
		page.HasMore = meta.HasMore
	}
	return page, nil
}

func singlePage(params *stripe.ListParams, cursor string, limit int) {
	params.Single = true
	params.Limit = stripe.Int64(int64(limit))
	if cursor != "" {
		params.StartingAfter = stripe.String(cursor)
	}
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

func optionalUnix(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := unixTime(ts)
	return &t
}
