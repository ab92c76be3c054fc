package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wekeepgrowing/semo-membership/internal/clock"
	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/domain/provider"
	"github.com/wekeepgrowing/semo-membership/internal/domain/repository"
	"github.com/wekeepgrowing/semo-membership/internal/observability"
)

var hundred = decimal.NewFromInt(100)

// MetricsAggregator computes the membership metric set from the ledger, the event history
// and the membership snapshot. Every pass is all-or-nothing.
type MetricsAggregator struct {
	ledger     *LedgerReader
	refunds    provider.RefundSource
	events     repository.EventHistoryRepository
	members    repository.MemberSnapshotRepository
	classifier *ConversionClassifier
	catalog    entity.PriceCatalog
	currency   string
	cfg        config.MetricsConfig
	clock      clock.Clock
	collectors *observability.Collectors
	logger     *zap.Logger
}

// NewMetricsAggregator creates a new metrics aggregator
func NewMetricsAggregator(
	ledger provider.LedgerSource,
	refunds provider.RefundSource,
	events repository.EventHistoryRepository,
	members repository.MemberSnapshotRepository,
	program config.ProgramConfig,
	cfg config.MetricsConfig,
	clk clock.Clock,
	collectors *observability.Collectors,
	logger *zap.Logger,
) *MetricsAggregator {
	catalog := entity.NewPriceCatalog(program.AnnualPriceIDs, program.TrialPriceIDs)
	return &MetricsAggregator{
		ledger:     NewLedgerReader(ledger, cfg, logger),
		refunds:    refunds,
		events:     events,
		members:    members,
		classifier: NewConversionClassifier(catalog, logger),
		catalog:    catalog,
		currency:   strings.ToLower(program.SettlementCurrency),
		cfg:        cfg,
		clock:      clk,
		collectors: collectors,
		logger:     logger,
	}
}

// passData is everything read at the start of a pass.
type passData struct {
	active   []entity.Subscription
	trialing []entity.Subscription
	canceled []entity.Subscription
	invoices InvoiceBatch
	members  []entity.MemberSnapshot
	events   []entity.LifecycleEvent
}

func (d *passData) allSubscriptions() []entity.Subscription {
	all := make([]entity.Subscription, 0, len(d.active)+len(d.trialing)+len(d.canceled))
	all = append(all, d.active...)
	all = append(all, d.trialing...)
	return append(all, d.canceled...)
}

// Aggregate runs one aggregation pass.
func (a *MetricsAggregator) Aggregate(ctx context.Context) (*entity.Metrics, error) {
	started := time.Now()
	runID := uuid.NewString()
	now := a.clock.Now()
	logger := a.logger.With(zap.String("run_id", runID))

	data, err := a.read(ctx)
	if err != nil {
		return nil, a.fail(logger, err)
	}

	set := a.classifier.Classify(ClassificationInput{
		Members:           data.members,
		Events:            data.events,
		Subscriptions:     data.allSubscriptions(),
		Invoices:          data.invoices.Invoices,
		InvoicesTruncated: data.invoices.CapReached,
		Now:               now,
	})

	m := &entity.Metrics{
		Currency:    a.currency,
		GeneratedAt: now,
		RunID:       runID,
	}
	a.activeState(m, data, now)
	a.churn(m, data, now)
	a.conversions(m, data, set, now)
	if err := a.revenue(ctx, m, data, set, now, logger); err != nil {
		return nil, a.fail(logger, err)
	}

	a.collectors.ObserveAggregation(time.Since(started))
	a.collectors.SkippedInvoices(m.SkippedCurrencyInvoices)
	a.collectors.UnresolvedConversions(m.UnresolvedConversions)

	logger.Info("Membership metrics aggregated",
		zap.Duration("duration", time.Since(started)),
		zap.Int("annual_active", m.AnnualActiveCount),
		zap.Int("conversions_all_time", m.ConversionsAllTime),
		zap.Int("invoices_scanned", m.InvoicesScanned),
		zap.Bool("invoice_cap_reached", m.InvoiceCapReached),
		zap.Int("skipped_currency_invoices", m.SkippedCurrencyInvoices),
		zap.Int("unresolved_conversions", m.UnresolvedConversions))

	return m, nil
}

func (a *MetricsAggregator) fail(logger *zap.Logger, err error) error {
	step := domainErrors.StepOf(err)
	a.collectors.AggregationFailed(step)
	logger.Error("Membership metrics aggregation aborted",
		zap.String("step", step),
		zap.Error(err))
	return err
}

// read loads the independent inputs of a pass in parallel.
func (a *MetricsAggregator) read(ctx context.Context) (*passData, error) {
	data := &passData{}
	g, gctx := errgroup.WithContext(ctx)

	listSubs := func(status entity.SubscriptionStatus, step string, dst *[]entity.Subscription) {
		g.Go(func() error {
			subs, err := a.ledger.ListSubscriptions(gctx, status)
			if err != nil {
				return domainErrors.NewUpstreamError(step, err)
			}
			*dst = subs
			return nil
		})
	}
	listSubs(entity.SubscriptionStatusActive, domainErrors.StepActiveSubscriptions, &data.active)
	listSubs(entity.SubscriptionStatusTrialing, domainErrors.StepTrialingSubscriptions, &data.trialing)
	listSubs(entity.SubscriptionStatusCanceled, domainErrors.StepCanceledSubscriptions, &data.canceled)

	g.Go(func() error {
		batch, err := a.ledger.ListPaidInvoices(gctx, nil)
		if err != nil {
			return domainErrors.NewUpstreamError(domainErrors.StepPaidInvoices, err)
		}
		data.invoices = batch
		return nil
	})
	g.Go(func() error {
		members, err := a.members.ListAll(gctx)
		if err != nil {
			return domainErrors.NewUpstreamError(domainErrors.StepMemberSnapshot, err)
		}
		data.members = members
		return nil
	})
	g.Go(func() error {
		events, err := a.events.List(gctx)
		if err != nil {
			return domainErrors.NewUpstreamError(domainErrors.StepEventHistory, err)
		}
		data.events = events
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func (a *MetricsAggregator) activeState(m *entity.Metrics, data *passData, now time.Time) {
	atRisk := decimal.Zero
	runRate := decimal.Zero

	for _, sub := range data.active {
		if !a.catalog.IsAnnual(sub) {
			continue
		}
		m.AnnualActiveCount++
		runRate = runRate.Add(decimal.NewFromInt(a.catalog.AnnualAmount(sub)))

		if !sub.PeriodEndsWithin(now, a.cfg.LookaheadWindow) {
			continue
		}
		m.Expiring30dCount++
		if sub.CancelAtPeriodEnd {
			m.AtRiskAnnualCount++
			for _, item := range sub.Items {
				atRisk = atRisk.Add(decimal.NewFromInt(item.Amount()))
			}
		}
	}

	m.TrialingSubscriptionsCount = len(data.trialing)
	for _, member := range data.members {
		if member.OnTrialPlan() {
			m.TrialMembersCount++
		}
	}

	m.RevenueAtRisk30d = toMajor(atRisk)
	m.AnnualRunRate = toMajor(runRate)
}

// churn divides annuals that ended inside the window by an estimate of annuals active at the
// window start: still-active annuals created before it plus the churned ones.
func (a *MetricsAggregator) churn(m *entity.Metrics, data *passData, now time.Time) {
	windowStart := now.Add(-a.cfg.ChurnWindow)

	for _, sub := range data.canceled {
		if sub.EndedAt == nil || !a.catalog.IsAnnual(sub) {
			continue
		}
		if !sub.EndedAt.Before(windowStart) && !sub.EndedAt.After(now) {
			m.ChurnedAnnual90d++
		}
	}

	activeAtStart := 0
	for _, sub := range data.active {
		if a.catalog.IsAnnual(sub) && sub.CreatedAt.Before(windowStart) {
			activeAtStart++
		}
	}

	m.ChurnRate90d = rate(m.ChurnedAnnual90d, activeAtStart+m.ChurnedAnnual90d)
}

// conversions counts the conversion set against the trial cohort. The cohort is every
// conversion plus every trial-marked subscription that did not convert, so the rate never
// exceeds 100.
func (a *MetricsAggregator) conversions(m *entity.Metrics, data *passData, set *entity.ConversionSet, now time.Time) {
	all := data.allSubscriptions()
	byID := make(map[string]entity.Subscription, len(all))
	for _, sub := range all {
		byID[sub.ID] = sub
	}

	recentStart := now.Add(-a.cfg.RecentWindow)
	convertedCustomers := make(map[string]struct{})
	for _, rec := range set.Records() {
		m.ConversionsAllTime++
		if rec.CustomerID != "" {
			convertedCustomers[rec.CustomerID] = struct{}{}
		}
		created, ok := conversionCreatedAt(rec, byID, all, a.catalog)
		if ok && !created.Before(recentStart) && !created.After(now) {
			m.Conversions30d++
		}
	}

	notConverted := 0
	for _, sub := range all {
		trialMarked := sub.Status == entity.SubscriptionStatusTrialing ||
			sub.HasTrialEnded(now) ||
			a.catalog.HasTrialPrice(sub)
		if !trialMarked || set.HasSubscription(sub.ID) {
			continue
		}
		if _, ok := convertedCustomers[sub.CustomerID]; ok && sub.CustomerID != "" {
			continue
		}
		notConverted++
	}

	m.TrialCohortCount = m.ConversionsAllTime + notConverted
	m.ConversionRate = rate(m.ConversionsAllTime, m.TrialCohortCount)
	if m.ConversionRate != nil {
		dropOff := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(*m.ConversionRate)).Round(1).InexactFloat64()
		m.DropOffRate = &dropOff
	}
	m.ConversionsByDetector = set.CountByDetector()
	m.UnresolvedConversions = len(set.Unresolved)
}

// conversionCreatedAt returns the creation time of the converted subscription. Customer-keyed
// records use the customer's newest annual subscription.
func conversionCreatedAt(rec entity.ConversionRecord, byID map[string]entity.Subscription, all []entity.Subscription, catalog entity.PriceCatalog) (time.Time, bool) {
	if rec.SubscriptionID != "" {
		sub, ok := byID[rec.SubscriptionID]
		return sub.CreatedAt, ok
	}

	var newest time.Time
	for _, sub := range all {
		if sub.CustomerID == rec.CustomerID && catalog.IsAnnual(sub) && sub.CreatedAt.After(newest) {
			newest = sub.CreatedAt
		}
	}
	return newest, !newest.IsZero()
}

type revenueBuckets struct {
	total, total30d             decimal.Decimal
	annual, annual30d           decimal.Decimal
	conversions, conversions30d decimal.Decimal
	direct, direct30d           decimal.Decimal
}

func (a *MetricsAggregator) revenue(ctx context.Context, m *entity.Metrics, data *passData, set *entity.ConversionSet, now time.Time, logger *zap.Logger) error {
	resolver := NewRefundResolver(a.refunds, a.currency, entity.PageLimits{
		PageSize: a.cfg.PageSize,
		MaxPages: a.cfg.MaxPages,
	}, logger)

	subs := make(map[string]entity.Subscription)
	for _, sub := range data.allSubscriptions() {
		subs[sub.ID] = sub
	}

	recentStart := now.Add(-a.cfg.RecentWindow)
	var b revenueBuckets

	for _, inv := range data.invoices.Invoices {
		net, err := resolver.NetAmount(ctx, inv)
		if err != nil {
			return err
		}
		if !strings.EqualFold(inv.Currency, a.currency) {
			continue
		}

		recent := !inv.CreatedAt.Before(recentStart) && !inv.CreatedAt.After(now)
		b.total = b.total.Add(net)
		if recent {
			b.total30d = b.total30d.Add(net)
		}

		if !inv.IsFirstInvoice() {
			continue
		}
		sub, known := subs[inv.SubscriptionID]
		if !inv.HasAnnualPrice(a.catalog) && !(known && a.catalog.IsAnnual(sub)) {
			continue
		}

		b.annual = b.annual.Add(net)
		if recent {
			b.annual30d = b.annual30d.Add(net)
		}
		if set.Contains(inv.SubscriptionID, inv.CustomerID) {
			b.conversions = b.conversions.Add(net)
			if recent {
				b.conversions30d = b.conversions30d.Add(net)
			}
		} else {
			b.direct = b.direct.Add(net)
			if recent {
				b.direct30d = b.direct30d.Add(net)
			}
		}
	}

	m.TotalRevenueAllTime = toMajor(b.total)
	m.TotalRevenue30d = toMajor(b.total30d)
	m.AnnualRevenueAllTime = toMajor(b.annual)
	m.AnnualRevenue30d = toMajor(b.annual30d)
	m.RevenueFromConversionsAllTime = toMajor(b.conversions)
	m.RevenueFromConversions30d = toMajor(b.conversions30d)
	m.RevenueFromDirectAllTime = toMajor(b.direct)
	m.RevenueFromDirect30d = toMajor(b.direct30d)

	m.InvoicesScanned = len(data.invoices.Invoices)
	m.InvoiceCapReached = data.invoices.CapReached
	m.SkippedCurrencyInvoices = resolver.Skipped()
	return nil
}

// toMajor converts minor units to major units rounded to two decimals.
func toMajor(minor decimal.Decimal) float64 {
	return minor.Div(hundred).Round(2).InexactFloat64()
}

// rate returns num/den as a percentage rounded to one decimal, or nil for a zero denominator.
func rate(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	r := decimal.NewFromInt(int64(num)).Mul(hundred).Div(decimal.NewFromInt(int64(den))).Round(1).InexactFloat64()
	return &r
}
