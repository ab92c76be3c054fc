package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/usecase"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestRefundResolver_NetAmount(t *testing.T) {
	ctx := context.Background()
	limits := entity.PageLimits{PageSize: 10}

	t.Run("refunded amount on invoice is used directly", func(t *testing.T) {
		tests := []struct {
			name     string
			paid     int64
			refunded int64
			want     int64
		}{
			{name: "no refund", paid: 7900, refunded: 0, want: 7900},
			{name: "partial refund", paid: 7900, refunded: 2000, want: 5900},
			{name: "full refund", paid: 7900, refunded: 7900, want: 0},
			{name: "over refund floors at zero", paid: 7900, refunded: 9000, want: 0},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ledger := newFakeLedger()
				resolver := usecase.NewRefundResolver(ledger, "usd", limits, zap.NewNop())

				net, err := resolver.NetAmount(ctx, entity.Invoice{
					ID:             "in_1",
					Currency:       "usd",
					Total:          tt.paid,
					AmountPaid:     tt.paid,
					AmountRefunded: int64Ptr(tt.refunded),
					ChargeID:       "ch_1",
				})
				require.NoError(t, err)
				assert.True(t, decimal.NewFromInt(tt.want).Equal(net), "got %s", net)
				assert.Zero(t, ledger.refundCalls["ch_1"], "fast path never lists refunds")
			})
		}
	})

	t.Run("refunds listed per charge and memoized", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.refunds["ch_1"] = []entity.Refund{
			{ID: "re_1", Amount: 1500, Status: "succeeded"},
			{ID: "re_2", Amount: 500, Status: "succeeded"},
			{ID: "re_3", Amount: 900, Status: "failed"},
		}
		resolver := usecase.NewRefundResolver(ledger, "USD", entity.PageLimits{PageSize: 1}, zap.NewNop())

		inv := entity.Invoice{ID: "in_1", Currency: "usd", Total: 7900, AmountPaid: 7900, ChargeID: "ch_1"}
		net, err := resolver.NetAmount(ctx, inv)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(5900).Equal(net), "got %s", net)
		assert.Equal(t, 3, ledger.refundCalls["ch_1"], "one call per refund page")

		again, err := resolver.NetAmount(ctx, inv)
		require.NoError(t, err)
		assert.True(t, net.Equal(again))
		assert.Equal(t, 3, ledger.refundCalls["ch_1"], "second lookup is memoized")
	})

	t.Run("invoice without charge nets to its total", func(t *testing.T) {
		resolver := usecase.NewRefundResolver(newFakeLedger(), "usd", limits, zap.NewNop())
		net, err := resolver.NetAmount(ctx, entity.Invoice{ID: "in_1", Currency: "usd", Total: 4200})
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(4200).Equal(net))
	})

	t.Run("non settlement currency is skipped", func(t *testing.T) {
		ledger := newFakeLedger()
		resolver := usecase.NewRefundResolver(ledger, "usd", limits, zap.NewNop())

		net, err := resolver.NetAmount(ctx, entity.Invoice{ID: "in_1", Currency: "eur", Total: 7900, AmountPaid: 7900, ChargeID: "ch_1"})
		require.NoError(t, err)
		assert.True(t, net.IsZero())
		assert.Equal(t, 1, resolver.Skipped())
		assert.Zero(t, ledger.refundCalls["ch_1"])
	})

	t.Run("refund listing failure is an upstream error", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.refundErr = errors.New("connection reset")
		resolver := usecase.NewRefundResolver(ledger, "usd", limits, zap.NewNop())

		_, err := resolver.NetAmount(ctx, entity.Invoice{ID: "in_1", Currency: "usd", Total: 7900, ChargeID: "ch_1"})
		require.Error(t, err)
		assert.Equal(t, domainErrors.StepRefunds, domainErrors.StepOf(err))
		assert.ErrorIs(t, err, ledger.refundErr)
	})
}
