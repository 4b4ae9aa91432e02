package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/svcerr"
)

type stubLedger struct {
	nextBlock uint64
	fail      bool
	transfers []e8s.E8s
}

func (l *stubLedger) Transfer(recipient core.Principal, qty e8s.E8s, now core.TimestampNs) (uint64, error) {
	if l.fail {
		return 0, svcerr.Transportf("ledger unavailable")
	}
	l.nextBlock++
	l.transfers = append(l.transfers, qty)
	return l.nextBlock, nil
}

type stubHumans struct {
	spent        map[core.Principal][2]uint64
	refunded     map[core.Principal][2]uint64
	spendErr     error
	refundErr    error
}

func newStubHumans() *stubHumans {
	return &stubHumans{spent: map[core.Principal][2]uint64{}, refunded: map[core.Principal][2]uint64{}}
}

func (h *stubHumans) SpendRewards(spender core.Principal, hours, storypoints e8s.E8s) error {
	if h.spendErr != nil {
		return h.spendErr
	}
	h.spent[spender] = [2]uint64{hours.Raw().Uint64(), storypoints.Raw().Uint64()}
	return nil
}

func (h *stubHumans) RefundRewards(spender core.Principal, hours, storypoints e8s.E8s) error {
	if h.refundErr != nil {
		return h.refundErr
	}
	h.refunded[spender] = [2]uint64{hours.Raw().Uint64(), storypoints.Raw().Uint64()}
	return nil
}

func newTestService(t *testing.T, fmjLedger, icpLedger *stubLedger, humans *stubHumans) *Service {
	t.Helper()
	return New(fmjLedger, icpLedger, humans, []string{"admin"}, 1)
}

func TestDefaultExchangeRatesSeeded(t *testing.T) {
	svc := newTestService(t, &stubLedger{}, &stubLedger{}, newStubHumans())
	rows := svc.GetExchangeRates()
	assert.Len(t, rows, 4)
}

func TestSetExchangeRateRequiresAdmin(t *testing.T) {
	svc := newTestService(t, &stubLedger{}, &stubLedger{}, newStubHumans())
	err := svc.SetExchangeRate("tasks", SwapFromHour, SwapIntoFMJ, e8s.FromUint64(1), 2)
	assert.Error(t, err)
}

func TestSetExchangeRatePrependsHistory(t *testing.T) {
	svc := newTestService(t, &stubLedger{}, &stubLedger{}, newStubHumans())
	newRate := e8s.FromUint64(5 * 100_000_000)
	require.NoError(t, svc.SetExchangeRate("admin", SwapFromHour, SwapIntoFMJ, newRate, 2))

	rate, err := svc.currentRate(SwapFromHour, SwapIntoFMJ)
	require.NoError(t, err)
	assert.Equal(t, newRate.Raw().Uint64(), rate.Raw().Uint64())
}

func TestSwapRewardsHappyPath(t *testing.T) {
	fmj := &stubLedger{}
	humans := newStubHumans()
	svc := newTestService(t, fmj, &stubLedger{}, humans)
	caller := core.NewRandomPrincipal()

	res, err := svc.SwapRewards(caller, SwapFromHour, SwapIntoFMJ, e8s.FromUint64(100_000_000), 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.BlockIdx)

	stats := svc.GetFmjStats()
	assert.Equal(t, uint64(1), stats.SwapCount)
	assert.False(t, stats.TotalFmjBought.IsZero())
	assert.Equal(t, uint64(100_000_000), humans.spent[caller][0])
}

func TestSwapRewardsRefundsOnLedgerFailure(t *testing.T) {
	fmj := &stubLedger{fail: true}
	humans := newStubHumans()
	svc := newTestService(t, fmj, &stubLedger{}, humans)
	caller := core.NewRandomPrincipal()

	_, err := svc.SwapRewards(caller, SwapFromHour, SwapIntoFMJ, e8s.FromUint64(100_000_000), 10)
	assert.Error(t, err)
	assert.Equal(t, uint64(100_000_000), humans.refunded[caller][0])

	stats := svc.GetFmjStats()
	assert.Equal(t, uint64(0), stats.SwapCount)
}

func TestSwapRewardsUnknownPair(t *testing.T) {
	svc := newTestService(t, &stubLedger{}, &stubLedger{}, newStubHumans())
	_, err := svc.currentRate(SwapFrom(99), SwapIntoFMJ)
	assert.Error(t, err)
}
