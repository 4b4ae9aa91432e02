package bank

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "bank")

// HumansClient is the subset of the Humans RPC surface the swap saga
// needs: spend the reward balance up front, refund it if the ledger
// transfer fails (spec §4.5's compensating action).
type HumansClient interface {
	SpendRewards(spender core.Principal, hours, storypoints e8s.E8s) error
	RefundRewards(spender core.Principal, hours, storypoints e8s.E8s) error
}

// LedgerClient is the ICRC-1-shaped transfer surface of an asset
// ledger (the FMJ or ICP ledger canister in the original; here, any
// ledger adapter that can move qty to recipient).
type LedgerClient interface {
	Transfer(recipient core.Principal, qty e8s.E8s, now core.TimestampNs) (blockIdx uint64, err error)
}

// Service owns the exchange-rate table exclusively.
type Service struct {
	mu sync.Mutex

	rates map[ratePair][]rateEntry

	fmjLedger LedgerClient
	icpLedger LedgerClient
	humans    HumansClient

	totalFmjBought e8s.E8s
	swapCount      uint64

	admins map[string]struct{}
}

// New seeds the default exchange rates the way BankState::new does:
// 1 storypoint or hour == 10000 FMJ == 1 ICP, all as of now.
func New(fmjLedger, icpLedger LedgerClient, humans HumansClient, admins []string, now core.TimestampNs) *Service {
	adminSet := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		adminSet[a] = struct{}{}
	}

	fmjRate := e8s.FromUint64(10000 * 100_000_000)
	icpRate := e8s.FromUint64(1 * 100_000_000)

	rates := map[ratePair][]rateEntry{
		{SwapFromStorypoint, SwapIntoFMJ}: {{At: uint64(now), Rate: fmjRate}},
		{SwapFromStorypoint, SwapIntoICP}: {{At: uint64(now), Rate: icpRate}},
		{SwapFromHour, SwapIntoFMJ}:       {{At: uint64(now), Rate: fmjRate}},
		{SwapFromHour, SwapIntoICP}:       {{At: uint64(now), Rate: icpRate}},
	}

	return &Service{
		rates:          rates,
		fmjLedger:      fmjLedger,
		icpLedger:      icpLedger,
		humans:         humans,
		admins:         adminSet,
		totalFmjBought: e8s.Zero(),
	}
}

func (s *Service) authorizeAdmin(callerID string) error {
	if _, ok := s.admins[callerID]; !ok {
		return svcerr.Authorizationf("bank: caller %q is not an exchange-rate admin", callerID)
	}
	return nil
}

// SetExchangeRate prepends a new (now, rate) history point for the
// (from, into) pair (spec §4.5).
func (s *Service) SetExchangeRate(callerID string, from SwapFrom, into SwapInto, rate e8s.E8s, now core.TimestampNs) error {
	if err := s.authorizeAdmin(callerID); err != nil {
		return err
	}
	if rate.IsZero() {
		return svcerr.Validationf("bank: exchange rate must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ratePair{from, into}
	history, ok := s.rates[key]
	if !ok {
		return svcerr.Validationf("bank: unknown exchange rate pair")
	}
	s.rates[key] = append([]rateEntry{{At: uint64(now), Rate: rate}}, history...)
	log.Info("exchange rate updated", "from", from, "into", into, "rate", rate.Display())
	return nil
}

// GetExchangeRates is the read-only query (spec §4.5).
func (s *Service) GetExchangeRates() []ExchangeRateRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]ExchangeRateRow, 0, len(s.rates))
	for pair, history := range s.rates {
		points := make([]ExchangeRateHistoryPoint, len(history))
		for i, h := range history {
			points[i] = ExchangeRateHistoryPoint{At: h.At, Rate: h.Rate}
		}
		rows = append(rows, ExchangeRateRow{From: pair.From, Into: pair.Into, History: points})
	}
	return rows
}

func (s *Service) currentRate(from SwapFrom, into SwapInto) (e8s.E8s, error) {
	history, ok := s.rates[ratePair{from, into}]
	if !ok || len(history) == 0 {
		return e8s.Zero(), svcerr.Validationf("bank: no exchange rate for requested pair")
	}
	return history[0].Rate, nil
}

// FmjStats is the supplemented read-only query over the running FMJ
// purchase totals the original's get_fmj_stats exposes.
type FmjStats struct {
	TotalFmjBought e8s.E8s
	SwapCount      uint64
}

func (s *Service) GetFmjStats() FmjStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FmjStats{TotalFmjBought: s.totalFmjBought, SwapCount: s.swapCount}
}

// SwapResult is the successful outcome of SwapRewards.
type SwapResult struct {
	BlockIdx uint64
	Qty      e8s.E8s
}

// SwapRewards is the saga at the heart of Bank (spec §4.5): spend the
// caller's reward balance up front, attempt the ledger transfer, and
// compensate with a refund if the transfer fails. A ledger-side
// failure after Humans has already spent the balance is recoverable by
// refund; a failure during the refund itself is unrecoverable and
// surfaces as svcerr.Fatal, mirroring the original's trap on double
// failure.
func (s *Service) SwapRewards(caller core.Principal, from SwapFrom, into SwapInto, qty e8s.E8s, now core.TimestampNs) (*SwapResult, error) {
	s.mu.Lock()
	rate, err := s.currentRate(from, into)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	hours, storypoints := e8s.Zero(), e8s.Zero()
	switch from {
	case SwapFromHour:
		hours = qty
	case SwapFromStorypoint:
		storypoints = qty
	}

	if err := s.humans.SpendRewards(caller, hours, storypoints); err != nil {
		return nil, err
	}

	converted := e8s.Mul(qty, rate)

	ledger := s.icpLedger
	if into == SwapIntoFMJ {
		ledger = s.fmjLedger
	}

	blockIdx, transferErr := ledger.Transfer(caller, converted, now)
	if transferErr != nil {
		if refundErr := s.humans.RefundRewards(caller, hours, storypoints); refundErr != nil {
			svcerr.Panic("bank: unable to refund rewards after failed swap for %s: %s (transfer error: %s)", caller, refundErr, transferErr)
		}
		return nil, svcerr.Transportf("bank: Bad swap, rewards refunded: %s", transferErr)
	}

	s.mu.Lock()
	if into == SwapIntoFMJ {
		s.totalFmjBought = e8s.Add(s.totalFmjBought, converted)
	}
	s.swapCount++
	s.mu.Unlock()

	log.Info("swap completed", "caller", caller, "from", from, "into", into, "qty", converted.Display())
	return &SwapResult{BlockIdx: blockIdx, Qty: converted}, nil
}

func (f SwapFrom) String() string {
	if f == SwapFromHour {
		return "hour"
	}
	return "storypoint"
}

func (i SwapInto) String() string {
	if i == SwapIntoFMJ {
		return "fmj"
	}
	return "icp"
}
