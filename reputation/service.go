// Package reputation implements the stable-memory-backed reputation
// balance store: minting (Tasks/WorkReports only), scheduled decay, and
// reputation-proof issuance backed by a liquid-democracy follower cache
// (spec §4.3).
package reputation

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/liquiddemocracy"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "reputation")

// FollowersResolver is the liquid-democracy dependency Reputation calls
// out to when assembling a reputation proof that needs a follower set
// (spec §4.3's GetRepProof part 1/2 split). In a single-process
// deployment this is backed directly by *liquiddemocracy.Service; across
// processes it is backed by an HTTP client hitting the liquid-democracy
// RPC surface.
type FollowersResolver interface {
	GetFollowersOf(ids []core.Principal) map[core.Principal]map[core.Principal]struct{}
	TopicSetOf(follower, followee core.Principal) (*liquiddemocracy.TopicSet, error)
}

type followerCacheEntry struct {
	followers map[core.Principal]*liquiddemocracy.TopicSet
	cachedAt  core.TimestampNs
}

// MintEntry is one (account, qty) pair of a Mint call.
type MintEntry struct {
	Account core.Principal
	Qty     e8s.E8s
}

// LiquidDemocracySelector picks whether a reputation proof needs the
// caller's follower set attached.
type LiquidDemocracySelector int

const (
	SelectorOnlyMe LiquidDemocracySelector = iota
	SelectorWithFollowers
)

// FollowerInfo pairs a follower's current balance with the topic
// predicate their follow edge was registered under.
type FollowerInfo struct {
	Balance  e8s.E8s
	TopicSet *liquiddemocracy.TopicSet
}

// ReputationProof is the in-process form of the certified reply; the
// HTTP/proof layer is responsible for signing and CBOR-encoding it.
type ReputationProof struct {
	ID                    core.Principal
	Reputation            e8s.E8s
	ReputationTotalSupply e8s.E8s
	Followers             map[core.Principal]FollowerInfo
}

// RefreshNeeded is returned by GetRepProof part 1 when the caller's
// follower-cache entry is missing or stale and the selector requires
// followers: the caller must resolve followers via liquid-democracy and
// call RefreshFollowerCache before retrying part 2 (spec §4.3's
// deliberate two-phase split, to avoid blocking Reputation during the
// inter-service RPC).
type RefreshNeeded struct {
	Caller core.Principal
}

func (e *RefreshNeeded) Error() string {
	return "reputation: follower cache stale, refresh required before issuing proof"
}

// Service owns the reputation balance store exclusively.
type Service struct {
	mu sync.Mutex

	store       *Store
	followerTTL map[core.Principal]followerCacheEntry

	allowedMinters map[string]struct{} // caller ids permitted to call Mint (Tasks, WorkReports)
}

// New wires a Service around an already-open Store.
func New(store *Store, allowedMinters []string) *Service {
	allowed := make(map[string]struct{}, len(allowedMinters))
	for _, m := range allowedMinters {
		allowed[m] = struct{}{}
	}
	return &Service{store: store, followerTTL: make(map[core.Principal]followerCacheEntry), allowedMinters: allowed}
}

// Init seeds the default entry the way the original's `init` does: the
// very first caller (the deployer) starts with reputation 1 so the
// total supply is never zero at genesis. Panics if called twice, per
// the original's own contract.
func (s *Service) Init(caller core.Principal, now core.TimestampNs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	initialized, err := s.store.isInitialized()
	if err != nil {
		return err
	}
	if initialized {
		svcerr.Panic("reputation: cannot initialize twice")
	}

	one := e8s.FromUint64(100_000_000)
	if err := s.store.putBalance(caller, repBalanceEntry{Balance: one, UpdatedAt: now}); err != nil {
		return err
	}
	if err := s.store.setTotalSupply(one); err != nil {
		return err
	}
	return s.store.setInitialized()
}

// authorizeMinter checks callerID against the allow-list (spec §4.3 —
// "callable only by the Tasks service" / WorkReports by extension).
func (s *Service) authorizeMinter(callerID string) error {
	if _, ok := s.allowedMinters[callerID]; !ok {
		return svcerr.Authorizationf("reputation: caller %q is not an authorized minter", callerID)
	}
	return nil
}

// Mint adds qty to each account's balance and to total supply.
func (s *Service) Mint(callerID string, entries []MintEntry, now core.TimestampNs) error {
	if err := s.authorizeMinter(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := e8s.Zero()
	for _, entry := range entries {
		total = e8s.Add(total, entry.Qty)

		prev, ok, err := s.store.getBalance(entry.Account)
		if err != nil {
			return err
		}
		newBalance := entry.Qty
		if ok {
			newBalance = e8s.Add(prev.Balance, entry.Qty)
		}
		if err := s.store.putBalance(entry.Account, repBalanceEntry{Balance: newBalance, UpdatedAt: now}); err != nil {
			return err
		}
	}

	supply, err := s.store.getTotalSupply()
	if err != nil {
		return err
	}
	if err := s.store.setTotalSupply(e8s.Add(supply, total)); err != nil {
		return err
	}
	log.Info("minted reputation", "accounts", len(entries), "total", total.Display())
	return nil
}

// DecayRound runs one chunked decay pass of up to core.DecayRoundChunkSize
// entries (spec §4.3). It returns true if the caller should reschedule
// immediately (more entries remain in this pass) or false if the pass
// completed and the next one should be scheduled a month out.
func (s *Service) DecayRound(now core.TimestampNs) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor, hasCursor, err := s.store.getDecayCursor()
	if err != nil {
		return false, err
	}
	var after *core.Principal
	if hasCursor {
		after = &cursor
	}

	ids, entries, last, err := s.store.iterChunk(after, core.DecayRoundChunkSize)
	if err != nil {
		return false, err
	}

	totalDecay := e8s.Zero()
	for i, id := range ids {
		entry := entries[i]
		if !shouldDecay(entry, now) {
			continue
		}
		deleted, decayed, newBalance := decayEntry(entry.Balance)
		totalDecay = e8s.Add(totalDecay, decayed)
		if deleted {
			if err := s.store.deleteBalance(id); err != nil {
				return false, err
			}
			continue
		}
		if err := s.store.putBalance(id, repBalanceEntry{Balance: newBalance, UpdatedAt: entry.UpdatedAt}); err != nil {
			return false, err
		}
	}

	if !totalDecay.IsZero() {
		supply, err := s.store.getTotalSupply()
		if err != nil {
			return false, err
		}
		newSupply, err := e8s.Sub(supply, totalDecay)
		if err != nil {
			// Decay must never drive total supply negative (spec §8 invariant 9).
			return false, svcerr.Invariantf("reputation: decay would make total_supply negative: %s", err)
		}
		if err := s.store.setTotalSupply(newSupply); err != nil {
			return false, err
		}
	}

	// A chunk shorter than core.DecayRoundChunkSize means the iterator is
	// exhausted: clear the cursor so the next pass starts from the first key.
	shouldReschedule := len(ids) == core.DecayRoundChunkSize
	next := last
	if !shouldReschedule {
		next = nil
	}
	if err := s.store.setDecayCursor(next); err != nil {
		return false, err
	}
	log.Info("decay round complete", "visited", len(ids), "decayed", totalDecay.Display(), "reschedule_immediately", shouldReschedule)
	return shouldReschedule, nil
}

// shouldDecay mirrors RepBalanceEntry::should_decay: an entry decays
// once at least a week has passed since it was last touched.
func shouldDecay(e repBalanceEntry, now core.TimestampNs) bool {
	if now < e.UpdatedAt {
		return false
	}
	return now.Sub(e.UpdatedAt) >= core.OneWeekNs
}

// decayEntry applies up to 4 successive integer-sqrt reductions,
// stopping early (and signalling deletion) if the balance hits zero.
func decayEntry(balance e8s.E8s) (deleted bool, totalDecay e8s.E8s, newBalance e8s.E8s) {
	totalDecay = e8s.Zero()
	for i := 0; i < 4; i++ {
		reduction := balance.Sqrt()
		totalDecay = e8s.Add(totalDecay, reduction)
		next, err := e8s.Sub(balance, reduction)
		if err != nil {
			// sqrt(x) <= x always, so this cannot happen; treat as full decay.
			return true, totalDecay, e8s.Zero()
		}
		balance = next
		if balance.IsZero() {
			return true, totalDecay, e8s.Zero()
		}
	}
	return false, totalDecay, balance
}

// GetBalance and GetTotalSupply are the read-only queries supplemented
// in SPEC_FULL.md.
func (s *Service) GetBalance(id core.Principal) (e8s.E8s, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok, err := s.store.getBalance(id)
	if err != nil {
		return e8s.Zero(), err
	}
	if !ok {
		return e8s.Zero(), nil
	}
	return e.Balance, nil
}

func (s *Service) GetTotalSupply() (e8s.E8s, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.getTotalSupply()
}

// GetRepProofPart1 checks whether the caller's follower cache needs a
// refresh before a proof can be built (spec §4.3). Returns nil if the
// cache is fresh enough (or the selector doesn't need followers at
// all); returns *RefreshNeeded otherwise, so the caller can RPC
// liquid-democracy and call RefreshFollowerCache.
func (s *Service) GetRepProofPart1(caller core.Principal, selector LiquidDemocracySelector, now core.TimestampNs) error {
	if selector == SelectorOnlyMe {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.followerTTL[caller]
	if ok && now.Sub(entry.cachedAt) <= 8*core.OneHourNs {
		return nil
	}
	return &RefreshNeeded{Caller: caller}
}

// RefreshFollowerCache installs a freshly resolved follower set for
// caller, to be called after the caller's own RPC to liquid-democracy
// completes (spec §4.3 part 1/2 split).
func (s *Service) RefreshFollowerCache(caller core.Principal, followers map[core.Principal]*liquiddemocracy.TopicSet, now core.TimestampNs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followerTTL[caller] = followerCacheEntry{followers: followers, cachedAt: now}
}

// GetRepProofPart2 assembles the proof once the follower cache (if
// needed) is fresh. Callers must have already called GetRepProofPart1
// and, if it returned *RefreshNeeded, RefreshFollowerCache.
func (s *Service) GetRepProofPart2(caller core.Principal, selector LiquidDemocracySelector) (*ReputationProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, _, err := s.store.getBalance(caller)
	if err != nil {
		return nil, err
	}
	supply, err := s.store.getTotalSupply()
	if err != nil {
		return nil, err
	}

	followers := make(map[core.Principal]FollowerInfo)
	if selector != SelectorOnlyMe {
		cached, ok := s.followerTTL[caller]
		if !ok {
			return nil, svcerr.Statef("reputation: no follower cache entry for caller %s, call RefreshFollowerCache first", caller)
		}
		for follower, ts := range cached.followers {
			balEntry, ok, err := s.store.getBalance(follower)
			if err != nil {
				return nil, err
			}
			bal := e8s.Zero()
			if ok {
				bal = balEntry.Balance
			}
			followers[follower] = FollowerInfo{Balance: bal, TopicSet: ts}
		}
	}

	return &ReputationProof{
		ID:                    caller,
		Reputation:            entry.Balance,
		ReputationTotalSupply: supply,
		Followers:             followers,
	}, nil
}
