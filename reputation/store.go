package reputation

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

// MemoryId partitions mirror the four independently addressed
// stable-memory regions of spec §5: balances map (0), total supply
// cell (1), decay cursor (2), initialized flag (3). A single leveldb.DB
// stands in for IC stable memory, partitioned by a one-byte MemoryId
// prefix, the way muxdb/engine/leveldb.go's levelEngine wraps one
// leveldb.DB behind the generic kv.Engine interface.
const (
	memBalances     byte = 0
	memTotalSupply  byte = 1
	memDecayCursor  byte = 2
	memInitialized  byte = 3
)

// Store is the stable-memory-backed RepBalance B-tree.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a leveldb-backed store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("reputation: open store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMem opens an in-memory store, used by tests.
func OpenMem() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func balanceKey(p core.Principal) []byte {
	k := make([]byte, 1+core.PrincipalLen)
	k[0] = memBalances
	copy(k[1:], p[:])
	return k
}

// repBalanceEntrySize is the §6 fixed 41-byte record: 8-byte LE
// updated_at, 1-byte balance length L (<=32), L bytes LE balance
// magnitude, zero-padded to the 41-byte max.
const repBalanceEntrySize = 41

type repBalanceEntry struct {
	Balance   e8s.E8s
	UpdatedAt core.TimestampNs
}

func encodeEntry(e repBalanceEntry) ([]byte, error) {
	buf := make([]byte, repBalanceEntrySize)
	for i := 0; i < 8; i++ {
		buf[i] = byte(e.UpdatedAt >> (8 * i))
	}
	wire, err := e.Balance.MarshalWire()
	if err != nil {
		return nil, err
	}
	if len(wire) > 1+32 {
		return nil, fmt.Errorf("reputation: balance magnitude exceeds 32 bytes")
	}
	copy(buf[8:], wire) // [8]=length byte, [9:9+L]=magnitude, rest stays zero-padded
	return buf, nil
}

func decodeEntry(buf []byte) (repBalanceEntry, error) {
	if len(buf) != repBalanceEntrySize {
		return repBalanceEntry{}, fmt.Errorf("reputation: balance entry must be exactly %d bytes, got %d", repBalanceEntrySize, len(buf))
	}
	var updatedAt core.TimestampNs
	for i := 0; i < 8; i++ {
		updatedAt |= core.TimestampNs(buf[i]) << (8 * i)
	}
	l := int(buf[8])
	if l > 32 || 9+l > len(buf) {
		return repBalanceEntry{}, fmt.Errorf("reputation: corrupt balance entry length %d", l)
	}
	balance, _, err := e8s.UnmarshalWire(buf[8:])
	if err != nil {
		return repBalanceEntry{}, err
	}
	return repBalanceEntry{Balance: balance, UpdatedAt: updatedAt}, nil
}

func (s *Store) getBalance(p core.Principal) (repBalanceEntry, bool, error) {
	buf, err := s.db.Get(balanceKey(p), nil)
	if err == leveldb.ErrNotFound {
		return repBalanceEntry{}, false, nil
	}
	if err != nil {
		return repBalanceEntry{}, false, err
	}
	e, err := decodeEntry(buf)
	return e, true, err
}

func (s *Store) putBalance(p core.Principal, e repBalanceEntry) error {
	buf, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return s.db.Put(balanceKey(p), buf, nil)
}

func (s *Store) deleteBalance(p core.Principal) error {
	return s.db.Delete(balanceKey(p), nil)
}

func (s *Store) getTotalSupply() (e8s.E8s, error) {
	buf, err := s.db.Get([]byte{memTotalSupply}, nil)
	if err == leveldb.ErrNotFound {
		return e8s.Zero(), nil
	}
	if err != nil {
		return e8s.Zero(), err
	}
	v, _, err := e8s.UnmarshalWire(buf)
	return v, err
}

func (s *Store) setTotalSupply(v e8s.E8s) error {
	buf, err := v.MarshalWire()
	if err != nil {
		return err
	}
	return s.db.Put([]byte{memTotalSupply}, buf, nil)
}

func (s *Store) getDecayCursor() (core.Principal, bool, error) {
	buf, err := s.db.Get([]byte{memDecayCursor}, nil)
	if err == leveldb.ErrNotFound {
		return core.Principal{}, false, nil
	}
	if err != nil {
		return core.Principal{}, false, err
	}
	var p core.Principal
	copy(p[:], buf)
	return p, true, nil
}

func (s *Store) setDecayCursor(p *core.Principal) error {
	if p == nil {
		return s.db.Delete([]byte{memDecayCursor}, nil)
	}
	return s.db.Put([]byte{memDecayCursor}, p[:], nil)
}

func (s *Store) isInitialized() (bool, error) {
	v, err := s.db.Get([]byte{memInitialized}, nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(v) == 1 && v[0] == 1, nil
}

func (s *Store) setInitialized() error {
	return s.db.Put([]byte{memInitialized}, []byte{1}, nil)
}

// GetBalances reads the raw balance (zero if absent) for each requested
// principal, for the GetBalance query (SPEC_FULL.md supplement).
func (s *Store) GetBalances(ids []core.Principal) ([]e8s.E8s, error) {
	out := make([]e8s.E8s, len(ids))
	for i, id := range ids {
		e, ok, err := s.getBalance(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = e.Balance
		}
	}
	return out, nil
}

// GetTotalSupply exposes the total-supply cell read for the
// GetTotalSupply query.
func (s *Store) GetTotalSupply() (e8s.E8s, error) { return s.getTotalSupply() }

// iterChunk walks up to n balance entries starting strictly after
// `after` (nil means from the very beginning) in key order, mirroring
// the original's `iter_upper_bound(start)` resumption semantics. It
// returns the entries visited and the last key visited (nil if none),
// which becomes the new decay cursor.
func (s *Store) iterChunk(after *core.Principal, n int) ([]core.Principal, []repBalanceEntry, *core.Principal, error) {
	var rng *util.Range
	if after != nil {
		start := balanceKey(*after)
		// exclusive start: the smallest key strictly greater than `start`.
		excl := append(append([]byte{}, start...), 0x00)
		rng = &util.Range{Start: excl, Limit: prefixLimit(memBalances)}
	} else {
		rng = &util.Range{Start: []byte{memBalances}, Limit: prefixLimit(memBalances)}
	}

	it := s.db.NewIterator(rng, nil)
	defer it.Release()

	var ids []core.Principal
	var entries []repBalanceEntry
	var last *core.Principal
	for len(ids) < n && it.Next() {
		key := it.Key()
		var p core.Principal
		copy(p[:], key[1:])
		e, err := decodeEntry(it.Value())
		if err != nil {
			return nil, nil, nil, err
		}
		ids = append(ids, p)
		entries = append(entries, e)
		lastCopy := p
		last = &lastCopy
	}
	if err := it.Error(); err != nil {
		return nil, nil, nil, err
	}
	return ids, entries, last, nil
}

func prefixLimit(prefix byte) []byte {
	return []byte{prefix + 1}
}
