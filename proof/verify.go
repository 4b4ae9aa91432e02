package proof

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "proof")

// Verifier checks an issuer's signature over a payload. Production
// deployments back this with the platform certificate authority's root
// key per issuer; here it stands in for that authority as a registry of
// per-issuer secp256k1 public keys (spec §1 treats root-key distribution
// itself as an external collaborator, not specified in detail).
type Verifier interface {
	Verify(issuerID string, payload []byte, signature []byte) error
}

// RootKeys is a Verifier backed by an in-memory issuer-id -> public-key
// registry, filled by Register; NewRootKeys starts it empty.
type RootKeys struct {
	mu   sync.RWMutex
	keys map[string]*secp256k1.PublicKey
}

// NewRootKeys builds an empty registry.
func NewRootKeys() *RootKeys {
	return &RootKeys{keys: make(map[string]*secp256k1.PublicKey)}
}

// Register binds issuerID to a 33-byte compressed secp256k1 public key.
func (r *RootKeys) Register(issuerID string, compressedPubKey []byte) error {
	pub, err := secp256k1.ParsePubKey(compressedPubKey)
	if err != nil {
		return fmt.Errorf("proof: bad root key for %s: %w", issuerID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[issuerID] = pub
	return nil
}

func (r *RootKeys) Verify(issuerID string, payload, signature []byte) error {
	r.mu.RLock()
	pub, ok := r.keys[issuerID]
	r.mu.RUnlock()
	if !ok {
		return svcerr.Prooff("no root key registered for issuer %q", issuerID)
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return svcerr.Prooff("bad certificate signature encoding: %s", err)
	}
	h := sha256.Sum256(payload)
	if !sig.Verify(h[:], pub) {
		return svcerr.Prooff("certificate signature verification failed for issuer %q", issuerID)
	}
	return nil
}

// CertCache is the LRU(256) cache of already-verified raw certificates,
// keyed by SHA-256 of the raw bytes (spec §4.9 step 3/4, §8 scenario 8).
type CertCache struct {
	lru *lru.Cache
}

// NewCertCache builds the cache with the system-wide capacity.
func NewCertCache() *CertCache {
	c, err := lru.New(core.CertCacheCapacity)
	if err != nil {
		// lru.New only errors on non-positive size, which core.CertCacheCapacity never is.
		panic(err)
	}
	return &CertCache{lru: c}
}

func hashOf(raw []byte) [32]byte { return sha256.Sum256(raw) }

// Contains reports whether raw's hash is already cached, i.e. whether
// signature verification may be skipped for it.
func (c *CertCache) Contains(raw []byte) bool {
	_, ok := c.lru.Get(hashOf(raw))
	return ok
}

// Remember inserts raw's hash into the cache.
func (c *CertCache) Remember(raw []byte) {
	c.lru.Add(hashOf(raw), struct{}{})
}

// labelTime/labelRequestStatus/labelReply are the certificate tree
// labels used to locate the well-known leaves of spec §4.9.
var (
	labelTime          = []byte("time")
	labelRequestStatus = []byte("request_status")
	labelReply         = []byte("reply")
)

// VerifyAndDecode implements spec §4.9's seven steps: parse, locate
// request_status/request_id, skip signature verification on a cache
// hit, verify otherwise, check freshness against now, and decode the
// certified reply as T.
func VerifyAndDecode[T any](cache *CertCache, verifier Verifier, certRaw []byte, issuerID string, now core.TimestampNs, decode func([]byte) (T, error)) (T, error) {
	var zero T

	cert, err := Decode(certRaw)
	if err != nil {
		return zero, svcerr.Prooff("parse certificate: %s", err)
	}

	// request_status/<request_id>/reply — the request id itself is not
	// otherwise used by callers of this function.
	replyBytes, err := lookupReply(cert.Tree)
	if err != nil {
		return zero, svcerr.Prooff("certificate missing reply leaf: %s", err)
	}

	if cache.Contains(certRaw) {
		log.Debug("certificate signature check skipped, cache hit")
	} else {
		payload, err := cert.SignedPayload()
		if err != nil {
			return zero, svcerr.Prooff("re-encode signed payload: %s", err)
		}
		if err := verifier.Verify(issuerID, payload, cert.Signature); err != nil {
			return zero, err
		}
		cache.Remember(certRaw)
	}

	timeLeaf, err := Lookup(cert.Tree, labelTime)
	if err != nil {
		return zero, svcerr.Prooff("certificate missing time leaf: %s", err)
	}
	certTime, n := binary.Uvarint(timeLeaf)
	if n <= 0 {
		return zero, svcerr.Prooff("certificate time leaf is not valid unsigned LEB128")
	}
	ct := core.TimestampNs(certTime)
	if uint64(now) > uint64(ct) && now.Sub(ct) >= core.ProofTTL {
		return zero, svcerr.Prooff("certificate expired: now=%d cert_time=%d ttl=%s", now, ct, time.Duration(core.ProofTTL))
	}

	out, err := decode(replyBytes)
	if err != nil {
		return zero, svcerr.Prooff("decode certified reply: %s", err)
	}
	return out, nil
}

// lookupReply finds the first "reply" leaf anywhere under request_status,
// regardless of the intervening request-id label, since the caller of
// VerifyAndDecode already knows which response it asked for.
func lookupReply(root *Node) ([]byte, error) {
	n := descend(root, labelRequestStatus)
	if n == nil {
		return nil, fmt.Errorf("no request_status subtree")
	}
	// n is Labeled(request_id, Labeled("reply", leaf)) or directly
	// Labeled("reply", leaf) if the caller pre-selected the request id.
	if reply := descend(n, labelReply); reply != nil && reply.Kind == NodeLeaf {
		return reply.Value, nil
	}
	if n.Kind == NodeLabeled {
		if reply := descend(n.Child, labelReply); reply != nil && reply.Kind == NodeLeaf {
			return reply.Value, nil
		}
	}
	return nil, fmt.Errorf("no reply leaf under request_status")
}
