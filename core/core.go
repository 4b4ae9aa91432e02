// Package core holds the primitive types and constants shared by every
// Fort Major DAO service: the opaque caller identity, nanosecond time
// units, and the fixed system-wide durations and limits of the RPC
// surface.
package core

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"errors"
)

// PrincipalLen is the fixed byte length of an opaque caller identity.
const PrincipalLen = 29

// Principal is an opaque identity, 29 bytes, compared and hashed as a
// fixed-size array so it can be used directly as a map key.
type Principal [PrincipalLen]byte

// AnonymousPrincipal is the all-zero principal, never a valid registered
// caller.
var AnonymousPrincipal = Principal{}

// ParsePrincipal decodes the hex or base32 textual form of a principal.
func ParsePrincipal(s string) (Principal, error) {
	var p Principal
	if b, err := hex.DecodeString(s); err == nil && len(b) == PrincipalLen {
		copy(p[:], b)
		return p, nil
	}
	b, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil || len(b) != PrincipalLen {
		return p, errors.New("core: invalid principal encoding")
	}
	copy(p[:], b)
	return p, nil
}

// NewRandomPrincipal is used by tests to synthesize distinct callers.
func NewRandomPrincipal() Principal {
	var p Principal
	_, _ = rand.Read(p[:])
	return p
}

func (p Principal) String() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(p[:])
}

// IsAnonymous reports whether p is the zero principal.
func (p Principal) IsAnonymous() bool {
	return p == AnonymousPrincipal
}

// MarshalBinary/UnmarshalBinary let encoders that respect
// encoding.BinaryMarshaler (e.g. the CBOR codec used by package proof)
// represent a Principal as a plain byte string instead of a 29-element
// integer array.
func (p Principal) MarshalBinary() ([]byte, error) {
	return p[:], nil
}

func (p *Principal) UnmarshalBinary(b []byte) error {
	if len(b) != PrincipalLen {
		return errors.New("core: principal must be exactly 29 bytes")
	}
	copy(p[:], b)
	return nil
}

// MarshalText/UnmarshalText implement encoding.TextMarshaler so every
// API response embedding a Principal — including as a map key
// (Task.Candidates, Report.Evaluation, ...) — reads as its base32 debug
// string rather than a 29-element number array.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Principal) UnmarshalText(b []byte) error {
	parsed, err := ParsePrincipal(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TimestampNs is an absolute point in time, nanoseconds since epoch.
type TimestampNs uint64

// DurationNs is a span of time in nanoseconds.
type DurationNs uint64

// Add returns t advanced by d.
func (t TimestampNs) Add(d DurationNs) TimestampNs {
	return t + TimestampNs(d)
}

// Sub returns the nanosecond gap from u to t, or 0 when t is before u,
// so the unsigned subtraction never wraps around.
func (t TimestampNs) Sub(u TimestampNs) DurationNs {
	if t < u {
		return 0
	}
	return DurationNs(t - u)
}

// System-wide constants, spec §6.
const (
	OneHourNs  DurationNs = 3600 * 1_000_000_000
	OneDayNs   DurationNs = 24 * OneHourNs
	OneWeekNs  DurationNs = 7 * OneDayNs
	OneMonthNs DurationNs = 30 * OneDayNs

	ProofTTL DurationNs = 8 * OneHourNs

	CertCacheCapacity  = 256
	ArchiveBatchSize   = 100
	EventsLogCapacity  = 1000
	DecayRoundChunkSize = 100
)

// ServiceIDs is the environment-derived bundle of peer service
// identities every service reads at boot (spec §6, "Environment-derived
// service identities").
type ServiceIDs struct {
	Humans          string
	Votings         string
	Tasks           string
	TaskArchive     string
	Bank            string
	Reputation      string
	LiquidDemocracy string
	WorkReports     string
	FmjLedger       string
	IcpLedger       string
	IcRootKey       []byte
}
