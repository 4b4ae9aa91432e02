// Package e8s implements the fixed-point decimal arithmetic used for
// every monetary, storypoint, and reputation quantity in the DAO: an
// unbounded non-negative integer interpreted as value = int / 10^8
// (spec §3, §9).
package e8s

import (
	"fmt"
	"math/big"
)

// Scale is the number of fractional decimal digits, 10^8.
var Scale = big.NewInt(100_000_000)

// E8s is an unbounded non-negative fixed-point decimal. The zero value
// is zero. Callers must treat E8s as immutable: every operation returns
// a new value.
type E8s struct {
	i big.Int
}

// Zero is the additive identity.
func Zero() E8s { return E8s{} }

// FromUint64 builds an E8s from a raw (already-scaled) integer magnitude,
// i.e. FromUint64(150_000_000) == 1.5.
func FromUint64(raw uint64) E8s {
	var e E8s
	e.i.SetUint64(raw)
	return e
}

// FromDisplay builds value `intPart.fracPart` (fracPart given as the
// literal e8s-scale fractional digits, e.g. FromDisplay(1, 50_000_000)
// == 1.5).
func FromDisplay(intPart uint64, fracE8s uint64) (E8s, error) {
	if fracE8s >= 100_000_000 {
		return E8s{}, fmt.Errorf("e8s: fractional part %d out of range", fracE8s)
	}
	var whole, frac big.Int
	whole.Mul(new(big.Int).SetUint64(intPart), Scale)
	frac.SetUint64(fracE8s)
	var out E8s
	out.i.Add(&whole, &frac)
	return out, nil
}

// Display renders the value as "int/10^8.frac" per spec §6: integer part
// and the zero-padded 8-digit fractional remainder.
func (e E8s) Display() string {
	var intPart, frac big.Int
	intPart.DivMod(&e.i, Scale, &frac)
	return fmt.Sprintf("%s.%08s", intPart.String(), frac.String())
}

func (e E8s) String() string { return e.Display() }

// Raw returns the underlying scaled magnitude (int, no fractional split).
func (e E8s) Raw() *big.Int {
	return new(big.Int).Set(&e.i)
}

// FromString parses the raw scaled magnitude as a base-10 string, the
// form the HTTP API exchanges E8s values in (arbitrary precision, so a
// JSON number would risk silently losing digits).
func FromString(s string) (E8s, error) {
	var out E8s
	if _, ok := out.i.SetString(s, 10); !ok {
		return E8s{}, fmt.Errorf("e8s: invalid magnitude %q", s)
	}
	if out.i.Sign() < 0 {
		return E8s{}, fmt.Errorf("e8s: negative magnitude %q", s)
	}
	return out, nil
}

// MarshalJSON encodes e as a quoted raw-magnitude decimal string.
func (e E8s) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.i.String() + `"`), nil
}

// UnmarshalJSON decodes the quoted raw-magnitude decimal string form.
func (e *E8s) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := FromString(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Add returns a + b.
func Add(a, b E8s) E8s {
	var out E8s
	out.i.Add(&a.i, &b.i)
	return out
}

// Sub returns a - b. Returns an error (rather than a negative E8s, which
// cannot be represented) if b > a — this is how every "spend must not
// underflow balance" invariant in the spec is enforced.
func Sub(a, b E8s) (E8s, error) {
	if a.i.Cmp(&b.i) < 0 {
		return E8s{}, fmt.Errorf("e8s: underflow, %s - %s", a.Display(), b.Display())
	}
	var out E8s
	out.i.Sub(&a.i, &b.i)
	return out, nil
}

// Mul returns a*b, preserving scale: (a.int * b.int) / 10^8.
func Mul(a, b E8s) E8s {
	var prod, out big.Int
	prod.Mul(&a.i, &b.i)
	out.Div(&prod, Scale)
	return E8s{i: out}
}

// Div returns a/b (floored), preserving scale: (a.int * 10^8) / b.int.
// Returns an error on division by zero.
func Div(a, b E8s) (E8s, error) {
	if b.i.Sign() == 0 {
		return E8s{}, fmt.Errorf("e8s: division by zero")
	}
	var scaled, out big.Int
	scaled.Mul(&a.i, Scale)
	out.Div(&scaled, &b.i)
	return E8s{i: out}, nil
}

// Cmp compares a and b the way big.Int.Cmp does: -1, 0, 1.
func Cmp(a, b E8s) int {
	return a.i.Cmp(&b.i)
}

// IsZero reports whether e is exactly 0.
func (e E8s) IsZero() bool { return e.i.Sign() == 0 }

// Sqrt returns floor(sqrt(e)) via Newton's method on the raw integer
// magnitude (spec §4.3/§9 — used by reputation decay; note this is the
// integer square root of the *raw scaled* magnitude, matching the spec's
// decay formula `balance - floor(sqrt(balance))` operating on raw e8s
// units directly, not on the decimal value).
func (e E8s) Sqrt() E8s {
	if e.i.Sign() <= 0 {
		return Zero()
	}
	var out big.Int
	out.Sqrt(&e.i)
	return E8s{i: out}
}

// MarshalBinary implements encoding.BinaryMarshaler using the §6 wire
// form, so generic codecs (e.g. the CBOR codec in package proof) encode
// E8s compactly instead of reflecting into big.Int's internals.
func (e E8s) MarshalBinary() ([]byte, error) { return e.MarshalWire() }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *E8s) UnmarshalBinary(b []byte) error {
	v, _, err := UnmarshalWire(b)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// MarshalWire encodes e in the §6 wire form: a little-endian byte-length
// prefix (1 byte, magnitude length in bytes, 0..255) followed by the
// little-endian magnitude bytes.
func (e E8s) MarshalWire() ([]byte, error) {
	be := e.i.Bytes() // big-endian, no leading zero byte
	if len(be) > 255 {
		return nil, fmt.Errorf("e8s: magnitude too large to encode (%d bytes)", len(be))
	}
	out := make([]byte, 1+len(be))
	out[0] = byte(len(be))
	for i, b := range be {
		out[1+len(be)-1-i] = b
	}
	return out, nil
}

// UnmarshalWire decodes the §6 wire form, returning the number of bytes
// consumed.
func UnmarshalWire(buf []byte) (E8s, int, error) {
	if len(buf) < 1 {
		return E8s{}, 0, fmt.Errorf("e8s: empty buffer")
	}
	l := int(buf[0])
	if len(buf) < 1+l {
		return E8s{}, 0, fmt.Errorf("e8s: truncated buffer, need %d bytes got %d", l, len(buf)-1)
	}
	le := buf[1 : 1+l]
	be := make([]byte, l)
	for i, b := range le {
		be[l-1-i] = b
	}
	var out E8s
	out.i.SetBytes(be)
	return out, 1 + l, nil
}
