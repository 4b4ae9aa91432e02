package e8s

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayRoundTrip(t *testing.T) {
	for _, raw := range []uint64{0, 1, 100_000_000, 150_000_000, 123456789, 9_999_999_999} {
		v := FromUint64(raw)
		got, err := FromDisplay(v.Raw().Uint64()/100_000_000, v.Raw().Uint64()%100_000_000)
		require.NoError(t, err)
		assert.Equal(t, v.Raw().Uint64(), got.Raw().Uint64())
	}
}

func TestAddSub(t *testing.T) {
	a := FromUint64(300_000_000)
	b := FromUint64(200_000_000)
	sum := Add(a, b)
	assert.Equal(t, uint64(500_000_000), sum.Raw().Uint64())

	diff, err := Sub(sum, b)
	require.NoError(t, err)
	assert.Equal(t, a.Raw().Uint64(), diff.Raw().Uint64())

	_, err = Sub(b, a)
	assert.Error(t, err)
}

func TestMulDivLaw(t *testing.T) {
	a := FromUint64(123_000_000)
	b := FromUint64(450_000_000)
	if b.IsZero() {
		t.Fatal("b must be nonzero")
	}
	prod := Mul(a, b)
	back, err := Div(prod, b)
	require.NoError(t, err)
	assert.Equal(t, a.Raw().Uint64(), back.Raw().Uint64())
}

func TestDivByZero(t *testing.T) {
	_, err := Div(FromUint64(1), Zero())
	assert.Error(t, err)
}

func TestSqrtDecayScenario(t *testing.T) {
	// Scenario 5 of spec §8: balance 100e8 (raw 10^10), one sqrt reduction = floor(sqrt(10^10)) = 100000.
	balance := FromUint64(100 * 100_000_000)
	reduction := balance.Sqrt()
	assert.Equal(t, uint64(100000), reduction.Raw().Uint64())
}

func TestSqrtZeroAndOne(t *testing.T) {
	assert.True(t, Zero().Sqrt().IsZero())
	assert.Equal(t, uint64(1), FromUint64(1).Sqrt().Raw().Uint64())
}

func TestWireRoundTrip(t *testing.T) {
	for _, raw := range []uint64{0, 1, 255, 65536, 123456789012345} {
		v := FromUint64(raw)
		buf, err := v.MarshalWire()
		require.NoError(t, err)
		got, n, err := UnmarshalWire(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v.Raw().Uint64(), got.Raw().Uint64())
	}
}

func TestDisplayFormat(t *testing.T) {
	v, err := FromDisplay(1, 50_000_000)
	require.NoError(t, err)
	assert.Equal(t, "1.50000000", v.Display())
}
