package tiernet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddrBlockShape tests block arithmetic against a /24
func TestAddrBlockShape(t *testing.T) {
	base, err := parseDottedQuad("192.168.0.0")
	require.NoError(t, err)
	mask, err := parseDottedQuad("255.255.255.0")
	require.NoError(t, err)
	blk := AddrBlock{Base: base, Mask: mask}

	assert.Equal(t, 24, blk.PrefixLen())
	assert.Equal(t, 254, blk.HostCapacity())
	assert.Equal(t, "192.168.0.0/24", blk.String())

	first, err := blk.HostAddr(1)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.1", first)

	last, err := blk.HostAddr(254)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.254", last)

	_, err = blk.HostAddr(0)
	assert.ErrorIs(t, err, ErrExhausted)
	_, err = blk.HostAddr(255)
	assert.ErrorIs(t, err, ErrExhausted)
}

// TestAddrBlockOverlap tests the overlap predicate both ways
func TestAddrBlockOverlap(t *testing.T) {
	mk := func(base, mask string) AddrBlock {
		b, err := parseDottedQuad(base)
		require.NoError(t, err)
		m, err := parseDottedQuad(mask)
		require.NoError(t, err)
		return AddrBlock{Base: b, Mask: m}
	}

	wide := mk("10.0.0.0", "255.0.0.0")
	inside := mk("10.5.0.0", "255.255.255.0")
	outside := mk("11.0.0.0", "255.255.255.0")

	assert.True(t, wide.Overlaps(inside))
	assert.True(t, inside.Overlaps(wide))
	assert.False(t, wide.Overlaps(outside))
	assert.False(t, outside.Overlaps(inside))
}

// TestAddrFamilyNaming tests the textual forms of the family codes
func TestAddrFamilyNaming(t *testing.T) {
	for _, family := range []AddrFamily{BackboneFamily, SecondaryFamily, WirelessFamily} {
		str := AddrFamilyToStr(family)
		back, err := AddrFamilyFromStr(str)
		require.NoError(t, err)
		assert.Equal(t, family, back)
	}

	_, err := AddrFamilyFromStr("campus")
	assert.ErrorIs(t, err, ErrConfig)
	assert.Panics(t, func() { AddrFamilyToStr(AddrFamily(99)) })
}

// TestAllocatorAdvances tests that consecutive requests walk the
// family's network address forward one block at a time
func TestAllocatorAdvances(t *testing.T) {
	aa := CreateAddrAllocator()
	require.NoError(t, aa.ResetFamily(SecondaryFamily, "172.16.0.0", "255.255.255.0"))

	want := []string{"172.16.0.0/24", "172.16.1.0/24", "172.16.2.0/24"}
	for _, expect := range want {
		blk, err := aa.NextBlock(SecondaryFamily)
		require.NoError(t, err)
		assert.Equal(t, expect, blk.String())
	}
	assert.Equal(t, 3, aa.BlocksIssued(SecondaryFamily))
}

// TestAllocatorOrderOfUse tests the before-reset and exhaustion edges
func TestAllocatorOrderOfUse(t *testing.T) {
	t.Run("BeforeReset", func(t *testing.T) {
		aa := CreateAddrAllocator()
		_, err := aa.NextBlock(WirelessFamily)
		assert.ErrorIs(t, err, ErrConfig)
		assert.Equal(t, 0, aa.BlocksIssued(WirelessFamily))
	})

	t.Run("Exhaustion", func(t *testing.T) {
		aa := CreateAddrAllocator()
		// the very top /24, so the counter cannot advance past it
		require.NoError(t, aa.ResetFamily(WirelessFamily, "255.255.255.0", "255.255.255.0"))

		blk, err := aa.NextBlock(WirelessFamily)
		require.NoError(t, err)
		assert.Equal(t, "255.255.255.0/24", blk.String())

		_, err = aa.NextBlock(WirelessFamily)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("ResetRestartsCounter", func(t *testing.T) {
		aa := CreateAddrAllocator()
		require.NoError(t, aa.ResetFamily(SecondaryFamily, "172.16.0.0", "255.255.255.0"))
		_, err := aa.NextBlock(SecondaryFamily)
		require.NoError(t, err)

		require.NoError(t, aa.ResetFamily(SecondaryFamily, "172.16.0.0", "255.255.255.0"))
		blk, err := aa.NextBlock(SecondaryFamily)
		require.NoError(t, err)
		assert.Equal(t, "172.16.0.0/24", blk.String())
		assert.Equal(t, 1, aa.BlocksIssued(SecondaryFamily))
	})
}

// TestAllocatorRangeChecks tests rejection of malformed bases and masks
func TestAllocatorRangeChecks(t *testing.T) {
	aa := CreateAddrAllocator()

	badQuads := []string{"10.0.0", "10.0.0.256", "10.0.0.0.0", "ten.0.0.0", ""}
	for _, bad := range badQuads {
		err := aa.ResetFamily(BackboneFamily, bad, "255.255.255.0")
		assert.ErrorIs(t, err, ErrConfig, "base %q accepted", bad)
	}

	err := aa.ResetFamily(BackboneFamily, "10.0.0.0", "255.0.255.0")
	assert.ErrorIs(t, err, ErrConfig)

	err = aa.ResetFamily(BackboneFamily, "10.0.0.8", "255.255.255.0")
	assert.ErrorIs(t, err, ErrConfig)
}

// TestAllocatorOverlapPolicy tests the cross-family overlap rejection
// and its escape hatch
func TestAllocatorOverlapPolicy(t *testing.T) {
	aa := CreateAddrAllocator()
	require.NoError(t, aa.ResetFamily(BackboneFamily, "192.168.0.0", "255.255.0.0"))

	err := aa.ResetFamily(SecondaryFamily, "192.168.4.0", "255.255.255.0")
	assert.ErrorIs(t, err, ErrConfig)

	aa.SetOverlapCheck(false)
	err = aa.ResetFamily(SecondaryFamily, "192.168.4.0", "255.255.255.0")
	assert.NoError(t, err)
}
