package tiernet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSnap(t *testing.T, b, s, w int) *TopoSnapshot {
	t.Helper()
	asm := CreateTopoAssembler("test", DefaultGridSpec())
	snap, err := asm.Build(b, s, w)
	require.NoError(t, err)
	return snap
}

func nodeAddr(t *testing.T, snap *TopoSnapshot, num int, tierName string) string {
	t.Helper()
	node, err := snap.NodeByNum(num)
	require.NoError(t, err)
	addr, present := node.Addrs[tierName]
	require.True(t, present, "node %s has no address on tier %s", node.Name, tierName)
	return addr
}

// TestReferenceTopology tests the fully worked three backbone example:
// three secondary nodes, three clusters of an access node plus two
// stations, fifteen nodes in all
func TestReferenceTopology(t *testing.T) {
	snap := buildSnap(t, 3, 1, 2)

	require.Equal(t, 15, snap.TotalNodes())
	require.Len(t, snap.Tiers, 7)

	// global indices fall out of the fixed build order
	assert.Equal(t, IndexRange{First: 0, Count: 3}, snap.Backbone)
	assert.Equal(t, []IndexRange{{First: 3, Count: 1}, {First: 4, Count: 1}, {First: 5, Count: 1}}, snap.Secondary)
	assert.Equal(t, []IndexRange{{First: 6, Count: 3}, {First: 9, Count: 3}, {First: 12, Count: 3}}, snap.Wireless)

	names := []string{
		"bbone.[0]", "bbone.[1]", "bbone.[2]",
		"edge.[0.0]", "edge.[1.0]", "edge.[2.0]",
		"ap.[0]", "sta.[0.0]", "sta.[0.1]",
		"ap.[1]", "sta.[1.0]", "sta.[1.1]",
		"ap.[2]", "sta.[2.0]", "sta.[2.1]",
	}
	codes := []NodeCode{
		BackboneCode, BackboneCode, BackboneCode,
		SecondaryCode, SecondaryCode, SecondaryCode,
		AccessCode, StationCode, StationCode,
		AccessCode, StationCode, StationCode,
		AccessCode, StationCode, StationCode,
	}
	for num, node := range snap.Nodes {
		assert.Equal(t, num, node.Num)
		assert.Equal(t, names[num], node.Name)
		assert.Equal(t, codes[num], node.Code)
		assert.True(t, node.PosKnown(), "node %s unplaced", node.Name)
	}

	// one shared backbone block, hosts in backbone order
	assert.Equal(t, "192.168.0.1", nodeAddr(t, snap, 0, "backbone"))
	assert.Equal(t, "192.168.0.2", nodeAddr(t, snap, 1, "backbone"))
	assert.Equal(t, "192.168.0.3", nodeAddr(t, snap, 2, "backbone"))

	// secondary blocks advance per backbone node, the anchor side
	// of each cable is addressed first
	assert.Equal(t, "172.16.0.1", nodeAddr(t, snap, 0, "edge.[0]"))
	assert.Equal(t, "172.16.0.2", nodeAddr(t, snap, 3, "edge.[0]"))
	assert.Equal(t, "172.16.1.2", nodeAddr(t, snap, 4, "edge.[1]"))
	assert.Equal(t, "172.16.2.2", nodeAddr(t, snap, 5, "edge.[2]"))

	// wireless blocks advance per cluster, the access node takes
	// host one, the anchor uplink stays unnumbered
	assert.Equal(t, "10.0.0.1", nodeAddr(t, snap, 6, "wifi-infra0"))
	assert.Equal(t, "10.0.0.2", nodeAddr(t, snap, 7, "wifi-infra0"))
	assert.Equal(t, "10.0.1.1", nodeAddr(t, snap, 9, "wifi-infra1"))
	assert.Equal(t, "10.0.2.3", nodeAddr(t, snap, 14, "wifi-infra2"))
	bbone2, err := snap.NodeByNum(2)
	require.NoError(t, err)
	_, present := bbone2.Addrs["wifi-infra2"]
	assert.False(t, present)

	// backbone on the grid, everything else anchored to it
	assert.Equal(t, Position{X: 20, Y: 20}, snap.Nodes[0].Pos)
	assert.Equal(t, Position{X: 520, Y: 20}, snap.Nodes[1].Pos)
	assert.Equal(t, Position{X: 1020, Y: 20}, snap.Nodes[2].Pos)
	assert.Equal(t, Position{X: 520, Y: 30}, snap.Nodes[4].Pos)
	assert.Equal(t, Position{X: 1035, Y: 22, Z: 15}, snap.Nodes[12].Pos)
	assert.Equal(t, Position{X: 541, Y: 24, Z: 45}, snap.Nodes[11].Pos)

	// every tier block is disjoint from every other
	assert.NoError(t, checkDisjointBlocks(snap.Tiers))

	backbone, found := snap.TierByName("backbone")
	require.True(t, found)
	assert.Equal(t, CsmaMedia, backbone.Media)
	assert.Equal(t, -1, backbone.AnchorNum)

	cell, found := snap.TierByName("wifi-infra1")
	require.True(t, found)
	assert.Equal(t, WifiMedia, cell.Media)
	assert.Equal(t, 1, cell.AnchorNum)
	assert.Equal(t, []int{9, 10, 11}, cell.Members)

	_, found = snap.TierByName("wifi-infra9")
	assert.False(t, found)
}

// TestTopologyDeterminism tests that two builds from the same
// cardinalities agree exactly
func TestTopologyDeterminism(t *testing.T) {
	first := buildSnap(t, 4, 2, 3).Transform()
	second := buildSnap(t, 4, 2, 3).Transform()
	assert.Equal(t, first, second)
}

// TestEmptySecondaryTier tests that zero secondary nodes still yields
// a tier, with no members and no block consumed
func TestEmptySecondaryTier(t *testing.T) {
	snap := buildSnap(t, 1, 0, 3)

	assert.Equal(t, 5, snap.TotalNodes())
	require.Len(t, snap.Tiers, 3)

	assert.Equal(t, []IndexRange{{First: -1, Count: 0}}, snap.Secondary)
	edge, found := snap.TierByName("edge.[0]")
	require.True(t, found)
	assert.Empty(t, edge.Members)
	assert.False(t, edge.BlockSet)

	_, err := snap.SecondaryNode(0, 0)
	assert.ErrorIs(t, err, ErrIndexRange)

	// the wireless family is unaffected by the empty tier
	assert.Equal(t, "10.0.0.1", nodeAddr(t, snap, 1, "wifi-infra0"))
	assert.Equal(t, "10.0.0.4", nodeAddr(t, snap, 4, "wifi-infra0"))
}

// TestZeroStations tests clusters that hold only their access node
func TestZeroStations(t *testing.T) {
	snap := buildSnap(t, 2, 1, 0)

	assert.Equal(t, 6, snap.TotalNodes())
	assert.Equal(t, []IndexRange{{First: 4, Count: 1}, {First: 5, Count: 1}}, snap.Wireless)

	access, err := snap.AccessNode(1)
	require.NoError(t, err)
	assert.Equal(t, 5, access)

	_, err = snap.Station(0, 0)
	assert.ErrorIs(t, err, ErrIndexRange)

	// each cluster still owns a block for its access node
	cell0, found := snap.TierByName("wifi-infra0")
	require.True(t, found)
	cell1, found := snap.TierByName("wifi-infra1")
	require.True(t, found)
	assert.Equal(t, "10.0.0.0/24", cell0.Block.String())
	assert.Equal(t, "10.0.1.0/24", cell1.Block.String())
}

// TestBuildRejects tests the configuration checks at the front of Build
func TestBuildRejects(t *testing.T) {
	cases := []struct {
		name    string
		b, s, w int
	}{
		{"NoBackbone", 0, 1, 1},
		{"NegativeSecondary", 2, -1, 1},
		{"NegativeStations", 2, 1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			asm := CreateTopoAssembler("reject", DefaultGridSpec())
			_, err := asm.Build(tc.b, tc.s, tc.w)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	t.Run("DegenerateGrid", func(t *testing.T) {
		grid := DefaultGridSpec()
		grid.GridWidth = 0
		asm := CreateTopoAssembler("reject", grid)
		_, err := asm.Build(2, 1, 1)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("SingleShot", func(t *testing.T) {
		asm := CreateTopoAssembler("reject", DefaultGridSpec())
		_, err := asm.Build(1, 1, 1)
		require.NoError(t, err)
		_, err = asm.Build(1, 1, 1)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

// TestBlockCapacityExhaustion tests that a tier too big for its block
// aborts the build
func TestBlockCapacityExhaustion(t *testing.T) {
	t.Run("Backbone", func(t *testing.T) {
		asm := CreateTopoAssembler("exhaust", DefaultGridSpec())
		_, err := asm.Build(300, 1, 1)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("Secondary", func(t *testing.T) {
		asm := CreateTopoAssembler("exhaust", DefaultGridSpec())
		_, err := asm.Build(1, 254, 1)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("Wireless", func(t *testing.T) {
		asm := CreateTopoAssembler("exhaust", DefaultGridSpec())
		_, err := asm.Build(1, 1, 300)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("FamilySpaceRunsOut", func(t *testing.T) {
		// start the secondary family at the top of the address
		// space so the third group has nowhere to go
		asm := CreateTopoAssembler("exhaust", DefaultGridSpec())
		asm.SetFamilyAddrs(SecondaryFamily, "255.255.254.0", "255.255.255.0")
		_, err := asm.Build(3, 1, 1)
		assert.ErrorIs(t, err, ErrExhausted)
	})
}

// TestFamilyOverride tests rebasing a family before the build
func TestFamilyOverride(t *testing.T) {
	asm := CreateTopoAssembler("rebase", DefaultGridSpec())
	asm.SetFamilyAddrs(SecondaryFamily, "172.31.0.0", "255.255.255.0")
	snap, err := asm.Build(2, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, "172.31.0.2", nodeAddr(t, snap, 2, "edge.[0]"))
	assert.Equal(t, "172.31.1.2", nodeAddr(t, snap, 3, "edge.[1]"))
}

// TestSnapshotAccessors tests index resolution at and past the edges
func TestSnapshotAccessors(t *testing.T) {
	snap := buildSnap(t, 2, 2, 1)

	_, err := snap.NodeByNum(-1)
	assert.ErrorIs(t, err, ErrIndexRange)
	_, err = snap.NodeByNum(snap.TotalNodes())
	assert.ErrorIs(t, err, ErrIndexRange)

	num, err := snap.BackboneNode(1)
	require.NoError(t, err)
	assert.Equal(t, 1, num)
	_, err = snap.BackboneNode(2)
	assert.ErrorIs(t, err, ErrIndexRange)

	num, err = snap.SecondaryNode(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "edge.[1.1]", snap.Nodes[num].Name)
	_, err = snap.SecondaryNode(2, 0)
	assert.ErrorIs(t, err, ErrIndexRange)
	_, err = snap.SecondaryNode(0, 2)
	assert.ErrorIs(t, err, ErrIndexRange)

	num, err = snap.Station(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "sta.[1.0]", snap.Nodes[num].Name)
	_, err = snap.Station(0, -1)
	assert.ErrorIs(t, err, ErrIndexRange)
	_, err = snap.Station(0, 1)
	assert.ErrorIs(t, err, ErrIndexRange)

	assert.True(t, snap.Backbone.Holds(0))
	assert.False(t, snap.Backbone.Holds(2))
	assert.False(t, IndexRange{First: -1, Count: 0}.Holds(0))
}
