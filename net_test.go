package tiernet

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMediaDefaults tests the stock rates and latencies
func TestMediaDefaults(t *testing.T) {
	attrs := DefaultMediaAttrs()
	assert.Equal(t, MediaAttrs{RateMbps: 5.0, Delay: 0.005}, attrs["csma"])
	assert.Equal(t, MediaAttrs{RateMbps: 5.0, Delay: 0.005}, attrs["p2p"])
	assert.Equal(t, MediaAttrs{RateMbps: 54.0, Delay: 0.001}, attrs["wifi"])
}

// TestSerializeTime tests the airtime formula
func TestSerializeTime(t *testing.T) {
	assert.InDelta(t, 0.0016384, serializeTime(MediaAttrs{RateMbps: 5.0}, 1024), 1e-12)
	assert.InDelta(t, 8192.0/54e6, serializeTime(MediaAttrs{RateMbps: 54.0}, 1024), 1e-12)
}

// TestEndToEndLatency tests a full echo exchange against the summed
// per hop airtime and propagation costs
func TestEndToEndLatency(t *testing.T) {
	cfg := quickConfig(1, 1, 1, 1)
	sd := CreateSimDriver(cfg)
	require.NoError(t, sd.BuildTopology())
	require.NoError(t, sd.InstallApps())
	sd.Run()

	report := sd.FlowReport()
	require.Len(t, report, 1)
	require.Equal(t, 1, report[0].Received)

	// the last record of the flow's trace is the reply reaching the
	// client
	records := sd.tm.Traces[0]
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	at, err := strconv.ParseFloat(last.TraceTime, 64)
	require.NoError(t, err)

	wifiHop := serializeTime(cfg.Media["wifi"], cfg.App.PacketSize) + cfg.Media["wifi"].Delay
	p2pHop := serializeTime(cfg.Media["p2p"], cfg.App.PacketSize) + cfg.Media["p2p"].Delay
	oneWay := wifiHop + 2.0*p2pHop

	assert.InDelta(t, cfg.App.ClientStart+2.0*oneWay, at, 1e-6)
}

// TestRuntimeSharedChannels tests that bus and cell adjacencies share
// schedulers while cables stay dedicated
func TestRuntimeSharedChannels(t *testing.T) {
	snap := buildSnap(t, 3, 1, 2)
	edges, media := linkPlan(snap)
	rt := CreateRouteTable(edges)
	tm := CreateTraceManager("channels", false)
	nr, err := CreateNetRuntime(snap, rt, media, DefaultMediaAttrs(), tm)
	require.NoError(t, err)

	// every backbone pair rides the same bus
	bus01 := nr.chanByLink[mkLinkKey(0, 1)]
	require.NotNil(t, bus01)
	assert.Same(t, bus01, nr.chanByLink[mkLinkKey(1, 2)])
	assert.Same(t, bus01, nr.chanByLink[mkLinkKey(0, 2)])

	// stations of one cell share, cells do not share with each other
	cell0 := nr.chanByLink[mkLinkKey(6, 7)]
	require.NotNil(t, cell0)
	assert.Same(t, cell0, nr.chanByLink[mkLinkKey(6, 8)])
	cell1 := nr.chanByLink[mkLinkKey(9, 10)]
	require.NotNil(t, cell1)
	assert.NotSame(t, cell0, cell1)

	// cables bypass arbitration entirely
	assert.Nil(t, nr.chanByLink[mkLinkKey(0, 3)])
	assert.Nil(t, nr.chanByLink[mkLinkKey(0, 6)])
}
