package tiernet

import (
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type arrival struct {
	label string
	at    float64
}

func recorder(log *[]arrival) evtm.EventHandlerFunction {
	return func(evtMgr *evtm.EventManager, context any, data any) any {
		*log = append(*log, arrival{label: data.(string), at: evtMgr.CurrentSeconds()})
		return nil
	}
}

// TestChannelSerializesFrames tests that a one lane medium carries one
// frame at a time and releases it after its airtime
func TestChannelSerializesFrames(t *testing.T) {
	evtMgr := evtm.New()
	cs := CreateChannelScheduler(1)
	log := []arrival{}
	record := recorder(&log)

	onAir := cs.Schedule(evtMgr, "request", 1.0, 0.5, nil, "a", record)
	assert.True(t, onAir)
	onAir = cs.Schedule(evtMgr, "request", 2.0, 0.5, nil, "b", record)
	assert.False(t, onAir)
	assert.Equal(t, 2, cs.Busy())

	evtMgr.Run(10.0)

	require.Len(t, log, 2)
	assert.Equal(t, "a", log[0].label)
	assert.InDelta(t, 1.5, log[0].at, 1e-9)
	assert.Equal(t, "b", log[1].label)
	assert.InDelta(t, 3.5, log[1].at, 1e-9)
	assert.Equal(t, 0, cs.Busy())
}

// TestChannelFCFS tests that waiting frames win the medium in arrival
// order even when later frames are shorter
func TestChannelFCFS(t *testing.T) {
	evtMgr := evtm.New()
	cs := CreateChannelScheduler(1)
	log := []arrival{}
	record := recorder(&log)

	cs.Schedule(evtMgr, "request", 2.0, 0.0, nil, "a", record)
	cs.Schedule(evtMgr, "request", 0.5, 0.0, nil, "b", record)
	cs.Schedule(evtMgr, "request", 0.5, 0.0, nil, "c", record)

	evtMgr.Run(10.0)

	require.Len(t, log, 3)
	assert.Equal(t, "a", log[0].label)
	assert.Equal(t, "b", log[1].label)
	assert.Equal(t, "c", log[2].label)
	assert.InDelta(t, 2.0, log[0].at, 1e-9)
	assert.InDelta(t, 2.5, log[1].at, 1e-9)
	assert.InDelta(t, 3.0, log[2].at, 1e-9)
}

// TestChannelLanes tests a medium that admits two concurrent frames
func TestChannelLanes(t *testing.T) {
	evtMgr := evtm.New()
	cs := CreateChannelScheduler(2)
	log := []arrival{}
	record := recorder(&log)

	onAir := cs.Schedule(evtMgr, "request", 2.0, 0.0, nil, "a", record)
	assert.True(t, onAir)
	onAir = cs.Schedule(evtMgr, "request", 2.1, 0.0, nil, "b", record)
	assert.True(t, onAir)
	onAir = cs.Schedule(evtMgr, "request", 1.0, 0.0, nil, "c", record)
	assert.False(t, onAir)

	evtMgr.Run(10.0)

	require.Len(t, log, 3)
	assert.Equal(t, "a", log[0].label)
	assert.InDelta(t, 2.0, log[0].at, 1e-9)
	assert.Equal(t, "b", log[1].label)
	assert.InDelta(t, 2.1, log[1].at, 1e-9)
	// c waits for the first freed lane at 2.0 and rides one second
	assert.Equal(t, "c", log[2].label)
	assert.InDelta(t, 3.0, log[2].at, 1e-9)
}
