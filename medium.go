package tiernet

// medium.go holds the scheduler that arbitrates access to a shared
// transmission medium.  The backbone bus and each wireless cell carry
// one frame at a time, so a transmission that finds the medium busy
// waits in FCFS order for its turn.  Cables are point to point and
// bypass this scheduler entirely.

import (
	"container/heap"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// A frameTask struct describes one pending transmission, the time it
// occupies the medium, the propagation delay after which the receiver
// sees it, and the event handler that announces its arrival
type frameTask struct {
	kind         string
	airtime      float64
	propDelay    float64
	finish       float64
	context      any
	msg          any
	completeFunc evtm.EventHandlerFunction
}

// createFrameTask is a constructor
func createFrameTask(kind string, airtime, propDelay float64, context any, msg any,
	complete evtm.EventHandlerFunction) *frameTask {

	ft := new(frameTask)
	ft.kind = kind
	ft.airtime = airtime
	ft.propDelay = propDelay
	ft.context = context
	ft.msg = msg
	ft.completeFunc = complete
	return ft
}

// airtimeHeap orders in-service transmissions by completion time, so
// the heap minimum is always the frame whose release event fires next
type airtimeHeap []*frameTask

func (h airtimeHeap) Len() int           { return len(h) }
func (h airtimeHeap) Less(i, j int) bool { return h[i].finish < h[j].finish }
func (h airtimeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *airtimeHeap) Push(x any) {
	*h = append(*h, x.(*frameTask))
}

func (h *airtimeHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

// A ChannelScheduler struct serializes transmissions on one shared
// medium.  lanes gives the number of simultaneous transmissions the
// medium admits, one for a bus or a cell.
type ChannelScheduler struct {
	lanes     int
	waiting   []*frameTask
	inservice airtimeHeap
}

// CreateChannelScheduler is a constructor
func CreateChannelScheduler(lanes int) *ChannelScheduler {
	cs := new(ChannelScheduler)
	cs.lanes = lanes
	cs.waiting = make([]*frameTask, 0)
	cs.inservice = make(airtimeHeap, 0)
	heap.Init(&cs.inservice)
	return cs
}

// Schedule is called to request a transmission on the medium.  The
// return indicates whether the frame went on the air immediately.
// Either way the complete handler is eventually scheduled, airtime
// plus propagation delay after the frame wins the medium.
func (cs *ChannelScheduler) Schedule(evtMgr *evtm.EventManager, kind string,
	airtime, propDelay float64, context any, msg any, complete evtm.EventHandlerFunction) bool {

	task := createFrameTask(kind, airtime, propDelay, context, msg, complete)
	return cs.joinQueue(evtMgr, task)
}

// joinQueue puts a transmission on the air if a lane is free, and
// otherwise appends it to the waiting queue
func (cs *ChannelScheduler) joinQueue(evtMgr *evtm.EventManager, task *frameTask) bool {
	if cs.lanes <= len(cs.inservice) {
		cs.waiting = append(cs.waiting, task)
		return false
	}

	task.finish = evtMgr.CurrentSeconds() + task.airtime
	heap.Push(&cs.inservice, task)

	// the medium is released when the airtime ends, the receiver
	// sees the frame one propagation delay later
	evtMgr.Schedule(cs, nil, channelFree, vrtime.SecondsToTime(task.airtime))
	evtMgr.Schedule(task.context, task.msg, task.completeFunc, vrtime.SecondsToTime(task.airtime+task.propDelay))
	return true
}

// channelFree is an event handler invoked when a frame's airtime ends.
// The completed frame leaves service and the head of the waiting queue,
// if any, takes the freed lane.
func channelFree(evtMgr *evtm.EventManager, context any, data any) any {
	cs := context.(*ChannelScheduler)
	heap.Pop(&cs.inservice)

	if len(cs.waiting) > 0 {
		next := cs.waiting[0]
		cs.waiting = cs.waiting[1:]
		cs.joinQueue(evtMgr, next)
	}
	return nil
}

// Busy reports the number of transmissions on the air or waiting
func (cs *ChannelScheduler) Busy() int {
	return len(cs.inservice) + len(cs.waiting)
}
