package tiernet

// net.go holds the runtime form of the synthesized topology, the
// description of its links, and the event handlers that carry echo
// traffic across it hop by hop.

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// linkKey names one adjacency by the global indices of its endpoints,
// smaller index first
type linkKey struct {
	a, b int
}

func mkLinkKey(u, v int) linkKey {
	if u < v {
		return linkKey{a: u, b: v}
	}
	return linkKey{a: v, b: u}
}

// linkPlan derives the adjacency structure of a topology from its
// tiers.  The returned edge map drives route computation and the media
// map tells the runtime what kind of link joins each adjacent pair.
//
// A backbone tier contributes a full mesh among its members, carried
// by the shared bus.  A secondary tier contributes one cable from the
// anchor to each member.  A wireless tier contributes one uplink cable
// from the anchor to the access node and one air link from the access
// node to each station.  Stations never reach each other directly.
func linkPlan(ts *TopoSnapshot) (map[int][]int, map[linkKey]MediaClass) {
	edges := make(map[int][]int)
	media := make(map[linkKey]MediaClass)

	for _, node := range ts.Nodes {
		edges[node.Num] = []int{}
	}

	addEdge := func(u, v int, mc MediaClass) {
		edges[u] = append(edges[u], v)
		edges[v] = append(edges[v], u)
		media[mkLinkKey(u, v)] = mc
	}

	for _, tier := range ts.Tiers {
		switch tier.Media {
		case CsmaMedia:
			members := tier.Members
			for idx := 0; idx < len(members); idx++ {
				for jdx := idx + 1; jdx < len(members); jdx++ {
					addEdge(members[idx], members[jdx], CsmaMedia)
				}
			}
		case P2pMedia:
			for _, member := range tier.Members {
				addEdge(tier.AnchorNum, member, P2pMedia)
			}
		case WifiMedia:
			// member 0 is the access node, reached from the
			// anchor over a cable
			access := tier.Members[0]
			addEdge(tier.AnchorNum, access, P2pMedia)
			for _, station := range tier.Members[1:] {
				addEdge(access, station, WifiMedia)
			}
		}
	}

	return edges, media
}

// MediaAttrs carries the performance parameters of one media class
type MediaAttrs struct {
	RateMbps float64 `json:"ratembps" yaml:"ratembps"`
	Delay    float64 `json:"delay" yaml:"delay"`
}

// DefaultMediaAttrs returns the stock performance parameters, keyed by
// media class name.  The bus and the cables run at 5 Mbps with 5 ms of
// latency, the air link at 54 Mbps with 1 ms.
func DefaultMediaAttrs() map[string]MediaAttrs {
	return map[string]MediaAttrs{
		"csma": {RateMbps: 5.0, Delay: 0.005},
		"p2p":  {RateMbps: 5.0, Delay: 0.005},
		"wifi": {RateMbps: 54.0, Delay: 0.001},
	}
}

// netMsgType distinguishes the directions of an echo exchange
type netMsgType int

const (
	requestMsg netMsgType = iota
	replyMsg
)

var nmtToStr map[netMsgType]string = map[netMsgType]string{requestMsg: "request", replyMsg: "reply"}

// A NetMsg struct carries one packet through the topology.  Route
// holds the global node indices the packet visits, endpoints included,
// and Step indexes the node currently holding it.
type NetMsg struct {
	FlowID  int
	PcktIdx int
	MsgType netMsgType
	MsgLen  int
	SrcNum  int
	DstNum  int
	Route   []int
	Step    int
}

// A NetRuntime struct binds a topology snapshot to its route table,
// link attributes, and shared medium schedulers, and moves messages
// between them
type NetRuntime struct {
	ts         *TopoSnapshot
	rt         *RouteTable
	media      map[linkKey]MediaClass
	attrs      map[MediaClass]MediaAttrs
	chanByLink map[linkKey]*ChannelScheduler
	portal     *AppPortal
	tm         *TraceManager
}

// CreateNetRuntime is a constructor.  The attrsByName map is keyed by
// media class name, as read from configuration, and an unrecognized
// name or non-positive rate is a configuration error.  One shared
// medium scheduler is created for the backbone bus and one per
// wireless cell, and every bus or air adjacency is pointed at its
// scheduler.  Cables are dedicated and need no arbitration.
func CreateNetRuntime(ts *TopoSnapshot, rt *RouteTable, media map[linkKey]MediaClass,
	attrsByName map[string]MediaAttrs, tm *TraceManager) (*NetRuntime, error) {

	nr := new(NetRuntime)
	nr.ts = ts
	nr.rt = rt
	nr.media = media
	nr.tm = tm

	nr.attrs = make(map[MediaClass]MediaAttrs)
	for name, attrs := range attrsByName {
		mc, err := MediaClassFromStr(name)
		if err != nil {
			return nil, fmt.Errorf("media attributes name %s unrecognized: %w", name, ErrConfig)
		}
		if !(attrs.RateMbps > 0.0) {
			return nil, fmt.Errorf("media %s given non-positive rate: %w", name, ErrConfig)
		}
		nr.attrs[mc] = attrs
	}
	for _, mc := range []MediaClass{CsmaMedia, P2pMedia, WifiMedia} {
		_, present := nr.attrs[mc]
		if !present {
			return nil, fmt.Errorf("media attributes for %s missing: %w", MediaClassToStr(mc), ErrConfig)
		}
	}

	// one scheduler per shared medium, mapped from every adjacency
	// that medium carries
	nr.chanByLink = make(map[linkKey]*ChannelScheduler)
	for _, tier := range ts.Tiers {
		switch tier.Media {
		case CsmaMedia:
			bus := CreateChannelScheduler(1)
			members := tier.Members
			for idx := 0; idx < len(members); idx++ {
				for jdx := idx + 1; jdx < len(members); jdx++ {
					nr.chanByLink[mkLinkKey(members[idx], members[jdx])] = bus
				}
			}
		case WifiMedia:
			cell := CreateChannelScheduler(1)
			access := tier.Members[0]
			for _, station := range tier.Members[1:] {
				nr.chanByLink[mkLinkKey(access, station)] = cell
			}
		}
	}

	return nr, nil
}

// serializeTime gives the time to clock a message of the given length
// onto media with the given attributes
func serializeTime(attrs MediaAttrs, msgLen int) float64 {
	bits := float64(8 * msgLen)
	return bits / (attrs.RateMbps * 1e6)
}

// Send launches a message from its source.  The route is drawn from
// the route table and the first transmission is scheduled.
func (nr *NetRuntime) Send(evtMgr *evtm.EventManager, msg *NetMsg) {
	msg.Route = nr.rt.Route(msg.SrcNum, msg.DstNum)
	msg.Step = 0
	if nr.tm.Active() {
		AddNetTrace(nr.tm, evtMgr.CurrentTime(), msg, msg.SrcNum, "send")
	}
	nr.forward(evtMgr, msg)
}

// forward transmits msg from the node at Route[Step] to the node at
// Route[Step+1].  A hop on a shared medium waits its turn with the
// medium's scheduler, a hop on a cable is scheduled directly.
func (nr *NetRuntime) forward(evtMgr *evtm.EventManager, msg *NetMsg) {
	here := msg.Route[msg.Step]
	next := msg.Route[msg.Step+1]
	key := mkLinkKey(here, next)

	mc, present := nr.media[key]
	if !present {
		panic(fmt.Errorf("no link between adjacent route nodes %d and %d", here, next))
	}
	attrs := nr.attrs[mc]
	airtime := serializeTime(attrs, msg.MsgLen)

	channel := nr.chanByLink[key]
	if channel != nil {
		channel.Schedule(evtMgr, nmtToStr[msg.MsgType], airtime, attrs.Delay, nr, msg, arriveMsg)
		return
	}
	evtMgr.Schedule(nr, msg, arriveMsg, vrtime.SecondsToTime(airtime+attrs.Delay))
}

// arriveMsg is an event handler invoked when a message reaches the
// next node on its route.  A transit node forwards the message on
// immediately, the final node hands it to the application layer.
func arriveMsg(evtMgr *evtm.EventManager, context any, data any) any {
	nr := context.(*NetRuntime)
	msg := data.(*NetMsg)

	msg.Step += 1
	here := msg.Route[msg.Step]

	if msg.Step == len(msg.Route)-1 {
		if nr.tm.Active() {
			AddNetTrace(nr.tm, evtMgr.CurrentTime(), msg, here, "recv")
		}
		nr.portal.arrive(evtMgr, msg)
		return nil
	}

	if nr.tm.Active() {
		AddNetTrace(nr.tm, evtMgr.CurrentTime(), msg, here, "transit")
	}
	nr.forward(evtMgr, msg)
	return nil
}
