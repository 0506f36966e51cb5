package tiernet

// app.go holds the echo application pair installed over each traffic
// flow.  A server sits on the flow's source node and answers every
// request with a reply of equal length.  A client sits on the flow's
// sink node and issues a fixed number of requests at a fixed interval,
// optionally perturbed by a sampled jitter.

import (
	"fmt"
	"sort"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
)

// AppParams carries the application settings shared by every flow
type AppParams struct {
	Port        int     `json:"port" yaml:"port"`
	MaxPackets  int     `json:"maxpackets" yaml:"maxpackets"`
	PacketSize  int     `json:"packetsize" yaml:"packetsize"`
	Interval    float64 `json:"interval" yaml:"interval"`
	ServerStart float64 `json:"serverstart" yaml:"serverstart"`
	ClientStart float64 `json:"clientstart" yaml:"clientstart"`
	Jitter      bool    `json:"jitter" yaml:"jitter"`
}

// DefaultAppParams returns the stock application settings, an echo
// service on port 9 that starts at 1.0s and clients that start at 2.0s
// and push 3500 requests of 1024 bytes, 10 ms apart
func DefaultAppParams() AppParams {
	return AppParams{
		Port:        9,
		MaxPackets:  3500,
		PacketSize:  1024,
		Interval:    0.01,
		ServerStart: 1.0,
		ClientStart: 2.0,
		Jitter:      false,
	}
}

// An EchoServer struct holds the state of the echo responder on one
// node.  A node sources several flows when station groups outnumber
// source nodes, and all of them share the one responder.
type EchoServer struct {
	NodeNum   int
	Port      int
	StartTime float64
	started   bool
}

// CreateEchoServer is a constructor
func CreateEchoServer(nodeNum, port int, start float64) *EchoServer {
	srvr := new(EchoServer)
	srvr.NodeNum = nodeNum
	srvr.Port = port
	srvr.StartTime = start
	return srvr
}

// An EchoClient struct holds the state of the request generator on one
// flow's sink node
type EchoClient struct {
	FlowID     int
	NodeNum    int
	ServerNum  int
	ServerAddr string
	MaxPackets int
	PacketSize int
	Interval   float64
	StartTime  float64
	jitter     bool
	rng        *rngstream.RngStream
}

// FlowStatus reports the packet counters of one flow at the end of a
// run
type FlowStatus struct {
	FlowID   int
	Sent     int
	Echoed   int
	Received int
	Dropped  int
}

// An AppPortal struct owns every application endpoint and the per flow
// counters, and receives messages the runtime delivers
type AppPortal struct {
	nr      *NetRuntime
	tm      *TraceManager
	servers map[int]*EchoServer
	clients map[int]*EchoClient
	status  map[int]*FlowStatus
}

// CreateAppPortal is a constructor.  The portal registers itself with
// the runtime as the delivery target.
func CreateAppPortal(nr *NetRuntime, tm *TraceManager) *AppPortal {
	ap := new(AppPortal)
	ap.nr = nr
	ap.tm = tm
	ap.servers = make(map[int]*EchoServer)
	ap.clients = make(map[int]*EchoClient)
	ap.status = make(map[int]*FlowStatus)
	nr.portal = ap
	return ap
}

// InstallFlow places the application endpoints of one flow.  The
// server on the source node is created on first reference and shared
// thereafter.  Installing two clients for the same flow is an internal
// fault.
func (ap *AppPortal) InstallFlow(ts *TopoSnapshot, flow FlowEndpoint, params AppParams) error {
	_, present := ap.clients[flow.FlowID]
	if present {
		panic(fmt.Errorf("flow %d installed twice", flow.FlowID))
	}

	_, srvrPresent := ap.servers[flow.Src]
	if !srvrPresent {
		ap.servers[flow.Src] = CreateEchoServer(flow.Src, params.Port, params.ServerStart)
	}

	srcAddr, _, err := FlowAddrs(ts, flow)
	if err != nil {
		return err
	}
	sinkNode, err := ts.NodeByNum(flow.Sink)
	if err != nil {
		return err
	}

	client := new(EchoClient)
	client.FlowID = flow.FlowID
	client.NodeNum = flow.Sink
	client.ServerNum = flow.Src
	client.ServerAddr = srcAddr
	client.MaxPackets = params.MaxPackets
	client.PacketSize = params.PacketSize
	client.Interval = params.Interval
	client.StartTime = params.ClientStart
	client.jitter = params.Jitter
	if params.Jitter {
		client.rng = rngstream.New(sinkNode.Name)
	}
	ap.clients[flow.FlowID] = client
	ap.status[flow.FlowID] = &FlowStatus{FlowID: flow.FlowID}
	return nil
}

// ScheduleApps books the start of every installed endpoint with the
// event manager, servers at their start time and clients at theirs
func (ap *AppPortal) ScheduleApps(evtMgr *evtm.EventManager) {
	for _, srvr := range ap.servers {
		evtMgr.Schedule(ap, srvr, startServer, vrtime.SecondsToTime(srvr.StartTime))
	}
	for _, client := range ap.clients {
		evtMgr.Schedule(ap, client, startClient, vrtime.SecondsToTime(client.StartTime))
	}
}

// startServer is an event handler invoked at a server's start time
func startServer(evtMgr *evtm.EventManager, context any, data any) any {
	srvr := data.(*EchoServer)
	srvr.started = true
	return nil
}

// startClient is an event handler invoked at a client's start time.
// The first request goes out immediately.
func startClient(evtMgr *evtm.EventManager, context any, data any) any {
	ap := context.(*AppPortal)
	client := data.(*EchoClient)
	ap.sendRequest(evtMgr, client)
	return nil
}

// nextRequest is an event handler invoked when a client's inter
// request interval expires
func nextRequest(evtMgr *evtm.EventManager, context any, data any) any {
	ap := context.(*AppPortal)
	client := data.(*EchoClient)
	ap.sendRequest(evtMgr, client)
	return nil
}

// sendRequest pushes one request into the network and books the next
// one, until the client has sent its configured number of packets
func (ap *AppPortal) sendRequest(evtMgr *evtm.EventManager, client *EchoClient) {
	status := ap.status[client.FlowID]
	if status.Sent >= client.MaxPackets {
		return
	}

	msg := new(NetMsg)
	msg.FlowID = client.FlowID
	msg.PcktIdx = status.Sent
	msg.MsgType = requestMsg
	msg.MsgLen = client.PacketSize
	msg.SrcNum = client.NodeNum
	msg.DstNum = client.ServerNum
	status.Sent += 1

	ap.nr.Send(evtMgr, msg)

	if status.Sent < client.MaxPackets {
		interval := client.Interval
		if client.jitter {
			// up to 10% spread around the nominal interval
			interval *= 0.9 + 0.2*client.rng.RandU01()
		}
		evtMgr.Schedule(ap, client, nextRequest, vrtime.SecondsToTime(interval))
	}
}

// arrive receives a message the runtime delivered to its final node.
// A request reaching a running server turns around as a reply of the
// same length, a reply closes the loop on the client's counters.
func (ap *AppPortal) arrive(evtMgr *evtm.EventManager, msg *NetMsg) {
	status, present := ap.status[msg.FlowID]
	if !present {
		panic(fmt.Errorf("message for unknown flow %d", msg.FlowID))
	}

	switch msg.MsgType {
	case requestMsg:
		srvr := ap.servers[msg.DstNum]
		if srvr == nil {
			panic(fmt.Errorf("request delivered to node %d with no server", msg.DstNum))
		}
		if !srvr.started {
			status.Dropped += 1
			if ap.tm.Active() {
				AddAppTrace(ap.tm, evtMgr.CurrentTime(), msg.FlowID, msg.DstNum, "drop")
			}
			return
		}
		status.Echoed += 1
		if ap.tm.Active() {
			AddAppTrace(ap.tm, evtMgr.CurrentTime(), msg.FlowID, msg.DstNum, "echo")
		}

		reply := new(NetMsg)
		reply.FlowID = msg.FlowID
		reply.PcktIdx = msg.PcktIdx
		reply.MsgType = replyMsg
		reply.MsgLen = msg.MsgLen
		reply.SrcNum = msg.DstNum
		reply.DstNum = msg.SrcNum
		ap.nr.Send(evtMgr, reply)
	case replyMsg:
		status.Received += 1
	}
}

// FlowReport returns the per flow counters in flow order
func (ap *AppPortal) FlowReport() []FlowStatus {
	report := make([]FlowStatus, 0, len(ap.status))
	for _, status := range ap.status {
		report = append(report, *status)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].FlowID < report[j].FlowID })
	return report
}
