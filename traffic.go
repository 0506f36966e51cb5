package tiernet

// traffic.go derives the traffic matrix from a finalized snapshot.
// Which node sends to which is a pure function of the tier
// cardinalities: sources come from the secondary tiers, sinks from the
// wireless stations, and the pairing below reproduces the reference
// scenario's index arithmetic through the snapshot's recorded ranges.

import (
	"fmt"
)

// A FlowEndpoint struct names one end-to-end flow: an echo server on
// the source node paired with an echo client on the sink node
type FlowEndpoint struct {
	// FlowID orders the flows, assigned in generation order
	FlowID int

	// Src is the global index of the source, always a secondary node
	Src int

	// Sink is the global index of the sink, always a wireless station
	Sink int
}

// GenerateFlows derives the ordered flow list from the snapshot.  For
// backbone index i the source is member 0 of the secondary tier under
// backbone index i-(i mod 2), so consecutive pairs of backbone indices
// share a source.  Sinks are the stations, consumed in creation order
// across all clusters through a single running counter that is never
// reset.  The result holds exactly backboneCount * stationsPerBackbone
// flows and is identical for identical cardinalities.
//
// A topology with no secondary nodes has nothing to serve as a source,
// so stationsPerBackbone flows per backbone node cannot be formed and
// the call fails with a configuration error.
func GenerateFlows(ts *TopoSnapshot) ([]FlowEndpoint, error) {
	if ts.SecondaryPerBackbone < 1 {
		return nil, fmt.Errorf("no secondary node exists to serve as a flow source: %w", ErrConfig)
	}

	flows := make([]FlowEndpoint, 0, ts.BackboneCount*ts.StationsPerBackbone)

	// sinkOrd counts stations off in creation order, across clusters
	sinkOrd := 0

	for i := 0; i < ts.BackboneCount; i++ {
		// the source advances every two backbone indices
		srcTier := i - i%2
		src, err := ts.SecondaryNode(srcTier, 0)
		if err != nil {
			return nil, err
		}

		for m := 0; m < ts.StationsPerBackbone; m++ {
			g := sinkOrd / ts.StationsPerBackbone
			sink, err := ts.Station(g, sinkOrd%ts.StationsPerBackbone)
			if err != nil {
				return nil, err
			}
			flows = append(flows, FlowEndpoint{FlowID: sinkOrd, Src: src, Sink: sink})
			sinkOrd += 1
		}
	}

	return flows, nil
}

// FlowAddrs resolves the addresses an installed application pair
// needs: the source's address on its secondary tier (the address echo
// requests are aimed at) and the sink's address on its wireless tier
func FlowAddrs(ts *TopoSnapshot, flow FlowEndpoint) (string, string, error) {
	src, err := ts.NodeByNum(flow.Src)
	if err != nil {
		return "", "", err
	}
	sink, err := ts.NodeByNum(flow.Sink)
	if err != nil {
		return "", "", err
	}

	srcAddr := addrOn(src, SecondaryCode)
	sinkAddr := addrOn(sink, StationCode)
	if srcAddr == "" || sinkAddr == "" {
		return "", "", fmt.Errorf("flow %d endpoints missing addresses: %w", flow.FlowID, ErrIndexRange)
	}
	return srcAddr, sinkAddr, nil
}

// addrOn picks a node's address on the tier type matching its code.
// Secondary and station nodes each live on exactly one addressed tier.
func addrOn(node *Node, code NodeCode) string {
	if node.Code != code {
		return ""
	}
	for _, addr := range node.Addrs {
		return addr
	}
	return ""
}
