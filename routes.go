package tiernet

// routes.go provides shortest path routes through the synthesized
// topology.
//
// The approach is to convert the tier structure into the data
// structures used by a graph package with built-in path discovery.
// Weighting each edge by 1, a shortest path minimizes hop count, which
// approximates what table-driven local routing settles on.  The
// Dijkstra algorithm computes a tree of shortest paths from a named
// node, so a route from src to dst either computes such a tree rooted
// in src or reuses a cached one.  Failing that, a cached tree rooted
// in dst gives the same path by symmetry, reversed.

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// rtKey indexes the per-pair route cache
type rtKey struct {
	srcId, dstId int
}

// A RouteTable struct owns the graph representation of one topology
// and the caches of shortest path trees and per-pair routes.  It is
// created once per build, after assembly, so no package state survives
// between runs.
type RouteTable struct {
	gnodes    map[int]simple.Node
	connGraph *simple.WeightedUndirectedGraph
	trees     map[int]path.Shortest
	routes    map[rtKey][]int
}

// CreateRouteTable builds the graph form of the topology from an
// adjacency map of global node indices
func CreateRouteTable(edges map[int][]int) *RouteTable {
	rt := new(RouteTable)
	rt.gnodes = make(map[int]simple.Node)
	rt.connGraph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	rt.trees = make(map[int]path.Shortest)
	rt.routes = make(map[rtKey][]int)

	for nodeId := range edges {
		rt.gnodes[nodeId] = simple.Node(nodeId)
		rt.connGraph.AddNode(rt.gnodes[nodeId])
	}

	for nodeId, edgeList := range edges {
		for _, nbrId := range edgeList {
			if nodeId == nbrId {
				continue
			}
			weightedEdge := simple.WeightedEdge{F: rt.gnodes[nodeId], T: rt.gnodes[nbrId], W: 1.0}
			rt.connGraph.SetWeightedEdge(weightedEdge)
		}
	}

	return rt
}

// spTree returns the shortest path tree rooted in the input node,
// computing and caching it on first use
func (rt *RouteTable) spTree(from int) path.Shortest {
	spTree, present := rt.trees[from]
	if present {
		return spTree
	}

	spTree = path.DijkstraFrom(rt.gnodes[from], rt.connGraph)
	rt.trees[from] = spTree
	return spTree
}

// convertNodeSeq extracts the global node indices from a sequence of
// graph nodes and returns that list
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := []int{}
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// Route returns the shortest path from src to dst as a sequence of
// global node indices, src and dst inclusive.  The synthesized
// topology is connected, so an unreachable pair is an internal fault.
func (rt *RouteTable) Route(srcId, dstId int) []int {
	endpoints := rtKey{srcId: srcId, dstId: dstId}
	route, found := rt.routes[endpoints]
	if found {
		return route
	}

	// a tree rooted in dst serves by symmetry, with the path reversed
	spTree, present := rt.trees[srcId]
	if present {
		nodeSeq, _ := spTree.To(int64(dstId))
		route = convertNodeSeq(nodeSeq)
	} else {
		spTree, present = rt.trees[dstId]
		if present {
			revNodeSeq, _ := spTree.To(int64(srcId))
			revRoute := convertNodeSeq(revNodeSeq)
			lenR := len(revRoute)
			for idx := 0; idx < lenR; idx++ {
				route = append(route, revRoute[lenR-idx-1])
			}
		} else {
			spTree = rt.spTree(srcId)
			nodeSeq, _ := spTree.To(int64(dstId))
			route = convertNodeSeq(nodeSeq)
		}
	}

	if len(route) == 0 && srcId != dstId {
		panic(fmt.Errorf("no route between nodes %d and %d", srcId, dstId))
	}

	rt.routes[endpoints] = route
	return route
}

// PopulateRoutes warms the route caches for every flow, forward and
// reverse, once after the full topology is assembled.  Echo replies
// travel the reverse direction, so both are seeded.
func (rt *RouteTable) PopulateRoutes(flows []FlowEndpoint) {
	for _, flow := range flows {
		rt.Route(flow.Src, flow.Sink)
		rt.Route(flow.Sink, flow.Src)
	}
}

// ShowRoute returns a string that lists the names of all the nodes on
// a route, in order, for reporting
func ShowRoute(ts *TopoSnapshot, route []int) string {
	sequence := make([]string, 0, len(route))
	for _, num := range route {
		node, err := ts.NodeByNum(num)
		if err != nil {
			panic(err)
		}
		sequence = append(sequence, node.Name)
	}
	return strings.Join(sequence, ",")
}
