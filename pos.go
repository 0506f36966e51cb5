package tiernet

// pos.go holds the spatial placement machinery.  The backbone tier is
// laid out on a grid from a fixed origin, and every other node's
// position is composed from its tier anchor's absolute position plus a
// deterministic tier-local offset.

import (
	"fmt"
)

// A Position struct holds an absolute 3D coordinate.  The same struct
// doubles as an offset relative to a tier anchor.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Plus returns the composition of a position with an offset
func (p Position) Plus(off Position) Position {
	return Position{X: p.X + off.X, Y: p.Y + off.Y, Z: p.Z + off.Z}
}

// A GridSpec struct describes the backbone layout: a row-first (or
// column-first) grid scaled by per-axis deltas from a configured
// origin.  The backbone is the only tier anchored to a fixed origin
// rather than to another node.
type GridSpec struct {
	MinX      float64 `json:"minx" yaml:"minx"`
	MinY      float64 `json:"miny" yaml:"miny"`
	DeltaX    float64 `json:"deltax" yaml:"deltax"`
	DeltaY    float64 `json:"deltay" yaml:"deltay"`
	GridWidth int     `json:"gridwidth" yaml:"gridwidth"`
	RowFirst  bool    `json:"rowfirst" yaml:"rowfirst"`
}

// DefaultGridSpec returns the grid used by the reference streaming
// scenario, five nodes per row with a wide x spacing
func DefaultGridSpec() GridSpec {
	return GridSpec{MinX: 20.0, MinY: 20.0, DeltaX: 500.0, DeltaY: 20.0, GridWidth: 5, RowFirst: true}
}

// validate rejects geometry the grid formulas cannot lay out
func (gs GridSpec) validate() error {
	if gs.GridWidth < 1 {
		return fmt.Errorf("grid width %d is degenerate: %w", gs.GridWidth, ErrConfig)
	}
	return nil
}

// slot returns the grid position of member idx
func (gs GridSpec) slot(idx int) Position {
	major := idx % gs.GridWidth
	minor := idx / gs.GridWidth
	if gs.RowFirst {
		return Position{X: gs.MinX + gs.DeltaX*float64(major), Y: gs.MinY + gs.DeltaY*float64(minor)}
	}
	return Position{X: gs.MinX + gs.DeltaX*float64(minor), Y: gs.MinY + gs.DeltaY*float64(major)}
}

// secondaryOffset gives the offset of secondary tier member j from its
// backbone anchor.  Members stack along the y axis below the anchor.
func secondaryOffset(j int) Position {
	return Position{X: 0.0, Y: float64(10*j + 10), Z: 0.0}
}

// wirelessOffset gives the offset of wireless tier member p from its
// backbone anchor.  The access node occupies p=0 and station m sits at
// p=m+1.  The x and z components climb on independent counters so no
// two members of a cluster, access node included, share a coordinate.
func wirelessOffset(p int) Position {
	return Position{X: 15.0 + 3.0*float64(p), Y: float64(p + 2), Z: 15.0 + 15.0*float64(p)}
}

// A PosnAllocator struct resolves node positions.  Positions are
// composed at assignment time, anchor first, and once resolved are
// immutable for the rest of the run.  The allocator holds no node
// ownership, only the record of which nodes have been resolved.
type PosnAllocator struct {
	resolved map[int]Position
}

// CreatePosnAllocator is a constructor
func CreatePosnAllocator() *PosnAllocator {
	pa := new(PosnAllocator)
	pa.resolved = make(map[int]Position)
	return pa
}

// place records a node's absolute position.  Resolving the same node
// twice violates the build order and is treated as an internal fault.
func (pa *PosnAllocator) place(node *Node, posn Position) {
	_, present := pa.resolved[node.Num]
	if present {
		panic(fmt.Errorf("position of node %s resolved twice", node.Name))
	}
	pa.resolved[node.Num] = posn
	node.Pos = posn
	node.posSet = true
}

// PlaceGrid resolves the positions of the backbone members on the
// grid described by spec.  Member i lands on grid slot i.
func (pa *PosnAllocator) PlaceGrid(spec GridSpec, members []*Node) error {
	err := spec.validate()
	if err != nil {
		return err
	}
	for idx, node := range members {
		pa.place(node, spec.slot(idx))
	}
	return nil
}

// Place resolves a member's position as the anchor's absolute position
// plus the given tier-local offset.  The build order resolves anchors
// before their dependents, so an unresolved anchor is an internal fault.
func (pa *PosnAllocator) Place(anchor *Node, member *Node, offset Position) {
	anchorPos, present := pa.resolved[anchor.Num]
	if !present {
		panic(fmt.Errorf("anchor %s unresolved when placing %s", anchor.Name, member.Name))
	}
	pa.place(member, anchorPos.Plus(offset))
}

// ResolvedPos returns a node's resolved position and a flag telling
// whether it has one
func (pa *PosnAllocator) ResolvedPos(num int) (Position, bool) {
	posn, present := pa.resolved[num]
	return posn, present
}
