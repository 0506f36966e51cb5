package tiernet

// topo.go holds the node and tier model and the machinery that
// assembles a complete multi-tier topology: a backbone of core nodes
// on one shared wire, a point-to-point edge group per backbone node,
// and a wireless infrastructure cluster per backbone node.

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// NodeCode tags a node with its tier membership
type NodeCode int

const (
	BackboneCode NodeCode = iota
	SecondaryCode
	AccessCode
	StationCode
)

var nodeCodeToStr map[NodeCode]string = map[NodeCode]string{
	BackboneCode: "backbone", SecondaryCode: "secondary",
	AccessCode: "wireless-access", StationCode: "wireless-station"}

var nodeCodeFromStr map[string]NodeCode = map[string]NodeCode{
	"backbone": BackboneCode, "secondary": SecondaryCode,
	"wireless-access": AccessCode, "wireless-station": StationCode}

// NodeCodeToStr returns the textual form of a node code
func NodeCodeToStr(code NodeCode) string {
	str, present := nodeCodeToStr[code]
	if !present {
		panic(fmt.Errorf("unrecognized node code %d", code))
	}
	return str
}

// NodeCodeFromStr recovers a node code from its textual form
func NodeCodeFromStr(str string) (NodeCode, error) {
	code, present := nodeCodeFromStr[str]
	if !present {
		return 0, fmt.Errorf("unrecognized node code %s: %w", str, ErrConfig)
	}
	return code, nil
}

// MediaClass tags the link fabric a tier is built on
type MediaClass int

const (
	// CsmaMedia is a shared wire all tier members hang off
	CsmaMedia MediaClass = iota

	// P2pMedia is a dedicated cable between an anchor and one member
	P2pMedia

	// WifiMedia is an infrastructure cell, stations through an access node
	WifiMedia
)

var mediaClassToStr map[MediaClass]string = map[MediaClass]string{
	CsmaMedia: "csma", P2pMedia: "p2p", WifiMedia: "wifi"}

var mediaClassFromStr map[string]MediaClass = map[string]MediaClass{
	"csma": CsmaMedia, "p2p": P2pMedia, "wifi": WifiMedia}

// MediaClassToStr returns the textual form of a media class
func MediaClassToStr(media MediaClass) string {
	str, present := mediaClassToStr[media]
	if !present {
		panic(fmt.Errorf("unrecognized media class %d", media))
	}
	return str
}

// MediaClassFromStr recovers a media class from its textual form
func MediaClassFromStr(str string) (MediaClass, error) {
	media, present := mediaClassFromStr[str]
	if !present {
		return 0, fmt.Errorf("unrecognized media class %s: %w", str, ErrConfig)
	}
	return media, nil
}

// A Node struct is one simulation participant.  Nodes are created once
// during assembly, receive the next unused global index, and are never
// destroyed during a run.
type Node struct {
	// Num is the global index, assigned in creation order, never reused
	Num int

	// Name is unique across the topology
	Name string

	// Code tags the tier membership
	Code NodeCode

	// Pos is the resolved absolute position
	Pos    Position
	posSet bool

	// Addrs maps the name of each tier the node has an interface on
	// to the address bound there
	Addrs map[string]string
}

// PosKnown reports whether the node's position has been resolved
func (node *Node) PosKnown() bool {
	return node.posSet
}

// DefaultBackboneName generates the name of backbone node i
func DefaultBackboneName(i int) string {
	return fmt.Sprintf("bbone.[%d]", i)
}

// DefaultEdgeName generates the name of secondary member j under
// backbone node g
func DefaultEdgeName(g, j int) string {
	return fmt.Sprintf("edge.[%d.%d]", g, j)
}

// DefaultAccessName generates the name of the access node under
// backbone node g
func DefaultAccessName(g int) string {
	return fmt.Sprintf("ap.[%d]", g)
}

// DefaultStationName generates the name of station m under backbone
// node g
func DefaultStationName(g, m int) string {
	return fmt.Sprintf("sta.[%d.%d]", g, m)
}

// A Tier struct is a named group of nodes created together on one link
// fabric.  The backbone tier has no anchor; every other tier is
// anchored to a backbone node.
type Tier struct {
	// Name identifies the tier.  Wireless tiers use their cell name.
	Name string

	// Media is the link fabric joining the members to each other and
	// to the anchor
	Media MediaClass

	// AnchorNum is the global index of the anchor node, -1 for the
	// backbone tier
	AnchorNum int

	// Members holds the global indices of the member nodes in creation
	// order.  Wireless tiers list the access node first.
	Members []int

	// Block is the address block owned by the tier.  BlockSet is false
	// for an empty tier, which consumes no block.
	Block    AddrBlock
	BlockSet bool
}

// createTier is a constructor
func createTier(name string, media MediaClass, anchorNum int) *Tier {
	tier := new(Tier)
	tier.Name = name
	tier.Media = media
	tier.AnchorNum = anchorNum
	tier.Members = []int{}
	return tier
}

// DefaultSecondaryTierName generates the name of the secondary tier
// under backbone node g
func DefaultSecondaryTierName(g int) string {
	return fmt.Sprintf("edge.[%d]", g)
}

// DefaultWirelessTierName generates the cell name of the wireless tier
// under backbone node g
func DefaultWirelessTierName(g int) string {
	return fmt.Sprintf("wifi-infra%d", g)
}

// An IndexRange struct describes a contiguous slice of the global node
// index space
type IndexRange struct {
	// First is the global index of the first node in the range, -1
	// when the range is empty
	First int `json:"first" yaml:"first"`

	// Count is the number of nodes in the range
	Count int `json:"count" yaml:"count"`
}

// Nth resolves member i of the range to its global index
func (ir IndexRange) Nth(i int) (int, error) {
	if i < 0 || i >= ir.Count {
		return -1, fmt.Errorf("member %d of a range of %d: %w", i, ir.Count, ErrIndexRange)
	}
	return ir.First + i, nil
}

// Holds reports whether the given global index falls inside the range
func (ir IndexRange) Holds(num int) bool {
	return ir.Count > 0 && ir.First <= num && num < ir.First+ir.Count
}

// A TopoSnapshot struct is the finalized product of a build.  It owns
// the complete node population and every tier, and records the
// per-tier index ranges traffic derivation indexes into.  After Build
// returns the snapshot is immutable and safe for concurrent readers.
type TopoSnapshot struct {
	// Name of the topology
	Name string

	// the cardinalities the topology was built from
	BackboneCount        int
	SecondaryPerBackbone int
	StationsPerBackbone  int

	// Nodes holds every node, indexed by global index
	Nodes []*Node

	// Tiers in build order: the backbone tier, the secondary tiers in
	// backbone order, then the wireless tiers in backbone order
	Tiers []*Tier

	// Backbone is the index range of the backbone nodes
	Backbone IndexRange

	// Secondary holds one index range per backbone node
	Secondary []IndexRange

	// Wireless holds one index range per backbone node, covering the
	// access node (first) and its stations
	Wireless []IndexRange
}

// TotalNodes returns the size of the node population
func (ts *TopoSnapshot) TotalNodes() int {
	return len(ts.Nodes)
}

// NodeByNum resolves a global index to its node
func (ts *TopoSnapshot) NodeByNum(num int) (*Node, error) {
	if num < 0 || num >= len(ts.Nodes) {
		return nil, fmt.Errorf("node %d of %d: %w", num, len(ts.Nodes), ErrIndexRange)
	}
	return ts.Nodes[num], nil
}

// BackboneNode resolves backbone position g to its global index
func (ts *TopoSnapshot) BackboneNode(g int) (int, error) {
	return ts.Backbone.Nth(g)
}

// SecondaryNode resolves member j of the secondary tier under backbone
// position g to its global index
func (ts *TopoSnapshot) SecondaryNode(g, j int) (int, error) {
	if g < 0 || g >= len(ts.Secondary) {
		return -1, fmt.Errorf("secondary tier %d of %d: %w", g, len(ts.Secondary), ErrIndexRange)
	}
	return ts.Secondary[g].Nth(j)
}

// AccessNode resolves the access node of the wireless cluster under
// backbone position g to its global index
func (ts *TopoSnapshot) AccessNode(g int) (int, error) {
	if g < 0 || g >= len(ts.Wireless) {
		return -1, fmt.Errorf("wireless tier %d of %d: %w", g, len(ts.Wireless), ErrIndexRange)
	}
	return ts.Wireless[g].Nth(0)
}

// Station resolves station m of the wireless cluster under backbone
// position g to its global index.  The access node occupies range
// position 0, so station m sits at position m+1.
func (ts *TopoSnapshot) Station(g, m int) (int, error) {
	if g < 0 || g >= len(ts.Wireless) {
		return -1, fmt.Errorf("wireless tier %d of %d: %w", g, len(ts.Wireless), ErrIndexRange)
	}
	if m < 0 {
		return -1, fmt.Errorf("station %d: %w", m, ErrIndexRange)
	}
	return ts.Wireless[g].Nth(m + 1)
}

// TierByName recovers a tier from its name
func (ts *TopoSnapshot) TierByName(name string) (*Tier, bool) {
	for _, tier := range ts.Tiers {
		if tier.Name == name {
			return tier, true
		}
	}
	return nil, false
}

// A TierBuilder struct creates the nodes of one tier, binds them to an
// address block from the matching family, and resolves their positions
// relative to the tier anchor.  Within a tier the order is fixed:
// create nodes, assign addresses, assign positions.
type TierBuilder struct {
	topo *TopoAssembler
}

// createTierBuilder is a constructor
func createTierBuilder(topo *TopoAssembler) *TierBuilder {
	tb := new(TierBuilder)
	tb.topo = topo
	return tb
}

// anchorPosition returns the backbone position of the anchor, which by
// build order equals its global index
func anchorPosition(anchor *Node) int {
	if anchor.Code != BackboneCode {
		panic(fmt.Errorf("tier anchored to non-backbone node %s", anchor.Name))
	}
	return anchor.Num
}

// BuildSecondaryTier creates the point-to-point edge group of `count`
// nodes under the given backbone anchor.  The tier draws one block
// from the secondary family, the anchor-facing interface takes host 1,
// and member j takes host j+2.  A count of zero yields an empty tier
// and consumes no block.
func (tb *TierBuilder) BuildSecondaryTier(anchor *Node, count int,
	aa *AddrAllocator, pa *PosnAllocator) (*Tier, error) {

	if count < 0 {
		return nil, fmt.Errorf("secondary tier count %d: %w", count, ErrConfig)
	}

	g := anchorPosition(anchor)
	tier := createTier(DefaultSecondaryTierName(g), P2pMedia, anchor.Num)
	if count == 0 {
		return tier, nil
	}

	blk, err := aa.NextBlock(SecondaryFamily)
	if err != nil {
		return nil, err
	}
	if count+1 > blk.HostCapacity() {
		return nil, fmt.Errorf("secondary tier %s needs %d hosts in block %s: %w",
			tier.Name, count+1, blk, ErrExhausted)
	}
	tier.Block = blk
	tier.BlockSet = true

	// create the members and hand out the next global indices
	members := make([]*Node, count)
	for j := 0; j < count; j++ {
		members[j] = tb.topo.createNode(DefaultEdgeName(g, j), SecondaryCode)
		tier.Members = append(tier.Members, members[j].Num)
	}

	// the anchor side of the link is addressed first
	anchorAddr, err := blk.HostAddr(1)
	if err != nil {
		return nil, err
	}
	anchor.Addrs[tier.Name] = anchorAddr
	for j, member := range members {
		addr, err := blk.HostAddr(j + 2)
		if err != nil {
			return nil, err
		}
		member.Addrs[tier.Name] = addr
	}

	// positions last, the anchor is already final
	for j, member := range members {
		pa.Place(anchor, member, secondaryOffset(j))
	}

	return tier, nil
}

// BuildWirelessTier creates the infrastructure cluster under the given
// backbone anchor: one access node followed by `stationCount`
// stations.  The tier draws one block from the wireless family, the
// access node takes host 1 and station m takes host m+2.  The access
// node reaches its anchor over an unnumbered wired uplink, so the
// anchor consumes no address from the cluster's block.
func (tb *TierBuilder) BuildWirelessTier(anchor *Node, stationCount int,
	aa *AddrAllocator, pa *PosnAllocator) (*Tier, error) {

	if stationCount < 0 {
		return nil, fmt.Errorf("wireless station count %d: %w", stationCount, ErrConfig)
	}

	g := anchorPosition(anchor)
	tier := createTier(DefaultWirelessTierName(g), WifiMedia, anchor.Num)

	blk, err := aa.NextBlock(WirelessFamily)
	if err != nil {
		return nil, err
	}
	if stationCount+1 > blk.HostCapacity() {
		return nil, fmt.Errorf("wireless tier %s needs %d hosts in block %s: %w",
			tier.Name, stationCount+1, blk, ErrExhausted)
	}
	tier.Block = blk
	tier.BlockSet = true

	// the access node is member 0, stations follow in station order
	members := make([]*Node, 0, stationCount+1)
	access := tb.topo.createNode(DefaultAccessName(g), AccessCode)
	members = append(members, access)
	for m := 0; m < stationCount; m++ {
		members = append(members, tb.topo.createNode(DefaultStationName(g, m), StationCode))
	}
	for _, member := range members {
		tier.Members = append(tier.Members, member.Num)
	}

	for p, member := range members {
		addr, err := blk.HostAddr(p + 1)
		if err != nil {
			return nil, err
		}
		member.Addrs[tier.Name] = addr
	}

	for p, member := range members {
		pa.Place(anchor, member, wirelessOffset(p))
	}

	return tier, nil
}

// asmState tracks the assembler through its fixed build order
type asmState int

const (
	asmEmpty asmState = iota
	asmBackboneBuilt
	asmSecondaryBuilt
	asmWirelessBuilt
	asmFinalized
)

// A TopoAssembler struct orchestrates a single build: backbone tier,
// then the secondary tiers, then the wireless tiers, in that order.
// Assemblers are single shot.  A failure at any stage aborts the whole
// build and no partial topology escapes.
type TopoAssembler struct {
	name    string
	state   asmState
	grid    GridSpec
	aa      *AddrAllocator
	pa      *PosnAllocator
	builder *TierBuilder

	// family bases applied at the stage each family opens
	famBase map[AddrFamily][2]string

	nodes []*Node
	tiers []*Tier
}

// CreateTopoAssembler is a constructor.  The allocators are created
// fresh here so no state leaks between builds.
func CreateTopoAssembler(name string, grid GridSpec) *TopoAssembler {
	ta := new(TopoAssembler)
	ta.name = name
	ta.state = asmEmpty
	ta.grid = grid
	ta.aa = CreateAddrAllocator()
	ta.pa = CreatePosnAllocator()
	ta.builder = createTierBuilder(ta)
	ta.famBase = map[AddrFamily][2]string{
		BackboneFamily:  {"192.168.0.0", "255.255.255.0"},
		SecondaryFamily: {"172.16.0.0", "255.255.255.0"},
		WirelessFamily:  {"10.0.0.0", "255.255.255.0"},
	}
	ta.nodes = []*Node{}
	ta.tiers = []*Tier{}
	return ta
}

// SetFamilyAddrs overrides the base address and mask a family opens
// with.  Must be called before Build.
func (ta *TopoAssembler) SetFamilyAddrs(family AddrFamily, base, mask string) {
	ta.famBase[family] = [2]string{base, mask}
}

// createNode appends a new node to the population, assigning the next
// unused global index.  Duplicated names indicate a construction bug.
func (ta *TopoAssembler) createNode(name string, code NodeCode) *Node {
	for _, node := range ta.nodes {
		if node.Name == name {
			panic(fmt.Errorf("duplicated node name %s", name))
		}
	}
	node := new(Node)
	node.Num = len(ta.nodes)
	node.Name = name
	node.Code = code
	node.Addrs = make(map[string]string)
	ta.nodes = append(ta.nodes, node)
	return node
}

// resetFamily applies the configured base for one family
func (ta *TopoAssembler) resetFamily(family AddrFamily) error {
	base := ta.famBase[family]
	return ta.aa.ResetFamily(family, base[0], base[1])
}

// buildBackbone is stage one.  The backbone nodes share one wire and
// one address block, the only tier whose block is never advanced past.
func (ta *TopoAssembler) buildBackbone(backboneCount int) error {
	err := ta.resetFamily(BackboneFamily)
	if err != nil {
		return err
	}
	blk, err := ta.aa.NextBlock(BackboneFamily)
	if err != nil {
		return err
	}
	if backboneCount > blk.HostCapacity() {
		return fmt.Errorf("backbone of %d needs more hosts than block %s: %w",
			backboneCount, blk, ErrExhausted)
	}

	tier := createTier("backbone", CsmaMedia, -1)
	tier.Block = blk
	tier.BlockSet = true

	members := make([]*Node, backboneCount)
	for i := 0; i < backboneCount; i++ {
		members[i] = ta.createNode(DefaultBackboneName(i), BackboneCode)
		tier.Members = append(tier.Members, members[i].Num)
	}

	for i, member := range members {
		addr, err := blk.HostAddr(i + 1)
		if err != nil {
			return err
		}
		member.Addrs[tier.Name] = addr
	}

	err = ta.pa.PlaceGrid(ta.grid, members)
	if err != nil {
		return err
	}

	ta.tiers = append(ta.tiers, tier)
	ta.state = asmBackboneBuilt
	return nil
}

// buildSecondaries is stage two, one secondary tier per backbone node
// in ascending backbone order
func (ta *TopoAssembler) buildSecondaries(backboneCount, secondaryCount int) error {
	err := ta.resetFamily(SecondaryFamily)
	if err != nil {
		return err
	}
	for g := 0; g < backboneCount; g++ {
		tier, err := ta.builder.BuildSecondaryTier(ta.nodes[g], secondaryCount, ta.aa, ta.pa)
		if err != nil {
			return err
		}
		ta.tiers = append(ta.tiers, tier)
	}
	ta.state = asmSecondaryBuilt
	return nil
}

// buildWireless is stage three, one wireless cluster per backbone node
// in ascending backbone order
func (ta *TopoAssembler) buildWireless(backboneCount, stationCount int) error {
	err := ta.resetFamily(WirelessFamily)
	if err != nil {
		return err
	}
	for g := 0; g < backboneCount; g++ {
		tier, err := ta.builder.BuildWirelessTier(ta.nodes[g], stationCount, ta.aa, ta.pa)
		if err != nil {
			return err
		}
		ta.tiers = append(ta.tiers, tier)
	}
	ta.state = asmWirelessBuilt
	return nil
}

// finalize freezes the build into a snapshot, recovering the per-tier
// index ranges from the recorded memberships rather than recomputing
// them arithmetically
func (ta *TopoAssembler) finalize(backboneCount, secondaryCount, stationCount int) *TopoSnapshot {
	ts := new(TopoSnapshot)
	ts.Name = ta.name
	ts.BackboneCount = backboneCount
	ts.SecondaryPerBackbone = secondaryCount
	ts.StationsPerBackbone = stationCount
	ts.Nodes = ta.nodes
	ts.Tiers = ta.tiers

	ts.Backbone = tierRange(ta.tiers[0])
	for g := 0; g < backboneCount; g++ {
		ts.Secondary = append(ts.Secondary, tierRange(ta.tiers[1+g]))
		ts.Wireless = append(ts.Wireless, tierRange(ta.tiers[1+backboneCount+g]))
	}

	// the allocator construction makes overlap impossible, so a hit
	// here is an internal fault
	err := checkDisjointBlocks(ta.tiers)
	if err != nil {
		panic(err)
	}

	ta.state = asmFinalized
	return ts
}

// tierRange reads a tier's contiguous index range off its members
func tierRange(tier *Tier) IndexRange {
	if len(tier.Members) == 0 {
		return IndexRange{First: -1, Count: 0}
	}
	first := tier.Members[0]
	for idx, num := range tier.Members {
		if num != first+idx {
			panic(fmt.Errorf("tier %s members not contiguous", tier.Name))
		}
	}
	return IndexRange{First: first, Count: len(tier.Members)}
}

// Build synthesizes the complete topology for the given cardinalities:
// backboneCount core nodes, secondaryCount edge nodes per backbone
// node, and stationCount stations (plus one access node) per backbone
// node.  The returned snapshot is complete and immutable.  Any stage
// failing aborts the build with no usable partial result.
func (ta *TopoAssembler) Build(backboneCount, secondaryCount, stationCount int) (*TopoSnapshot, error) {
	if ta.state != asmEmpty {
		return nil, fmt.Errorf("assembler %s already used: %w", ta.name, ErrConfig)
	}
	if backboneCount < 1 {
		return nil, fmt.Errorf("backbone count %d: %w", backboneCount, ErrConfig)
	}
	if secondaryCount < 0 {
		return nil, fmt.Errorf("secondary count %d: %w", secondaryCount, ErrConfig)
	}
	if stationCount < 0 {
		return nil, fmt.Errorf("station count %d: %w", stationCount, ErrConfig)
	}
	err := ta.grid.validate()
	if err != nil {
		return nil, err
	}

	err = ta.buildBackbone(backboneCount)
	if err != nil {
		return nil, err
	}
	err = ta.buildSecondaries(backboneCount, secondaryCount)
	if err != nil {
		return nil, err
	}
	err = ta.buildWireless(backboneCount, stationCount)
	if err != nil {
		return nil, err
	}

	return ta.finalize(backboneCount, secondaryCount, stationCount), nil
}

// TierNames lists the tier names in build order
func (ts *TopoSnapshot) TierNames() []string {
	names := make([]string, 0, len(ts.Tiers))
	for _, tier := range ts.Tiers {
		names = append(names, tier.Name)
	}
	return names
}

// checkDisjointBlocks verifies that no two block-holding tiers overlap,
// used by validation and tests
func checkDisjointBlocks(tiers []*Tier) error {
	errs := []error{}
	seen := []string{}
	for idx, t1 := range tiers {
		if !t1.BlockSet {
			continue
		}
		if slices.Contains(seen, t1.Block.String()) {
			errs = append(errs, fmt.Errorf("block %s assigned twice", t1.Block))
		}
		seen = append(seen, t1.Block.String())
		for _, t2 := range tiers[idx+1:] {
			if t2.BlockSet && t1.Block.Overlaps(t2.Block) {
				errs = append(errs, fmt.Errorf("tier %s block %s overlaps tier %s block %s",
					t1.Name, t1.Block, t2.Name, t2.Block))
			}
		}
	}
	return ReportErrs(errs)
}
