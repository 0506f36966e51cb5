package tiernet

// desc.go holds the serializable description layer.  The build-time
// structures carry pointers and flags for construction convenience, so
// for file interchange each transforms into a fully instantiated
// 'Desc' form with no pointers.  Serialization to json or yaml is
// selected by file name extension throughout.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// A NodeDesc struct is the serializable description of one node
type NodeDesc struct {
	Name string `json:"name" yaml:"name"`

	// Kind is the textual tier membership tag
	Kind string `json:"kind" yaml:"kind"`

	// Num is the global index
	Num int `json:"num" yaml:"num"`

	// resolved absolute position
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`

	// Addrs maps tier name to the address bound there
	Addrs map[string]string `json:"addrs" yaml:"addrs"`
}

// A TierDesc struct is the serializable description of one tier.
// Nodes are referenced by name.
type TierDesc struct {
	Name string `json:"name" yaml:"name"`

	// Media is the textual link fabric tag
	Media string `json:"media" yaml:"media"`

	// Anchor is the anchor node's name, empty for the backbone tier
	Anchor string `json:"anchor" yaml:"anchor"`

	// Members lists member node names in creation order
	Members []string `json:"members" yaml:"members"`

	// Block renders the tier's address block, empty when the tier
	// holds none
	Block string `json:"block" yaml:"block"`
}

// A TopoDesc struct is the serializable description of a complete
// topology, sufficient to restore a snapshot
type TopoDesc struct {
	Name string `json:"name" yaml:"name"`

	Backbone  int `json:"backbone" yaml:"backbone"`
	Secondary int `json:"secondary" yaml:"secondary"`
	Stations  int `json:"stations" yaml:"stations"`

	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Tiers []TierDesc `json:"tiers" yaml:"tiers"`
}

// Transform converts a node into its serializable description
func (node *Node) Transform() NodeDesc {
	nd := NodeDesc{
		Name:  node.Name,
		Kind:  NodeCodeToStr(node.Code),
		Num:   node.Num,
		X:     node.Pos.X,
		Y:     node.Pos.Y,
		Z:     node.Pos.Z,
		Addrs: make(map[string]string),
	}
	for tierName, addr := range node.Addrs {
		nd.Addrs[tierName] = addr
	}
	return nd
}

// Transform converts a tier into its serializable description.  The
// names input maps global indices to node names.
func (tier *Tier) Transform(names map[int]string) TierDesc {
	td := TierDesc{
		Name:    tier.Name,
		Media:   MediaClassToStr(tier.Media),
		Members: make([]string, 0, len(tier.Members)),
	}
	if tier.AnchorNum >= 0 {
		td.Anchor = names[tier.AnchorNum]
	}
	for _, num := range tier.Members {
		td.Members = append(td.Members, names[num])
	}
	if tier.BlockSet {
		td.Block = tier.Block.String()
	}
	return td
}

// Transform converts the finalized snapshot into its serializable
// description
func (ts *TopoSnapshot) Transform() TopoDesc {
	td := TopoDesc{
		Name:      ts.Name,
		Backbone:  ts.BackboneCount,
		Secondary: ts.SecondaryPerBackbone,
		Stations:  ts.StationsPerBackbone,
	}

	names := make(map[int]string)
	for _, node := range ts.Nodes {
		names[node.Num] = node.Name
		td.Nodes = append(td.Nodes, node.Transform())
	}
	for _, tier := range ts.Tiers {
		td.Tiers = append(td.Tiers, tier.Transform(names))
	}
	return td
}

// maskFromPrefix builds a contiguous mask from a prefix length
func maskFromPrefix(bits int) uint32 {
	return ^uint32(0) << (32 - bits)
}

// parseBlockStr recovers an address block from its base/prefix rendering
func parseBlockStr(str string) (AddrBlock, error) {
	pieces := strings.Split(str, "/")
	if len(pieces) != 2 {
		return AddrBlock{}, fmt.Errorf("malformed block %s: %w", str, ErrConfig)
	}
	base, err := parseDottedQuad(pieces[0])
	if err != nil {
		return AddrBlock{}, err
	}
	prefix, err := strconv.Atoi(pieces[1])
	if err != nil || prefix < 0 || prefix > 32 {
		return AddrBlock{}, fmt.Errorf("malformed block %s: %w", str, ErrConfig)
	}
	return AddrBlock{Base: base, Mask: maskFromPrefix(prefix)}, nil
}

// Restore rebuilds a snapshot from a topology description, the inverse
// of Transform.  The description carries node positions and addresses
// already resolved, so no allocators run here.
func (td *TopoDesc) Restore() (*TopoSnapshot, error) {
	ts := new(TopoSnapshot)
	ts.Name = td.Name
	ts.BackboneCount = td.Backbone
	ts.SecondaryPerBackbone = td.Secondary
	ts.StationsPerBackbone = td.Stations

	numByName := make(map[string]int)
	for idx, nd := range td.Nodes {
		if nd.Num != idx {
			return nil, fmt.Errorf("topology %s node %s out of order: %w", td.Name, nd.Name, ErrConfig)
		}
		code, err := NodeCodeFromStr(nd.Kind)
		if err != nil {
			return nil, err
		}
		node := new(Node)
		node.Num = nd.Num
		node.Name = nd.Name
		node.Code = code
		node.Pos = Position{X: nd.X, Y: nd.Y, Z: nd.Z}
		node.posSet = true
		node.Addrs = make(map[string]string)
		for tierName, addr := range nd.Addrs {
			node.Addrs[tierName] = addr
		}
		numByName[node.Name] = node.Num
		ts.Nodes = append(ts.Nodes, node)
	}

	if len(td.Tiers) != 1+2*td.Backbone {
		return nil, fmt.Errorf("topology %s holds %d tiers, expected %d: %w",
			td.Name, len(td.Tiers), 1+2*td.Backbone, ErrConfig)
	}

	for _, tierDesc := range td.Tiers {
		media, err := MediaClassFromStr(tierDesc.Media)
		if err != nil {
			return nil, err
		}
		anchorNum := -1
		if len(tierDesc.Anchor) > 0 {
			num, present := numByName[tierDesc.Anchor]
			if !present {
				return nil, fmt.Errorf("tier %s anchor %s unknown: %w",
					tierDesc.Name, tierDesc.Anchor, ErrConfig)
			}
			anchorNum = num
		}
		tier := createTier(tierDesc.Name, media, anchorNum)
		for _, memberName := range tierDesc.Members {
			num, present := numByName[memberName]
			if !present {
				return nil, fmt.Errorf("tier %s member %s unknown: %w",
					tierDesc.Name, memberName, ErrConfig)
			}
			tier.Members = append(tier.Members, num)
		}
		if len(tierDesc.Block) > 0 {
			blk, err := parseBlockStr(tierDesc.Block)
			if err != nil {
				return nil, err
			}
			tier.Block = blk
			tier.BlockSet = true
		}
		ts.Tiers = append(ts.Tiers, tier)
	}

	ts.Backbone = tierRange(ts.Tiers[0])
	for g := 0; g < td.Backbone; g++ {
		ts.Secondary = append(ts.Secondary, tierRange(ts.Tiers[1+g]))
		ts.Wireless = append(ts.Wireless, tierRange(ts.Tiers[1+td.Backbone+g]))
	}

	return ts, nil
}

// WriteToFile stores the TopoDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (td *TopoDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*td)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*td, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()

	return werr
}

// ReadTopoDesc deserializes a byte slice holding a representation of a
// TopoDesc struct.  If the input argument of dict (those bytes) is empty, the
// file whose name is given is read to acquire them.  A deserialized
// representation is returned, or an error if one is generated from a file
// read or the deserialization.
func ReadTopoDesc(filename string, useYAML bool, dict []byte) (*TopoDesc, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoDesc{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// A FlowDesc struct is the serializable description of one traffic
// flow, endpoints referenced by name with their bound addresses
type FlowDesc struct {
	FlowID   int    `json:"flowid" yaml:"flowid"`
	Src      string `json:"src" yaml:"src"`
	Sink     string `json:"sink" yaml:"sink"`
	SrcAddr  string `json:"srcaddr" yaml:"srcaddr"`
	SinkAddr string `json:"sinkaddr" yaml:"sinkaddr"`
}

// A FlowList struct gathers the flow descriptions of one experiment
type FlowList struct {
	Name  string     `json:"name" yaml:"name"`
	Flows []FlowDesc `json:"flows" yaml:"flows"`
}

// TransformFlows converts generated flow endpoints into their
// serializable description
func TransformFlows(ts *TopoSnapshot, flows []FlowEndpoint) (FlowList, error) {
	fl := FlowList{Name: ts.Name}
	for _, flow := range flows {
		src, err := ts.NodeByNum(flow.Src)
		if err != nil {
			return fl, err
		}
		sink, err := ts.NodeByNum(flow.Sink)
		if err != nil {
			return fl, err
		}
		srcAddr, sinkAddr, err := FlowAddrs(ts, flow)
		if err != nil {
			return fl, err
		}
		fl.Flows = append(fl.Flows, FlowDesc{
			FlowID: flow.FlowID, Src: src.Name, Sink: sink.Name,
			SrcAddr: srcAddr, SinkAddr: sinkAddr})
	}
	return fl, nil
}

// WriteToFile stores the FlowList struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (fl *FlowList) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*fl)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*fl, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()

	return werr
}

// ReadFlowList deserializes a byte slice holding a representation of a
// FlowList struct, reading the named file when the slice is empty
func ReadFlowList(filename string, useYAML bool, dict []byte) (*FlowList, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := FlowList{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// A TopoDescDict struct holds topology descriptions by name, so a
// library of prebuilt topologies can be stored in one file and
// recovered individually later
type TopoDescDict struct {
	DictName string              `json:"dictname" yaml:"dictname"`
	Descs    map[string]TopoDesc `json:"descs" yaml:"descs"`
}

// CreateTopoDescDict is a constructor
func CreateTopoDescDict(name string) *TopoDescDict {
	tdd := new(TopoDescDict)
	tdd.DictName = name
	tdd.Descs = make(map[string]TopoDesc)
	return tdd
}

// AddTopoDesc includes a topology description in the dictionary, with
// overwrite control
func (tdd *TopoDescDict) AddTopoDesc(td *TopoDesc, overwrite bool) error {
	_, present := tdd.Descs[td.Name]
	if present && !overwrite {
		return fmt.Errorf("attempt to overwrite topology description %s", td.Name)
	}
	tdd.Descs[td.Name] = *td
	return nil
}

// RecoverTopoDesc returns the named topology description, with a flag
// telling whether it was found
func (tdd *TopoDescDict) RecoverTopoDesc(name string) (*TopoDesc, bool) {
	td, present := tdd.Descs[name]
	if !present {
		return nil, false
	}
	return &td, true
}

// WriteToFile stores the TopoDescDict struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tdd *TopoDescDict) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tdd)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tdd, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()

	return werr
}

// ReadTopoDescDict deserializes a byte slice holding a representation
// of a TopoDescDict struct, reading the named file when the slice is
// empty
func ReadTopoDescDict(filename string, useYAML bool, dict []byte) (*TopoDescDict, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoDescDict{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}

// CheckDirectories probes the file system for the existence of every
// directory in the list.  Returns a boolean indicating whether all are
// present, and an aggregated error when any check failed.
func CheckDirectories(dirs []string) (bool, error) {
	failures := []string{}

	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}

		// a name with an extension is a file path, not a directory
		ext := filepath.Ext(dir)
		if ext != "" {
			failures = append(failures, fmt.Sprintf("%s not a directory", dir))
			continue
		}

		if _, err := os.Stat(dir); err != nil {
			failures = append(failures, fmt.Sprintf("%s not reachable", dir))
			continue
		}
	}
	if len(failures) == 0 {
		return true, nil
	}

	return false, errors.New(strings.Join(failures, ","))
}

// CheckReadableFiles probes the file system to ensure that every named
// file exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every named
// file can be written
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	// the directory of each named file must exist
	for _, name := range names {
		if len(name) == 0 || name == "/tmp" {
			continue
		}

		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	if checkExistence {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
