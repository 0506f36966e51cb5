package tiernet

// trace.go gathers a record of a simulation run for post-run analysis
// and builds the visualization description written alongside it.

import (
	"encoding/json"
	"os"
	"path"
	"sort"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

type TraceRecordType int

const (
	NetworkType TraceRecordType = iota
	AppType
)

var trtToStr map[TraceRecordType]string = map[TraceRecordType]string{NetworkType: "network", AppType: "app"}

type TraceInst struct {
	TraceTime string
	TraceType string
	TraceStr  string
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string
	Type string
}

// TraceManager gathers information about a topology model and an
// execution of that model
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, keyed by flow
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(ExpName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = ExpName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace creates a record of the trace using its calling arguments, and stores it
func (tm *TraceManager) AddTrace(vrt vrtime.Time, flowID int, trace TraceInst) {

	// return if we aren't using the trace manager
	if !tm.InUse {
		return
	}

	_, present := tm.Traces[flowID]
	if !present {
		tm.Traces[flowID] = make([]TraceInst, 0)
	}
	tm.Traces[flowID] = append(tm.Traces[flowID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
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
	return true
}

// NetTrace saves information about the visitation of a packet to some
// point in the topology, saved for post-run analysis
type NetTrace struct {
	Time     float64 // time in float64
	Ticks    int64   // ticks variable of time
	Priority int64   // priority field of time-stamp
	FlowID   int     // integer identifier of the flow this packet belongs to
	ObjID    int     // integer id for object being referenced
	Op       string  // "send", "transit", "recv"
	PcktIdx  int     // packet index inside the flow
	MsgType  string
}

func (ntr *NetTrace) TraceType() TraceRecordType {
	return NetworkType
}

func (ntr *NetTrace) Serialize() string {
	var bytes []byte
	var merr error

	bytes, merr = yaml.Marshal(*ntr)

	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddNetTrace creates a record of the trace using its calling arguments, and stores it
func AddNetTrace(tm *TraceManager, vrt vrtime.Time, msg *NetMsg, objID int, op string) {
	ntr := new(NetTrace)
	ntr.Time = vrt.Seconds()
	ntr.Ticks = vrt.Ticks()
	ntr.Priority = vrt.Pri()
	ntr.FlowID = msg.FlowID
	ntr.ObjID = objID
	ntr.Op = op
	ntr.PcktIdx = msg.PcktIdx
	ntr.MsgType = nmtToStr[msg.MsgType]

	ntrStr := ntr.Serialize()
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)

	trcInst := TraceInst{TraceTime: traceTime, TraceType: trtToStr[NetworkType], TraceStr: ntrStr}
	tm.AddTrace(vrt, ntr.FlowID, trcInst)
}

// AppTrace saves information about an application level action on one
// flow, an endpoint starting or a request being echoed or dropped
type AppTrace struct {
	Time   float64
	Ticks  int64
	FlowID int
	ObjID  int
	Op     string // "echo", "drop"
}

func (atr *AppTrace) TraceType() TraceRecordType {
	return AppType
}

func (atr *AppTrace) Serialize() string {
	var bytes []byte
	var merr error

	bytes, merr = yaml.Marshal(*atr)

	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddAppTrace creates a record of the trace using its calling arguments, and stores it
func AddAppTrace(tm *TraceManager, vrt vrtime.Time, flowID, objID int, op string) {
	atr := new(AppTrace)
	atr.Time = vrt.Seconds()
	atr.Ticks = vrt.Ticks()
	atr.FlowID = flowID
	atr.ObjID = objID
	atr.Op = op

	atrStr := atr.Serialize()
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)

	trcInst := TraceInst{TraceTime: traceTime, TraceType: trtToStr[AppType], TraceStr: atrStr}
	tm.AddTrace(vrt, flowID, trcInst)
}

// An AnimNodeDesc struct gives a visualizer what it needs to draw one
// node, its resolved position included
type AnimNodeDesc struct {
	Num  int     `json:"num" yaml:"num"`
	Name string  `json:"name" yaml:"name"`
	Kind string  `json:"kind" yaml:"kind"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Z    float64 `json:"z" yaml:"z"`
}

// An AnimLinkDesc struct names one drawn adjacency and the media class
// that carries it
type AnimLinkDesc struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Media string `json:"media" yaml:"media"`
}

// An AnimDesc struct is the serializable visualization description of
// one topology, every node with its position and every adjacency
type AnimDesc struct {
	ExpName string         `json:"expname" yaml:"expname"`
	Nodes   []AnimNodeDesc `json:"nodes" yaml:"nodes"`
	Links   []AnimLinkDesc `json:"links" yaml:"links"`
}

// BuildAnimDesc derives the visualization description from a finalized
// snapshot.  Links are emitted in endpoint index order so the output
// is identical run to run.
func BuildAnimDesc(expName string, ts *TopoSnapshot) *AnimDesc {
	ad := new(AnimDesc)
	ad.ExpName = expName

	ad.Nodes = make([]AnimNodeDesc, 0, len(ts.Nodes))
	for _, node := range ts.Nodes {
		and := AnimNodeDesc{Num: node.Num, Name: node.Name, Kind: NodeCodeToStr(node.Code),
			X: node.Pos.X, Y: node.Pos.Y, Z: node.Pos.Z}
		ad.Nodes = append(ad.Nodes, and)
	}

	_, media := linkPlan(ts)
	keys := make([]linkKey, 0, len(media))
	for key := range media {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a == keys[j].a {
			return keys[i].b < keys[j].b
		}
		return keys[i].a < keys[j].a
	})

	ad.Links = make([]AnimLinkDesc, 0, len(keys))
	for _, key := range keys {
		from, err := ts.NodeByNum(key.a)
		if err != nil {
			panic(err)
		}
		to, err := ts.NodeByNum(key.b)
		if err != nil {
			panic(err)
		}
		ald := AnimLinkDesc{From: from.Name, To: to.Name, Media: MediaClassToStr(media[key])}
		ad.Links = append(ad.Links, ald)
	}
	return ad
}

// WriteToFile stores the AnimDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (ad *AnimDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*ad)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*ad, "", "\t")
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
