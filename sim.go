package tiernet

// sim.go holds the configuration of one experiment and the driver
// that runs it end to end: assemble the topology, derive the flows,
// compute the routes, install the applications, advance virtual time,
// and write the output files.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/iti/evt/evtm"
	"gopkg.in/yaml.v3"
)

// A FamilyAddr struct gives the configured base and mask of one
// address family, in dotted quad form
type FamilyAddr struct {
	Base string `json:"base" yaml:"base"`
	Mask string `json:"mask" yaml:"mask"`
}

// A SimConfig struct carries everything one run depends on.  Zero or
// missing sections fall back to the stock values, so a configuration
// file needs to name only what it changes.
type SimConfig struct {
	// name of experiment, used to label outputs
	ExpName string `json:"expname" yaml:"expname"`

	// tier cardinalities
	Backbone  int `json:"backbone" yaml:"backbone"`
	Secondary int `json:"secondary" yaml:"secondary"`
	Stations  int `json:"stations" yaml:"stations"`

	// backbone placement
	Grid GridSpec `json:"grid" yaml:"grid"`

	// address family bases, keyed by family name
	Families map[string]FamilyAddr `json:"families,omitempty" yaml:"families,omitempty"`

	// media performance, keyed by media class name
	Media map[string]MediaAttrs `json:"media,omitempty" yaml:"media,omitempty"`

	// application settings shared by every flow
	App AppParams `json:"app" yaml:"app"`

	// end of virtual time, in seconds
	StopTime float64 `json:"stoptime" yaml:"stoptime"`

	// gather a trace of the run
	UseTrace bool `json:"usetrace" yaml:"usetrace"`

	// output file names, empty names are skipped
	TopoFile  string `json:"topofile,omitempty" yaml:"topofile,omitempty"`
	FlowFile  string `json:"flowfile,omitempty" yaml:"flowfile,omitempty"`
	TraceFile string `json:"tracefile,omitempty" yaml:"tracefile,omitempty"`
	AnimFile  string `json:"animfile,omitempty" yaml:"animfile,omitempty"`
}

// DefaultSimConfig returns the stock experiment, six backbone nodes
// each with one secondary node and a four station cell, run for ten
// seconds of virtual time
func DefaultSimConfig() *SimConfig {
	cfg := new(SimConfig)
	cfg.ExpName = "tiernet"
	cfg.Backbone = 6
	cfg.Secondary = 1
	cfg.Stations = 4
	cfg.Grid = DefaultGridSpec()
	cfg.Media = DefaultMediaAttrs()
	cfg.App = DefaultAppParams()
	cfg.StopTime = 10.0
	cfg.UseTrace = true
	return cfg
}

// ReadSimConfig deserializes a byte slice holding a representation of
// a SimConfig struct and returns a pointer to it.  If the input
// dict is empty the file whose name is given is read to fill it.
// Deserialization lands on top of the stock configuration, so a file
// needs to name only the settings it changes.
func ReadSimConfig(filename string, useYAML bool, dict []byte) (*SimConfig, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := *DefaultSimConfig()
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

// WriteToFile stores the SimConfig struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *SimConfig) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*cfg)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*cfg, "", "\t")
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

// A SimDriver struct sequences one experiment.  Its methods are meant
// to be called in order, BuildTopology, InstallApps, Run, and
// WriteOutputs, and calling them out of order is an internal fault.
type SimDriver struct {
	Cfg    *SimConfig
	EvtMgr *evtm.EventManager

	tm     *TraceManager
	snap   *TopoSnapshot
	flows  []FlowEndpoint
	rt     *RouteTable
	nr     *NetRuntime
	portal *AppPortal
}

// CreateSimDriver is a constructor.  The event manager and trace
// manager exist from the start so topology construction can register
// names with the trace.
func CreateSimDriver(cfg *SimConfig) *SimDriver {
	sd := new(SimDriver)
	sd.Cfg = cfg
	sd.EvtMgr = evtm.New()
	sd.tm = CreateTraceManager(cfg.ExpName, cfg.UseTrace)
	return sd
}

// BuildTopology assembles the node and tier structure the
// configuration calls for, derives the traffic flows, and computes
// the routes that carry them
func (sd *SimDriver) BuildTopology() error {
	cfg := sd.Cfg

	asm := CreateTopoAssembler(cfg.ExpName, cfg.Grid)
	for famName, famAddr := range cfg.Families {
		family, err := AddrFamilyFromStr(famName)
		if err != nil {
			return err
		}
		asm.SetFamilyAddrs(family, famAddr.Base, famAddr.Mask)
	}

	snap, err := asm.Build(cfg.Backbone, cfg.Secondary, cfg.Stations)
	if err != nil {
		return err
	}

	flows, err := GenerateFlows(snap)
	if err != nil {
		return err
	}

	for _, node := range snap.Nodes {
		sd.tm.AddName(node.Num, node.Name, NodeCodeToStr(node.Code))
	}

	edges, media := linkPlan(snap)
	rt := CreateRouteTable(edges)
	rt.PopulateRoutes(flows)

	attrs := cfg.Media
	if attrs == nil {
		attrs = DefaultMediaAttrs()
	}
	nr, err := CreateNetRuntime(snap, rt, media, attrs, sd.tm)
	if err != nil {
		return err
	}

	sd.snap = snap
	sd.flows = flows
	sd.rt = rt
	sd.nr = nr
	return nil
}

// InstallApps places an echo server and client pair over every flow
// and books their start times with the event manager
func (sd *SimDriver) InstallApps() error {
	if sd.snap == nil {
		panic(fmt.Errorf("applications installed before topology exists"))
	}

	portal := CreateAppPortal(sd.nr, sd.tm)
	for _, flow := range sd.flows {
		err := portal.InstallFlow(sd.snap, flow, sd.Cfg.App)
		if err != nil {
			return err
		}
	}
	portal.ScheduleApps(sd.EvtMgr)
	sd.portal = portal
	return nil
}

// Run advances virtual time until the configured stop time
func (sd *SimDriver) Run() {
	if sd.portal == nil {
		panic(fmt.Errorf("run called before applications installed"))
	}
	sd.EvtMgr.Run(sd.Cfg.StopTime)
}

// WriteOutputs stores every output the configuration names, the
// topology and flow descriptions, the trace, and the visualization
// description
func (sd *SimDriver) WriteOutputs() error {
	if sd.snap == nil {
		panic(fmt.Errorf("outputs requested before topology exists"))
	}
	cfg := sd.Cfg

	if len(cfg.TopoFile) > 0 {
		td := sd.snap.Transform()
		err := td.WriteToFile(cfg.TopoFile)
		if err != nil {
			return err
		}
	}

	if len(cfg.FlowFile) > 0 {
		fl, err := TransformFlows(sd.snap, sd.flows)
		if err != nil {
			return err
		}
		err = fl.WriteToFile(cfg.FlowFile)
		if err != nil {
			return err
		}
	}

	if len(cfg.TraceFile) > 0 {
		sd.tm.WriteToFile(cfg.TraceFile)
	}

	if len(cfg.AnimFile) > 0 {
		ad := BuildAnimDesc(cfg.ExpName, sd.snap)
		err := ad.WriteToFile(cfg.AnimFile)
		if err != nil {
			return err
		}
	}
	return nil
}

// Snapshot exposes the assembled topology
func (sd *SimDriver) Snapshot() *TopoSnapshot {
	return sd.snap
}

// Flows exposes the derived traffic matrix
func (sd *SimDriver) Flows() []FlowEndpoint {
	return sd.flows
}

// RouteOf returns the forward route of one flow
func (sd *SimDriver) RouteOf(flow FlowEndpoint) []int {
	if sd.rt == nil {
		panic(fmt.Errorf("route requested before topology exists"))
	}
	return sd.rt.Route(flow.Src, flow.Sink)
}

// FlowReport returns the per flow packet counters gathered by the run
func (sd *SimDriver) FlowReport() []FlowStatus {
	if sd.portal == nil {
		return nil
	}
	return sd.portal.FlowReport()
}
