package main

// tiersim builds a tiered topology from command line and file
// configuration, runs echo traffic across it, and writes the topology,
// flow, trace, and visualization outputs into a named directory.

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/iti/cmdline"
	"github.com/iti/tiernet"
)

// cmdlineParameters configures for recognition of command line variables
func cmdlineParameters() *cmdline.CmdParser {
	// create an argument parser
	cp := cmdline.NewCmdParser()
	cp.AddFlag(cmdline.StringFlag, "cfg", false) // configuration file, defaults apply without it

	cp.AddFlag(cmdline.StringFlag, "exp", false)      // name of the experiment
	cp.AddFlag(cmdline.StringFlag, "bbone", false)    // number of backbone nodes
	cp.AddFlag(cmdline.StringFlag, "edge", false)     // secondary nodes per backbone node
	cp.AddFlag(cmdline.StringFlag, "stas", false)     // stations per backbone node
	cp.AddFlag(cmdline.StringFlag, "stop", false)     // end of virtual time, in seconds
	cp.AddFlag(cmdline.StringFlag, "useTrace", false) // gather a trace of the run

	cp.AddFlag(cmdline.StringFlag, "outputLib", false) // directory of output files
	cp.AddFlag(cmdline.StringFlag, "topo", false)      // name of output file for the topology description
	cp.AddFlag(cmdline.StringFlag, "flows", false)     // name of output file for the flow description
	cp.AddFlag(cmdline.StringFlag, "trace", false)     // name of output file for the trace
	cp.AddFlag(cmdline.StringFlag, "anim", false)      // name of output file for the visualization description
	cp.AddFlag(cmdline.StringFlag, "saveCfg", false)   // name of output file for the effective configuration

	return cp
}

// asInt converts the string form of a count variable, leaving the
// fallback in place when the variable was not given
func asInt(cp *cmdline.CmdParser, flag string, dflt int) int {
	value := cp.GetVar(flag).(string)
	if len(value) == 0 {
		return dflt
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Errorf("command line variable %s expects an integer, given %s", flag, value))
	}
	return n
}

func main() {
	// configure command line variable recognition
	cp := cmdlineParameters()

	// parse the command line
	cp.Parse()

	// start from the stock configuration, layer a configuration
	// file over it, and command line variables over that
	cfg := tiernet.DefaultSimConfig()

	cfgFile := cp.GetVar("cfg").(string)
	if len(cfgFile) > 0 {
		valid, err := tiernet.CheckReadableFiles([]string{cfgFile})
		if !valid {
			panic(err)
		}
		ext := filepath.Ext(cfgFile)
		useYAML := ext == ".yaml" || ext == ".YAML" || ext == ".yml"
		cfg, err = tiernet.ReadSimConfig(cfgFile, useYAML, []byte{})
		if err != nil {
			panic(err)
		}
	}

	expName := cp.GetVar("exp").(string)
	if len(expName) > 0 {
		cfg.ExpName = expName
	}
	cfg.Backbone = asInt(cp, "bbone", cfg.Backbone)
	cfg.Secondary = asInt(cp, "edge", cfg.Secondary)
	cfg.Stations = asInt(cp, "stas", cfg.Stations)

	stopStr := cp.GetVar("stop").(string)
	if len(stopStr) > 0 {
		stop, err := strconv.ParseFloat(stopStr, 64)
		if err != nil {
			panic(fmt.Errorf("command line variable stop expects a float, given %s", stopStr))
		}
		cfg.StopTime = stop
	}

	traceStr := cp.GetVar("useTrace").(string)
	if len(traceStr) > 0 {
		useTrace, err := strconv.ParseBool(traceStr)
		if err != nil {
			panic(fmt.Errorf("command line variable useTrace expects a bool, given %s", traceStr))
		}
		cfg.UseTrace = useTrace
	}

	// make sure the output directory exists
	outputLib := cp.GetVar("outputLib").(string)
	if len(outputLib) == 0 {
		outputLib = "."
	}
	valid, err := tiernet.CheckDirectories([]string{outputLib})
	if !valid {
		panic(err)
	}

	// join directory specifications with file name specifications
	topoFile := cp.GetVar("topo").(string)
	if len(topoFile) > 0 {
		cfg.TopoFile = filepath.Join(outputLib, topoFile)
	}
	flowFile := cp.GetVar("flows").(string)
	if len(flowFile) > 0 {
		cfg.FlowFile = filepath.Join(outputLib, flowFile)
	}
	traceFile := cp.GetVar("trace").(string)
	if len(traceFile) > 0 {
		cfg.TraceFile = filepath.Join(outputLib, traceFile)
	}
	animFile := cp.GetVar("anim").(string)
	if len(animFile) > 0 {
		cfg.AnimFile = filepath.Join(outputLib, animFile)
	}
	saveCfgFile := cp.GetVar("saveCfg").(string)
	if len(saveCfgFile) > 0 {
		saveCfgFile = filepath.Join(outputLib, saveCfgFile)
	}

	// check files to be created
	files := []string{cfg.TopoFile, cfg.FlowFile, cfg.TraceFile, cfg.AnimFile, saveCfgFile}
	wrFiles := []string{}

	for _, file := range files {
		if len(file) > 0 {
			wrFiles = append(wrFiles, file)
		}
	}

	valid, err = tiernet.CheckOutputFiles(wrFiles)
	if !valid {
		panic(err)
	}

	if len(saveCfgFile) > 0 {
		err = cfg.WriteToFile(saveCfgFile)
		if err != nil {
			panic(err)
		}
	}

	// assemble the topology and derive the traffic over it
	sd := tiernet.CreateSimDriver(cfg)
	err = sd.BuildTopology()
	if err != nil {
		panic(err)
	}
	err = sd.InstallApps()
	if err != nil {
		panic(err)
	}

	snap := sd.Snapshot()
	fmt.Printf("%s: %d nodes in %d tiers, %d flows\n",
		cfg.ExpName, snap.TotalNodes(), len(snap.Tiers), len(sd.Flows()))

	// advance virtual time
	sd.Run()

	for _, fs := range sd.FlowReport() {
		fmt.Printf("flow %d: sent %d, echoed %d, received %d\n",
			fs.FlowID, fs.Sent, fs.Echoed, fs.Received)
	}

	err = sd.WriteOutputs()
	if err != nil {
		panic(err)
	}

	fmt.Println("Output files written!")
}
