// pvgen-diff compiles two TMC project XML documents and reports the PVs
// added and removed between them, the way vhdl-facts's --delta-from/--delta-out
// flags report row-level changes between two fact snapshots, but comparing
// compiled record packages directly instead of requiring a separately saved
// facts JSON file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/plcrecord/pvgen/internal/config"
	"github.com/plcrecord/pvgen/internal/pipeline"
	"github.com/plcrecord/pvgen/internal/pragma"
	"github.com/plcrecord/pvgen/internal/pvtable"
)

func main() {
	ioFilter := flag.String("io", "", "restrict the report to one direction: input or output (default: both)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: pvgen-diff [--io input|output] <prev-project.xml> <next-project.xml>")
		os.Exit(1)
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	prevTable, err := compile(args[0], log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling %s: %v\n", args[0], err)
		os.Exit(1)
	}
	nextTable, err := compile(args[1], log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling %s: %v\n", args[1], err)
		os.Exit(1)
	}

	delta := pvtable.ComputeDelta(prevTable, nextTable)

	if *ioFilter != "" {
		dir, err := pragma.NormalizeIO(*ioFilter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		delta = pvtable.FilterDeltaByIO(delta, map[pragma.Direction]bool{dir: true})
	}

	for _, row := range delta.Removed.Rows {
		fmt.Printf("- %s (%s)\n", row.PV, row.Kind)
	}
	for _, row := range delta.Added.Rows {
		fmt.Printf("+ %s (%s)\n", row.PV, row.Kind)
	}
	fmt.Printf("\n%d removed, %d added\n", len(delta.Removed.Rows), len(delta.Added.Rows))
}

func compile(path string, log *logrus.Logger) (pvtable.Table, error) {
	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return pvtable.Table{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return pvtable.Table{}, err
	}
	defer func() { _ = f.Close() }()

	result, err := p.Run(f)
	if err != nil {
		return pvtable.Table{}, err
	}

	return pvtable.BuildTable(result.Packages), nil
}
