// =============================================================================
// pvgen - Main Entry Point
// =============================================================================
//
// pvgen transforms a TwinCAT TMC/TcGVL project XML document into an EPICS
// record database and archiver descriptor, the way pytmc's db_from_plc does,
// enabling that record database to be generated as a build step rather than
// hand-maintained.
//
// THE PIPELINE:
//   1. xmlmodel parses the project XML into a generic attribute/child tree
//   2. tctypes resolves each declaration's data type and pytmc pragma
//   3. chain walks each pragma's io:/pv: "chain" of override configs
//   4. mergeconfig combines a chain into one or more per-PV configs
//   5. records builds the DTYP/SCAN/INP/OUT field defaults for each config
//   6. grammar (CUE) rejects any record that fails the record-kind schema
//   7. render emits the final record-database and archive-descriptor text
//
// WHEN INVESTIGATING A MISSING OR MALFORMED RECORD:
//   Start at the beginning of the pipeline, not the end!
//   Pragma parsing issues -> chain/merge issues -> record-builder issues
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/plcrecord/pvgen/internal/config"
	"github.com/plcrecord/pvgen/internal/diagnostics"
	"github.com/plcrecord/pvgen/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "init":
		runInit()
	case "-v", "--verbose":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(1)
		}
		run(os.Args[2], "", true)
	case "-h", "--help", "help":
		printUsage()
	case "-c", "--config":
		if len(os.Args) < 4 {
			printUsage()
			os.Exit(1)
		}
		run(os.Args[3], os.Args[2], false)
	default:
		run(cmd, "", false)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: pvgen [command] [options] <project.xml>

Commands:
  init              Create a pvgen.json configuration file
  <path>            Compile the TMC project XML at the given path

Options:
  -v, --verbose     Enable debug-level logging
  -c, --config      Specify config file: pvgen -c config.json <path>
  -h, --help        Show this help message

Output:
  pvgen writes <project>.db (record database) and <project>.archive
  (archiver descriptor) alongside the input file.

Configuration:
  pvgen looks for configuration in:
    1. ./pvgen.json
    2. ./.pvgen.json
    3. ~/.config/pvgen/config.json

  Run 'pvgen init' to create a default configuration file.`)
}

func runInit() {
	configPath := "pvgen.json"

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
}

func run(path, configPath string, verbose bool) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		fmt.Printf("Warning: could not load config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	p, err := pipeline.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", path, err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	result, err := p.Run(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}

	base := trimExt(path)
	if err := os.WriteFile(base+".db", []byte(result.RecordText), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing record database: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(base+".archive", []byte(result.ArchiveText), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing archive descriptor: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d record(s), %d diagnostic(s)\n", len(result.Packages), len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		fmt.Fprintf(os.Stderr, "  %v\n", d)
	}
}

// exitCodeFor maps a fatal pipeline error onto the §6 exit-code contract:
// 1 parse failure, 2 configuration/merge failure, 3 lint failure.
func exitCodeFor(err error) int {
	switch {
	case diagnostics.AsKind(err, diagnostics.KindMalformedXML):
		return 1
	case diagnostics.AsKind(err, diagnostics.KindLintError):
		return 3
	case diagnostics.AsKind(err, diagnostics.KindInvalidChain), diagnostics.AsKind(err, diagnostics.KindUnresolvedType):
		return 2
	default:
		return 1
	}
}

func trimExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}
