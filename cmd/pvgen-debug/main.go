// pvgen-debug inspects a single symbol's pragma chain and merged configs
// without running the full pipeline, the way pytmc's pytmc-summary dumps a
// single .tsproj's symbols and links for inspection. It is the tool to reach
// for first when a generated record looks wrong: it shows the chain frames
// and merged Config the builder saw, one stage short of the final record.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/plcrecord/pvgen/internal/chain"
	"github.com/plcrecord/pvgen/internal/mergeconfig"
	"github.com/plcrecord/pvgen/internal/tctypes"
	"github.com/plcrecord/pvgen/internal/xmlmodel"
)

func main() {
	symbolName := flag.String("symbol", "", "dump only the named symbol (default: all symbols with a pragma)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pvgen-debug [--symbol NAME] <project.xml>")
		os.Exit(1)
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	root, err := xmlmodel.Parse(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing project XML: %v\n", err)
		os.Exit(1)
	}

	typeIndex := tctypes.BuildIndex(root)
	walker := chain.NewWalker(typeIndex)

	for _, sym := range tctypes.ResolveSymbols(root) {
		if sym.Pragma == "" {
			continue
		}
		if *symbolName != "" && sym.Name != *symbolName {
			continue
		}

		fmt.Printf("=== %s ===\n", sym.Name)

		chains, warnings := walker.Walk(sym)
		for _, w := range warnings {
			fmt.Printf("  warning: %v\n", w)
		}

		for _, c := range chains {
			fmt.Printf("  chain %s (%d frame(s)):\n", c.TCName(), len(c.Frames))
			for i, fr := range c.Frames {
				fmt.Printf("    [%d] %s: %v\n", i, fr.Name, fr.Pragma.Pairs)
			}

			cfgs, err := mergeconfig.Merge(c)
			if err != nil {
				fmt.Printf("    merge error: %v\n", err)
				continue
			}
			for _, cfg := range cfgs {
				enc, _ := json.MarshalIndent(cfg, "    ", "  ")
				fmt.Printf("    config: %s\n", enc)
			}
		}
	}
}
