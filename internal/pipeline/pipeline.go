// Package pipeline wires the core's eight components into the single pure
// pass of spec.md §5: parse → resolve types → (walk chains, merge configs)
// → build records → lint → render. It carries a *logrus.Logger the way the
// teacher's long-lived engine/indexer structs do, reporting stage
// transitions at info level and §7 non-fatal diagnostics at warn under
// allow_errors (at debug otherwise).
package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/plcrecord/pvgen/internal/chain"
	"github.com/plcrecord/pvgen/internal/config"
	"github.com/plcrecord/pvgen/internal/diagnostics"
	"github.com/plcrecord/pvgen/internal/grammar"
	"github.com/plcrecord/pvgen/internal/mergeconfig"
	"github.com/plcrecord/pvgen/internal/records"
	"github.com/plcrecord/pvgen/internal/render"
	"github.com/plcrecord/pvgen/internal/severity"
	"github.com/plcrecord/pvgen/internal/tctypes"
	"github.com/plcrecord/pvgen/internal/xmlmodel"
)

// Pipeline runs the full compilation pass for one project XML document.
type Pipeline struct {
	Config *config.Config
	Log    *logrus.Logger
	linter *grammar.Linter
	sevEng *severity.Engine
}

// New constructs a Pipeline with the given configuration and logger. If log
// is nil, a default logrus.Logger writing to os.Stderr at info level is
// used.
func New(cfg *config.Config, log *logrus.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logrus.New()
	}

	var linter *grammar.Linter
	var err error
	if cfg.GrammarFile != "" {
		data, rerr := os.ReadFile(cfg.GrammarFile)
		if rerr != nil {
			return nil, fmt.Errorf("pipeline: reading grammar file: %w", rerr)
		}
		linter, err = grammar.NewFromFile(data)
	} else {
		linter, err = grammar.New()
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: loading grammar: %w", err)
	}
	sevEng, err := severity.New()
	if err != nil {
		return nil, fmt.Errorf("pipeline: loading severity policy: %w", err)
	}

	return &Pipeline{Config: cfg, Log: log, linter: linter, sevEng: sevEng}, nil
}

// Result is the outcome of one full pipeline run.
type Result struct {
	Packages    []*records.RecordPackage
	Diagnostics []*diagnostics.Diagnostic
	RecordText  string
	ArchiveText string
}

// Run executes the single pass described in spec.md §5 against source.
func (p *Pipeline) Run(source io.Reader) (*Result, error) {
	p.Log.Info("pipeline: parsing project XML")
	root, err := xmlmodel.Parse(source)
	if err != nil {
		d := diagnostics.MalformedXML(err)
		p.Log.WithError(d).Error("pipeline: fatal parse failure")
		return nil, d
	}

	p.Log.Info("pipeline: resolving data types")
	typeIndex := tctypes.BuildIndex(root)
	symbols := tctypes.ResolveSymbols(root)

	walker := chain.NewWalker(typeIndex)
	opts := records.Options{
		MaxNameLength:     p.Config.MaxRecordNameLength,
		ArchiveThreshold:  p.Config.ArchiveThreshold,
		DefaultPrecision:  p.Config.DefaultPrecision,
		PortName:          p.Config.PortName,
		ArchiveSuppressed: p.sevEng.ArchiveSuppressed,
	}

	var pkgs []*records.RecordPackage
	var collected []*diagnostics.Diagnostic

	for _, sym := range symbols {
		if sym.Pragma == "" {
			continue
		}

		p.Log.WithField("symbol", sym.Name).Debug("pipeline: walking chains")
		chains, warnings := walker.Walk(sym)
		for _, w := range warnings {
			d := p.classify(diagnostics.UnresolvedType(w))
			if d != nil {
				collected = append(collected, d)
			}
		}

		for _, c := range chains {
			cfgs, err := mergeconfig.Merge(c)
			if err != nil {
				d := p.classify(diagnostics.InvalidChain(err).WithTCName(c.TCName()))
				if d != nil {
					collected = append(collected, d)
				}
				continue
			}

			for _, cfg := range cfgs {
				pkg, buildWarnings := records.Build(c, cfg, opts)
				for _, w := range buildWarnings {
					if d := p.classify(diagnostics.InvalidChain(w).WithTCName(cfg.TCName)); d != nil {
						collected = append(collected, d)
					}
				}
				if pkg == nil {
					continue
				}

				findings, err := grammar.CheckAll(p.linter, []*records.RecordPackage{pkg})
				if err != nil {
					return nil, fmt.Errorf("pipeline: linting %q: %w", pkg.TCName, err)
				}
				failed := false
				for _, f := range findings {
					if f.Severity == grammar.SeverityError {
						d := p.classify(diagnostics.LintError(fmt.Errorf("%s", f.Message)).WithTCName(pkg.TCName))
						if d != nil {
							collected = append(collected, d)
						}
						if !p.Config.AllowErrors {
							failed = true
						}
					}
				}
				if failed {
					continue
				}

				pkgs = append(pkgs, pkg)
			}
		}
	}

	records.SortPackages(pkgs)

	recordText, err := render.RecordDatabase(pkgs)
	if err != nil {
		return nil, diagnostics.InternalInvariantViolated(err)
	}
	archiveText, err := render.ArchiveDescriptor(pkgs)
	if err != nil {
		return nil, diagnostics.InternalInvariantViolated(err)
	}

	p.Log.WithFields(logrus.Fields{
		"records":     len(pkgs),
		"diagnostics": len(collected),
	}).Info("pipeline: compilation complete")

	return &Result{
		Packages:    pkgs,
		Diagnostics: collected,
		RecordText:  recordText,
		ArchiveText: archiveText,
	}, nil
}

// classify consults the severity policy to decide the level d is logged at:
// warn for the allow_errors "warn" verdict, debug otherwise. It always
// returns d, so every diagnostic is collected into the final report,
// including those in the non-allow_errors "skip" case.
func (p *Pipeline) classify(d *diagnostics.Diagnostic) *diagnostics.Diagnostic {
	action, err := p.sevEng.Decide(d.Kind, p.Config.AllowErrors)
	if err != nil {
		p.Log.WithError(err).Warn("pipeline: severity policy evaluation failed; defaulting to skip")
		action = severity.ActionSkip
	}
	switch action {
	case severity.ActionWarn:
		p.Log.WithError(d).Warn("pipeline: non-fatal diagnostic (allow_errors)")
	default:
		p.Log.WithError(d).Debug("pipeline: non-fatal diagnostic")
	}
	return d
}
