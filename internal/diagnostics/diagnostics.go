// Package diagnostics implements the closed error taxonomy of §7: a set of
// typed, sentinel-wrapping errors that every pipeline stage produces instead
// of ad-hoc strings, plus a Collector that accumulates local (non-fatal)
// errors across a run and reports a count/detail list at the end.
package diagnostics

import (
	"errors"
	"fmt"
)

// Kind identifies one of the §7 error categories.
type Kind string

const (
	KindMalformedXML              Kind = "MalformedXml"
	KindMalformedPragma           Kind = "MalformedPragma"
	KindUnresolvedType            Kind = "UnresolvedType"
	KindInvalidChain              Kind = "InvalidChain"
	KindUnsupportedType           Kind = "UnsupportedType"
	KindLintError                 Kind = "LintError"
	KindInternalInvariantViolated Kind = "InternalInvariantViolated"
)

// Fatal reports whether a diagnostic of this kind always aborts the run,
// regardless of allow_errors. Only MalformedXml and InternalInvariantViolated
// are fatal per §7; everything else is local.
func (k Kind) Fatal() bool {
	return k == KindMalformedXML || k == KindInternalInvariantViolated
}

// Diagnostic is the concrete error type carried through the pipeline. It
// satisfies the error interface and wraps an underlying cause so callers can
// still errors.Is/As through to it.
type Diagnostic struct {
	Kind       Kind
	TCName     string // the chain's tcname, when known
	SourcePath string // the source XML item path, when known
	Cause      error
}

func (d *Diagnostic) Error() string {
	switch {
	case d.TCName != "" && d.SourcePath != "":
		return fmt.Sprintf("%s: %s (at %s): %v", d.Kind, d.TCName, d.SourcePath, d.Cause)
	case d.TCName != "":
		return fmt.Sprintf("%s: %s: %v", d.Kind, d.TCName, d.Cause)
	case d.SourcePath != "":
		return fmt.Sprintf("%s (at %s): %v", d.Kind, d.SourcePath, d.Cause)
	default:
		return fmt.Sprintf("%s: %v", d.Kind, d.Cause)
	}
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

// New constructs a Diagnostic of the given kind wrapping cause.
func New(kind Kind, cause error) *Diagnostic {
	return &Diagnostic{Kind: kind, Cause: cause}
}

// WithTCName returns a copy of d annotated with a chain's tcname.
func (d *Diagnostic) WithTCName(tcname string) *Diagnostic {
	d2 := *d
	d2.TCName = tcname
	return &d2
}

// WithSourcePath returns a copy of d annotated with a source XML item path.
func (d *Diagnostic) WithSourcePath(path string) *Diagnostic {
	d2 := *d
	d2.SourcePath = path
	return &d2
}

func MalformedXML(cause error) *Diagnostic      { return New(KindMalformedXML, cause) }
func MalformedPragma(cause error) *Diagnostic   { return New(KindMalformedPragma, cause) }
func UnresolvedType(cause error) *Diagnostic    { return New(KindUnresolvedType, cause) }
func InvalidChain(cause error) *Diagnostic      { return New(KindInvalidChain, cause) }
func UnsupportedType(cause error) *Diagnostic   { return New(KindUnsupportedType, cause) }
func LintError(cause error) *Diagnostic         { return New(KindLintError, cause) }
func InternalInvariantViolated(cause error) *Diagnostic {
	return New(KindInternalInvariantViolated, cause)
}

// AsKind reports whether err, or any error it wraps, is a *Diagnostic of the
// given kind.
func AsKind(err error, kind Kind) bool {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Kind == kind
	}
	return false
}

// Collector accumulates local diagnostics across a pipeline run. It never
// collects fatal diagnostics: those are returned immediately by the stage
// that raised them.
type Collector struct {
	AllowErrors bool
	items       []*Diagnostic
}

// NewCollector returns a Collector with its AllowErrors field set to
// allowErrors. The Collector only records that setting; none of its methods
// act on it.
func NewCollector(allowErrors bool) *Collector {
	return &Collector{AllowErrors: allowErrors}
}

// Add records a local diagnostic. Fatal diagnostics should never be passed
// here; callers return InternalInvariantViolated and MalformedXML
// diagnostics directly.
func (c *Collector) Add(d *Diagnostic) {
	c.items = append(c.items, d)
}

// Items returns all collected diagnostics in the order they were added.
func (c *Collector) Items() []*Diagnostic {
	return c.items
}

// Count returns the number of collected diagnostics.
func (c *Collector) Count() int {
	return len(c.items)
}

// HasErrors reports whether any diagnostics were collected.
func (c *Collector) HasErrors() bool {
	return len(c.items) > 0
}
