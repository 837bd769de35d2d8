// Package grammar implements the grammar linter (component G): it consumes
// a record-definition grammar expressed as a CUE schema and checks every
// rendered record against it (record kind known, every field name known for
// that kind, choice-field values among the declared choices), the way the
// teacher's internal/validator gates extracted facts against schema.cue
// before they ever reach policy evaluation.
package grammar

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/plcrecord/pvgen/internal/records"
)

//go:embed records.cue
var defaultSchemaFS embed.FS

// Linter checks rendered records against a CUE record-definition schema.
type Linter struct {
	ctx    *cue.Context
	schema cue.Value
}

// New returns a Linter using the embedded default record-definition schema
// (§6: "a record-definition file declaring record kinds and fields").
func New() (*Linter, error) {
	schemaBytes, err := defaultSchemaFS.ReadFile("records.cue")
	if err != nil {
		return nil, fmt.Errorf("grammar: loading embedded schema: %w", err)
	}
	return NewFromBytes(schemaBytes)
}

// NewFromFile loads a grammar schema from an external CUE file (§6: an
// "optional record-definition file for grammar linting" may override the
// embedded default).
func NewFromFile(data []byte) (*Linter, error) {
	return NewFromBytes(data)
}

// NewFromBytes compiles schema text into a Linter.
func NewFromBytes(schema []byte) (*Linter, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(schema)
	if val.Err() != nil {
		return nil, fmt.Errorf("grammar: compiling schema: %w", val.Err())
	}
	return &Linter{ctx: ctx, schema: val}, nil
}

// Severity distinguishes a hard lint error from an informational note.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

// Finding is one (severity, message, location) tuple produced by Check.
type Finding struct {
	Severity Severity
	Message  string
	Location string // the record's PV name
}

// recordInput mirrors the shape unified against the CUE #Record definition.
type recordInput struct {
	Kind   string            `json:"kind"`
	PV     string            `json:"pv"`
	Fields map[string]string `json:"fields"`
}

// Check lints one rendered Record and returns every finding. A record with
// at least one SeverityError finding should be demoted to FAILED by the
// caller unless error-tolerance (allow_errors) is enabled, per §4.G.
func (l *Linter) Check(r *records.Record) ([]Finding, error) {
	in := recordInput{Kind: string(r.Kind), PV: r.PV, Fields: r.Fields}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("grammar: marshaling record %q: %w", r.PV, err)
	}

	dataVal := l.ctx.CompileBytes(data)
	if dataVal.Err() != nil {
		return nil, fmt.Errorf("grammar: compiling record %q as CUE: %w", r.PV, dataVal.Err())
	}

	recordDef := l.schema.LookupPath(cue.ParsePath("#Record"))
	if recordDef.Err() != nil {
		return nil, fmt.Errorf("grammar: schema missing #Record definition: %w", recordDef.Err())
	}

	unified := recordDef.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return []Finding{{
			Severity: SeverityError,
			Message:  err.Error(),
			Location: r.PV,
		}}, nil
	}
	return nil, nil
}

// CheckAll lints every record across a set of packages, returning the
// combined finding list in package order.
func CheckAll(l *Linter, pkgs []*records.RecordPackage) ([]Finding, error) {
	var findings []Finding
	for _, pkg := range pkgs {
		for _, r := range []*records.Record{pkg.Primary, pkg.Secondary} {
			if r == nil {
				continue
			}
			fs, err := l.Check(r)
			if err != nil {
				return findings, err
			}
			findings = append(findings, fs...)
		}
	}
	return findings, nil
}
