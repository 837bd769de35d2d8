// Package render implements the renderer (component H): deterministic,
// locale-independent textual emission of the record-database and
// archive-descriptor texts from a sequence of record packages, using
// text/template the way pflow's petrigen emits generated source from
// template forms rather than ad-hoc string concatenation.
package render

import (
	"strings"
	"text/template"

	"github.com/plcrecord/pvgen/internal/records"
)

const recordTemplateText = `{{- range . }}record({{ .Kind }}, {{ quote .PV }}) {
{{- range .FieldLines }}
    field({{ .Name }}, {{ quote .Value }})
{{- end }}
{{- range .Infos }}
    info({{ .Key }}, {{ quote .Value }})
{{- end }}
}
{{ end -}}`

// fieldLine is a template-friendly (name, value) pair, pre-sorted by the
// record's SortedFieldNames so the template itself stays a dumb renderer
// with no ordering logic of its own.
type fieldLine struct {
	Name, Value string
}

type templateRecord struct {
	Kind       records.Kind
	PV         string
	FieldLines []fieldLine
	Infos      []records.InfoNode
}

var recordTemplate = template.Must(template.New("record").Funcs(template.FuncMap{
	"quote": quoteValue,
}).Parse(recordTemplateText))

// quoteValue renders a field value per §4.H: wrapped in double quotes, with
// internal quotes backslash-escaped.
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// RecordDatabase renders the full record-database text for a sorted
// sequence of RecordPackages. Callers are expected to have already called
// records.SortPackages so that identical inputs yield byte-identical
// output (§8.4).
func RecordDatabase(pkgs []*records.RecordPackage) (string, error) {
	var trecs []templateRecord
	for _, pkg := range pkgs {
		for _, r := range []*records.Record{pkg.Primary, pkg.Secondary} {
			if r == nil {
				continue
			}
			trecs = append(trecs, toTemplateRecord(r))
		}
	}

	var b strings.Builder
	if err := recordTemplate.Execute(&b, trecs); err != nil {
		return "", err
	}
	return b.String(), nil
}

func toTemplateRecord(r *records.Record) templateRecord {
	tr := templateRecord{Kind: r.Kind, PV: r.PV, Infos: r.Infos}
	for _, name := range r.SortedFieldNames() {
		tr.FieldLines = append(tr.FieldLines, fieldLine{Name: name, Value: r.Fields[name]})
	}
	return tr
}

// ArchiveDescriptor renders the archive-descriptor text: one line per
// archived PV, in the same package order as RecordDatabase.
func ArchiveDescriptor(pkgs []*records.RecordPackage) (string, error) {
	var b strings.Builder
	for _, pkg := range pkgs {
		if pkg.ArchiveLine == "" {
			continue
		}
		b.WriteString(pkg.ArchiveLine)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
