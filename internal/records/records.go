// Package records implements the record package builder (component F): it
// chooses record kinds from a leaf's resolved type and direction, infers the
// default fields of spec.md §4.F.2-7, merges in explicit field: overrides,
// and assembles the autosave/archive metadata nodes.
package records

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/plcrecord/pvgen/internal/chain"
	"github.com/plcrecord/pvgen/internal/mergeconfig"
	"github.com/plcrecord/pvgen/internal/pragma"
	"github.com/plcrecord/pvgen/internal/tctypes"
)

// Kind is an EPICS record type name.
type Kind string

const (
	KindAI       Kind = "ai"
	KindAO       Kind = "ao"
	KindBI       Kind = "bi"
	KindBO       Kind = "bo"
	KindLongin   Kind = "longin"
	KindLongout  Kind = "longout"
	KindMbbi     Kind = "mbbi"
	KindMbbo     Kind = "mbbo"
	KindWaveform Kind = "waveform"
)

// InfoNode is an info(key, "value") node attached to a Record.
type InfoNode struct {
	Key   string
	Value string
}

// Record is one rendered record: a kind, a PV name, and its field/info sets.
type Record struct {
	Kind   Kind
	PV     string
	Fields map[string]string
	Infos  []InfoNode

	// ASG and DESC live only in Fields; there are no separate struct fields
	// for them.
}

// SortedFieldNames returns f's field names ordered by the §4.F "Ordering
// for deterministic output" priority table: record-kind selectors first,
// then alarm/conversion fields, then everything else alphabetically.
func (r *Record) SortedFieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for n := range r.Fields {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := fieldPriority(names[i]), fieldPriority(names[j])
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

var fieldPriorityTable = map[string]int{
	"DTYP": 0, "SCAN": 1, "INP": 2, "OUT": 3,
	"HIHI": 10, "HIGH": 11, "LOW": 12, "LOLO": 13,
	"HHSV": 14, "HSV": 15, "LSV": 16, "LLSV": 17,
	"HOPR": 18, "LOPR": 19, "DRVH": 20, "DRVL": 21,
	"EGU": 22, "PREC": 23, "ESLO": 24, "EOFF": 25,
	"ASG": 30, "PINI": 31,
}

func fieldPriority(name string) int {
	if p, ok := fieldPriorityTable[name]; ok {
		return p
	}
	return 100
}

// RecordPackage is the output unit of the builder: every record that a
// single merged Config produced, plus the archive descriptor line (when
// not suppressed).
type RecordPackage struct {
	TCName    string
	IO        pragma.Direction
	Primary   *Record // the writable record for output I/O, or the sole input record
	Secondary *Record // the _RBV readback record, present only for output I/O on supported types

	ArchiveLine string // "<pv> <period> <method> [<extra fields>]", empty if archiving is suppressed
	Notes       []string
}

// Options carries the builder's configurable knobs (spec.md §4.F / §6).
type Options struct {
	MaxNameLength    int
	ArchiveThreshold int
	DefaultPrecision int
	PortName         string // the asyn port name used to build INP/OUT links

	// ArchiveSuppressed decides the §4.F.5 "array too large to archive"
	// rule. When nil, the builder falls back to a plain element-count
	// comparison against ArchiveThreshold. Callers normally wire this to
	// (*severity.Engine).ArchiveSuppressed so the decision is governed by
	// the same embedded policy as every other §7 severity call.
	ArchiveSuppressed func(isArray bool, elementCount, threshold int) (bool, error)
}

// DefaultOptions returns the §4.F defaults: 60-character names, a 1000-
// element archive threshold, 3-digit float precision.
func DefaultOptions() Options {
	return Options{MaxNameLength: 60, ArchiveThreshold: 1000, DefaultPrecision: 3, PortName: "PLC"}
}

// InvalidChainError reports a record-name overflow or any other §4.F.7
// validation failure.
type InvalidChainError struct {
	TCName string
	Reason string
}

func (e *InvalidChainError) Error() string {
	return fmt.Sprintf("records: invalid chain %q: %s", e.TCName, e.Reason)
}

// UnsupportedTypeError reports a leaf type with no record-kind mapping that
// still reached the builder (the chain walker already filters 64-bit
// integers; this guards any leaf family that chooseKind has no row for).
type UnsupportedTypeError struct {
	TCName   string
	TypeName string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("records: unsupported type %q for chain %q", e.TypeName, e.TCName)
}

// scanRates is the supported-SCAN ordering of §4.F.2, fastest first.
var scanRates = []struct {
	label   string
	seconds float64
}{
	{".1 second", .1},
	{".2 second", .2},
	{".5 second", .5},
	{"1 second", 1},
	{"2 second", 2},
	{"5 second", 5},
	{"10 second", 10},
}

// chooseScan maps a period to the nearest supported rate, rounding up
// (slower), per §4.F.2 and the monotonicity law of §8.8.
func chooseScan(periodSeconds float64) string {
	if periodSeconds <= 0 {
		return "1 second"
	}
	for _, r := range scanRates {
		if periodSeconds <= r.seconds {
			return r.label
		}
	}
	return "10 second"
}

// Build assembles the RecordPackage(s) for one Chain's merged Config.
func Build(c *chain.Chain, cfg *mergeconfig.Config, opts Options) (*RecordPackage, []error) {
	var warnings []error

	if len(cfg.PVName) > opts.MaxNameLength {
		return nil, []error{&InvalidChainError{TCName: cfg.TCName, Reason: fmt.Sprintf("PV name %q exceeds max length %d", cfg.PVName, opts.MaxNameLength)}}
	}

	pkg := &RecordPackage{TCName: cfg.TCName, IO: cfg.IO}

	isWaveform := c.LeafType.Array != nil || c.LeafType.Family == tctypes.FamilyString
	elementCount := 1
	if c.LeafType.Array != nil {
		elementCount = c.LeafType.Array.ElementCount()
	} else if c.LeafType.Family == tctypes.FamilyString {
		elementCount = c.LeafType.StringLength
	}

	kind, secondaryKind, supportsReadback := chooseKind(c.LeafType.Family, cfg.IO, isWaveform)
	if cfg.TypeOverride != "" {
		overrideKind := Kind(cfg.TypeOverride)
		if overrideKind != kind {
			warnings = append(warnings, fmt.Errorf("records: %s: explicit type: %q overrides inferred kind %q", cfg.TCName, cfg.TypeOverride, kind))
		}
		kind = overrideKind
	}
	if kind == "" {
		return nil, []error{&UnsupportedTypeError{TCName: cfg.TCName, TypeName: c.LeafType.TypeName}}
	}

	primary := newRecord(kind, cfg.PVName)
	applyCommonDefaults(primary, c, cfg, opts, elementCount, isWaveform, true)
	pkg.Primary = primary

	if cfg.IO == pragma.DirectionOutput && supportsReadback {
		rbvPV := cfg.PVName + "_RBV"
		if len(rbvPV) > opts.MaxNameLength {
			return nil, []error{&InvalidChainError{TCName: cfg.TCName, Reason: fmt.Sprintf("readback PV name %q exceeds max length %d", rbvPV, opts.MaxNameLength)}}
		}
		secondary := newRecord(secondaryKind, rbvPV)
		applyCommonDefaults(secondary, c, cfg, opts, elementCount, isWaveform, false)
		secondary.Fields["ASG"] = "NO_WRITE"
		pkg.Secondary = secondary
	} else if cfg.IO == pragma.DirectionInput {
		primary.Fields["ASG"] = "NO_WRITE"
	}

	applyMacroSubstitution(pkg, cfg.MacroCharacter)
	applyArchive(pkg, c, cfg, opts, elementCount)
	applyAutosave(pkg, c, cfg)

	return pkg, warnings
}

func newRecord(kind Kind, pv string) *Record {
	return &Record{Kind: kind, PV: pv, Fields: map[string]string{}}
}

// chooseKind implements the §4.B/§4.F/§9 decision table keyed on
// (leaf_type_family, direction, is_array). It returns the record kind for
// the writable/primary side, the kind for the _RBV readback side (when
// applicable), and whether a readback record is supported for this family
// at all (strings and waveforms still get a paired output+input, per
// WaveformRecordPackage/StringRecordPackage in the source implementation).
func chooseKind(family tctypes.RecordFamily, dir pragma.Direction, isArray bool) (primary, secondary Kind, supportsReadback bool) {
	if isArray {
		return KindWaveform, KindWaveform, true
	}
	switch family {
	case tctypes.FamilyBinary:
		if dir == pragma.DirectionOutput {
			return KindBO, KindBI, true
		}
		return KindBI, "", false
	case tctypes.FamilyLong:
		if dir == pragma.DirectionOutput {
			return KindLongout, KindLongin, true
		}
		return KindLongin, "", false
	case tctypes.FamilyAnalog:
		if dir == pragma.DirectionOutput {
			return KindAO, KindAI, true
		}
		return KindAI, "", false
	case tctypes.FamilyEnum:
		if dir == pragma.DirectionOutput {
			return KindMbbo, KindMbbi, true
		}
		return KindMbbi, "", false
	case tctypes.FamilyString:
		return KindWaveform, KindWaveform, true
	default:
		return "", "", false
	}
}

func applyCommonDefaults(r *Record, c *chain.Chain, cfg *mergeconfig.Config, opts Options, elementCount int, isWaveform bool, isPrimary bool) {
	transport, _ := tctypes.ResolveBuiltin(c.LeafType.TypeName)

	switch {
	case isWaveform:
		r.Fields["DTYP"] = "asynInt8ArrayIn"
		if cfg.IO == pragma.DirectionOutput && isPrimary {
			r.Fields["DTYP"] = "asynInt8ArrayOut"
		}
		r.Fields["NELM"] = fmt.Sprintf("%d", elementCount)
		r.Fields["FTVL"] = "CHAR"
		if c.LeafType.Family != tctypes.FamilyString && transport.ArrayFTVL != "" {
			r.Fields["FTVL"] = transport.ArrayFTVL
			if cfg.IO == pragma.DirectionOutput && isPrimary {
				r.Fields["DTYP"] = strings.TrimSuffix(transport.ArrayDTYP, "In") + "Out"
			} else {
				r.Fields["DTYP"] = transport.ArrayDTYP
			}
		}
	default:
		r.Fields["DTYP"] = transport.ScalarDTYP
		if r.Fields["DTYP"] == "" && c.LeafType.Family == tctypes.FamilyEnum {
			r.Fields["DTYP"] = "asynInt32"
		}
	}

	r.Fields["SCAN"] = scanField(cfg.Update)
	r.Fields["DESC"] = descriptionFor(c.TCName())

	linkField := "INP"
	if cfg.IO == pragma.DirectionOutput && isPrimary {
		linkField = "OUT"
	}
	r.Fields[linkField] = fmt.Sprintf("@asyn(%s,0)%s", opts.PortName, c.TCName())

	if c.LeafType.Family == tctypes.FamilyAnalog {
		prec := opts.DefaultPrecision
		r.Fields["PREC"] = fmt.Sprintf("%d", prec)
		r.Fields["HOPR"] = "0"
		r.Fields["LOPR"] = "0"
		if cfg.IO == pragma.DirectionOutput && isPrimary {
			r.Fields["DRVH"] = "0"
			r.Fields["DRVL"] = "0"
		}
	}
	if c.LeafType.Family == tctypes.FamilyLong && cfg.IO == pragma.DirectionOutput && isPrimary {
		r.Fields["HOPR"] = "0"
		r.Fields["LOPR"] = "0"
	}

	if cfg.Scale != "" {
		r.Fields["ASLO"] = cfg.Scale
	}
	if cfg.Offset != "" {
		r.Fields["AOFF"] = cfg.Offset
	}

	if cfg.Link != "" && isPrimary {
		r.Fields["DOL"] = cfg.Link
	}

	// Explicit field: overrides win over every default above.
	for name, value := range cfg.Fields {
		r.Fields[name] = value
	}
}

func containsField(list []string, name string) bool {
	for _, f := range list {
		if f == name {
			return true
		}
	}
	return false
}

func scanField(u pragma.Update) string {
	if u.Method == pragma.UpdateNotify {
		return "I/O Intr"
	}
	period := u.PeriodSeconds
	if period == 0 {
		period = 1
	}
	return chooseScan(period)
}

func descriptionFor(tcname string) string {
	const maxDesc = 28 // EPICS DESC field length limit
	if len(tcname) <= maxDesc {
		return tcname
	}
	return tcname[:maxDesc]
}

// applyMacroSubstitution replaces the configured macro sigil with '$' in
// every link-bearing field of every record in pkg, per §4.F.6.
func applyMacroSubstitution(pkg *RecordPackage, sigil byte) {
	if sigil == 0 {
		sigil = '@'
	}
	old := string(sigil)
	for _, r := range []*Record{pkg.Primary, pkg.Secondary} {
		if r == nil {
			continue
		}
		for _, field := range []string{"DOL", "INP", "OUT"} {
			if v, ok := r.Fields[field]; ok {
				r.Fields[field] = strings.ReplaceAll(v, old, "$")
			}
		}
	}
}

// applyArchive produces the archive descriptor line unless the leaf is an
// array whose element count exceeds opts.ArchiveThreshold, per §4.F.5.
func applyArchive(pkg *RecordPackage, c *chain.Chain, cfg *mergeconfig.Config, opts Options, elementCount int) {
	isArray := c.LeafType.Array != nil
	suppressed := isArray && elementCount > opts.ArchiveThreshold
	if opts.ArchiveSuppressed != nil {
		var err error
		suppressed, err = opts.ArchiveSuppressed(isArray, elementCount, opts.ArchiveThreshold)
		if err != nil {
			pkg.Notes = append(pkg.Notes, fmt.Sprintf("archive threshold policy evaluation failed for %s: %v", cfg.PVName, err))
			suppressed = isArray && elementCount > opts.ArchiveThreshold
		}
	}
	if suppressed {
		pkg.Notes = append(pkg.Notes, fmt.Sprintf("archiving suppressed for %s: %d elements exceeds threshold %d", cfg.PVName, elementCount, opts.ArchiveThreshold))
		return
	}

	period := 1.0
	method := "scan"
	if cfg.Archive != nil {
		period = cfg.Archive.PeriodSeconds
		method = string(cfg.Archive.Method)
	} else if cfg.Update.Method == pragma.UpdateNotify {
		period = cfg.Update.PeriodSeconds
		method = "monitor"
	}

	// Cap the archive rate at the update rate if it exceeds it (§4.F.5):
	// a faster archive rate than the update rate is meaningless.
	updatePeriod := cfg.Update.PeriodSeconds
	if updatePeriod == 0 {
		updatePeriod = 1
	}
	if period < updatePeriod {
		period = updatePeriod
	}

	fields := strings.Join(cfg.ArchiveFields, " ")
	line := fmt.Sprintf("%s %s %s", cfg.PVName, formatPeriod(period), method)
	if fields != "" {
		line += " " + fields
	}
	pkg.ArchiveLine = line

	for _, r := range []*Record{pkg.Primary, pkg.Secondary} {
		if r == nil {
			continue
		}
		r.Infos = append(r.Infos, InfoNode{Key: "archive", Value: strings.TrimSpace(fmt.Sprintf("%s %s %s", formatPeriod(period), method, fields))})
	}
}

func formatPeriod(seconds float64) string {
	if math.Trunc(seconds) == seconds {
		return fmt.Sprintf("%d", int(seconds))
	}
	return fmt.Sprintf("%g", seconds)
}

// applyAutosave attaches info(autosaveFields_passN, "...") nodes to each
// record in pkg, merging the direction-agnostic and direction-specific
// pragma keys per §4.F.4. A record's own direction governs which
// direction-specific keys apply to it: the primary record uses cfg.IO, the
// _RBV readback (when present) is always an input-side record regardless of
// cfg.IO. When no pragma key supplies either a pass-0 or a pass-1 list for
// the record, the family's default pass-0 list is used instead, so that
// description, alarm severities and
// limits, and (on outputs) control limits are always autosaved even absent
// an explicit autosave_* key, per the "bidirectional integer" boundary case.
func applyAutosave(pkg *RecordPackage, c *chain.Chain, cfg *mergeconfig.Config) {
	applyAutosaveToRecord(pkg.Primary, c, cfg, cfg.IO)
	if pkg.Secondary != nil {
		applyAutosaveToRecord(pkg.Secondary, c, cfg, pragma.DirectionInput)
	}
}

func applyAutosaveToRecord(r *Record, c *chain.Chain, cfg *mergeconfig.Config, dir pragma.Direction) {
	if r == nil {
		return
	}
	pass0 := directionalAutosave(cfg, cfg.AutosavePass0, cfg.AutosaveInputPass0, cfg.AutosaveOutputPass0, dir)
	pass1 := directionalAutosave(cfg, cfg.AutosavePass1, cfg.AutosaveInputPass1, cfg.AutosaveOutputPass1, dir)

	if len(pass0) == 0 && len(pass1) == 0 {
		pass0 = defaultAutosavePass0(c.LeafType.Family, dir)
	}

	if len(pass0) > 0 {
		addInfo(r, "autosaveFields_pass0", strings.Join(pass0, " "))
		if dir == pragma.DirectionOutput && containsField(pass0, "VAL") {
			r.Fields["PINI"] = "YES"
		}
	}
	if len(pass1) > 0 {
		addInfo(r, "autosaveFields_pass1", strings.Join(pass1, " "))
	}
}

// directionalAutosave merges the direction-agnostic pragma list with the
// one matching dir, in first-occurrence order with duplicates dropped.
func directionalAutosave(cfg *mergeconfig.Config, agnostic, input, output []string, dir pragma.Direction) []string {
	var specific []string
	if dir == pragma.DirectionOutput {
		specific = output
	} else {
		specific = input
	}
	seen := map[string]bool{}
	var merged []string
	for _, f := range append(append([]string{}, agnostic...), specific...) {
		if !seen[f] {
			seen[f] = true
			merged = append(merged, f)
		}
	}
	return merged
}

// defaultAutosavePass0 returns the family's default pass-0 autosave field
// list, applied only when no explicit autosave_* pragma key was given for
// this chain. Grounded on pytmc's make_autosave_defaults and the
// Integer/Float/BinaryRecordPackage autosave_defaults: every record
// autosaves its description and alarm-disable severities, analog and long
// records of either direction additionally autosave alarm severities and
// limits, and writable output records additionally autosave VAL and their
// control limits.
func defaultAutosavePass0(family tctypes.RecordFamily, dir pragma.Direction) []string {
	var fields []string
	if dir == pragma.DirectionOutput {
		fields = append(fields, "VAL")
	}
	fields = append(fields, "DISS", "UDFS", "DESC")

	switch family {
	case tctypes.FamilyAnalog:
		fields = append(fields, "PREC")
		fallthrough
	case tctypes.FamilyLong:
		fields = append(fields, "HHSV", "HSV", "LLSV", "LSV", "SIMS")
		if dir == pragma.DirectionOutput {
			fields = append(fields, "DRVH", "DRVL")
		}
		fields = append(fields, "HIHI", "LOLO", "HIGH", "LOW")
	case tctypes.FamilyBinary:
		fields = append(fields, "ZSV", "OSV")
		if dir == pragma.DirectionOutput {
			fields = append(fields, "COSV")
		}
		fields = append(fields, "SIMS")
	}
	return fields
}

func addInfo(r *Record, key, value string) {
	if r == nil {
		return
	}
	r.Infos = append(r.Infos, InfoNode{Key: key, Value: value})
}

// SortPackages sorts RecordPackages by their chain's source-order tcname,
// the deterministic global ordering of §4.F.
func SortPackages(pkgs []*RecordPackage) {
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].TCName < pkgs[j].TCName })
}
