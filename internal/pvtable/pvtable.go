// Package pvtable flattens a compiled run's record packages into a
// row-oriented Table keyed by PV name, and diffs two Tables the way the
// teacher's internal/facts diffs two VHDL fact snapshots: ComputeDelta
// mirrors facts.ComputeDelta's Added/Removed shape and FilterByIO mirrors
// facts.FilterTablesByFiles's predicate-filter shape, with the predicate
// swapped from "file is in this set" to "row's direction matches".
package pvtable

import (
	"sort"

	"github.com/plcrecord/pvgen/internal/pragma"
	"github.com/plcrecord/pvgen/internal/records"
)

// Row is one emitted record, flattened out of a RecordPackage's Primary or
// Secondary record for comparison purposes.
type Row struct {
	PV       string
	Kind     records.Kind
	TCName   string
	IO       pragma.Direction
	Readback bool // true for a package's Secondary (_RBV) record
}

// Table is an unordered collection of rows from one compiled run. Two Tables
// are comparable by PV regardless of the order their source packages were
// built in.
type Table struct {
	Rows []Row
}

// BuildTable flattens a compiled run's record packages into a Table.
func BuildTable(pkgs []*records.RecordPackage) Table {
	var t Table
	for _, pkg := range pkgs {
		if pkg.Primary != nil {
			t.Rows = append(t.Rows, Row{PV: pkg.Primary.PV, Kind: pkg.Primary.Kind, TCName: pkg.TCName, IO: pkg.IO})
		}
		if pkg.Secondary != nil {
			t.Rows = append(t.Rows, Row{PV: pkg.Secondary.PV, Kind: pkg.Secondary.Kind, TCName: pkg.TCName, IO: pkg.IO, Readback: true})
		}
	}
	return t
}

func emptyTable() Table {
	return Table{Rows: []Row{}}
}

// Delta captures the rows added and removed between two compiled runs,
// keyed by PV name (a PV present in both runs but with a changed Kind or
// TCName is reported as both a removal and an addition, the same way the
// teacher's facts.Delta reports a changed row as a remove-then-add pair).
type Delta struct {
	Added   Table
	Removed Table
}

// ComputeDelta computes PV-level additions and removals between two runs.
func ComputeDelta(prev, next Table) Delta {
	return Delta{
		Added:   diffRows(prev, next),
		Removed: diffRows(next, prev),
	}
}

// diffRows returns the rows of "to" whose PV+Kind+TCName+IO+Readback key
// does not appear anywhere in "from".
func diffRows(from, to Table) Table {
	seen := make(map[rowKey]bool, len(from.Rows))
	for _, r := range from.Rows {
		seen[keyOf(r)] = true
	}

	out := emptyTable()
	for _, r := range to.Rows {
		if !seen[keyOf(r)] {
			out.Rows = append(out.Rows, r)
		}
	}
	sortRows(out.Rows)
	return out
}

type rowKey struct {
	pv       string
	kind     records.Kind
	tcname   string
	io       pragma.Direction
	readback bool
}

func keyOf(r Row) rowKey {
	return rowKey{pv: r.PV, kind: r.Kind, tcname: r.TCName, io: r.IO, readback: r.Readback}
}

// FilterByIO returns a new Table containing only rows whose direction is
// present in the provided direction set.
func FilterByIO(t Table, directions map[pragma.Direction]bool) Table {
	if len(directions) == 0 {
		return emptyTable()
	}
	out := emptyTable()
	for _, row := range t.Rows {
		if directions[row.IO] {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// FilterDeltaByIO applies FilterByIO to both halves of a Delta.
func FilterDeltaByIO(d Delta, directions map[pragma.Direction]bool) Delta {
	if len(directions) == 0 {
		return Delta{Added: emptyTable(), Removed: emptyTable()}
	}
	return Delta{
		Added:   FilterByIO(d.Added, directions),
		Removed: FilterByIO(d.Removed, directions),
	}
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PV != rows[j].PV {
			return rows[i].PV < rows[j].PV
		}
		return !rows[i].Readback && rows[j].Readback
	})
}
