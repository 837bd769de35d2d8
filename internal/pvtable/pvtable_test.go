package pvtable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plcrecord/pvgen/internal/pragma"
	"github.com/plcrecord/pvgen/internal/pvtable"
	"github.com/plcrecord/pvgen/internal/records"
)

func pkg(pv string, kind records.Kind, io pragma.Direction, withReadback bool) *records.RecordPackage {
	p := &records.RecordPackage{
		TCName:  pv,
		IO:      io,
		Primary: &records.Record{Kind: kind, PV: pv},
	}
	if withReadback {
		p.Secondary = &records.Record{Kind: records.KindLongin, PV: pv + "_RBV"}
	}
	return p
}

func TestBuildTableFlattensPrimaryAndSecondary(t *testing.T) {
	table := pvtable.BuildTable([]*records.RecordPackage{
		pkg("Setpoint", records.KindLongout, pragma.DirectionOutput, true),
	})
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, "Setpoint", table.Rows[0].PV)
	assert.False(t, table.Rows[0].Readback)
	assert.Equal(t, "Setpoint_RBV", table.Rows[1].PV)
	assert.True(t, table.Rows[1].Readback)
}

func TestComputeDeltaFindsAddedAndRemoved(t *testing.T) {
	prev := pvtable.BuildTable([]*records.RecordPackage{
		pkg("A", records.KindAI, pragma.DirectionInput, false),
		pkg("B", records.KindAI, pragma.DirectionInput, false),
	})
	next := pvtable.BuildTable([]*records.RecordPackage{
		pkg("B", records.KindAI, pragma.DirectionInput, false),
		pkg("C", records.KindAI, pragma.DirectionInput, false),
	})

	delta := pvtable.ComputeDelta(prev, next)
	assert.Len(t, delta.Added.Rows, 1)
	assert.Equal(t, "C", delta.Added.Rows[0].PV)
	assert.Len(t, delta.Removed.Rows, 1)
	assert.Equal(t, "A", delta.Removed.Rows[0].PV)
}

func TestComputeDeltaIsEmptyForIdenticalTables(t *testing.T) {
	table := pvtable.BuildTable([]*records.RecordPackage{
		pkg("A", records.KindAI, pragma.DirectionInput, false),
	})
	delta := pvtable.ComputeDelta(table, table)
	assert.Empty(t, delta.Added.Rows)
	assert.Empty(t, delta.Removed.Rows)
}

func TestFilterByIO(t *testing.T) {
	table := pvtable.BuildTable([]*records.RecordPackage{
		pkg("In", records.KindAI, pragma.DirectionInput, false),
		pkg("Out", records.KindAO, pragma.DirectionOutput, false),
	})

	filtered := pvtable.FilterByIO(table, map[pragma.Direction]bool{pragma.DirectionOutput: true})
	assert.Len(t, filtered.Rows, 1)
	assert.Equal(t, "Out", filtered.Rows[0].PV)
}

func TestFilterByIOEmptySetReturnsEmptyTable(t *testing.T) {
	table := pvtable.BuildTable([]*records.RecordPackage{
		pkg("In", records.KindAI, pragma.DirectionInput, false),
	})
	filtered := pvtable.FilterByIO(table, nil)
	assert.Empty(t, filtered.Rows)
}
