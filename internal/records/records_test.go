package records_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plcrecord/pvgen/internal/chain"
	"github.com/plcrecord/pvgen/internal/mergeconfig"
	"github.com/plcrecord/pvgen/internal/pragma"
	"github.com/plcrecord/pvgen/internal/records"
	"github.com/plcrecord/pvgen/internal/tctypes"
)

func TestBuildScalarAnalogInput(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{Family: tctypes.FamilyAnalog, TypeName: "LREAL"}}
	cfg := &mergeconfig.Config{
		TCName: "Main.temperature", PVName: "Temp",
		IO:     pragma.DirectionInput,
		Update: pragma.Update{PeriodSeconds: 1, Method: pragma.UpdatePoll},
		Fields: map[string]string{},
	}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	require.Empty(t, warnings)
	require.NotNil(t, pkg.Primary)
	assert.Equal(t, records.KindAI, pkg.Primary.Kind)
	assert.Equal(t, "asynFloat64", pkg.Primary.Fields["DTYP"])
	assert.Equal(t, "1 second", pkg.Primary.Fields["SCAN"])
	assert.Equal(t, "NO_WRITE", pkg.Primary.Fields["ASG"])
	assert.Nil(t, pkg.Secondary)
}

func TestBuildOutputProducesReadbackWithNoWriteASG(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{Family: tctypes.FamilyLong, TypeName: "DINT"}}
	cfg := &mergeconfig.Config{
		TCName: "Main.setpoint", PVName: "Setpoint",
		IO:     pragma.DirectionOutput,
		Update: pragma.Update{PeriodSeconds: 1, Method: pragma.UpdatePoll},
		Fields: map[string]string{},
	}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	require.Empty(t, warnings)
	require.NotNil(t, pkg.Primary)
	require.NotNil(t, pkg.Secondary)
	assert.Equal(t, records.KindLongout, pkg.Primary.Kind)
	assert.Equal(t, records.KindLongin, pkg.Secondary.Kind)
	assert.Equal(t, "Setpoint_RBV", pkg.Secondary.PV)
	assert.Equal(t, "NO_WRITE", pkg.Secondary.Fields["ASG"])
	assert.NotContains(t, pkg.Primary.Fields, "ASG")
}

func TestBuildArrayBecomesWaveform(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{
		Family: tctypes.FamilyAnalog, TypeName: "REAL",
		Array: &tctypes.ArrayInfo{Bounds: []tctypes.Bound{{Lower: 0, Upper: 9}}},
	}}
	cfg := &mergeconfig.Config{
		TCName: "Main.waveform", PVName: "Wave",
		IO: pragma.DirectionInput, Fields: map[string]string{},
	}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	require.Empty(t, warnings)
	assert.Equal(t, records.KindWaveform, pkg.Primary.Kind)
	assert.Equal(t, "10", pkg.Primary.Fields["NELM"])
	assert.Equal(t, "FLOAT", pkg.Primary.Fields["FTVL"])
}

func TestBuildRejectsOverlongPVName(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{Family: tctypes.FamilyLong, TypeName: "DINT"}}
	cfg := &mergeconfig.Config{TCName: "Main.x", PVName: "ThisPVNameIsDeliberatelyWayTooLongForTheSixtyCharacterLimitOfEPICS", IO: pragma.DirectionInput, Fields: map[string]string{}}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	assert.Nil(t, pkg)
	require.Len(t, warnings, 1)
	var invalid *records.InvalidChainError
	assert.ErrorAs(t, warnings[0], &invalid)
}

func TestBuildArchiveSuppressedAboveThreshold(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{
		Family: tctypes.FamilyAnalog, TypeName: "REAL",
		Array: &tctypes.ArrayInfo{Bounds: []tctypes.Bound{{Lower: 0, Upper: 2000}}},
	}}
	cfg := &mergeconfig.Config{TCName: "Main.big", PVName: "Big", IO: pragma.DirectionInput, Fields: map[string]string{}}
	opts := records.DefaultOptions()
	opts.ArchiveThreshold = 1000

	pkg, warnings := records.Build(c, cfg, opts)
	require.Empty(t, warnings)
	assert.Empty(t, pkg.ArchiveLine)
	assert.NotEmpty(t, pkg.Notes)
}

func TestBuildArchiveRateCappedAtUpdateRate(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{Family: tctypes.FamilyAnalog, TypeName: "LREAL"}}
	cfg := &mergeconfig.Config{
		TCName: "Main.fast", PVName: "Fast",
		IO:      pragma.DirectionInput,
		Update:  pragma.Update{PeriodSeconds: 0.1, Method: pragma.UpdateNotify},
		Fields:  map[string]string{},
	}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	require.Empty(t, warnings)
	assert.Equal(t, "I/O Intr", pkg.Primary.Fields["SCAN"])
	assert.Contains(t, pkg.ArchiveLine, "0.1")
	assert.Contains(t, pkg.ArchiveLine, "monitor")
}

func TestBuildMacroSubstitutionAppliesConfiguredSigil(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{Family: tctypes.FamilyAnalog, TypeName: "LREAL"}}
	cfg := &mergeconfig.Config{
		TCName: "Main.scaled", PVName: "Scaled",
		IO: pragma.DirectionOutput, Link: "@(other)", MacroCharacter: '@',
		Fields: map[string]string{},
	}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	require.Empty(t, warnings)
	assert.Equal(t, "$(other)", pkg.Primary.Fields["DOL"])
}

func TestBuildExplicitFieldOverrideWinsOverDefault(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{Family: tctypes.FamilyAnalog, TypeName: "LREAL"}}
	cfg := &mergeconfig.Config{
		TCName: "Main.prec", PVName: "Prec",
		IO: pragma.DirectionInput, Fields: map[string]string{"PREC": "6"},
	}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	require.Empty(t, warnings)
	assert.Equal(t, "6", pkg.Primary.Fields["PREC"])
}

func TestBuildBidirectionalIntegerGetsDefaultAutosaveAbsentPragma(t *testing.T) {
	c := &chain.Chain{LeafType: chain.LeafType{Family: tctypes.FamilyLong, TypeName: "DINT"}}
	cfg := &mergeconfig.Config{
		TCName: "Main.upper_limit", PVName: "TEST:ULIMIT",
		IO:     pragma.DirectionOutput,
		Update: pragma.Update{PeriodSeconds: 1, Method: pragma.UpdatePoll},
		Fields: map[string]string{},
	}

	pkg, warnings := records.Build(c, cfg, records.DefaultOptions())
	require.Empty(t, warnings)
	require.NotNil(t, pkg.Primary)
	require.NotNil(t, pkg.Secondary)

	primaryPass0 := infoValue(pkg.Primary, "autosaveFields_pass0")
	require.NotEmpty(t, primaryPass0)
	assert.Contains(t, primaryPass0, "DESC")
	assert.Contains(t, primaryPass0, "HHSV")
	assert.Contains(t, primaryPass0, "HIHI")
	assert.Contains(t, primaryPass0, "DRVH")

	secondaryPass0 := infoValue(pkg.Secondary, "autosaveFields_pass0")
	require.NotEmpty(t, secondaryPass0)
	assert.Contains(t, secondaryPass0, "DESC")
	assert.Contains(t, secondaryPass0, "HHSV")
	assert.Contains(t, secondaryPass0, "HIHI")
	assert.NotContains(t, secondaryPass0, "DRVH")
}

func infoValue(r *records.Record, key string) string {
	for _, info := range r.Infos {
		if info.Key == key {
			return info.Value
		}
	}
	return ""
}

func TestSortedFieldNamesOrdersBySelectorsFirst(t *testing.T) {
	r := &records.Record{Fields: map[string]string{
		"EGU": "degC", "DTYP": "asynFloat64", "SCAN": "1 second", "ZZZZ": "x",
	}}
	assert.Equal(t, []string{"DTYP", "SCAN", "EGU", "ZZZZ"}, r.SortedFieldNames())
}

func TestSortPackagesOrdersByTCName(t *testing.T) {
	pkgs := []*records.RecordPackage{
		{TCName: "Main.b"},
		{TCName: "Main.a"},
	}
	records.SortPackages(pkgs)
	assert.Equal(t, "Main.a", pkgs[0].TCName)
	assert.Equal(t, "Main.b", pkgs[1].TCName)
}
