package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plcrecord/pvgen/internal/records"
	"github.com/plcrecord/pvgen/internal/render"
)

func TestRecordDatabaseRendersFieldsSortedAndQuoted(t *testing.T) {
	pkg := &records.RecordPackage{
		Primary: &records.Record{
			Kind: records.KindAI, PV: "Temp",
			Fields: map[string]string{"DTYP": "asynFloat64", "SCAN": "1 second", "EGU": `deg"C`},
			Infos:  []records.InfoNode{{Key: "archive", Value: "1 scan"}},
		},
	}

	text, err := render.RecordDatabase([]*records.RecordPackage{pkg})
	require.NoError(t, err)

	assert.Contains(t, text, `record(ai, "Temp") {`)
	assert.Contains(t, text, `field(DTYP, "asynFloat64")`)
	assert.Contains(t, text, `field(EGU, "deg\"C")`)
	assert.Contains(t, text, `info(archive, "1 scan")`)

	dtypIdx := indexOf(text, "DTYP")
	scanIdx := indexOf(text, "SCAN")
	eguIdx := indexOf(text, "EGU")
	assert.Less(t, dtypIdx, scanIdx)
	assert.Less(t, scanIdx, eguIdx)
}

func TestRecordDatabaseRendersPrimaryAndSecondary(t *testing.T) {
	pkg := &records.RecordPackage{
		Primary:   &records.Record{Kind: records.KindLongout, PV: "Setpoint", Fields: map[string]string{}},
		Secondary: &records.Record{Kind: records.KindLongin, PV: "Setpoint_RBV", Fields: map[string]string{}},
	}

	text, err := render.RecordDatabase([]*records.RecordPackage{pkg})
	require.NoError(t, err)
	assert.Contains(t, text, `record(longout, "Setpoint")`)
	assert.Contains(t, text, `record(longin, "Setpoint_RBV")`)
}

func TestArchiveDescriptorSkipsSuppressedPackages(t *testing.T) {
	pkgs := []*records.RecordPackage{
		{ArchiveLine: "Temp 1 scan"},
		{ArchiveLine: ""},
		{ArchiveLine: "Setpoint 0.5 monitor"},
	}

	text, err := render.ArchiveDescriptor(pkgs)
	require.NoError(t, err)
	assert.Equal(t, "Temp 1 scan\nSetpoint 0.5 monitor\n", text)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
