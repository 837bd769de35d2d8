package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plcrecord/pvgen/internal/tctypes"
	"github.com/plcrecord/pvgen/internal/xmlmodel"
)

const arrayOfCompositeProject = `<TcModuleClass>
  <DataTypes>
    <DataType>
      <Name>ST_Channel</Name>
      <SubItem>
        <Name>value</Name>
        <Type>LREAL</Type>
        <Properties>
          <Property><Name>pytmc</Name><Value>pv: Value
io: i</Value></Property>
        </Properties>
      </SubItem>
    </DataType>
  </DataTypes>
</TcModuleClass>`

func buildIndex(t *testing.T) *tctypes.Index {
	t.Helper()
	root, err := xmlmodel.Parse(strings.NewReader(arrayOfCompositeProject))
	require.NoError(t, err)
	return tctypes.BuildIndex(root)
}

func TestWalkScalarLeaf(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{Name: "Main.temperature", TypeName: "LREAL", Pragma: "pv: Temp\nio: i\nupdate: 1s"}

	chains, warnings := w.Walk(sym)
	assert.Empty(t, warnings)
	require.Len(t, chains, 1)
	assert.Equal(t, tctypes.FamilyAnalog, chains[0].LeafType.Family)
	assert.Equal(t, "Main.temperature", chains[0].TCName())
}

func TestWalkSymbolWithoutPragmaYieldsNoChains(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{Name: "Main.unannotated", TypeName: "LREAL"}

	chains, warnings := w.Walk(sym)
	assert.Nil(t, chains)
	assert.Nil(t, warnings)
}

func TestWalkArrayOfCompositeExpandsPerIndexWithAutoWidth(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{
		Name:     "Main.channels",
		TypeName: "ST_Channel",
		Pragma:   "pv: Chan",
		Array:    &tctypes.ArrayInfo{Bounds: []tctypes.Bound{{Lower: 0, Upper: 5}}},
	}

	chains, warnings := w.Walk(sym)
	assert.Empty(t, warnings)
	require.Len(t, chains, 6)
	assert.Equal(t, "Main.channels.value", chains[0].TCName())
	assert.Equal(t, ":00", chains[0].Frames[1].Suffix)
	assert.Equal(t, ":05", chains[5].Frames[1].Suffix)
}

func TestWalkArrayOfCompositeHonorsArraySelector(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{
		Name:     "Main.channels",
		TypeName: "ST_Channel",
		Pragma:   "pv: Chan\narray: 0..1, 99",
		Array:    &tctypes.ArrayInfo{Bounds: []tctypes.Bound{{Lower: 0, Upper: 100}}},
	}

	chains, warnings := w.Walk(sym)
	assert.Empty(t, warnings)
	require.Len(t, chains, 3)
	assert.Equal(t, ":000", chains[0].Frames[1].Suffix)
	assert.Equal(t, ":099", chains[2].Frames[1].Suffix)
}

func TestWalkArrayOfCompositeHonorsExplicitExpandFormat(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{
		Name:     "Main.channels",
		TypeName: "ST_Channel",
		Pragma:   "pv: Chan\nexpand: _%d",
		Array:    &tctypes.ArrayInfo{Bounds: []tctypes.Bound{{Lower: 0, Upper: 2}}},
	}

	chains, warnings := w.Walk(sym)
	assert.Empty(t, warnings)
	require.Len(t, chains, 3)
	assert.Equal(t, "_0", chains[0].Frames[1].Suffix)
	assert.Equal(t, "_2", chains[2].Frames[1].Suffix)
}

func TestWalkUnresolvedTypeIsAWarningNotAFatalError(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{Name: "Main.unknown", TypeName: "ST_DoesNotExist", Pragma: "pv: X"}

	chains, warnings := w.Walk(sym)
	assert.Empty(t, chains)
	require.Len(t, warnings, 1)
	var unresolved *UnresolvedTypeError
	assert.ErrorAs(t, warnings[0], &unresolved)
}

func TestWalkUnsupported64BitIsAWarning(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{Name: "Main.counter", TypeName: "LINT", Pragma: "pv: Counter"}

	chains, warnings := w.Walk(sym)
	assert.Empty(t, chains)
	require.Len(t, warnings, 1)
	var unsupported *UnsupportedTypeError
	assert.ErrorAs(t, warnings[0], &unsupported)
}

func TestWalkPointerIsTreatedAsLong(t *testing.T) {
	w := NewWalker(buildIndex(t))
	sym := &tctypes.Symbol{Name: "Main.ptr", TypeName: "ST_Channel", Pragma: "pv: Ptr", PointerDepth: 1}

	chains, warnings := w.Walk(sym)
	assert.Empty(t, warnings)
	require.Len(t, chains, 1)
	assert.Equal(t, tctypes.FamilyLong, chains[0].LeafType.Family)
}
