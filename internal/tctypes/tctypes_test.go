package tctypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plcrecord/pvgen/internal/xmlmodel"
)

const sampleProject = `<TcModuleClass>
  <DataTypes>
    <DataType>
      <Name>ST_Base</Name>
      <SubItem>
        <Name>enabled</Name>
        <Type>BOOL</Type>
      </SubItem>
    </DataType>
    <DataType>
      <Name>ST_Motor</Name>
      <ExtendsType>ST_Base</ExtendsType>
      <SubItem>
        <Name>velocity</Name>
        <Type>LREAL</Type>
        <Properties>
          <Property><Name>pytmc</Name><Value>pv: Velocity
io: i</Value></Property>
        </Properties>
      </SubItem>
      <SubItem>
        <Name>position</Name>
        <Type>DINT</Type>
        <ArrayInfo><LBound>0</LBound><Elements>6</Elements></ArrayInfo>
      </SubItem>
    </DataType>
  </DataTypes>
  <Modules>
    <Module>
      <DataArea>
        <Symbol>
          <Name>Main.motor</Name>
          <BaseType>ST_Motor</BaseType>
          <Properties>
            <Property><Name>pytmc</Name><Value>pv: Motor1</Value></Property>
          </Properties>
        </Symbol>
      </DataArea>
    </Module>
  </Modules>
</TcModuleClass>`

func mustParse(t *testing.T) *xmlmodel.Item {
	t.Helper()
	root, err := xmlmodel.Parse(strings.NewReader(sampleProject))
	require.NoError(t, err)
	return root
}

func TestBuildIndexResolvesExtendsAndSubItems(t *testing.T) {
	idx := BuildIndex(mustParse(t))

	motor, warn, err := idx.Lookup("ST_Motor", "")
	require.NoError(t, err)
	assert.False(t, warn)
	require.NotNil(t, motor.Extends)
	assert.Equal(t, "ST_Base", motor.Extends.QualifiedName())

	all, err := idx.AllSubItems(motor)
	require.NoError(t, err)
	names := make([]string, len(all))
	for i, si := range all {
		names[i] = si.Name
	}
	assert.Equal(t, []string{"enabled", "velocity", "position"}, names)
}

func TestBuildIndexDetectsPositionArraySubItem(t *testing.T) {
	idx := BuildIndex(mustParse(t))
	motor, _, err := idx.Lookup("ST_Motor", "")
	require.NoError(t, err)

	all, err := idx.AllSubItems(motor)
	require.NoError(t, err)

	var position *SubItem
	for _, si := range all {
		if si.Name == "position" {
			position = si
		}
	}
	require.NotNil(t, position)
	require.NotNil(t, position.Array)
	assert.Equal(t, 6, position.Array.ElementCount())
}

func TestResolveSymbolsExtractsPragmaAndBaseType(t *testing.T) {
	syms := ResolveSymbols(mustParse(t))
	require.Len(t, syms, 1)
	assert.Equal(t, "Main.motor", syms[0].Name)
	assert.Equal(t, "ST_Motor", syms[0].TypeName)
	assert.Equal(t, "pv: Motor1", syms[0].Pragma)
}

func TestResolveBuiltinKnownAndUnknown(t *testing.T) {
	tr, ok := ResolveBuiltin("lreal")
	require.True(t, ok)
	assert.Equal(t, FamilyAnalog, tr.Family)
	assert.Equal(t, 64, tr.FloatBits)

	_, ok = ResolveBuiltin("ST_Motor")
	assert.False(t, ok)
}

func TestIsUnsupported64Bit(t *testing.T) {
	assert.True(t, IsUnsupported64Bit("LINT"))
	assert.True(t, IsUnsupported64Bit("lword"))
	assert.False(t, IsUnsupported64Bit("DINT"))
}

func TestIsStringType(t *testing.T) {
	n, ok := IsStringType("STRING(40)")
	require.True(t, ok)
	assert.Equal(t, 40, n)

	n, ok = IsStringType("STRING")
	require.True(t, ok)
	assert.Equal(t, 80, n)

	_, ok = IsStringType("DINT")
	assert.False(t, ok)
}

func TestLookupFallsBackToBareNameWithWarning(t *testing.T) {
	idx := BuildIndex(mustParse(t))
	dt, warn, err := idx.Lookup("SomeOtherNamespace.ST_Base", "")
	require.NoError(t, err)
	assert.True(t, warn)
	assert.Equal(t, "ST_Base", dt.Name)
}

func TestLookupUnresolvedReturnsError(t *testing.T) {
	idx := BuildIndex(mustParse(t))
	_, _, err := idx.Lookup("ST_DoesNotExist", "")
	assert.Error(t, err)
}
