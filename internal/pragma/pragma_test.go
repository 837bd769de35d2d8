package pragma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStripsAttributeFraming(t *testing.T) {
	p, err := Parse(`{attribute 'pytmc' := 'pv: Main.scale
io: io
type: ao'}`)
	require.NoError(t, err)
	require.Len(t, p.Pairs, 3)
	assert.Equal(t, Pair{Key: "pv", Value: "Main.scale"}, p.Pairs[0])
	assert.Equal(t, Pair{Key: "io", Value: "io"}, p.Pairs[1])
}

func TestParseRejectsUnbalancedFraming(t *testing.T) {
	_, err := Parse(`{attribute 'pytmc' := 'pv: Main.scale`)
	var malformed *MalformedPragmaError
	assert.ErrorAs(t, err, &malformed)
}

func TestParseTreatsSemicolonsAsLineBreaks(t *testing.T) {
	p, err := Parse("pv: a; io: i")
	require.NoError(t, err)
	require.Len(t, p.Pairs, 2)
	assert.Equal(t, "a", p.Pairs[0].Value)
	assert.Equal(t, "i", p.Pairs[1].Value)
}

func TestParseIgnoresUnrecognizedLines(t *testing.T) {
	p, err := Parse("pv: a\nnot a pair\nio: i")
	require.NoError(t, err)
	require.Len(t, p.Pairs, 2)
}

func TestParseEmptyIsNotAnError(t *testing.T) {
	p, err := Parse("")
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestSerializeRoundTripsOrderedPairs(t *testing.T) {
	p := Pragma{Pairs: []Pair{{Key: "pv", Value: "a"}, {Key: "io", Value: "i"}}}
	got, err := Parse(Serialize(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestNormalizeIO(t *testing.T) {
	tests := []struct {
		raw     string
		want    Direction
		wantErr bool
	}{
		{"i", DirectionInput, false},
		{"input", DirectionInput, false},
		{"ro", DirectionInput, false},
		{"o", DirectionOutput, false},
		{"io", DirectionOutput, false},
		{"rw", DirectionOutput, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeIO(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUpdateDefaultsToOneSecondPoll(t *testing.T) {
	u, err := ParseUpdate("")
	require.NoError(t, err)
	assert.Equal(t, Update{PeriodSeconds: 1, Method: UpdatePoll}, u)
}

func TestParseUpdateHzAndNotify(t *testing.T) {
	u, err := ParseUpdate("10Hz notify")
	require.NoError(t, err)
	assert.Equal(t, UpdateNotify, u.Method)
	assert.InDelta(t, 0.1, u.PeriodSeconds, 1e-9)
}

func TestParseUpdateRejectsUnknownMethod(t *testing.T) {
	_, err := ParseUpdate("1s bogus")
	assert.Error(t, err)
}

func TestParseArchiveScanAndMonitor(t *testing.T) {
	a, err := ParseArchive("0.5s monitor")
	require.NoError(t, err)
	assert.Equal(t, ArchiveMonitor, a.Method)
	assert.InDelta(t, 0.5, a.PeriodSeconds, 1e-9)
}

func TestParseArraySelector(t *testing.T) {
	sel, err := ParseArraySelector("0..1, 99")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 99}, sel.Resolve(0, 100))
}

func TestParseArraySelectorOpenEnded(t *testing.T) {
	sel, err := ParseArraySelector("98..")
	require.NoError(t, err)
	assert.Equal(t, []int{98, 99, 100}, sel.Resolve(0, 100))
}

func TestArraySelectorEmptySpansFullBounds(t *testing.T) {
	var sel ArraySelector
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, sel.Resolve(0, 5))
}

func TestAutoExpandFormatWidth(t *testing.T) {
	assert.Equal(t, ":%.2d", AutoExpandFormat(0, 5))
	assert.Equal(t, ":%.3d", AutoExpandFormat(0, 100))
}

func TestSplitField(t *testing.T) {
	name, value := SplitField("PREC 3")
	assert.Equal(t, "PREC", name)
	assert.Equal(t, "3", value)

	name, value = SplitField("VAL")
	assert.Equal(t, "VAL", name)
	assert.Equal(t, "", value)
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"VAL", "HIGH", "LOW"}, SplitWords(" VAL  HIGH LOW "))
}
