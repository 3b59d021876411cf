package rank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/hub/internal/model"
)

func flatBaseXP() []float64 {
	out := make([]float64, MainRanks)
	for i := range out {
		out[i] = float64((i + 1) * 1000)
	}
	return out
}

func flatMultipliers() []float64 {
	return []float64{1.0, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6}
}

func TestNewLattice_RejectsWrongSizedTables(t *testing.T) {
	_, err := NewLattice([]float64{1, 2, 3}, flatMultipliers())
	assert.Error(t, err)
}

func TestDerive_ZeroXPReturnsLowestCoordinate(t *testing.T) {
	l, err := NewLattice(flatBaseXP(), flatMultipliers())
	require.NoError(t, err)

	c := l.Derive(0)
	assert.Equal(t, 0, c.MainIndex)
	assert.Equal(t, 0, c.SubIndex)
}

func TestDerive_ExactThresholdMatchIncludesThatCoordinate(t *testing.T) {
	l, err := NewLattice(flatBaseXP(), flatMultipliers())
	require.NoError(t, err)

	target := model.RankCoordinate{MainIndex: 3, SubIndex: 2, Threshold: 4000 * 1.2}
	c := l.Derive(target.Threshold)
	assert.Equal(t, target.Threshold, c.Threshold)
}

func TestDerive_MonotonicWithXP(t *testing.T) {
	l, err := NewLattice(flatBaseXP(), flatMultipliers())
	require.NoError(t, err)

	low := l.Derive(5000)
	high := l.Derive(20000)
	assert.True(t, low.Less(high) || low == high)
}

func TestNext_ReturnsImmediatelyHigherCoordinate(t *testing.T) {
	l, err := NewLattice(flatBaseXP(), flatMultipliers())
	require.NoError(t, err)

	lowest := l.Derive(0)
	next, ok := l.Next(lowest)
	require.True(t, ok)
	assert.True(t, lowest.Less(next))
}

func TestNext_HighestCoordinateHasNoNext(t *testing.T) {
	l, err := NewLattice(flatBaseXP(), flatMultipliers())
	require.NoError(t, err)

	highest := l.Derive(1_000_000_000)
	_, ok := l.Next(highest)
	assert.False(t, ok)
}

func TestLoadRoleMap_ParsesYAMLEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := "- main: 0\n  sub: 0\n  role: Recruit\n- main: 24\n  sub: 6\n  role: Legend\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := LoadRoleMap(path)
	require.NoError(t, err)
	assert.Equal(t, "Recruit", m[[2]int{0, 0}])
	assert.Equal(t, "Legend", m[[2]int{24, 6}])
}
