// Package rank derives a player's RankCoordinate from their cumulative
// XP against a precomputed, sorted threshold lattice: 25 main ranks,
// each with 7 sub-rank multipliers, threshold(m,s) = baseXP(m) *
// multiplier(s). Lookup is O(log n) via a sorted array and binary
// search; this package is a pure function over its loaded table, with
// no knowledge of persistence, events, or the promotion pipeline above
// it.
package rank

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/hub/internal/model"
)

const (
	MainRanks = 25
	SubRanks  = 7
)

// Lattice is the precomputed, sorted table of every (main, sub)
// coordinate and its XP threshold.
type Lattice struct {
	coords []model.RankCoordinate // sorted ascending by Threshold
}

// NewLattice builds the sorted threshold table from the declared base-XP
// per main rank and multiplier per sub-rank. len(mainBaseXP) must be
// MainRanks and len(subMultipliers) must be SubRanks.
func NewLattice(mainBaseXP, subMultipliers []float64) (*Lattice, error) {
	if len(mainBaseXP) != MainRanks {
		return nil, fmt.Errorf("rank: expected %d main base xp values, got %d", MainRanks, len(mainBaseXP))
	}
	if len(subMultipliers) != SubRanks {
		return nil, fmt.Errorf("rank: expected %d sub multipliers, got %d", SubRanks, len(subMultipliers))
	}

	coords := make([]model.RankCoordinate, 0, MainRanks*SubRanks)
	for m := 0; m < MainRanks; m++ {
		for s := 0; s < SubRanks; s++ {
			coords = append(coords, model.RankCoordinate{
				MainIndex: m,
				SubIndex:  s,
				Threshold: mainBaseXP[m] * subMultipliers[s],
			})
		}
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })

	return &Lattice{coords: coords}, nil
}

// RoleMapEntry names the social-platform role synced for one coordinate.
type RoleMapEntry struct {
	Main int    `yaml:"main"`
	Sub  int    `yaml:"sub"`
	Role string `yaml:"role"`
}

// LoadRoleMap reads a YAML file declaring the coordinate-to-role table
// used by the Promotion Coordinator's SyncRole calls.
func LoadRoleMap(path string) (map[[2]int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rank: read role map %s: %w", path, err)
	}
	var entries []RoleMapEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("rank: parse role map: %w", err)
	}
	out := make(map[[2]int]string, len(entries))
	for _, e := range entries {
		out[[2]int{e.Main, e.Sub}] = e.Role
	}
	return out, nil
}

// Derive returns the highest RankCoordinate whose Threshold does not
// exceed cumulativeXP. Ties at the same threshold resolve to the higher
// mainIndex, then the higher subIndex, per the lattice's declared
// ordering.
func (l *Lattice) Derive(cumulativeXP float64) model.RankCoordinate {
	// Find the first index whose threshold exceeds cumulativeXP; the
	// answer is one before it. sort.Search requires a monotonic
	// predicate, which holds because coords is sorted ascending.
	idx := sort.Search(len(l.coords), func(i int) bool {
		return l.coords[i].Threshold > cumulativeXP
	})
	if idx == 0 {
		return l.coords[0]
	}
	return l.coords[idx-1]
}

// Next returns the RankCoordinate immediately above current in the
// lattice's total order, and false if current is already the highest.
func (l *Lattice) Next(current model.RankCoordinate) (model.RankCoordinate, bool) {
	for i, c := range l.coords {
		if c == current && i+1 < len(l.coords) {
			return l.coords[i+1], true
		}
	}
	return model.RankCoordinate{}, false
}
