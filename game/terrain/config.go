package terrain

import "github.com/kasuganosora/tilewalk/config"

// TableFromConfig builds the terrain table from configuration. With no kinds configured
// the stock set is used.
func TableFromConfig(tc config.TerrainConfig) (*Table, error) {
	floor := tc.Floor
	if len(tc.Kinds) == 0 {
		if floor == "" {
			floor = "grass"
		}
		return NewTable(DefaultKinds(), floor)
	}
	kinds := make([]Kind, len(tc.Kinds))
	for i, k := range tc.Kinds {
		kinds[i] = Kind{
			Name:              k.Name,
			Glyph:             k.Glyph,
			BaseCost:          k.BaseCost,
			CostWithGoat:      k.CostWithGoat,
			CostWithBoat:      k.CostWithBoat,
			BlocksWithoutGoat: k.BlocksWithoutGoat,
			BlocksWithoutBoat: k.BlocksWithoutBoat,
			AlwaysBlocked:     k.AlwaysBlocked,
			Mineable:          k.Mineable,
		}
	}
	return NewTable(kinds, floor)
}
