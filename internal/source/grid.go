package source

import (
	"context"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// GridParams are the request parameters shared by both grid methods.
type GridParams struct {
	IntervalMinutes int
	GridSize        int
	Offset          int
	CountThreshold  int
}

// Grid fetches one grid, either the global grid or a single continent.
// Grid responses carry no cursor, so every fetch is a full snapshot.
type Grid struct {
	caller Caller
	region domain.Region
	params GridParams
}

// NewGrid creates a grid source. domain.RegionGlobal selects get_global_strikes_grid.
func NewGrid(caller Caller, region domain.Region, params GridParams) *Grid {
	return &Grid{caller: caller, region: region, params: params}
}

func (g *Grid) Name() string { return "grid_" + g.region.String() }

func (g *Grid) Initial(ctx context.Context) (domain.Batch, error) {
	return fetchGrid(ctx, g.caller, g.region, g.params)
}

// Incremental is a full fetch; grids have no cursor to resume from.
func (g *Grid) Incremental(ctx context.Context, _ domain.Cursor) (domain.Batch, error) {
	return g.Initial(ctx)
}

func fetchGrid(ctx context.Context, c Caller, region domain.Region, p GridParams) (domain.Batch, error) {
	if region == domain.RegionGlobal {
		return fetch(ctx, c, domain.MethodGlobalStrikesGrid,
			p.IntervalMinutes, p.GridSize, p.Offset, p.CountThreshold)
	}
	return fetch(ctx, c, domain.MethodStrikesGrid,
		p.IntervalMinutes, p.GridSize, p.Offset, int(region), p.CountThreshold)
}
