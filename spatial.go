package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	SpatialCellSize   = 4.0 // world units, ~2x a target's body
	maxCellsPerEntity = 512 // larger colliders skip the grid
)

type cellKey struct {
	X, Y, Z int32
}

// SpatialGrid is a sparse uniform grid for broad-phase segment queries
type SpatialGrid struct {
	cellSize  float64
	cells     map[cellKey][]*Entity
	oversized []*Entity
}

// NewSpatialGrid creates an empty grid
func NewSpatialGrid(cellSize float64) *SpatialGrid {
	if cellSize <= 0 {
		cellSize = SpatialCellSize
	}
	return &SpatialGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]*Entity),
	}
}

// Clear resets all cells (keeps allocated capacity)
func (g *SpatialGrid) Clear() {
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
	g.oversized = g.oversized[:0]
}

func (g *SpatialGrid) cellRange(min, max mgl64.Vec3) (lo, hi cellKey) {
	lo = cellKey{
		X: int32(math.Floor(min[0] / g.cellSize)),
		Y: int32(math.Floor(min[1] / g.cellSize)),
		Z: int32(math.Floor(min[2] / g.cellSize)),
	}
	hi = cellKey{
		X: int32(math.Floor(max[0] / g.cellSize)),
		Y: int32(math.Floor(max[1] / g.cellSize)),
		Z: int32(math.Floor(max[2] / g.cellSize)),
	}
	return lo, hi
}

func cellCount(lo, hi cellKey) int64 {
	return int64(hi.X-lo.X+1) * int64(hi.Y-lo.Y+1) * int64(hi.Z-lo.Z+1)
}

// Insert adds an entity to every cell its bounds overlap
func (g *SpatialGrid) Insert(b Bounds, e *Entity) {
	lo, hi := g.cellRange(b.Min(), b.Max())
	if cellCount(lo, hi) > maxCellsPerEntity {
		g.oversized = append(g.oversized, e)
		return
	}
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				k := cellKey{x, y, z}
				g.cells[k] = append(g.cells[k], e)
			}
		}
	}
}

// QueryBuf appends every entity whose cells overlap min..max to buf, each
// at most once, and returns the extended slice.
func (g *SpatialGrid) QueryBuf(min, max mgl64.Vec3, buf []*Entity) []*Entity {
	seen := make(map[*Entity]struct{})
	for _, e := range g.oversized {
		seen[e] = struct{}{}
		buf = append(buf, e)
	}
	lo, hi := g.cellRange(min, max)
	if cellCount(lo, hi) > maxCellsPerEntity*8 {
		// query spans too much of the world; fall back to every cell
		for _, cell := range g.cells {
			for _, e := range cell {
				if _, ok := seen[e]; !ok {
					seen[e] = struct{}{}
					buf = append(buf, e)
				}
			}
		}
		return buf
	}
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				for _, e := range g.cells[cellKey{x, y, z}] {
					if _, ok := seen[e]; !ok {
						seen[e] = struct{}{}
						buf = append(buf, e)
					}
				}
			}
		}
	}
	return buf
}
