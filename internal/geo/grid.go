package geo

import (
	"fmt"
	"math"
)

// Default tile spans. Changing them invalidates every stored tile id.
const (
	DefaultLatSpan = 0.005
	DefaultLonSpan = 0.02
)

// UnlocatedTileID is the reserved tile holding entities without a location
const UnlocatedTileID int64 = -1

// snapEpsilon absorbs float error when a coordinate sits on a cell edge
const snapEpsilon = 1e-9

// Grid partitions the globe into fixed LatSpan x LonSpan cells.
//
// Rows count northward from -90, columns eastward from -180, and a cell id is
// column*Rows()+row. A cell owns its north and west edges, so a cell's NW
// corner always maps back to the same cell.
type Grid struct {
	latSpan float64
	lonSpan float64
	rows    int64
	cols    int64
}

// DefaultGrid is the grid used by every game
var DefaultGrid = MustGrid(DefaultLatSpan, DefaultLonSpan)

// NewGrid creates a grid; 180/latSpan and 360/lonSpan must be integers
func NewGrid(latSpan, lonSpan float64) (Grid, error) {
	if latSpan <= 0 || lonSpan <= 0 {
		return Grid{}, fmt.Errorf("grid spans must be positive: %v x %v", latSpan, lonSpan)
	}
	rows := 180 / latSpan
	cols := 360 / lonSpan
	if math.Abs(rows-math.Round(rows)) > snapEpsilon || math.Abs(cols-math.Round(cols)) > snapEpsilon {
		return Grid{}, fmt.Errorf("grid spans must divide the globe evenly: %v x %v", latSpan, lonSpan)
	}
	return Grid{
		latSpan: latSpan,
		lonSpan: lonSpan,
		rows:    int64(math.Round(rows)),
		cols:    int64(math.Round(cols)),
	}, nil
}

// MustGrid is NewGrid that panics on invalid spans
func MustGrid(latSpan, lonSpan float64) Grid {
	g, err := NewGrid(latSpan, lonSpan)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Grid) LatSpan() float64 { return g.latSpan }
func (g Grid) LonSpan() float64 { return g.lonSpan }
func (g Grid) Rows() int64      { return g.rows }
func (g Grid) Cols() int64      { return g.cols }

// TileID returns the id of the cell containing lat, lon
func (g Grid) TileID(lat, lon float64) int64 {
	return g.TileIDForRowCol(g.Row(lat), g.Col(lon))
}

// Row returns the row index of a latitude
func (g Grid) Row(lat float64) int64 {
	q := snap((lat + 90) / g.latSpan)
	row := int64(math.Ceil(q)) - 1
	return g.clampRow(row)
}

// Col returns the column index of a longitude
func (g Grid) Col(lon float64) int64 {
	q := snap((lon + 180) / g.lonSpan)
	return g.wrapCol(int64(math.Floor(q)))
}

// TileIDForRowCol builds an id, clamping the row at the poles and wrapping
// the column around the antimeridian.
func (g Grid) TileIDForRowCol(row, col int64) int64 {
	return g.wrapCol(col)*g.rows + g.clampRow(row)
}

// RowCol inverts a tile id
func (g Grid) RowCol(id int64) (row, col int64) {
	return id % g.rows, id / g.rows
}

// NWCorner returns the north-west corner of a cell
func (g Grid) NWCorner(id int64) LatLon {
	if id == UnlocatedTileID {
		return LatLon{}
	}
	row, col := g.RowCol(id)
	return LatLon{
		Lat: clampLat(float64(row+1)*g.latSpan - 90),
		Lon: float64(col)*g.lonSpan - 180,
	}
}

// SECorner returns the south-east corner of a cell. The unlocated tile gets a
// nominal cell below (0, 0) so area computations stay finite.
func (g Grid) SECorner(id int64) LatLon {
	if id == UnlocatedTileID {
		return LatLon{Lat: -g.latSpan, Lon: g.lonSpan}
	}
	row, col := g.RowCol(id)
	return LatLon{
		Lat: clampLat(float64(row)*g.latSpan - 90),
		Lon: float64(col+1)*g.lonSpan - 180,
	}
}

// Contains reports whether a point falls inside the cell
func (g Grid) Contains(id int64, lat, lon float64) bool {
	if id == UnlocatedTileID {
		return false
	}
	return g.TileID(lat, lon) == id
}

func (g Grid) clampRow(row int64) int64 {
	if row < 0 {
		return 0
	}
	if row >= g.rows {
		return g.rows - 1
	}
	return row
}

func (g Grid) wrapCol(col int64) int64 {
	col %= g.cols
	if col < 0 {
		col += g.cols
	}
	return col
}

func snap(q float64) float64 {
	if r := math.Round(q); math.Abs(q-r) < snapEpsilon {
		return r
	}
	return q
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
