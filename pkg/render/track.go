// Package render draws trajectories as ASCII ground-track plots.
package render

import (
	"bufio"
	"io"
	"math"
	"strings"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// Plot symbols
const (
	SymbolTrack = '.'
	SymbolStart = 'o'
	SymbolEnd   = '*'
)

// TrackRenderer plots the horizontal positions of a sequence of states onto
// a fixed-size character grid. X grows to the right and Y grows upward.
type TrackRenderer struct {
	width     int
	height    int
	buffer    [][]rune
	scale     float64
	centerPos physics.Vector2D
}

// NewTrackRenderer creates a renderer with the given grid size in characters.
func NewTrackRenderer(width, height int) *TrackRenderer {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	buffer := make([][]rune, height)
	for i := range buffer {
		buffer[i] = make([]rune, width)
	}

	r := &TrackRenderer{
		width:  width,
		height: height,
		buffer: buffer,
		scale:  1,
	}
	r.Clear()
	return r
}

// Scale returns the world distance covered by one character cell.
func (r *TrackRenderer) Scale() float64 {
	return r.scale
}

// Fit centers the view on the bounding box of the finite positions in states
// and picks a scale that keeps all of them on the grid.
func (r *TrackRenderer) Fit(states []physics.StateVector) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range states {
		if !finite(s.X) || !finite(s.Y) {
			continue
		}
		minX, maxX = math.Min(minX, s.X), math.Max(maxX, s.X)
		minY, maxY = math.Min(minY, s.Y), math.Max(maxY, s.Y)
	}
	if math.IsInf(minX, 1) {
		r.centerPos = physics.Vector2D{}
		r.scale = 1
		return
	}

	r.centerPos = physics.Vector2D{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}
	// Leave one cell of margin on each axis for rounding.
	scale := math.Max(
		(maxX-minX)/float64(max(r.width-1, 1)),
		(maxY-minY)/float64(max(r.height-1, 1)),
	)
	if scale == 0 || !finite(scale) {
		scale = 1
	}
	r.scale = scale
}

// worldToScreen converts world coordinates to grid column and row
func (r *TrackRenderer) worldToScreen(pos physics.Vector2D) (int, int) {
	col := int(math.Round((pos.X-r.centerPos.X)/r.scale + float64(r.width-1)/2))
	row := int(math.Round(float64(r.height-1)/2 - (pos.Y-r.centerPos.Y)/r.scale))
	return col, row
}

// Clear blanks the grid.
func (r *TrackRenderer) Clear() {
	for y := range r.buffer {
		for x := range r.buffer[y] {
			r.buffer[y][x] = ' '
		}
	}
}

// Plot marks every state's horizontal position. The first state is drawn as
// SymbolStart and the last as SymbolEnd. Off-grid and non-finite positions
// are skipped.
func (r *TrackRenderer) Plot(states []physics.StateVector) {
	for i, s := range states {
		symbol := SymbolTrack
		switch i {
		case len(states) - 1:
			symbol = SymbolEnd
		case 0:
			symbol = SymbolStart
		}
		r.set(s.Position().Horizontal(), symbol)
	}
}

func (r *TrackRenderer) set(pos physics.Vector2D, symbol rune) {
	if !finite(pos.X) || !finite(pos.Y) {
		return
	}
	x, y := r.worldToScreen(pos)
	if x >= 0 && x < r.width && y >= 0 && y < r.height {
		r.buffer[y][x] = symbol
	}
}

// Render writes the grid framed by a border.
func (r *TrackRenderer) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)
	border := "+" + strings.Repeat("-", r.width) + "+\n"

	bw.WriteString(border)
	for y := range r.buffer {
		bw.WriteByte('|')
		bw.WriteString(string(r.buffer[y]))
		bw.WriteString("|\n")
	}
	bw.WriteString(border)
	return bw.Flush()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
