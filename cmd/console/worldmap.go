package main

import (
	"strings"
	"unicode"

	"github.com/jwebster45206/tileworld/pkg/camera"
	"github.com/jwebster45206/tileworld/pkg/state"
)

// glyph picks the map character for the topmost sprite in a cell.
func glyph(s state.PlacedSprite, player string) rune {
	if s.InstanceID == player {
		return '@'
	}
	switch {
	case s.Layer >= state.LayerActor && s.Layer < state.LayerShadow:
		for _, r := range s.Name {
			if unicode.IsLetter(r) {
				return unicode.ToUpper(r)
			}
		}
		return '&'
	case s.Layer == state.LayerItem:
		return '*'
	case s.Layer == state.LayerStructure:
		return '#'
	case s.Layer == state.LayerFloorDecor:
		return ','
	case s.Layer == state.LayerShadow:
		return ' '
	}
	return '.'
}

// renderASCIIMap draws the camera view as text, one row per grid row.
func renderASCIIMap(gs *state.GameState) string {
	if gs == nil || gs.GridWidth <= 0 || gs.GridHeight <= 0 {
		return ""
	}
	view := camera.View(gs.Camera, gs.GridWidth, gs.GridHeight)

	var player string
	if p, ok := gs.PlayerInstance(); ok {
		player = p.InstanceID
	}

	cells := make([][]rune, gs.GridHeight)
	top := make([][]int, gs.GridHeight)
	for y := range cells {
		cells[y] = []rune(strings.Repeat(" ", gs.GridWidth))
		top[y] = make([]int, gs.GridWidth)
		for x := range top[y] {
			top[y][x] = -1
		}
	}

	for _, s := range view.Filter(gs.PlacedSprites) {
		x, y := s.X-view.MinX, s.Y-view.MinY
		// the player always wins its cell
		if s.Layer < top[y][x] && s.InstanceID != player {
			continue
		}
		if cells[y][x] == '@' {
			continue
		}
		g := glyph(s, player)
		if g == ' ' {
			continue
		}
		top[y][x] = s.Layer
		cells[y][x] = g
	}

	var b strings.Builder
	for y, row := range cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(row))
	}
	return b.String()
}
