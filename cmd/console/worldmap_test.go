package main

import (
	"strings"
	"testing"

	"github.com/jwebster45206/tileworld/pkg/state"
)

func TestRenderASCIIMap(t *testing.T) {
	// Setup
	gs := state.NewGameState(state.Options{GridWidth: 4, GridHeight: 3})
	gs.Camera = state.Point{X: 10, Y: 10}
	gs.SpriteDefinitions = []state.SpriteDefinition{
		{ID: "def-hero", Name: "Hero", IsPlayerCandidate: true},
		{ID: "def-tree", Name: "Tree"},
	}
	gs.PlacedSprites = []state.PlacedSprite{
		{InstanceID: "grass", SpriteDefinitionID: "def-tree", X: 10, Y: 10, Layer: state.LayerFloor},
		{InstanceID: "tree", SpriteDefinitionID: "def-tree", X: 11, Y: 10, Layer: state.LayerStructure},
		{InstanceID: "hero", SpriteDefinitionID: "def-hero", X: 12, Y: 11, Name: "Hero", Layer: state.LayerActor},
		{InstanceID: "roof", SpriteDefinitionID: "def-tree", X: 12, Y: 11, Name: "Roof", Layer: state.LayerOverhead},
		{InstanceID: "rat", SpriteDefinitionID: "def-tree", X: 10, Y: 12, Name: "rat", Layer: state.LayerActor},
		{InstanceID: "coin", SpriteDefinitionID: "def-tree", X: 13, Y: 12, Layer: state.LayerItem},
		{InstanceID: "far", SpriteDefinitionID: "def-tree", X: 40, Y: 40, Layer: state.LayerActor, Name: "Far"},
	}

	// Execute
	got := renderASCIIMap(gs)

	// Verify
	want := strings.Join([]string{
		".#  ",
		"  @ ",
		"R  *",
	}, "\n")
	if got != want {
		t.Errorf("renderASCIIMap() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderASCIIMap_Empty(t *testing.T) {
	if got := renderASCIIMap(nil); got != "" {
		t.Errorf("renderASCIIMap(nil) = %q, want empty", got)
	}
}
