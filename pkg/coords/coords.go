// Copyright 2024-2026 Aiku AI

// Package coords translates between the engine's absolute block coordinates
// and the "pretty" coordinates players see in the HUD, which are offset by
// the world center on the horizontal axes.
package coords

import (
	"fmt"
	"strconv"
)

// Pos is a block position. Whether it is absolute or pretty depends on
// where it came from; the type does not track it.
type Pos struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// String renders the position as "(x, y, z)".
func (p Pos) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}

// Translator converts positions for a world with a fixed center.
type Translator struct {
	CenterX int
	CenterZ int
}

// NewTranslator derives the world center from the map size. The center is
// half of each horizontal map dimension.
func NewTranslator(mapSizeX, mapSizeZ int) Translator {
	return Translator{
		CenterX: mapSizeX / 2,
		CenterZ: mapSizeZ / 2,
	}
}

// AbsoluteToPretty converts engine coordinates to HUD coordinates.
func (t Translator) AbsoluteToPretty(abs Pos) Pos {
	return Pos{
		X: abs.X - t.CenterX,
		Y: abs.Y,
		Z: abs.Z - t.CenterZ,
	}
}

// PrettyToAbsolute converts HUD coordinates to engine coordinates.
func (t Translator) PrettyToAbsolute(pretty Pos) Pos {
	return Pos{
		X: pretty.X + t.CenterX,
		Y: pretty.Y,
		Z: pretty.Z + t.CenterZ,
	}
}

// FormatPretty renders an absolute position in HUD coordinates.
func (t Translator) FormatPretty(abs Pos) string {
	return t.AbsoluteToPretty(abs).String()
}

// ParsePos parses three integer arguments as x, y and z.
func ParsePos(args []string) (Pos, error) {
	if len(args) != 3 {
		return Pos{}, fmt.Errorf("expected 3 coordinates, got %d", len(args))
	}
	var vals [3]int
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return Pos{}, fmt.Errorf("invalid coordinate %q: %w", arg, err)
		}
		vals[i] = v
	}
	return Pos{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
