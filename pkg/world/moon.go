// Copyright 2024-2026 Aiku AI

package world

import (
	"fmt"
	"strings"
)

// MoonPhase mirrors the host's eight-step moon cycle.
type MoonPhase int

const (
	MoonEmpty MoonPhase = iota
	MoonGrow1
	MoonGrow2
	MoonGrow3
	MoonFull
	MoonShrink1
	MoonShrink2
	MoonShrink3
)

var moonNames = [...]string{"empty", "grow1", "grow2", "grow3", "full", "shrink1", "shrink2", "shrink3"}

var moonEmojis = [...]string{
	"\U0001f311",
	"\U0001f312",
	"\U0001f313",
	"\U0001f314",
	"\U0001f315",
	"\U0001f316",
	"\U0001f317",
	"\U0001f318",
}

const unknownMoonEmoji = "\U0001f31a"

func (m MoonPhase) valid() bool {
	return m >= MoonEmpty && m <= MoonShrink3
}

// IsFull reports whether the moon is full.
func (m MoonPhase) IsFull() bool {
	return m == MoonFull
}

func (m MoonPhase) String() string {
	if !m.valid() {
		return fmt.Sprintf("moon(%d)", int(m))
	}
	return moonNames[m]
}

// Emoji returns the moon glyph for the phase.
func (m MoonPhase) Emoji() string {
	if !m.valid() {
		return unknownMoonEmoji
	}
	return moonEmojis[m]
}

// ParseMoonPhase parses a phase name as produced by String. Matching is
// case-insensitive.
func ParseMoonPhase(name string) (MoonPhase, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range moonNames {
		if n == name {
			return MoonPhase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown moon phase %q", name)
}

func (m MoonPhase) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MoonPhase) UnmarshalText(text []byte) error {
	phase, err := ParseMoonPhase(string(text))
	if err != nil {
		return err
	}
	*m = phase
	return nil
}
