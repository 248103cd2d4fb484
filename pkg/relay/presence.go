// Copyright 2024-2026 Aiku AI

package relay

import (
	"github.com/aiku/gamerelay/pkg/world"
)

// PresenceState is the last observed calendar and roster state. The zero
// values of each field mean "never observed", so the first observation
// after startup never produces an announcement.
type PresenceState struct {
	// LastMonth is the last observed month, 0 before the first observation.
	LastMonth int `json:"last_month"`
	// LastMoon is the last observed moon phase, nil before the first
	// observation.
	LastMoon *world.MoonPhase `json:"last_moon"`
	// PrevCount is the last observed online player count, -1 before the
	// first observation.
	PrevCount int `json:"prev_count"`
}

// NewPresenceState returns a state with nothing observed yet.
func NewPresenceState() PresenceState {
	return PresenceState{PrevCount: -1}
}

// Observation is one sample of the world taken by a presence update.
type Observation struct {
	Month  int
	Moon   world.MoonPhase
	Online int
}

// PresenceMessages holds the announcement texts. Empty texts are never
// announced.
type PresenceMessages struct {
	Months     map[int]string
	MoonFull   string
	MoonWaning string
	Paused     string
	Resumed    string
}

// Observe records an observation and returns the announcements triggered by
// state transitions since the previous one. State is updated even when no
// announcement text is configured for a transition.
func (s *PresenceState) Observe(obs Observation, msgs PresenceMessages) []string {
	var out []string
	add := func(text string) {
		if text != "" {
			out = append(out, text)
		}
	}

	if s.LastMonth != 0 && obs.Month != s.LastMonth {
		add(msgs.Months[obs.Month])
	}
	s.LastMonth = obs.Month

	if s.LastMoon != nil {
		wasFull, isFull := s.LastMoon.IsFull(), obs.Moon.IsFull()
		switch {
		case !wasFull && isFull:
			add(msgs.MoonFull)
		case wasFull && !isFull:
			add(msgs.MoonWaning)
		}
	}
	moon := obs.Moon
	s.LastMoon = &moon

	if s.PrevCount >= 0 {
		switch {
		case s.PrevCount > 0 && obs.Online == 0:
			add(msgs.Paused)
		case s.PrevCount == 0 && obs.Online > 0:
			add(msgs.Resumed)
		}
	}
	s.PrevCount = obs.Online

	return out
}
