// Copyright 2024-2026 Aiku AI

package relay

import (
	"github.com/aiku/gamerelay/pkg/coords"
	"github.com/aiku/gamerelay/pkg/relay/gamefmt"
	"github.com/aiku/gamerelay/pkg/world"
)

// Local chat group ids with a fixed meaning on every host.
const (
	AllGroups    = -1
	GeneralGroup = 0
)

// Unsubscribe releases an event subscription. Calling it more than once is
// a no-op.
type Unsubscribe func()

// ChatEvent is a chat line typed by a player. Consumed reports whether
// another handler on the host already claimed the message; the relay only
// observes it.
type ChatEvent struct {
	Player   string `json:"player"`
	GroupID  int    `json:"group"`
	Text     string `json:"text"`
	Consumed bool   `json:"consumed"`
}

// DeathEvent reports a player death. Source is nil when the host could not
// attribute the death.
type DeathEvent struct {
	Player string                `json:"player"`
	Source *gamefmt.DamageSource `json:"source,omitempty"`
}

// LogEntry is one line appended to the host's server log. Format uses {N}
// placeholders for Args.
type LogEntry struct {
	Level  string   `json:"level"`
	Format string   `json:"format"`
	Args   []string `json:"args,omitempty"`
}

// Host is the game server. Event handlers are invoked on the host's own
// dispatch goroutine and must return quickly.
type Host interface {
	OnChat(func(ChatEvent)) Unsubscribe
	OnPlayerJoin(func(player string)) Unsubscribe
	OnPlayerLeave(func(player string)) Unsubscribe
	OnPlayerDeath(func(DeathEvent)) Unsubscribe
	OnServerRunning(func()) Unsubscribe
	OnServerShutdown(func()) Unsubscribe
	OnLogEntry(func(LogEntry)) Unsubscribe

	// Broadcast sends a notification to one local group, or to every group
	// when group is AllGroups. It must not block.
	Broadcast(group int, text string)
	OnlinePlayers() []string
	Calendar() world.Calendar
	// ClimateAt samples the climate at an absolute position. ok is false
	// when no sample is available.
	ClimateAt(pos coords.Pos) (climate world.Climate, ok bool)
	MapSize() (x, z int)
	// GroupID resolves a local chat group by name.
	GroupID(name string) (int, bool)
}
