// Copyright 2024-2026 Aiku AI

package gamelink

import (
	"encoding/json"

	"github.com/aiku/gamerelay/pkg/coords"
	"github.com/aiku/gamerelay/pkg/world"
)

// Frame types sent by the game plugin.
const (
	FrameChat           = "chat"
	FramePlayerJoin     = "player_join"
	FramePlayerLeave    = "player_leave"
	FramePlayerDeath    = "player_death"
	FrameServerRunning  = "server_running"
	FrameServerShutdown = "server_shutdown"
	FrameLog            = "log"
	FrameState          = "state"
)

// Frame types sent to the game plugin.
const (
	FrameBroadcast    = "broadcast"
	FrameWatchClimate = "watch_climate"
)

// Frame is the JSON envelope of every websocket message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame of the given type.
func NewFrame(typ string, data any) (Frame, error) {
	if data == nil {
		return Frame{Type: typ}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, Data: raw}, nil
}

type PlayerData struct {
	Player string `json:"player"`
}

// ClimateSample is a climate reading at an absolute position.
type ClimateSample struct {
	Pos     coords.Pos    `json:"pos"`
	Climate world.Climate `json:"climate"`
}

// StateData is the periodic world snapshot pushed by the plugin. Climate is
// only present once a position has been watched.
type StateData struct {
	Calendar world.Calendar `json:"calendar"`
	Players  []string       `json:"players"`
	MapSizeX int            `json:"map_size_x"`
	MapSizeZ int            `json:"map_size_z"`
	Groups   map[string]int `json:"groups"`
	Climate  *ClimateSample `json:"climate,omitempty"`
}

type BroadcastData struct {
	Group int    `json:"group"`
	Text  string `json:"text"`
}

type WatchClimateData struct {
	Pos coords.Pos `json:"pos"`
}
