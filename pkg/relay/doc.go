// Copyright 2024-2026 Aiku AI

// Package relay forwards chat and presence between a game server and a
// remote group-chat service.
//
// # Core Types
//
// [Relay] owns the channel bindings, the presence snapshot and the
// connection state. Game-side and remote-side callbacks never touch that
// state directly: they post closures to a single actor goroutine. Remote
// sends go through a bounded outbound queue drained by one consumer, so a
// degraded remote never blocks the game.
//
// [Host] is the game server as seen by the relay, [Remote] is the chat
// service. Both are interfaces; pkg/gamelink, pkg/mattermost and pkg/matrix
// provide the implementations wired up by cmd/gamerelay.
//
// # Filters
//
// Remote messages are dropped when their channel is not bound, when the
// remote is not connected, when the author is the relay's own account and
// when the author's username is on the ignore list. These checks run in
// that order for every message.
//
// # Sub-packages
//
//   - gamefmt renders game events into chat text.
package relay
