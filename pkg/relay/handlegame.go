// Copyright 2024-2026 Aiku AI

package relay

import (
	"github.com/aiku/gamerelay/pkg/relay/gamefmt"
)

func (r *Relay) subscribeHost() {
	r.unsubs = append(r.unsubs,
		r.host.OnChat(func(evt ChatEvent) {
			r.post(func() { r.handleChat(evt) })
		}),
		r.host.OnPlayerJoin(func(player string) {
			r.post(func() { r.handlePlayerJoin(player) })
		}),
		r.host.OnPlayerLeave(func(player string) {
			r.post(func() { r.handlePlayerLeave(player) })
		}),
		r.host.OnPlayerDeath(func(evt DeathEvent) {
			r.post(func() { r.handlePlayerDeath(evt) })
		}),
		r.host.OnServerRunning(func() {
			r.post(func() { r.handleServerLifecycle(true) })
		}),
		r.host.OnServerShutdown(func() {
			r.post(func() { r.handleServerLifecycle(false) })
		}),
		r.host.OnLogEntry(func(entry LogEntry) {
			r.post(func() { r.handleLogEntry(entry) })
		}),
	)
}

// forwardToRemote sends text through the binding of a local group. Missing,
// unresolved or local-to-remote-disabled bindings drop the message.
func (r *Relay) forwardToRemote(b *Binding, text string, err error) {
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to format game event")
		return
	}
	if text == "" {
		return
	}
	if !b.Resolved() {
		r.log.Debug().Msg("Dropping game event for unresolved binding")
		return
	}
	if !b.ChatToRemote {
		return
	}
	_ = r.enqueue(b.Channel.ID, text)
}

func (r *Relay) handleChat(evt ChatEvent) {
	b := r.bindings.forGroup(evt.GroupID)
	if b == nil {
		r.log.Debug().Int("group_id", evt.GroupID).Msg("Dropping chat from unbound group")
		return
	}
	r.log.Trace().Str("player", evt.Player).Bool("consumed", evt.Consumed).Msg("Forwarding game chat")
	text, err := r.cfg.formatter.Chat(evt.Player, gamefmt.StripSenderPrefix(evt.Text))
	r.forwardToRemote(b, text, err)
}

func (r *Relay) handlePlayerJoin(player string) {
	text, err := r.cfg.formatter.Join(player)
	r.forwardToRemote(r.bindings.general(), text, err)
	r.refreshPresence(rosterChange{player: player, joined: true})
}

func (r *Relay) handlePlayerLeave(player string) {
	text, err := r.cfg.formatter.Leave(player)
	r.forwardToRemote(r.bindings.general(), text, err)
	r.refreshPresence(rosterChange{player: player})
}

func (r *Relay) handlePlayerDeath(evt DeathEvent) {
	if !r.cfg.DeathMessages.Enabled {
		return
	}
	text, err := r.cfg.formatter.Death(evt.Player, evt.Source)
	r.forwardToRemote(r.bindings.general(), text, err)
}

func (r *Relay) handleServerLifecycle(running bool) {
	var text string
	var err error
	if running {
		text, err = r.cfg.formatter.ServerStart()
	} else {
		text, err = r.cfg.formatter.ServerStop()
	}
	r.forwardToRemote(r.bindings.general(), text, err)
}

func (r *Relay) handleLogEntry(entry LogEntry) {
	line := gamefmt.FormatLogLine(entry.Format, entry.Args)
	if text, ok := r.cfg.scraper.Match(line); ok {
		r.forwardToRemote(r.bindings.general(), text, nil)
	}
}
