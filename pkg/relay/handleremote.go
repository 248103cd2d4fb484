// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"strings"
)

func (r *Relay) handleReady(self RemoteUser) {
	r.post(func() {
		r.self = self
		r.generation++
		r.log.Info().
			Str("user_id", self.ID).
			Str("username", self.Username).
			Msg("Remote connection ready")
		r.resolveBindings(r.generation)
	})
}

type resolution struct {
	channelID string
	channel   *RemoteChannel
}

// resolveBindings looks up every bound remote channel off the actor and
// posts the results back. Results from an older generation are discarded.
func (r *Relay) resolveBindings(gen int) {
	ids := r.bindings.remoteIDs()
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, sendTimeout)
		defer cancel()
		results := make([]resolution, 0, len(ids))
		for _, id := range ids {
			ch, err := r.remote.ResolveChannel(ctx, id)
			if err != nil || ch == nil {
				r.log.Warn().Err(err).Str("channel_id", id).Msg("Cannot resolve remote channel")
				continue
			}
			results = append(results, resolution{channelID: id, channel: ch})
		}
		nick, err := r.remote.Nickname(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to read current nickname")
		} else {
			r.presenceMu.Lock()
			r.lastNickname = nick
			r.presenceMu.Unlock()
		}
		r.post(func() { r.applyResolutions(gen, results) })
	}()
}

func (r *Relay) applyResolutions(gen int, results []resolution) {
	if gen != r.generation {
		r.log.Debug().Int("generation", gen).Msg("Discarding stale channel resolutions")
		return
	}
	r.bindings.unresolveAll()
	for _, res := range results {
		r.bindings.resolve(res.channelID, res.channel)
	}
	r.connected = true
	r.log.Info().
		Int("resolved", len(results)).
		Int("bindings", len(r.bindings.byGroup)).
		Msg("Channel bindings resolved")
	if r.timer == nil {
		r.timer = newPresenceTimer(r.log, r.presenceInterval, r.presenceTick)
	}
}

func (r *Relay) handleDisconnect(err error) {
	r.post(func() {
		r.log.Warn().Err(err).Msg("Disconnected from remote")
		r.connected = false
		r.generation++
		r.bindings.unresolveAll()
		if r.timer != nil {
			r.timer.StopAsync()
			r.timer = nil
		}
	})
}

func (r *Relay) handleRemoteMessage(msg RemoteMessage) {
	r.post(func() { r.receiveRemote(msg) })
}

// receiveRemote applies the remote-side filters in order and forwards what
// survives into the bound local groups.
func (r *Relay) receiveRemote(msg RemoteMessage) {
	bindings := r.bindings.forRemote(msg.ChannelID)
	if len(bindings) == 0 {
		return
	}
	log := r.log.With().
		Str("channel_id", msg.ChannelID).
		Str("author", msg.AuthorName).
		Logger()
	if !r.connected {
		log.Debug().Msg("Dropping remote message while disconnected")
		return
	}
	if msg.AuthorID != "" && msg.AuthorID == r.self.ID {
		return
	}
	if r.cfg.IsIgnored(msg.AuthorName) {
		log.Debug().Msg("Dropping remote message from ignored user")
		return
	}
	if prefix := r.cfg.CommandPrefix; prefix != "" && strings.HasPrefix(msg.Content, prefix) {
		if bindings[0].Resolved() {
			r.runCommand(msg, strings.TrimPrefix(msg.Content, prefix))
		}
		return
	}
	text, err := r.cfg.formatter.RemoteChat(msg.AuthorName, msg.Content)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to format remote message")
		return
	}
	if text == "" {
		return
	}
	for _, b := range bindings {
		if !b.Resolved() || !b.ChatToGame {
			continue
		}
		r.host.Broadcast(b.GroupID, text)
	}
}
