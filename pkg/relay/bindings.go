// Copyright 2024-2026 Aiku AI

package relay

import (
	"sort"

	"github.com/rs/zerolog"
)

// Binding ties a local chat group to a remote channel. Channel is nil until
// the remote id has been resolved against a live session; an unresolved
// binding drops traffic in both directions.
type Binding struct {
	GroupID         int
	GroupName       string
	RemoteChannelID string
	Channel         *RemoteChannel
	ChatToRemote    bool
	ChatToGame      bool
}

// Resolved reports whether the remote channel handle is available.
func (b *Binding) Resolved() bool {
	return b != nil && b.Channel != nil
}

// BindingStatus is the admin API view of a binding.
type BindingStatus struct {
	GroupID         int    `json:"group_id"`
	GroupName       string `json:"group_name"`
	RemoteChannelID string `json:"remote_channel_id"`
	RemoteChannel   string `json:"remote_channel,omitempty"`
	Resolved        bool   `json:"resolved"`
	ChatToRemote    bool   `json:"chat_to_remote"`
	ChatToGame      bool   `json:"chat_to_game"`
}

type bindingTable struct {
	byGroup  map[int]*Binding
	byRemote map[string][]*Binding
}

// buildBindings creates unresolved bindings for the default channel and
// every override whose group the host knows. Overrides with an empty
// remote channel are skipped.
func buildBindings(cfg *Config, host Host, log zerolog.Logger) *bindingTable {
	bt := &bindingTable{
		byGroup:  make(map[int]*Binding),
		byRemote: make(map[string][]*Binding),
	}
	bt.add(&Binding{
		GroupID:         GeneralGroup,
		GroupName:       "general",
		RemoteChannelID: cfg.DefaultChannel.RemoteChannel,
		ChatToRemote:    cfg.DefaultChannel.ChatToRemote,
		ChatToGame:      cfg.DefaultChannel.ChatToGame,
	}, log)

	names := make([]string, 0, len(cfg.ChannelOverrides))
	for name := range cfg.ChannelOverrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		override := cfg.ChannelOverrides[name]
		if override.RemoteChannel == "" {
			log.Warn().Str("group", name).Msg("Channel override has no remote channel, skipping")
			continue
		}
		groupID, ok := host.GroupID(name)
		if !ok {
			log.Warn().Str("group", name).Msg("Unknown local chat group in channel override, skipping")
			continue
		}
		bt.add(&Binding{
			GroupID:         groupID,
			GroupName:       name,
			RemoteChannelID: override.RemoteChannel,
			ChatToRemote:    override.ChatToRemote,
			ChatToGame:      override.ChatToGame,
		}, log)
	}
	return bt
}

func (bt *bindingTable) add(b *Binding, log zerolog.Logger) {
	if old, ok := bt.byGroup[b.GroupID]; ok {
		log.Debug().
			Int("group_id", b.GroupID).
			Str("old_channel", old.RemoteChannelID).
			Str("new_channel", b.RemoteChannelID).
			Msg("Channel override replaces existing binding")
		bt.removeRemote(old)
	}
	bt.byGroup[b.GroupID] = b
	bt.byRemote[b.RemoteChannelID] = append(bt.byRemote[b.RemoteChannelID], b)
}

func (bt *bindingTable) removeRemote(b *Binding) {
	list := bt.byRemote[b.RemoteChannelID]
	for i, other := range list {
		if other == b {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(bt.byRemote, b.RemoteChannelID)
	} else {
		bt.byRemote[b.RemoteChannelID] = list
	}
}

func (bt *bindingTable) forGroup(groupID int) *Binding {
	return bt.byGroup[groupID]
}

func (bt *bindingTable) general() *Binding {
	return bt.byGroup[GeneralGroup]
}

func (bt *bindingTable) forRemote(channelID string) []*Binding {
	if channelID == "" {
		return nil
	}
	return bt.byRemote[channelID]
}

// remoteIDs returns the distinct remote channel ids in sorted order.
func (bt *bindingTable) remoteIDs() []string {
	ids := make([]string, 0, len(bt.byRemote))
	for id := range bt.byRemote {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (bt *bindingTable) resolve(channelID string, ch *RemoteChannel) {
	for _, b := range bt.byRemote[channelID] {
		b.Channel = ch
	}
}

func (bt *bindingTable) unresolveAll() {
	for _, b := range bt.byGroup {
		b.Channel = nil
	}
}

func (bt *bindingTable) status() []BindingStatus {
	out := make([]BindingStatus, 0, len(bt.byGroup))
	for _, b := range bt.byGroup {
		st := BindingStatus{
			GroupID:         b.GroupID,
			GroupName:       b.GroupName,
			RemoteChannelID: b.RemoteChannelID,
			Resolved:        b.Resolved(),
			ChatToRemote:    b.ChatToRemote,
			ChatToGame:      b.ChatToGame,
		}
		if b.Channel != nil {
			st.RemoteChannel = b.Channel.Name
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}
