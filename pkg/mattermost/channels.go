// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"fmt"

	"github.com/aiku/gamerelay/pkg/relay"
)

// ResolveChannel looks up a channel by id. The display name is preferred
// for logs and status output.
func (c *Client) ResolveChannel(ctx context.Context, channelID string) (*relay.RemoteChannel, error) {
	ch, _, err := c.api.GetChannel(ctx, channelID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}
	name := ch.DisplayName
	if name == "" {
		name = ch.Name
	}
	return &relay.RemoteChannel{ID: ch.Id, Name: name}, nil
}
