// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/gamerelay/pkg/relay"
)

// login authenticates with a personal access token when one is configured
// and falls back to username and password otherwise.
func (c *Client) login(ctx context.Context) (*model.User, error) {
	if c.cfg.Token != "" {
		c.api.SetToken(c.cfg.Token)
		me, _, err := c.api.GetMe(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
		return me, nil
	}
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return nil, relay.ErrMissingCredential
	}
	me, _, err := c.api.Login(ctx, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	c.passwordLogin = true
	return me, nil
}
