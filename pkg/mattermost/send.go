// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
)

const (
	statusEmoji    = "video_game"
	maxStatusRunes = 100
	mentionBreaker = "\u200d"
)

// disarmMentions inserts a zero-width joiner after every @ so Mattermost does
// not notify the named users, @channel or @here.
func disarmMentions(text string) string {
	return strings.ReplaceAll(text, "@", "@"+mentionBreaker)
}

func (c *Client) Send(ctx context.Context, channelID, text string, allowMentions bool) error {
	if !allowMentions {
		text = disarmMentions(text)
	}
	_, _, err := c.api.CreatePost(ctx, &model.Post{
		ChannelId: channelID,
		Message:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// SetStatus publishes text as the bot's custom status. An empty text clears
// the status.
func (c *Client) SetStatus(ctx context.Context, text string) error {
	userID := c.selfID()
	if text == "" {
		if _, err := c.api.RemoveUserCustomStatus(ctx, userID); err != nil {
			return fmt.Errorf("failed to clear custom status: %w", err)
		}
		return nil
	}
	if runes := []rune(text); len(runes) > maxStatusRunes {
		text = string(runes[:maxStatusRunes])
	}
	_, _, err := c.api.UpdateUserCustomStatus(ctx, userID, &model.CustomStatus{
		Emoji: statusEmoji,
		Text:  text,
	})
	if err != nil {
		return fmt.Errorf("failed to update custom status: %w", err)
	}
	return nil
}

func (c *Client) Nickname(ctx context.Context) (string, error) {
	me, _, err := c.api.GetMe(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get own user: %w", err)
	}
	return me.Nickname, nil
}

func (c *Client) SetNickname(ctx context.Context, name string) error {
	_, _, err := c.api.PatchUser(ctx, c.selfID(), &model.UserPatch{Nickname: &name})
	if err != nil {
		return fmt.Errorf("failed to update nickname: %w", err)
	}
	return nil
}

func (c *Client) selfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}
