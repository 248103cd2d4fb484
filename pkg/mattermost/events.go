// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/gamerelay/pkg/relay"
)

// handleEvent dispatches a Mattermost WebSocket event to the appropriate handler.
func (c *Client) handleEvent(evt *model.WebSocketEvent) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		c.handlePosted(evt)
	default:
		c.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

// parsePostedEvent extracts a post from a WebSocket event. Returns (nil, nil)
// to skip silently, (nil, err) to log an error, or (post, nil) to proceed.
func (c *Client) parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	c.mu.Lock()
	self := c.userID
	c.mu.Unlock()
	if post.UserId == self {
		return nil, nil
	}
	// System messages such as joins and header changes.
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}
	return &post, nil
}

func (c *Client) handlePosted(evt *model.WebSocketEvent) {
	post, err := c.parsePostedEvent(evt)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")

	c.log.Debug().
		Str("post_id", post.Id).
		Str("channel_id", post.ChannelId).
		Str("user_id", post.UserId).
		Msg("Received new message")

	handlers := c.currentHandlers()
	if handlers.OnMessage == nil {
		return
	}
	handlers.OnMessage(relay.RemoteMessage{
		ChannelID:  post.ChannelId,
		AuthorID:   post.UserId,
		AuthorName: senderName,
		Content:    post.Message,
	})
}
