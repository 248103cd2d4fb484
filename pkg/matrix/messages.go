// Copyright 2024-2026 Aiku AI

package matrix

import (
	"context"
	"fmt"
	"strings"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/gamerelay/pkg/matrix/htmlfmt"
	"github.com/aiku/gamerelay/pkg/relay"
)

const (
	roomMention         = "@room"
	disarmedRoomMention = "@\u200droom"
)

func (c *Client) handleMessage(_ context.Context, evt *event.Event) {
	if evt.Sender == c.cli.UserID {
		return
	}
	content := evt.Content.AsMessage()
	if content == nil || content.RelatesTo.GetReplaceID() != "" {
		return
	}

	var text string
	switch content.MsgType {
	case event.MsgText:
		text = htmlfmt.ToText(content)
	case event.MsgEmote:
		text = "/me " + htmlfmt.ToText(content)
	default:
		// Notices come from other bots; media has no text form in game.
		c.log.Trace().Str("msgtype", string(content.MsgType)).Msg("Ignoring message type")
		return
	}

	c.log.Debug().
		Str("event_id", evt.ID.String()).
		Str("room_id", evt.RoomID.String()).
		Str("sender", evt.Sender.String()).
		Msg("Received new message")

	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()
	if handlers.OnMessage == nil {
		return
	}
	handlers.OnMessage(relay.RemoteMessage{
		ChannelID:  evt.RoomID.String(),
		AuthorID:   evt.Sender.String(),
		AuthorName: evt.Sender.Localpart(),
		Content:    text,
	})
}

// Send posts text to a room. Without allowMentions the event carries an
// empty m.mentions and @room is broken up for clients that still match on
// the body.
func (c *Client) Send(ctx context.Context, channelID, text string, allowMentions bool) error {
	if !allowMentions {
		text = strings.ReplaceAll(text, roomMention, disarmedRoomMention)
	}
	content := htmlfmt.Render(text)
	if allowMentions {
		content.Mentions = &event.Mentions{Room: strings.Contains(text, roomMention)}
	} else {
		content.Mentions = &event.Mentions{}
	}
	if _, err := c.cli.SendMessageEvent(ctx, id.RoomID(channelID), event.EventMessage, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SetStatus publishes text as the presence status message.
func (c *Client) SetStatus(ctx context.Context, text string) error {
	err := c.cli.SetPresence(ctx, mautrix.ReqPresence{Presence: event.PresenceOnline, StatusMsg: text})
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (c *Client) Nickname(ctx context.Context) (string, error) {
	resp, err := c.cli.GetOwnDisplayName(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get display name: %w", err)
	}
	return resp.DisplayName, nil
}

func (c *Client) SetNickname(ctx context.Context, name string) error {
	if err := c.cli.SetDisplayName(ctx, name); err != nil {
		return fmt.Errorf("failed to set display name: %w", err)
	}
	return nil
}
