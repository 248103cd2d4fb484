// Copyright 2024-2026 Aiku AI

// Package mattermost implements relay.Remote on top of the Mattermost REST
// and websocket APIs.
package mattermost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/gamerelay/pkg/relay"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = time.Minute
)

// Client is a single bot session on a Mattermost server.
type Client struct {
	log zerolog.Logger
	cfg relay.RemoteConfig

	api           *model.Client4
	passwordLogin bool

	mu       sync.Mutex
	ws       *model.WebSocketClient
	userID   string
	username string
	handlers relay.RemoteHandlers

	stopOnce sync.Once
	stopChan chan struct{}

	// reconnectDelay is the first backoff step after a dropped websocket.
	reconnectDelay time.Duration
}

var _ relay.Remote = (*Client)(nil)

func New(log zerolog.Logger, cfg relay.RemoteConfig) *Client {
	return &Client{
		log:            log.With().Str("component", "mm_client").Logger(),
		cfg:            cfg,
		api:            model.NewAPIv4Client(strings.TrimRight(cfg.ServerURL, "/")),
		stopChan:       make(chan struct{}),
		reconnectDelay: minReconnectDelay,
	}
}

// Connect logs in, opens the websocket and reports the bot user through
// handlers.OnReady before returning.
func (c *Client) Connect(ctx context.Context, handlers relay.RemoteHandlers) error {
	c.log.Info().Str("server_url", c.cfg.ServerURL).Msg("Connecting to Mattermost")
	me, err := c.login(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.userID = me.Id
	c.username = me.Username
	c.handlers = handlers
	c.mu.Unlock()
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	ws, err := c.connectWebSocket()
	if err != nil {
		return err
	}
	go c.listenWebSocket(ws)
	if handlers.OnReady != nil {
		handlers.OnReady(relay.RemoteUser{ID: me.Id, Username: me.Username})
	}
	return nil
}

func (c *Client) connectWebSocket() (*model.WebSocketClient, error) {
	wsURL := httpToWS(c.api.URL)
	ws, err := model.NewWebSocketClient4(wsURL, c.api.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket client: %w", err)
	}
	ws.Listen()

	c.mu.Lock()
	select {
	case <-c.stopChan:
		c.mu.Unlock()
		ws.Close()
		return nil, relay.ErrStopped
	default:
	}
	c.ws = ws
	c.mu.Unlock()

	c.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return ws, nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

func (c *Client) listenWebSocket(ws *model.WebSocketClient) {
	for {
		select {
		case <-c.stopChan:
			return
		case evt, ok := <-ws.EventChannel:
			if !ok {
				var err error = relay.ErrNotConnected
				if ws.ListenError != nil {
					err = ws.ListenError
				}
				select {
				case <-c.stopChan:
					return
				default:
				}
				c.log.Warn().Err(err).Msg("WebSocket event channel closed, reconnecting")
				c.handleWebSocketDisconnect(err)
				return
			}
			if evt == nil {
				continue
			}
			c.handleEvent(evt)
		}
	}
}

// handleWebSocketDisconnect reports the drop and reconnects with
// exponential backoff until it succeeds or the client is logged out.
func (c *Client) handleWebSocketDisconnect(cause error) {
	handlers := c.currentHandlers()
	if handlers.OnDisconnect != nil {
		handlers.OnDisconnect(cause)
	}
	delay := c.reconnectDelay
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
		}
		ws, err := c.connectWebSocket()
		if err == nil {
			go c.listenWebSocket(ws)
			c.mu.Lock()
			self := relay.RemoteUser{ID: c.userID, Username: c.username}
			c.mu.Unlock()
			if handlers.OnReady != nil {
				handlers.OnReady(self)
			}
			return
		}
		if errors.Is(err, relay.ErrStopped) {
			return
		}
		c.log.Error().Err(err).Dur("retry_in", delay).Msg("Failed to reconnect WebSocket")
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (c *Client) currentHandlers() relay.RemoteHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// Logout closes the websocket. Sessions created from a password login are
// also revoked; personal access tokens are left untouched.
func (c *Client) Logout(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		close(c.stopChan)
		ws := c.ws
		c.ws = nil
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
	})
	if !c.passwordLogin {
		return nil
	}
	if _, err := c.api.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	c.passwordLogin = false
	return nil
}
