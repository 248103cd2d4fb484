// Copyright 2024-2026 Aiku AI

// Package matrix implements relay.Remote as a Matrix bot account using an
// access token. Rooms play the role of channels.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/gamerelay/pkg/relay"
)

const defaultRetryDelay = 5 * time.Second

type Client struct {
	log zerolog.Logger
	cfg relay.RemoteConfig
	cli *mautrix.Client

	mu       sync.Mutex
	handlers relay.RemoteHandlers
	self     relay.RemoteUser
	degraded bool

	stopOnce sync.Once
	cancel   context.CancelFunc
	syncDone chan struct{}

	// retryDelay is the pause between failed sync requests.
	retryDelay time.Duration
}

var _ relay.Remote = (*Client)(nil)

// syncer replaces the failure policy of the default syncer so sync errors
// surface as disconnects.
type syncer struct {
	*mautrix.DefaultSyncer
	onFailure func(err error) (time.Duration, error)
}

func (s *syncer) OnFailedSync(_ *mautrix.RespSync, err error) (time.Duration, error) {
	return s.onFailure(err)
}

func New(log zerolog.Logger, cfg relay.RemoteConfig) (*Client, error) {
	cli, err := mautrix.NewClient(cfg.ServerURL, "", cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	c := &Client{
		log:        log.With().Str("component", "matrix_client").Logger(),
		cfg:        cfg,
		cli:        cli,
		retryDelay: defaultRetryDelay,
	}
	cli.Log = c.log.With().Str("component", "mautrix").Logger()
	return c, nil
}

// Connect validates the access token, starts syncing and reports the bot
// user through handlers.OnReady.
func (c *Client) Connect(ctx context.Context, handlers relay.RemoteHandlers) error {
	if c.cfg.Token == "" {
		return relay.ErrMissingCredential
	}
	c.log.Info().Str("homeserver", c.cfg.ServerURL).Msg("Connecting to Matrix")
	whoami, err := c.cli.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	c.cli.UserID = whoami.UserID
	self := relay.RemoteUser{ID: whoami.UserID.String(), Username: whoami.UserID.Localpart()}
	c.mu.Lock()
	c.self = self
	c.handlers = handlers
	c.mu.Unlock()
	c.log.Info().Str("user_id", self.ID).Msg("Authenticated")

	s := &syncer{DefaultSyncer: mautrix.NewDefaultSyncer(), onFailure: c.onFailedSync}
	s.OnSync(c.onSync)
	s.OnEventType(event.EventMessage, c.handleMessage)
	c.cli.Syncer = s

	syncCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.syncDone = make(chan struct{})
	go c.runSync(syncCtx)

	if handlers.OnReady != nil {
		handlers.OnReady(self)
	}
	return nil
}

func (c *Client) runSync(ctx context.Context) {
	defer close(c.syncDone)
	err := c.cli.SyncWithContext(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	c.log.Error().Err(err).Msg("Sync stopped")
	c.markDegraded(err)
}

// onSync runs before the events of each sync response are dispatched. The
// initial sync only carries history and is not processed.
func (c *Client) onSync(_ context.Context, _ *mautrix.RespSync, since string) bool {
	c.mu.Lock()
	recovered := c.degraded
	c.degraded = false
	self := c.self
	handlers := c.handlers
	c.mu.Unlock()
	if recovered {
		c.log.Info().Msg("Sync recovered")
		if handlers.OnReady != nil {
			handlers.OnReady(self)
		}
	}
	return since != ""
}

func (c *Client) onFailedSync(err error) (time.Duration, error) {
	if errors.Is(err, mautrix.MUnknownToken) {
		return 0, err
	}
	c.log.Warn().Err(err).Dur("retry_in", c.retryDelay).Msg("Sync failed")
	c.markDegraded(err)
	return c.retryDelay, nil
}

// markDegraded reports a disconnect once per outage.
func (c *Client) markDegraded(err error) {
	c.mu.Lock()
	already := c.degraded
	c.degraded = true
	handlers := c.handlers
	c.mu.Unlock()
	if !already && handlers.OnDisconnect != nil {
		handlers.OnDisconnect(err)
	}
}

// Logout stops syncing. The access token is configured by the operator and
// is not revoked.
func (c *Client) Logout(ctx context.Context) error {
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		c.cli.StopSync()
	})
	if c.syncDone == nil {
		return nil
	}
	select {
	case <-c.syncDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) ResolveChannel(ctx context.Context, channelID string) (*relay.RemoteChannel, error) {
	roomID := id.RoomID(channelID)
	if _, err := c.cli.JoinRoomByID(ctx, roomID); err != nil {
		return nil, fmt.Errorf("failed to join room %s: %w", channelID, err)
	}
	var name event.RoomNameEventContent
	if err := c.cli.StateEvent(ctx, roomID, event.StateRoomName, "", &name); err != nil || name.Name == "" {
		c.log.Debug().Err(err).Str("room_id", channelID).Msg("Room has no name, using its ID")
		return &relay.RemoteChannel{ID: channelID, Name: channelID}, nil
	}
	return &relay.RemoteChannel{ID: channelID, Name: name.Name}, nil
}
