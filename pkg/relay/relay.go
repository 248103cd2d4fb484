// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	workQueueSize = 256
	sendTimeout   = 30 * time.Second
	logoutTimeout = 10 * time.Second
)

// Relay forwards messages between a Host and a Remote.
type Relay struct {
	log    zerolog.Logger
	host   Host
	remote Remote
	store  ConfigStore

	ctx    context.Context
	cancel context.CancelFunc

	work      chan func()
	stopActor chan struct{}
	actorDone chan struct{}

	outbound     chan outboundMsg
	stopOutbound chan struct{}
	outboundDone chan struct{}

	pendingPresence chan presenceUpdate
	applierDone     chan struct{}

	pendingSave chan *Config
	stopSaver   chan struct{}
	saverDone   chan struct{}

	running  atomic.Bool
	stopOnce sync.Once
	unsubs   []Unsubscribe
	// minInterval mirrors cfg.MinInterval for the timer goroutine.
	minInterval atomic.Int64
	clamped     atomic.Bool

	// Owned by the actor goroutine.
	cfg        *Config
	bindings   *bindingTable
	presence   PresenceState
	connected  bool
	generation int
	self       RemoteUser
	timer      *presenceTimer

	// presenceMu serializes status and nickname updates on the remote.
	presenceMu   sync.Mutex
	lastNickname string
}

type outboundMsg struct {
	channelID     string
	text          string
	allowMentions bool
	flushed       chan struct{}
}

// New creates a relay. cfg must have been post-processed.
func New(log zerolog.Logger, cfg *Config, host Host, remote Remote, store ConfigStore) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	queueSize := cfg.OutboundQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Relay{
		log:             log.With().Str("component", "relay").Logger(),
		host:            host,
		remote:          remote,
		store:           store,
		ctx:             ctx,
		cancel:          cancel,
		work:            make(chan func(), workQueueSize),
		stopActor:       make(chan struct{}),
		actorDone:       make(chan struct{}),
		outbound:        make(chan outboundMsg, queueSize),
		stopOutbound:    make(chan struct{}),
		outboundDone:    make(chan struct{}),
		pendingPresence: make(chan presenceUpdate, 1),
		applierDone:     make(chan struct{}),
		pendingSave:     make(chan *Config, 1),
		stopSaver:       make(chan struct{}),
		saverDone:       make(chan struct{}),
		cfg:             cfg,
		presence:        NewPresenceState(),
	}
}

// Start validates the configuration, subscribes to host events and connects
// the remote. On failure every subscription acquired so far is released.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		r.log.Error().Err(err).Msg("Invalid configuration, not starting")
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if r.cfg.formatter == nil {
		if err := r.cfg.PostProcess(); err != nil {
			r.log.Error().Err(err).Msg("Invalid configuration, not starting")
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("relay already started")
	}
	r.bindings = buildBindings(r.cfg, r.host, r.log)
	r.minInterval.Store(int64(r.cfg.MinInterval()))

	go r.runActor()
	go r.runOutbound()
	go r.runApplier()
	go r.runSaver()

	r.subscribeHost()

	err := r.remote.Connect(ctx, RemoteHandlers{
		OnReady:      r.handleReady,
		OnMessage:    r.handleRemoteMessage,
		OnDisconnect: r.handleDisconnect,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to connect to remote")
		r.Stop(ctx)
		return fmt.Errorf("failed to connect remote: %w", err)
	}
	r.log.Info().
		Str("remote_type", r.cfg.Remote.Type).
		Int("bindings", len(r.bindings.byGroup)).
		Msg("Relay started")
	return nil
}

// Stop releases host subscriptions, stops the presence timer and the actor,
// logs out of the remote and stops the outbound consumer. Pending outbound
// messages are discarded.
func (r *Relay) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		for i := len(r.unsubs) - 1; i >= 0; i-- {
			r.unsubs[i]()
		}
		r.unsubs = nil
		if !r.running.Load() {
			r.cancel()
			return
		}

		// The timer is owned by the actor; grab it through the queue and
		// wait for a running tick outside of it.
		var timer *presenceTimer
		if err := r.call(ctx, func() {
			timer = r.timer
			r.timer = nil
			r.connected = false
		}); err != nil {
			r.log.Warn().Err(err).Msg("Failed to reach actor during shutdown")
		}
		r.cancel()
		if timer != nil {
			timer.Stop(ctx)
		}

		close(r.stopActor)
		waitDone(ctx, r.actorDone)
		close(r.stopSaver)
		waitDone(ctx, r.saverDone)

		logoutCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
		if err := r.remote.Logout(logoutCtx); err != nil {
			r.log.Warn().Err(err).Msg("Failed to log out of remote")
		}
		cancel()

		close(r.stopOutbound)
		waitDone(ctx, r.outboundDone)
		waitDone(ctx, r.applierDone)
		r.log.Info().Msg("Relay stopped")
	})
}

func waitDone(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// runActor executes posted work one item at a time.
func (r *Relay) runActor() {
	defer close(r.actorDone)
	for {
		select {
		case fn := <-r.work:
			r.safeRun("actor", fn)
		case <-r.stopActor:
			return
		}
	}
}

func (r *Relay) safeRun(where string, fn func()) {
	defer func() {
		if err := recover(); err != nil {
			r.log.Error().
				Str("where", where).
				Any("panic", err).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in event handler")
		}
	}()
	fn()
}

// post queues fn for the actor without blocking. It reports false when the
// queue is full or the relay is stopping.
func (r *Relay) post(fn func()) bool {
	select {
	case <-r.stopActor:
		return false
	default:
	}
	select {
	case r.work <- fn:
		return true
	default:
		r.log.Warn().Msg("Actor queue is full, dropping event")
		return false
	}
}

// call runs fn on the actor and waits for it to finish.
func (r *Relay) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !r.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-r.actorDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue schedules a remote send. Must be called on the actor.
func (r *Relay) enqueue(channelID, text string) error {
	if channelID == "" || text == "" {
		return nil
	}
	msg := outboundMsg{channelID: channelID, text: text, allowMentions: r.cfg.AllowMentions}
	select {
	case r.outbound <- msg:
		return nil
	default:
		r.log.Warn().
			Str("channel_id", channelID).
			Int("queue_size", cap(r.outbound)).
			Msg("Outbound queue is full, dropping message")
		return ErrQueueFull
	}
}

func (r *Relay) runOutbound() {
	defer close(r.outboundDone)
	for {
		select {
		case msg := <-r.outbound:
			if msg.flushed != nil {
				close(msg.flushed)
				continue
			}
			r.safeRun("outbound", func() { r.deliver(msg) })
		case <-r.stopOutbound:
			return
		}
	}
}

func (r *Relay) deliver(msg outboundMsg) {
	ctx, cancel := context.WithTimeout(r.ctx, sendTimeout)
	defer cancel()
	if err := r.remote.Send(ctx, msg.channelID, msg.text, msg.allowMentions); err != nil {
		r.log.Warn().Err(err).
			Str("channel_id", msg.channelID).
			Msg("Failed to deliver message to remote")
		return
	}
	r.log.Debug().Str("channel_id", msg.channelID).Msg("Delivered message to remote")
}

// flushOutbound waits until everything queued before the call has been
// handed to the remote.
func (r *Relay) flushOutbound(ctx context.Context) error {
	flushed := make(chan struct{})
	select {
	case r.outbound <- outboundMsg{flushed: flushed}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-flushed:
		return nil
	case <-r.outboundDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is a snapshot of the relay state.
type Status struct {
	Connected      bool            `json:"connected"`
	Self           RemoteUser      `json:"self"`
	RemoteType     string          `json:"remote_type"`
	Bindings       []BindingStatus `json:"bindings"`
	Presence       PresenceState   `json:"presence"`
	OutboundQueued int             `json:"outbound_queued"`
}

// Status returns the current state as seen by the actor.
func (r *Relay) Status(ctx context.Context) (Status, error) {
	var st Status
	err := r.call(ctx, func() {
		st = Status{
			Connected:      r.connected,
			Self:           r.self,
			RemoteType:     r.cfg.Remote.Type,
			Bindings:       r.bindings.status(),
			Presence:       r.presence,
			OutboundQueued: len(r.outbound),
		}
	})
	return st, err
}

// ReloadConfig re-reads the configuration from the store and swaps it in.
// Bindings are rebuilt and re-resolved when the remote is connected. The
// remote credentials and listen addresses only take effect on restart.
func (r *Relay) ReloadConfig(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("no config store")
	}
	cfg, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return r.call(ctx, func() {
		r.cfg = cfg
		r.minInterval.Store(int64(cfg.MinInterval()))
		r.bindings = buildBindings(cfg, r.host, r.log)
		r.log.Info().Int("bindings", len(r.bindings.byGroup)).Msg("Configuration reloaded")
		if r.connected {
			r.generation++
			r.resolveBindings(r.generation)
		}
	})
}
