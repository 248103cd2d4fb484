// Copyright 2024-2026 Aiku AI

// Package gamelink implements relay.Host over a websocket connection from a
// game server plugin. The plugin pushes events and periodic state snapshots
// as JSON frames; the relay answers with broadcast and climate watch frames.
package gamelink

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aiku/gamerelay/pkg/coords"
	"github.com/aiku/gamerelay/pkg/relay"
	"github.com/aiku/gamerelay/pkg/world"
)

const DefaultPath = "/gamelink"

type Server struct {
	log      zerolog.Logger
	cfg      relay.GameLinkConfig
	upgrader websocket.Upgrader

	chat     registry[relay.ChatEvent]
	join     registry[string]
	leave    registry[string]
	death    registry[relay.DeathEvent]
	running  registry[struct{}]
	shutdown registry[struct{}]
	logs     registry[relay.LogEntry]

	mu      sync.Mutex
	peer    *peer
	state   StateData
	climate *ClimateSample
	watched *coords.Pos
}

var _ relay.Host = (*Server)(nil)

func New(log zerolog.Logger, cfg relay.GameLinkConfig) *Server {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	return &Server{
		log: log.With().Str("component", "gamelink").Logger(),
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The plugin is not a browser.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Connected reports whether a game plugin is currently attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer != nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Secret == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Secret)) == 1
}

// ServeHTTP upgrades the request and serves the connection until it fails.
// A new connection replaces the previous one.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Game link upgrade failed")
		return
	}
	p := newPeer(s.log.With().Str("remote_addr", r.RemoteAddr).Logger(), conn)

	s.mu.Lock()
	old := s.peer
	s.peer = p
	watched := s.watched
	s.mu.Unlock()
	if old != nil {
		s.log.Info().Msg("Replacing existing game link connection")
		old.close()
	}
	s.log.Info().Str("remote_addr", r.RemoteAddr).Msg("Game plugin connected")
	if watched != nil {
		s.sendWatch(p, *watched)
	}

	go p.writeLoop()
	p.readLoop(s.dispatch)

	s.mu.Lock()
	if s.peer == p {
		s.peer = nil
	}
	s.mu.Unlock()
	s.log.Info().Str("remote_addr", r.RemoteAddr).Msg("Game plugin disconnected")
}

// ListenAndServe serves the game link on cfg.Listen until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.cfg.Secret == "" {
		s.log.Warn().Msg("Game link secret is empty, any client may connect")
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.cfg.Listen).Str("path", s.cfg.Path).Msg("Game link listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.mu.Lock()
	p := s.peer
	s.mu.Unlock()
	if p != nil {
		p.close()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) dispatch(frame Frame) {
	var err error
	switch frame.Type {
	case FrameChat:
		var evt relay.ChatEvent
		if err = json.Unmarshal(frame.Data, &evt); err == nil {
			s.chat.emit(evt)
		}
	case FramePlayerJoin, FramePlayerLeave:
		var data PlayerData
		if err = json.Unmarshal(frame.Data, &data); err == nil {
			s.trackPlayer(data.Player, frame.Type == FramePlayerJoin)
			if frame.Type == FramePlayerJoin {
				s.join.emit(data.Player)
			} else {
				s.leave.emit(data.Player)
			}
		}
	case FramePlayerDeath:
		var evt relay.DeathEvent
		if err = json.Unmarshal(frame.Data, &evt); err == nil {
			s.death.emit(evt)
		}
	case FrameServerRunning:
		s.running.emit(struct{}{})
	case FrameServerShutdown:
		s.shutdown.emit(struct{}{})
	case FrameLog:
		var entry relay.LogEntry
		if err = json.Unmarshal(frame.Data, &entry); err == nil {
			s.logs.emit(entry)
		}
	case FrameState:
		var state StateData
		if err = json.Unmarshal(frame.Data, &state); err == nil {
			s.applyState(state)
		}
	default:
		s.log.Debug().Str("frame_type", frame.Type).Msg("Ignoring unknown game link frame")
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("frame_type", frame.Type).Msg("Failed to decode game link frame")
	}
}

func (s *Server) applyState(state StateData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Climate != nil {
		sample := *state.Climate
		s.climate = &sample
	}
	state.Climate = nil
	s.state = state
}

// trackPlayer keeps the online list current between snapshots, since the
// relay reads it while handling the join or leave event.
func (s *Server) trackPlayer(name string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.state.Players, name)
	switch {
	case online && idx < 0:
		s.state.Players = append(slices.Clone(s.state.Players), name)
	case !online && idx >= 0:
		s.state.Players = slices.Delete(slices.Clone(s.state.Players), idx, idx+1)
	}
}

func (s *Server) send(typ string, data any) bool {
	s.mu.Lock()
	p := s.peer
	s.mu.Unlock()
	if p == nil {
		return false
	}
	frame, err := NewFrame(typ, data)
	if err != nil {
		s.log.Warn().Err(err).Str("frame_type", typ).Msg("Failed to build game link frame")
		return false
	}
	return p.queue(frame)
}

func (s *Server) sendWatch(p *peer, pos coords.Pos) {
	frame, err := NewFrame(FrameWatchClimate, WatchClimateData{Pos: pos})
	if err == nil {
		p.queue(frame)
	}
}

func (s *Server) OnChat(fn func(relay.ChatEvent)) relay.Unsubscribe { return s.chat.add(fn) }
func (s *Server) OnPlayerJoin(fn func(string)) relay.Unsubscribe    { return s.join.add(fn) }
func (s *Server) OnPlayerLeave(fn func(string)) relay.Unsubscribe   { return s.leave.add(fn) }
func (s *Server) OnPlayerDeath(fn func(relay.DeathEvent)) relay.Unsubscribe {
	return s.death.add(fn)
}
func (s *Server) OnServerRunning(fn func()) relay.Unsubscribe {
	return s.running.add(func(struct{}) { fn() })
}
func (s *Server) OnServerShutdown(fn func()) relay.Unsubscribe {
	return s.shutdown.add(func(struct{}) { fn() })
}
func (s *Server) OnLogEntry(fn func(relay.LogEntry)) relay.Unsubscribe { return s.logs.add(fn) }

// Broadcast drops the text when no plugin is connected.
func (s *Server) Broadcast(group int, text string) {
	if !s.send(FrameBroadcast, BroadcastData{Group: group, Text: text}) {
		s.log.Debug().Int("group", group).Msg("Dropping broadcast, game plugin not connected")
	}
}

func (s *Server) OnlinePlayers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.Players)
}

func (s *Server) Calendar() world.Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Calendar
}

// ClimateAt returns the last sample for pos. When pos is not the watched
// position, the plugin is asked to start sampling it and ok is false until
// the next snapshot arrives.
func (s *Server) ClimateAt(pos coords.Pos) (world.Climate, bool) {
	s.mu.Lock()
	if s.climate != nil && s.climate.Pos == pos {
		c := s.climate.Climate
		s.mu.Unlock()
		return c, true
	}
	alreadyWatched := s.watched != nil && *s.watched == pos
	if !alreadyWatched {
		watched := pos
		s.watched = &watched
		s.climate = nil
	}
	s.mu.Unlock()
	if !alreadyWatched {
		s.send(FrameWatchClimate, WatchClimateData{Pos: pos})
	}
	return world.Climate{}, false
}

func (s *Server) MapSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.MapSizeX, s.state.MapSizeZ
}

func (s *Server) GroupID(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.state.Groups[name]
	return id, ok
}
