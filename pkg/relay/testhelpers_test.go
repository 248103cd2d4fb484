// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/gamerelay/pkg/coords"
	"github.com/aiku/gamerelay/pkg/world"
)

type broadcast struct {
	Group int
	Text  string
}

// fakeHost is an in-memory game server. Emit* methods invoke the relay's
// handlers synchronously, like the host's dispatch goroutine would.
type fakeHost struct {
	mu sync.Mutex

	onChat     func(ChatEvent)
	onJoin     func(string)
	onLeave    func(string)
	onDeath    func(DeathEvent)
	onRunning  func()
	onShutdown func()
	onLog      func(LogEntry)

	unsubscribed []string
	broadcasts   []broadcast

	Players  []string
	Cal      world.Calendar
	Climate  *world.Climate
	Groups   map[string]int
	MapSizeX int
	MapSizeZ int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		Groups:   map[string]int{"traders": 5},
		MapSizeX: 1024000,
		MapSizeZ: 1024000,
		Cal:      world.Calendar{HourOfDay: 12, DayOfYear: 20, DaysPerMonth: 9, Year: 1, Moon: world.MoonGrow1, SpeedOfTime: 60},
	}
}

func (h *fakeHost) unsub(name string) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.unsubscribed = append(h.unsubscribed, name)
		})
	}
}

func (h *fakeHost) OnChat(fn func(ChatEvent)) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChat = fn
	return h.unsub("chat")
}

func (h *fakeHost) OnPlayerJoin(fn func(string)) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = fn
	return h.unsub("join")
}

func (h *fakeHost) OnPlayerLeave(fn func(string)) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLeave = fn
	return h.unsub("leave")
}

func (h *fakeHost) OnPlayerDeath(fn func(DeathEvent)) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDeath = fn
	return h.unsub("death")
}

func (h *fakeHost) OnServerRunning(fn func()) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRunning = fn
	return h.unsub("running")
}

func (h *fakeHost) OnServerShutdown(fn func()) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onShutdown = fn
	return h.unsub("shutdown")
}

func (h *fakeHost) OnLogEntry(fn func(LogEntry)) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLog = fn
	return h.unsub("log")
}

func (h *fakeHost) Broadcast(group int, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, broadcast{Group: group, Text: text})
}

func (h *fakeHost) OnlinePlayers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Players...)
}

func (h *fakeHost) Calendar() world.Calendar {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Cal
}

func (h *fakeHost) ClimateAt(coords.Pos) (world.Climate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Climate == nil {
		return world.Climate{}, false
	}
	return *h.Climate, true
}

func (h *fakeHost) MapSize() (int, int) {
	return h.MapSizeX, h.MapSizeZ
}

func (h *fakeHost) GroupID(name string) (int, bool) {
	id, ok := h.Groups[name]
	return id, ok
}

func (h *fakeHost) setCalendar(fn func(*world.Calendar)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.Cal)
}

func (h *fakeHost) setPlayers(players ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Players = players
}

func (h *fakeHost) Broadcasts() []broadcast {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]broadcast(nil), h.broadcasts...)
}

func (h *fakeHost) Unsubscribed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.unsubscribed...)
}

func (h *fakeHost) EmitChat(evt ChatEvent) {
	h.mu.Lock()
	fn := h.onChat
	h.mu.Unlock()
	if fn != nil {
		fn(evt)
	}
}

func (h *fakeHost) EmitJoin(player string) {
	h.mu.Lock()
	fn := h.onJoin
	h.mu.Unlock()
	if fn != nil {
		fn(player)
	}
}

func (h *fakeHost) EmitLeave(player string) {
	h.mu.Lock()
	fn := h.onLeave
	h.mu.Unlock()
	if fn != nil {
		fn(player)
	}
}

func (h *fakeHost) EmitDeath(evt DeathEvent) {
	h.mu.Lock()
	fn := h.onDeath
	h.mu.Unlock()
	if fn != nil {
		fn(evt)
	}
}

func (h *fakeHost) EmitServerRunning() {
	h.mu.Lock()
	fn := h.onRunning
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *fakeHost) EmitLog(entry LogEntry) {
	h.mu.Lock()
	fn := h.onLog
	h.mu.Unlock()
	if fn != nil {
		fn(entry)
	}
}

type sentMessage struct {
	ChannelID     string
	Text          string
	AllowMentions bool
}

// fakeRemote is an in-memory chat service that becomes ready as soon as
// Connect is called.
type fakeRemote struct {
	mu sync.Mutex

	handlers RemoteHandlers
	Self     RemoteUser
	Channels map[string]*RemoteChannel

	ConnectErr error
	SendErr    error

	sent      []sentMessage
	statuses  []string
	nicknames []string
	nickname  string
	loggedOut bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		Self: RemoteUser{ID: "bot-id", Username: "relaybot"},
		Channels: map[string]*RemoteChannel{
			"chan-general": {ID: "chan-general", Name: "town-square"},
			"chan-traders": {ID: "chan-traders", Name: "traders"},
		},
		nickname: "relaybot",
	}
}

func (f *fakeRemote) Connect(_ context.Context, handlers RemoteHandlers) error {
	f.mu.Lock()
	if f.ConnectErr != nil {
		f.mu.Unlock()
		return f.ConnectErr
	}
	f.handlers = handlers
	self := f.Self
	f.mu.Unlock()
	handlers.OnReady(self)
	return nil
}

func (f *fakeRemote) ResolveChannel(_ context.Context, channelID string) (*RemoteChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return nil, errors.New("channel not found")
	}
	return ch, nil
}

func (f *fakeRemote) Send(_ context.Context, channelID, text string, allowMentions bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Text: text, AllowMentions: allowMentions})
	return nil
}

func (f *fakeRemote) SetStatus(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, text)
	return nil
}

func (f *fakeRemote) Nickname(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nickname, nil
}

func (f *fakeRemote) SetNickname(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nickname = name
	f.nicknames = append(f.nicknames, name)
	return nil
}

func (f *fakeRemote) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeRemote) Message(msg RemoteMessage) {
	f.mu.Lock()
	fn := f.handlers.OnMessage
	f.mu.Unlock()
	fn(msg)
}

func (f *fakeRemote) Disconnect(err error) {
	f.mu.Lock()
	fn := f.handlers.OnDisconnect
	f.mu.Unlock()
	fn(err)
}

func (f *fakeRemote) Ready() {
	f.mu.Lock()
	fn := f.handlers.OnReady
	self := f.Self
	f.mu.Unlock()
	fn(self)
}

func (f *fakeRemote) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeRemote) Statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses...)
}

func (f *fakeRemote) Nicknames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.nicknames...)
}

func (f *fakeRemote) LoggedOut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedOut
}

// memStore is a ConfigStore that keeps saved configs in memory.
type memStore struct {
	mu    sync.Mutex
	cfg   *Config
	saves int
	saved *Config
	// block, when set, holds every Save until it is closed.
	block chan struct{}
}

func (m *memStore) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, errors.New("no config")
	}
	return m.cfg, nil
}

func (m *memStore) Save(cfg *Config) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.saved = cfg
	return nil
}

func (m *memStore) Saved() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

func (m *memStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// testConfig returns the example config with the required fields filled in
// and the presence timer effectively disabled.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(ExampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	cfg.Remote.Token = "token"
	cfg.DefaultChannel.RemoteChannel = "chan-general"
	cfg.MinPresenceInterval = 3600
	cfg.AdminUsers = []string{"u-admin"}
	return cfg
}

func postProcess(t *testing.T, cfg *Config) *Config {
	t.Helper()
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return cfg
}

type testRelay struct {
	*Relay
	host   *fakeHost
	remote *fakeRemote
	store  *memStore
}

// startTestRelay starts a relay on fakes and waits until its bindings are
// resolved.
func startTestRelay(t *testing.T, cfg *Config) *testRelay {
	t.Helper()
	host := newFakeHost()
	remote := newFakeRemote()
	store := &memStore{}
	r := New(zerolog.Nop(), postProcess(t, cfg), host, remote, store)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	tr := &testRelay{Relay: r, host: host, remote: remote, store: store}
	tr.waitConnected(t)
	return tr
}

func (tr *testRelay) waitConnected(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := tr.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Connected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("relay did not connect")
}

// settle waits until every event posted so far has been handled and every
// resulting remote send has been delivered.
func (tr *testRelay) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.call(ctx, func() {}); err != nil {
		t.Fatalf("actor flush: %v", err)
	}
	if err := tr.flushOutbound(ctx); err != nil {
		t.Fatalf("outbound flush: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
