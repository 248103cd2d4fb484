// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/gamerelay/pkg/relay"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API and websocket. It records calls and provides canned
// responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall
	conns []*websocket.Conn

	// Users maps user ID to model.User for GetMe and PatchUser responses.
	Users map[string]*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// Passwords maps login IDs to passwords for the login endpoint.
	Passwords map[string]string
	// Channels maps channel ID to model.Channel.
	Channels map[string]*model.Channel
	// FailEndpoints causes specific path prefixes to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM(t *testing.T) *fakeMM {
	t.Helper()
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		TokenToUser:   make(map[string]string),
		Passwords:     make(map[string]string),
		Channels:      make(map[string]*model.Channel),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeMM) Close() {
	f.DropWebSockets()
	f.Server.Close()
}

func (f *fakeMM) record(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: method, Path: path, Body: body})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CallsTo(method, path string) []endpointCall {
	var out []endpointCall
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	auth := r.Header.Get("Authorization")
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func (f *fakeMM) WebSocketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Push sends an event to every open websocket.
func (f *fakeMM) Push(t *testing.T, evt *model.WebSocketEvent) {
	t.Helper()
	data, err := evt.ToJSON()
	if err != nil {
		t.Fatalf("encode websocket event: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("push websocket event: %v", err)
		}
	}
}

// DropWebSockets closes every open websocket from the server side.
func (f *fakeMM) DropWebSockets() {
	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (f *fakeMM) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if f.resolveToken(r) == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	// Discard the authentication challenge and anything else the client sends.
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v4/websocket" {
		f.record(r.Method, path, "")
		f.serveWebSocket(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, path, string(body))

	// Check if this endpoint should fail.
	f.mu.Lock()
	for prefix := range f.FailEndpoints {
		if strings.Contains(path, prefix) {
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "fake error"})
			return
		}
	}
	f.mu.Unlock()

	switch {
	// POST /api/v4/users/login
	case r.Method == "POST" && path == "/api/v4/users/login":
		var req map[string]string
		_ = json.Unmarshal(body, &req)
		loginID := req["login_id"]
		if pw, ok := f.Passwords[loginID]; !ok || pw != req["password"] {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
			return
		}
		for _, u := range f.Users {
			if u.Username == loginID {
				token := "session-" + u.Id
				f.mu.Lock()
				f.TokenToUser[token] = u.Id
				f.mu.Unlock()
				w.Header().Set(model.HeaderToken, token)
				_ = json.NewEncoder(w).Encode(u)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	// POST /api/v4/users/logout
	case r.Method == "POST" && path == "/api/v4/users/logout":
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	// GET /api/v4/users/me
	case r.Method == "GET" && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if uid == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
			return
		}
		if u, ok := f.Users[uid]; ok {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	// PUT /api/v4/users/{user_id}/patch
	case r.Method == "PUT" && strings.HasPrefix(path, "/api/v4/users/") && strings.HasSuffix(path, "/patch"):
		uid := strings.Split(path, "/")[4]
		f.mu.Lock()
		defer f.mu.Unlock()
		u, ok := f.Users[uid]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var patch model.UserPatch
		_ = json.Unmarshal(body, &patch)
		if patch.Nickname != nil {
			u.Nickname = *patch.Nickname
		}
		_ = json.NewEncoder(w).Encode(u)

	// PUT /api/v4/users/{user_id}/status/custom
	case r.Method == "PUT" && strings.HasSuffix(path, "/status/custom"):
		var cs model.CustomStatus
		_ = json.Unmarshal(body, &cs)
		_ = json.NewEncoder(w).Encode(&cs)

	// DELETE /api/v4/users/{user_id}/status/custom
	case r.Method == "DELETE" && strings.HasSuffix(path, "/status/custom"):
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})

	// POST /api/v4/posts
	case r.Method == "POST" && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		_ = json.NewEncoder(w).Encode(&post)

	// GET /api/v4/channels/{channel_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/channels/") && !strings.Contains(path[len("/api/v4/channels/"):], "/"):
		chID := path[len("/api/v4/channels/"):]
		if ch, ok := f.Channels[chID]; ok {
			_ = json.NewEncoder(w).Encode(ch)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "channel not found"})

	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "not found: " + path})
	}
}

// newFakeWithBot returns a server that knows the bot user "relaybot" with
// token "bot-token" and password "hunter2", plus the town-square channel.
func newFakeWithBot(t *testing.T) *fakeMM {
	t.Helper()
	f := newFakeMM(t)
	f.Users["bot-id"] = &model.User{Id: "bot-id", Username: "relaybot", Nickname: "Relay"}
	f.TokenToUser["bot-token"] = "bot-id"
	f.Passwords["relaybot"] = "hunter2"
	f.Channels["chan-general"] = &model.Channel{Id: "chan-general", Name: "town-square", DisplayName: "Town Square"}
	return f
}

// recorder collects the callbacks delivered to relay.RemoteHandlers.
type recorder struct {
	mu          sync.Mutex
	ready       []relay.RemoteUser
	messages    []relay.RemoteMessage
	disconnects []error
}

func (r *recorder) handlers() relay.RemoteHandlers {
	return relay.RemoteHandlers{
		OnReady: func(u relay.RemoteUser) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ready = append(r.ready, u)
		},
		OnMessage: func(m relay.RemoteMessage) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, m)
		},
		OnDisconnect: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnects = append(r.disconnects, err)
		},
	}
}

func (r *recorder) Ready() []relay.RemoteUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relay.RemoteUser(nil), r.ready...)
}

func (r *recorder) Messages() []relay.RemoteMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relay.RemoteMessage(nil), r.messages...)
}

func (r *recorder) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.disconnects)
}

func newTestClient(t *testing.T, f *fakeMM, cfg relay.RemoteConfig) *Client {
	t.Helper()
	cfg.Type = relay.RemoteMattermost
	cfg.ServerURL = f.Server.URL
	c := New(zerolog.Nop(), cfg)
	c.reconnectDelay = 10 * time.Millisecond
	t.Cleanup(func() { _ = c.Logout(context.Background()) })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

func postedEvent(t *testing.T, post *model.Post, senderName string) *model.WebSocketEvent {
	t.Helper()
	raw, err := json.Marshal(post)
	if err != nil {
		t.Fatalf("marshal post: %v", err)
	}
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{
		"post":        string(raw),
		"sender_name": senderName,
	})
}
