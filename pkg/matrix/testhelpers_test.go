// Copyright 2024-2026 Aiku AI

package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/gamerelay/pkg/relay"
)

const (
	botUserID = "@relaybot:example.org"
	botToken  = "bot-token"
	roomID    = "!general:example.org"
)

type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeHS is a test helper that wraps an httptest.Server simulating the
// parts of the Matrix client-server API the relay uses.
type fakeHS struct {
	Server *httptest.Server

	mu          sync.Mutex
	calls       []endpointCall
	batch       int
	pending     []timelineEvent
	failSync    bool
	displayName string
	// RoomNames maps room IDs to their m.room.name. Rooms missing here
	// cannot be joined.
	RoomNames map[string]string
}

type timelineEvent struct {
	room  string
	event map[string]any
}

func newFakeHS(t *testing.T) *fakeHS {
	t.Helper()
	f := &fakeHS{
		displayName: "Relay",
		RoomNames:   map[string]string{roomID: "Town Square", "!unnamed:example.org": ""},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeHS) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]endpointCall(nil), f.calls...)
}

func (f *fakeHS) CallsMatching(method, pathPart string) []endpointCall {
	var out []endpointCall
	for _, c := range f.Calls() {
		if c.Method == method && strings.Contains(c.Path, pathPart) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeHS) SetFailSync(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSync = fail
}

// Queue adds a room timeline event to the next incremental sync.
func (f *fakeHS) Queue(sender string, content map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batch++
	f.pending = append(f.pending, timelineEvent{room: roomID, event: map[string]any{
		"type":             "m.room.message",
		"sender":           sender,
		"event_id":         fmt.Sprintf("$event%d", f.batch),
		"origin_server_ts": time.Now().UnixMilli(),
		"content":          content,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeHS) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path
	f.mu.Lock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: path, Body: string(body)})
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+botToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"errcode": "M_UNKNOWN_TOKEN", "error": "bad token"})
		return
	}

	switch {
	case r.Method == http.MethodGet && path == "/_matrix/client/v3/account/whoami":
		writeJSON(w, http.StatusOK, map[string]string{"user_id": botUserID})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/filter"):
		writeJSON(w, http.StatusOK, map[string]string{"filter_id": "f1"})

	case r.Method == http.MethodGet && path == "/_matrix/client/v3/sync":
		f.serveSync(w, r)

	case r.Method == http.MethodPut && strings.Contains(path, "/send/m.room.message/"):
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$sent"})

	case r.Method == http.MethodPut && strings.HasSuffix(path, "/status") && strings.Contains(path, "/presence/"):
		writeJSON(w, http.StatusOK, map[string]any{})

	case strings.HasSuffix(path, "/profile/"+botUserID+"/displayname"):
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPut {
			var req map[string]string
			_ = json.Unmarshal(body, &req)
			f.displayName = req["displayname"]
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"displayname": f.displayName})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/join"):
		room := strings.TrimSuffix(strings.TrimPrefix(path, "/_matrix/client/v3/rooms/"), "/join")
		if _, ok := f.RoomNames[room]; !ok {
			writeJSON(w, http.StatusForbidden, map[string]string{"errcode": "M_FORBIDDEN", "error": "not invited"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"room_id": room})

	case r.Method == http.MethodGet && strings.Contains(path, "/state/m.room.name"):
		room := strings.TrimPrefix(path, "/_matrix/client/v3/rooms/")
		room = room[:strings.Index(room, "/")]
		if name := f.RoomNames[room]; name != "" {
			writeJSON(w, http.StatusOK, map[string]string{"name": name})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"errcode": "M_NOT_FOUND", "error": "no name"})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"errcode": "M_UNRECOGNIZED", "error": "not found: " + path})
	}
}

// serveSync answers the initial sync with one history event and holds
// incremental syncs open briefly until events are queued.
func (f *fakeHS) serveSync(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	deadline := time.Now().Add(50 * time.Millisecond)
	for {
		f.mu.Lock()
		if f.failSync {
			f.mu.Unlock()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"errcode": "M_UNKNOWN", "error": "sync broke"})
			return
		}
		var events []timelineEvent
		if since == "" {
			events = []timelineEvent{{room: roomID, event: map[string]any{
				"type": "m.room.message", "sender": "@alice:example.org", "event_id": "$history",
				"origin_server_ts": 1, "content": map[string]any{"msgtype": "m.text", "body": "old news"},
			}}}
		} else if len(f.pending) > 0 || time.Now().After(deadline) {
			events = f.pending
			f.pending = nil
		}
		if since == "" || events != nil || time.Now().After(deadline) {
			f.batch++
			next := fmt.Sprintf("s%d", f.batch)
			f.mu.Unlock()
			writeJSON(w, http.StatusOK, syncResponse(next, events))
			return
		}
		f.mu.Unlock()
		select {
		case <-r.Context().Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func syncResponse(next string, events []timelineEvent) map[string]any {
	join := map[string]any{}
	for _, evt := range events {
		room, _ := join[evt.room].(map[string]any)
		if room == nil {
			room = map[string]any{"timeline": map[string]any{"events": []any{}}}
			join[evt.room] = room
		}
		timeline := room["timeline"].(map[string]any)
		timeline["events"] = append(timeline["events"].([]any), evt.event)
	}
	return map[string]any{"next_batch": next, "rooms": map[string]any{"join": join}}
}

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

func newTestClient(t *testing.T, f *fakeHS, token string) *Client {
	t.Helper()
	c, err := New(zerolog.Nop(), relay.RemoteConfig{Type: relay.RemoteMatrix, ServerURL: f.Server.URL, Token: token})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.retryDelay = 10 * time.Millisecond
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.Logout(ctx)
	})
	return c
}

func connect(t *testing.T, c *Client, rec *recorder) {
	t.Helper()
	if err := c.Connect(t.Context(), rec.handlers()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
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
