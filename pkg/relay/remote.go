// Copyright 2024-2026 Aiku AI

package relay

import "context"

// RemoteUser identifies an account on the remote service.
type RemoteUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RemoteChannel is a channel handle resolved against a live session.
type RemoteChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemoteMessage is a message received from the remote service.
type RemoteMessage struct {
	ChannelID  string
	AuthorID   string
	AuthorName string
	Content    string
}

// RemoteHandlers are the callbacks a Remote invokes from its own goroutines.
// OnReady may fire again after the backend reconnects on its own.
type RemoteHandlers struct {
	OnReady      func(self RemoteUser)
	OnMessage    func(msg RemoteMessage)
	OnDisconnect func(err error)
}

// Remote is the group-chat service.
type Remote interface {
	// Connect authenticates and starts delivering events to handlers. It
	// returns once the session is established or has failed.
	Connect(ctx context.Context, handlers RemoteHandlers) error
	ResolveChannel(ctx context.Context, channelID string) (*RemoteChannel, error)
	Send(ctx context.Context, channelID, text string, allowMentions bool) error
	SetStatus(ctx context.Context, text string) error
	Nickname(ctx context.Context) (string, error)
	SetNickname(ctx context.Context, name string) error
	Logout(ctx context.Context) error
}
