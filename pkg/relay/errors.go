// Copyright 2024-2026 Aiku AI

package relay

import "errors"

var (
	ErrMissingCredential = errors.New("remote credential is not configured")
	ErrMissingChannel    = errors.New("default remote channel is not configured")
	ErrNotConnected      = errors.New("remote is not connected")
	ErrQueueFull         = errors.New("queue is full")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrStopped           = errors.New("relay is stopped")
)
