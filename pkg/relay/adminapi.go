// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// AdminHandler returns the admin API routes:
//
//	GET  /api/status         relay state as JSON
//	POST /api/reload-config  re-read the config file and rebuild bindings
func (r *Relay) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", r.HandleStatus)
	mux.HandleFunc("/api/reload-config", r.HandleReloadConfig)
	return mux
}

// ServeAdminAPI listens on addr until ctx is cancelled. An empty addr
// disables the API.
func (r *Relay) ServeAdminAPI(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      r.AdminHandler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		r.log.Info().Str("addr", addr).Msg("Starting admin API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error().Err(err).Msg("Admin API error")
		}
	}()
}

func (r *Relay) HandleStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := r.Status(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	r.writeJSON(w, st)
}

func (r *Relay) HandleReloadConfig(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.log.Info().Str("remote_addr", req.RemoteAddr).Msg("Config reload requested")
	if err := r.ReloadConfig(req.Context()); err != nil {
		r.log.Error().Err(err).Msg("Config reload failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, err := r.Status(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	r.writeJSON(w, st)
}

func (r *Relay) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		r.log.Warn().Err(err).Msg("Failed to write admin API response")
	}
}
