// Copyright 2024-2026 Aiku AI

package gamelink

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 8) / 10
	maxMessageSize = 1 << 20
	sendQueueSize  = 256
)

// peer is one game plugin connection. Frames are read and dispatched on the
// read goroutine; writes go through a bounded queue drained by the write
// goroutine.
type peer struct {
	log  zerolog.Logger
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(log zerolog.Logger, conn *websocket.Conn) *peer {
	return &peer{
		log:    log,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// readLoop blocks until the connection fails or is closed.
func (p *peer) readLoop(dispatch func(Frame)) {
	defer p.close()
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Warn().Err(err).Msg("Game link read failed")
			}
			return
		}
		var frame Frame
		if err = json.Unmarshal(data, &frame); err != nil {
			p.log.Warn().Err(err).Msg("Discarding malformed game link frame")
			continue
		}
		dispatch(frame)
	}
}

func (p *peer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()
	for {
		select {
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.log.Warn().Err(err).Msg("Game link write failed")
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.closed:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// queue schedules a frame without blocking. It reports false when the
// queue is full or the connection is closed.
func (p *peer) queue(frame Frame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		p.log.Warn().Err(err).Str("frame_type", frame.Type).Msg("Failed to marshal game link frame")
		return false
	}
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
		p.log.Warn().Str("frame_type", frame.Type).Msg("Game link send queue is full, dropping frame")
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		// Give the write loop a moment to send the close frame.
		time.AfterFunc(time.Second, func() { _ = p.conn.Close() })
	})
}
