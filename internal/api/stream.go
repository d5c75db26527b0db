package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

const (
	TypeModel = "MODEL"

	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ModelMsg is pushed to stream clients on every published read model.
type ModelMsg struct {
	Type  string         `json:"type"`
	Model game.ReadModel `json:"model"`
}

// handleStream upgrades to a websocket and pushes read models until the
// client goes away. Clients never send; anything read is discarded.
func (s *Server) handleStream(rw http.ResponseWriter, r *http.Request) {
	// Subscribed before the handshake completes so the client's first
	// message is the model current at connect time.
	models, unsubscribe := s.game.Subscribe()
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine.
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Unblocks the reader when the writer stops first.
		defer conn.Close()
		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-models:
				if !ok {
					cancel()
					return
				}
				if err := writeMsg(conn, ModelMsg{Type: TypeModel, Model: m}); err != nil {
					cancel()
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	cancel()
	<-done
	s.log.Debug("stream client left")
}

func writeMsg(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
