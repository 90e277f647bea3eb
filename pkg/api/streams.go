package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/browse"
	"github.com/dixieflatline76/wallsource/pkg/rotation"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// stream upgrades the request and writes every value of watch(ctx) as JSON
// until the client disconnects or the server closes.
func stream[T any](s *Server, w http.ResponseWriter, r *http.Request, watch func(ctx context.Context) <-chan T, view func(T) any) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("API: WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Reads only detect the close; clients do not send anything meaningful.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for v := range watch(ctx) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(view(v)); err != nil {
			log.Debugf("API: stream closed: %v", err)
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (s *Server) handleSourcesStream(w http.ResponseWriter, r *http.Request) {
	stream(s, w, r, s.deps.Sources.WatchConfiguredSources, func(list []source.ConfiguredSource) any {
		return viewsOf(list)
	})
}

func (s *Server) handleBrowseStream(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.session(w, r)
	if !ok {
		return
	}
	stream(s, w, r, c.Watch, func(st browse.State) any {
		return browseResponse{ID: id, State: st}
	})
}

func (s *Server) handleRotationStream(w http.ResponseWriter, r *http.Request) {
	stream(s, w, r, s.deps.Rotator.WatchResults, func(res rotation.CycleResult) any { return res })
}

// handleBridge registers a browser extension that applies wallpapers on platforms
// without a native setter.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("API: WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()
	log.Print("API: bridge client connected")

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		log.Print("API: bridge client disconnected")
	}()

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			s.clientsMu.Lock()
			err := conn.WriteJSON(map[string]string{"type": "pong"})
			s.clientsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
