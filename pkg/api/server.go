// Package api exposes sources, browsing, favorites and rotation over a local
// REST/WebSocket server for a UI process.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dixieflatline76/wallsource/pkg/browse"
	"github.com/dixieflatline76/wallsource/pkg/favorites"
	"github.com/dixieflatline76/wallsource/pkg/rotation"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// DefaultAddr is the loopback address the server listens on.
const DefaultAddr = "127.0.0.1:49452"

// Sources is the registry surface used by the server. *source.Registry implements it.
type Sources interface {
	ConfiguredSources() []source.ConfiguredSource
	WatchConfiguredSources(ctx context.Context) <-chan []source.ConfiguredSource
	Source(key string) (source.ConfiguredSource, bool)
	PreferredSource() (source.ConfiguredSource, bool)
	SetDefault(key string) error
	SetAPIKey(key, apiKey string) error
	SetLastUsed(key string) error
	UpdateFromNetwork(ctx context.Context, url string) error
}

// Fetcher loads pages and image bytes. *fetch.Engine implements it.
type Fetcher interface {
	browse.Fetcher
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Favorites is the favorites surface. *favorites.Store implements it.
type Favorites interface {
	List(ctx context.Context) ([]favorites.Favorite, error)
	Get(ctx context.Context, id string) (favorites.Favorite, error)
	Add(ctx context.Context, f favorites.Favorite, data []byte) (favorites.Favorite, error)
	Remove(ctx context.Context, id string) error
}

// Settings reads and updates the rotation setting. *rotation.SettingsStore implements it.
type Settings interface {
	Get() rotation.Setting
	Update(st rotation.Setting) error
}

// Rotator runs cycles on demand and reports results. *rotation.Engine implements it.
type Rotator interface {
	RunCycle(ctx context.Context) (rotation.Outcome, error)
	LastResult() rotation.CycleResult
	WatchResults(ctx context.Context) <-chan rotation.CycleResult
}

// Deps are the components served by the API.
type Deps struct {
	Sources   Sources
	Fetcher   Fetcher
	Favorites Favorites
	Settings  Settings
	Rotator   Rotator
}

// Server represents the Local REST/WebSocket server.
type Server struct {
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	// ctx outlives requests; background loads and streams stop with it.
	ctx    context.Context
	cancel context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[string]*browse.Controller

	// Bridge clients receive set_wallpaper commands.
	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*browse.Controller),
		clients:  make(map[*websocket.Conn]bool),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.enableCORS)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleBridge)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", s.handleListSources)
		r.Post("/sources/update", s.handleUpdateSources)
		r.Put("/sources/{key}/apikey", s.handleSetAPIKey)
		r.Post("/sources/{key}/default", s.handleSetDefault)
		r.Get("/sources/ws", s.handleSourcesStream)

		r.Post("/browse", s.handleOpenBrowse)
		r.Route("/browse/{id}", func(r chi.Router) {
			r.Get("/", s.handleBrowseState)
			r.Delete("/", s.handleCloseBrowse)
			r.Post("/search", s.handleBrowseSearch)
			r.Post("/next", s.handleBrowseNext)
			r.Post("/retry", s.handleBrowseRetry)
			r.Post("/sorting", s.handleBrowseSorting)
			r.Get("/ws", s.handleBrowseStream)
		})

		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleAddFavorite)
		r.Get("/favorites/{id}/image", s.handleFavoriteImage)
		r.Delete("/favorites/{id}", s.handleRemoveFavorite)

		r.Get("/rotation/settings", s.handleGetRotationSettings)
		r.Put("/rotation/settings", s.handleUpdateRotationSettings)
		r.Post("/rotation/run", s.handleRunRotation)
		r.Get("/rotation/last", s.handleLastRotation)
		r.Get("/rotation/ws", s.handleRotationStream)
	})

	s.router = r
}

// enableCORS adds CORS headers so extensions can reach localhost.
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API: listening on %s", l.Addr())
		errCh <- s.httpServer.Serve(l)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		err := s.httpServer.Shutdown(shutdownCtx)
		<-errCh
		return err
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Close stops background work, drops every browse session and disconnects bridge clients.
func (s *Server) Close() {
	s.cancel()

	s.sessionsMu.Lock()
	for id, c := range s.sessions {
		c.Close()
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	s.clientsMu.Lock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
}

// BroadcastWallpaper sends a "set_wallpaper" command to all bridge clients.
// It fails when no client is connected.
func (s *Server) BroadcastWallpaper(path string) error {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if len(s.clients) == 0 {
		return errors.New("no bridge client connected")
	}

	msg := map[string]string{
		"type": "set_wallpaper",
		"path": path,
	}
	delivered := 0
	for conn := range s.clients {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("API: Failed to broadcast to bridge client: %v", err)
			conn.Close()
			delete(s.clients, conn)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errors.New("no bridge client accepted the wallpaper")
	}
	return nil
}
