package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dixieflatline76/wallsource/config"
	"github.com/dixieflatline76/wallsource/pkg/browse"
	"github.com/dixieflatline76/wallsource/pkg/favorites"
	"github.com/dixieflatline76/wallsource/pkg/fetch"
	"github.com/dixieflatline76/wallsource/pkg/rotation"
	"github.com/dixieflatline76/wallsource/pkg/source"
	"github.com/dixieflatline76/wallsource/util/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"version": config.AppVersion,
	})
}

// sourceView is a ConfiguredSource without its API key.
type sourceView struct {
	Key              string `json:"key"`
	Label            string `json:"label"`
	Description      string `json:"description,omitempty"`
	DocumentationURL string `json:"documentationUrl,omitempty"`
	SupportAPIKey    bool   `json:"supportApiKey"`
	RequireAPIKey    bool   `json:"requireApiKey"`
	HasAPIKey        bool   `json:"hasApiKey"`
	IsConfigured     bool   `json:"isConfigured"`
	IsDefault        bool   `json:"isDefault"`
}

func viewOf(src source.ConfiguredSource) sourceView {
	return sourceView{
		Key:              src.UniqueKey,
		Label:            src.Label,
		Description:      src.Description,
		DocumentationURL: src.DocumentationURL,
		SupportAPIKey:    src.SupportAPIKey,
		RequireAPIKey:    src.RequireAPIKey,
		HasAPIKey:        src.HasAPIKey(),
		IsConfigured:     src.IsConfigured(),
		IsDefault:        src.IsDefault,
	}
}

func viewsOf(list []source.ConfiguredSource) []sourceView {
	out := make([]sourceView, len(list))
	for i, src := range list {
		out[i] = viewOf(src)
	}
	return out
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewsOf(s.deps.Sources.ConfiguredSources()))
}

func (s *Server) handleUpdateSources(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	if err := s.deps.Sources.UpdateFromNetwork(r.Context(), req.URL); err != nil {
		log.Printf("API: Failed to update sources from %s: %v", req.URL, err)
		status := http.StatusBadGateway
		if errors.Is(err, source.ErrInvalid) || errors.Is(err, source.ErrCorrupt) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(s.deps.Sources.ConfiguredSources()))
}

func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.deps.Sources.SetAPIKey(key, req.APIKey); err != nil {
		writeSourceError(w, err)
		return
	}
	src, _ := s.deps.Sources.Source(key)
	writeJSON(w, http.StatusOK, viewOf(src))
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.deps.Sources.SetDefault(key); err != nil {
		writeSourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(s.deps.Sources.ConfiguredSources()))
}

func writeSourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, source.ErrUnknownSource) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// browseResponse pairs a session id with its state.
type browseResponse struct {
	ID    string       `json:"id"`
	State browse.State `json:"state"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *browse.Controller, bool) {
	id := chi.URLParam(r, "id")
	s.sessionsMu.Lock()
	c, ok := s.sessions[id]
	s.sessionsMu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Browse session not found")
	}
	return id, c, ok
}

// handleOpenBrowse starts a browse session on a source, the preferred one when none is named.
func (s *Server) handleOpenBrowse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Query  string `json:"query"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	var (
		src source.ConfiguredSource
		ok  bool
	)
	if req.Source == "" {
		src, ok = s.deps.Sources.PreferredSource()
	} else {
		src, ok = s.deps.Sources.Source(req.Source)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Source not found")
		return
	}
	if !src.IsConfigured() {
		writeError(w, http.StatusConflict, "Source requires an API key")
		return
	}

	c := browse.NewController(s.deps.Fetcher, src, browse.WithLastUsedHook(func(key string) {
		if err := s.deps.Sources.SetLastUsed(key); err != nil {
			log.Printf("API: Failed to record last used source %s: %v", key, err)
		}
	}))
	id := uuid.NewString()
	s.sessionsMu.Lock()
	s.sessions[id] = c
	s.sessionsMu.Unlock()

	query := strings.TrimSpace(req.Query)
	go func() {
		if query != "" {
			_ = c.Search(s.ctx, query)
			return
		}
		_ = c.LoadInitial(s.ctx)
	}()
	writeJSON(w, http.StatusAccepted, browseResponse{ID: id, State: c.State()})
}

func (s *Server) handleBrowseState(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, browseResponse{ID: id, State: c.State()})
}

func (s *Server) handleCloseBrowse(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.session(w, r)
	if !ok {
		return
	}
	c.Close()
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBrowseSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.browseAction(w, r, func(c *browse.Controller) { _ = c.Search(s.ctx, req.Query) })
}

func (s *Server) handleBrowseNext(w http.ResponseWriter, r *http.Request) {
	s.browseAction(w, r, func(c *browse.Controller) { _ = c.LoadNextPage(s.ctx) })
}

func (s *Server) handleBrowseRetry(w http.ResponseWriter, r *http.Request) {
	s.browseAction(w, r, func(c *browse.Controller) { _ = c.Retry(s.ctx) })
}

func (s *Server) handleBrowseSorting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sorting string `json:"sorting"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.browseAction(w, r, func(c *browse.Controller) { _ = c.SetSorting(s.ctx, req.Sorting) })
}

// browseAction runs fn in the background; clients follow progress through the state.
func (s *Server) browseAction(w http.ResponseWriter, r *http.Request, fn func(*browse.Controller)) {
	id, c, ok := s.session(w, r)
	if !ok {
		return
	}
	go fn(c)
	writeJSON(w, http.StatusAccepted, browseResponse{ID: id, State: c.State()})
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Favorites.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAddFavorite saves an item. The image is cached when it can be downloaded.
func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var item fetch.ImageItem
	if !decodeBody(w, r, &item) {
		return
	}
	if item.ID == "" || item.URL == "" {
		writeError(w, http.StatusBadRequest, "id and url are required")
		return
	}

	data, err := s.deps.Fetcher.Download(r.Context(), item.URL)
	if err != nil {
		log.Printf("API: Saving favorite %s without a cached copy: %v", item.ID, err)
		data = nil
	}

	fav, err := s.deps.Favorites.Add(r.Context(), favorites.FromItem(item), data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, fav)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Favorites.Remove(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, favorites.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleFavoriteImage serves the cached bytes of a favorite.
func (s *Server) handleFavoriteImage(w http.ResponseWriter, r *http.Request) {
	fav, err := s.deps.Favorites.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, favorites.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fav.LocalPath == "" {
		writeError(w, http.StatusNotFound, "No cached image")
		return
	}
	http.ServeFile(w, r, fav.LocalPath)
}

func (s *Server) handleGetRotationSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

func (s *Server) handleUpdateRotationSettings(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Settings.Get()
	if !decodeBody(w, r, &st) {
		return
	}
	if err := s.deps.Settings.Update(st); err != nil {
		if errors.Is(err, rotation.ErrInvalidSetting) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

// handleRunRotation runs one cycle now and reports its outcome.
func (s *Server) handleRunRotation(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.deps.Rotator.RunCycle(r.Context())
	resp := map[string]string{"outcome": outcome.String()}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLastRotation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Rotator.LastResult())
}
