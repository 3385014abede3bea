package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"sessions-portal/cache"
	"sessions-portal/logger"
	"sessions-portal/model"
)

func linkedOnly(r *http.Request) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get("linked_to_events"))
	return b
}

// cachedList serves kind from the label cache, loading and storing it on a miss.
func cachedList[T any](ctx context.Context, c *cache.LabelCache, kind string, linked bool, load func() ([]T, error)) ([]T, error) {
	var items []T
	hit, err := c.Get(ctx, kind, linked, &items)
	if err != nil {
		logger.Warn("label cache read failed", logger.String("kind", kind), logger.ErrorField(err))
	}
	if hit {
		return items, nil
	}
	items, err = load()
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, kind, linked, items); err != nil {
		logger.Warn("label cache write failed", logger.String("kind", kind), logger.ErrorField(err))
	}
	return items, nil
}

// ListTagsHandler GET /events/tags
func (h *APIHandler) ListTagsHandler(w http.ResponseWriter, r *http.Request) {
	linked := linkedOnly(r)
	tags, err := cachedList(r.Context(), h.labelCache, cache.KindTags, linked, func() ([]model.Tag, error) {
		return h.labelRepo.ListTags(r.Context(), linked)
	})
	if err != nil {
		logger.Error("list tags failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// ListPlaylistsHandler GET /events/playlists
func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	linked := linkedOnly(r)
	playlists, err := cachedList(r.Context(), h.labelCache, cache.KindPlaylists, linked, func() ([]model.Playlist, error) {
		return h.labelRepo.ListPlaylists(r.Context(), linked)
	})
	if err != nil {
		logger.Error("list playlists failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

type labelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *APIHandler) decodeLabel(w http.ResponseWriter, r *http.Request) (*labelRequest, bool) {
	var req labelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name: This field is required.")
		return nil, false
	}
	return &req, true
}

// CreateTagHandler POST /events/tags
func (h *APIHandler) CreateTagHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLabel(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	existing, err := h.labelRepo.FindTag(ctx, req.Name)
	if err != nil {
		logger.Error("find tag failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "tag with this name already exists.")
		return
	}
	tag := &model.Tag{Name: req.Name, Description: req.Description}
	if err := h.labelRepo.CreateTag(ctx, tag); err != nil {
		logger.Error("create tag failed", logger.ErrorField(err))
		writeError(w, http.StatusConflict, "tag with this name already exists.")
		return
	}
	if err := h.labelCache.Invalidate(ctx, cache.KindTags); err != nil {
		logger.Warn("label cache invalidate failed", logger.ErrorField(err))
	}
	writeJSON(w, http.StatusCreated, tag)
}

// CreatePlaylistHandler POST /events/playlists
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLabel(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	existing, err := h.labelRepo.FindPlaylist(ctx, req.Name)
	if err != nil {
		logger.Error("find playlist failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "playlist with this name already exists.")
		return
	}
	playlist := &model.Playlist{Name: req.Name, Description: req.Description}
	if err := h.labelRepo.CreatePlaylist(ctx, playlist); err != nil {
		logger.Error("create playlist failed", logger.ErrorField(err))
		writeError(w, http.StatusConflict, "playlist with this name already exists.")
		return
	}
	if err := h.labelCache.Invalidate(ctx, cache.KindPlaylists); err != nil {
		logger.Warn("label cache invalidate failed", logger.ErrorField(err))
	}
	writeJSON(w, http.StatusCreated, playlist)
}
