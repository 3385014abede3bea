package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"sessions-portal/cache"
	"sessions-portal/logger"
	"sessions-portal/model"
	"sessions-portal/repository"
)

// EventTypesHandler lists event types as {label, key}.
func (h *APIHandler) EventTypesHandler(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0, len(model.EventTypeChoices))
	for _, c := range model.EventTypeChoices {
		out = append(out, map[string]string{"label": string(c.Value), "key": c.Label})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseFilterTime accepts RFC3339 or YYYY-MM-DD.
func parseFilterTime(s string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func eventFilterFrom(r *http.Request) (repository.EventFilter, string) {
	q := r.URL.Query()
	f := repository.EventFilter{
		Search:    q.Get("search"),
		Tag:       q.Get("tag"),
		Playlist:  q.Get("playlist"),
		EventType: model.EventType(strings.ToUpper(q.Get("event_type"))),
		Status:    model.EventStatus(strings.ToUpper(q.Get("status"))),
		Ordering:  q.Get("ordering"),
	}
	if v := q.Get("event_time_after"); v != "" {
		t, err := parseFilterTime(v)
		if err != nil {
			return f, "event_time_after: enter a valid date/time."
		}
		f.After = t
	}
	if v := q.Get("event_time_before"); v != "" {
		t, err := parseFilterTime(v)
		if err != nil {
			return f, "event_time_before: enter a valid date/time."
		}
		// a bare date covers the whole day
		if len(v) == len("2006-01-02") {
			end := t.Add(24*time.Hour - time.Nanosecond)
			t = &end
		}
		f.Before = t
	}
	if v := q.Get("is_featured"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, "is_featured: expected true or false."
		}
		f.IsFeatured = &b
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, "Invalid page."
		}
		f.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, "Invalid page_size."
		}
		f.PageSize = n
	}
	f.Normalize()
	return f, ""
}

// ListEventsHandler serves the filtered, paginated event list.
func (h *APIHandler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, bad := eventFilterFrom(r)
	if bad != "" {
		writeError(w, http.StatusBadRequest, bad)
		return
	}
	events, total, err := h.eventRepo.List(r.Context(), filter)
	if err != nil {
		logger.Error("list events failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if (filter.Page-1)*filter.PageSize >= int(total) && filter.Page > 1 {
		writeError(w, http.StatusNotFound, "Invalid page.")
		return
	}
	writeJSON(w, http.StatusOK, newPage(r, total, filter.Page, filter.PageSize, newEventViews(events, h.store)))
}

// GetEventHandler returns one event with its details.
func (h *APIHandler) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	event, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("get event failed", logger.Uint("eventId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, newEventView(event, h.store))
}

// RecommendationsHandler returns events related to the given one.
func (h *APIHandler) RecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "event_id")
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	events, err := h.eventRepo.Recommendations(r.Context(), id)
	if err != nil {
		logger.Error("recommendations failed", logger.Uint("eventId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if events == nil {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, newEventViews(events, h.store))
}

type createEventRequest struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	EventTime    time.Time         `json:"event_time"`
	EventType    model.EventType   `json:"event_type"`
	Status       model.EventStatus `json:"status"`
	WorkstreamID *string           `json:"workstream_id"`
	IsFeatured   bool              `json:"is_featured"`
	TagIDs       []uint            `json:"tag_ids"`
	PlaylistIDs  []uint            `json:"playlist_ids"`
	PresenterIDs []uint            `json:"presenter_ids"`
}

// CreateEventHandler creates an event (staff only).
func (h *APIHandler) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title: This field is required.")
		return
	}
	if req.EventTime.IsZero() {
		writeError(w, http.StatusBadRequest, "event_time: This field is required.")
		return
	}
	if req.EventType == "" {
		req.EventType = model.EventTypeSession
	}
	if !req.EventType.Valid() {
		writeError(w, http.StatusBadRequest, "event_type: not a valid choice.")
		return
	}
	if req.Status == "" {
		req.Status = model.EventStatusDraft
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status: not a valid choice.")
		return
	}

	ctx := r.Context()
	tags, err := h.labelRepo.GetTagsByIDs(ctx, req.TagIDs)
	if err != nil || len(tags) != len(dedupeIDs(req.TagIDs)) {
		writeError(w, http.StatusBadRequest, "tag_ids: unknown tag.")
		return
	}
	playlists, err := h.labelRepo.GetPlaylistsByIDs(ctx, req.PlaylistIDs)
	if err != nil || len(playlists) != len(dedupeIDs(req.PlaylistIDs)) {
		writeError(w, http.StatusBadRequest, "playlist_ids: unknown playlist.")
		return
	}
	presenterIDs := dedupeIDs(req.PresenterIDs)
	for _, pid := range presenterIDs {
		u, err := h.userRepo.GetByID(ctx, pid)
		if err != nil || u == nil {
			writeError(w, http.StatusBadRequest, "presenter_ids: unknown user.")
			return
		}
	}

	event := &model.Event{
		CreatorID:    user.ID,
		Title:        req.Title,
		Description:  req.Description,
		EventTime:    req.EventTime,
		EventType:    req.EventType,
		Status:       req.Status,
		WorkstreamID: req.WorkstreamID,
		IsFeatured:   req.IsFeatured,
		Tags:         tags,
		Playlists:    playlists,
	}
	if err := h.eventRepo.Create(ctx, event); err != nil {
		logger.Error("create event failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	for _, pid := range presenterIDs {
		if err := h.eventRepo.AddPresenter(ctx, event.ID, pid); err != nil {
			logger.Error("add presenter failed", logger.Uint("eventId", event.ID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	// 标签缓存里的 linked_to_events 结果已过期
	if err := h.labelCache.Invalidate(ctx, cache.KindTags, cache.KindPlaylists); err != nil {
		logger.Warn("label cache invalidate failed", logger.ErrorField(err))
	}

	created, err := h.eventRepo.GetByID(ctx, event.ID)
	if err != nil || created == nil {
		created = event
	}
	logger.Info("event created", logger.Uint("eventId", event.ID), logger.String("slug", event.Slug))
	writeJSON(w, http.StatusCreated, newEventView(created, h.store))
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
