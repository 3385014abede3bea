package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sessions-portal/core/failure"
	"sessions-portal/logger"
	"sessions-portal/model"
	"sessions-portal/storage"
)

const (
	msgNeitherSource = "You must provide either a video file or a Google Drive link."
	msgBothSources   = "Please provide only one: either a video file or a Google Drive link."
)

// GetEventAssetHandler GET /events/videoasset/{event_id}
func (h *APIHandler) GetEventAssetHandler(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "event_id")
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	asset, err := h.assetRepo.GetByEventID(r.Context(), eventID)
	if err != nil {
		logger.Error("get video asset failed", logger.Uint("eventId", eventID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if asset == nil {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, newAssetView(asset, h.store))
}

type assetForm struct {
	Title    string
	EventID  uint
	Link     string
	file     multipart.File
	filename string
}

func (f *assetForm) close() {
	if f.file != nil {
		f.file.Close()
	}
}

// readAssetForm accepts multipart (with an optional video_file part) or JSON.
func readAssetForm(r *http.Request) (*assetForm, string) {
	form := &assetForm{}
	ct := r.Header.Get("Content-Type")

	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB in memory, rest on disk
			return nil, "Failed to parse multipart form: " + err.Error()
		}
		form.Title = r.FormValue("title")
		form.Link = r.FormValue("google_drive_link")
		if v := r.FormValue("event_id"); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, "event_id: A valid integer is required."
			}
			form.EventID = uint(n)
		}
		file, header, err := r.FormFile("video_file")
		if err == nil {
			form.file = file
			form.filename = header.Filename
		} else if !errors.Is(err, http.ErrMissingFile) {
			return nil, "video_file: " + err.Error()
		}
	} else {
		var body struct {
			Title   string `json:"title"`
			EventID uint   `json:"event_id"`
			Link    string `json:"google_drive_link"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, "Invalid request body"
		}
		form.Title, form.EventID, form.Link = body.Title, body.EventID, body.Link
	}
	form.Title = strings.TrimSpace(form.Title)
	form.Link = strings.TrimSpace(form.Link)
	return form, ""
}

// CreateAssetHandler POST /events/videoasset
func (h *APIHandler) CreateAssetHandler(w http.ResponseWriter, r *http.Request) {
	form, bad := readAssetForm(r)
	if bad != "" {
		writeError(w, http.StatusBadRequest, bad)
		return
	}
	defer form.close()

	hasFile, hasLink := form.file != nil, form.Link != ""
	switch {
	case !hasFile && !hasLink:
		writeError(w, http.StatusBadRequest, msgNeitherSource)
		return
	case hasFile && hasLink:
		writeError(w, http.StatusBadRequest, msgBothSources)
		return
	}

	ctx := r.Context()
	if form.EventID != 0 {
		event, err := h.eventRepo.GetByID(ctx, form.EventID)
		if err != nil {
			logger.Error("load event failed", logger.Uint("eventId", form.EventID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if event == nil {
			writeError(w, http.StatusBadRequest, "event_id: Invalid pk - object does not exist.")
			return
		}
		if form.Title == "" {
			form.Title = event.Title
		}
	}
	if form.Title == "" {
		form.Title = form.filename
	}
	if form.Title == "" {
		writeError(w, http.StatusBadRequest, "title: This field is required.")
		return
	}

	asset := &model.VideoAsset{
		Title:      form.Title,
		Status:     model.VideoStatusProcessing,
		SourceLink: form.Link,
	}
	if err := h.assetRepo.Create(ctx, asset); err != nil {
		logger.Error("create video asset failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if form.EventID != 0 {
		if err := h.assetRepo.AttachToEvent(ctx, asset.ID, form.EventID); err != nil {
			logger.Error("attach video asset failed", logger.Uint("assetId", asset.ID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	if hasLink {
		if err := h.dispatcher.Submit(ctx, asset.ID, form.Link); err != nil {
			logger.Error("failed to start download task", logger.Uint("assetId", asset.ID), logger.ErrorField(err))
			h.failUndispatched(ctx, asset.ID, err)
			writeError(w, http.StatusServiceUnavailable, "Video processing is unavailable, try again later.")
			return
		}
		logger.Info("video asset queued", logger.Uint("assetId", asset.ID), logger.String("link", form.Link))
		h.respondAsset(w, r, asset.ID, http.StatusAccepted)
		return
	}

	if err := h.uploader.IngestUpload(ctx, asset.ID, form.filename, form.file); err != nil {
		if !failure.Is(err, failure.Validation) {
			logger.Error("video upload failed", logger.Uint("assetId", asset.ID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		logger.Warn("uploaded file rejected", logger.Uint("assetId", asset.ID), logger.ErrorField(err))
	}
	h.respondAsset(w, r, asset.ID, http.StatusCreated)
}

// failUndispatched marks an asset FAILED when it never reached the queue.
func (h *APIHandler) failUndispatched(ctx context.Context, assetID uint, cause error) {
	ctx = context.WithoutCancel(ctx)
	token := uuid.NewString()
	if ok, err := h.assetRepo.Claim(ctx, assetID, token); err != nil || !ok {
		return
	}
	if _, err := h.assetRepo.MarkFailed(ctx, assetID, token, "dispatch: "+cause.Error()); err != nil {
		logger.Error("mark failed", logger.Uint("assetId", assetID), logger.ErrorField(err))
	}
}

func (h *APIHandler) respondAsset(w http.ResponseWriter, r *http.Request, id uint, status int) {
	asset, err := h.assetRepo.GetByID(r.Context(), id)
	if err != nil || asset == nil {
		logger.Error("reload video asset failed", logger.Uint("assetId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, status, newAssetView(asset, h.store))
}

// ResubmitAssetHandler POST /events/videoasset/{id}/resubmit
// ?force=true also resets a PROCESSING asset left claimed by a dead worker.
func (h *APIHandler) ResubmitAssetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	ctx := r.Context()
	asset, err := h.assetRepo.GetByID(ctx, id)
	if err != nil {
		logger.Error("get video asset failed", logger.Uint("assetId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if asset == nil {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	if asset.SourceLink == "" {
		writeError(w, http.StatusConflict, "Only assets created from a Google Drive link can be resubmitted.")
		return
	}
	resubmit := h.assetRepo.Resubmit
	if r.URL.Query().Get("force") == "true" {
		resubmit = h.assetRepo.ForceResubmit
	}
	ok, err = resubmit(ctx, id)
	if err != nil {
		logger.Error("resubmit failed", logger.Uint("assetId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "Video asset is still processing.")
		return
	}
	if err := h.dispatcher.Submit(ctx, id, asset.SourceLink); err != nil {
		logger.Error("failed to start download task", logger.Uint("assetId", id), logger.ErrorField(err))
		h.failUndispatched(ctx, id, err)
		writeError(w, http.StatusServiceUnavailable, "Video processing is unavailable, try again later.")
		return
	}
	logger.Info("video asset resubmitted", logger.Uint("assetId", id))
	h.respondAsset(w, r, id, http.StatusAccepted)
}

// MediaHandler streams stored objects under /media/.
func (h *APIHandler) MediaHandler(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/media/")
	if key == "" || strings.Contains(key, "..") {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	object, info, err := h.store.Open(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("open media failed", logger.String("key", key), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", info.ContentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("error serving media", logger.String("key", key), logger.ErrorField(err))
	}
}
