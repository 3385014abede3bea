package server

import (
	"time"

	"sessions-portal/model"
	"sessions-portal/storage"
)

type userView struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

func newUserView(u *model.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{ID: u.ID, Email: u.Email, Username: u.Username, FullName: u.FullName()}
}

type assetView struct {
	ID         uint              `json:"id"`
	EventID    *uint             `json:"event_id"`
	Title      string            `json:"title"`
	Status     model.VideoStatus `json:"status"`
	VideoFile  *string           `json:"video_file"`
	Thumbnail  *string           `json:"thumbnail"`
	Duration   int               `json:"duration"`
	FileSize   int64             `json:"file_size"`
	SourceLink string            `json:"google_drive_link,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	Created    time.Time         `json:"created"`
	Modified   time.Time         `json:"modified"`
}

func newAssetView(a *model.VideoAsset, store storage.Store) *assetView {
	if a == nil {
		return nil
	}
	v := &assetView{
		ID:         a.ID,
		EventID:    a.EventID,
		Title:      a.Title,
		Status:     a.Status,
		Duration:   a.Duration,
		FileSize:   a.FileSize,
		SourceLink: a.SourceLink,
		LastError:  a.LastError,
		Created:    a.CreatedAt,
		Modified:   a.UpdatedAt,
	}
	if a.VideoFile != nil && *a.VideoFile != "" {
		u := store.URL(*a.VideoFile)
		v.VideoFile = &u
	}
	if a.HasThumbnail() {
		u := store.URL(*a.Thumbnail)
		v.Thumbnail = &u
	}
	return v
}

type eventView struct {
	ID           uint              `json:"id"`
	Title        string            `json:"title"`
	Slug         string            `json:"slug"`
	Description  string            `json:"description"`
	EventTime    time.Time         `json:"event_time"`
	EventType    model.EventType   `json:"event_type"`
	Status       model.EventStatus `json:"status"`
	WorkstreamID *string           `json:"workstream_id"`
	IsFeatured   bool              `json:"is_featured"`
	Creator      *userView         `json:"creator"`
	Presenters   []*userView       `json:"presenters"`
	Tags         []model.Tag       `json:"tags"`
	Playlists    []model.Playlist  `json:"playlists"`
	VideoAsset   *assetView        `json:"video_asset"`
	Created      time.Time         `json:"created"`
	Modified     time.Time         `json:"modified"`
}

func newEventView(e *model.Event, store storage.Store) *eventView {
	v := &eventView{
		ID:           e.ID,
		Title:        e.Title,
		Slug:         e.Slug,
		Description:  e.Description,
		EventTime:    e.EventTime,
		EventType:    e.EventType,
		Status:       e.Status,
		WorkstreamID: e.WorkstreamID,
		IsFeatured:   e.IsFeatured,
		Creator:      newUserView(e.Creator),
		Presenters:   make([]*userView, 0, len(e.Presenters)),
		Tags:         e.Tags,
		Playlists:    e.Playlists,
		VideoAsset:   newAssetView(e.VideoAsset, store),
		Created:      e.CreatedAt,
		Modified:     e.UpdatedAt,
	}
	for _, p := range e.Presenters {
		if p.User != nil {
			v.Presenters = append(v.Presenters, newUserView(p.User))
		}
	}
	if v.Tags == nil {
		v.Tags = []model.Tag{}
	}
	if v.Playlists == nil {
		v.Playlists = []model.Playlist{}
	}
	return v
}

func newEventViews(events []model.Event, store storage.Store) []*eventView {
	out := make([]*eventView, 0, len(events))
	for i := range events {
		out = append(out, newEventView(&events[i], store))
	}
	return out
}
