package repository

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"sessions-portal/model"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// EventFilter carries the list query of the events endpoint.
type EventFilter struct {
	Search     string
	Tag        string // id or name
	Playlist   string // id or name
	After      *time.Time
	Before     *time.Time
	EventType  model.EventType
	Status     model.EventStatus
	IsFeatured *bool
	Ordering   string
	Page       int
	PageSize   int
}

// orderingColumns whitelists sortable fields.
var orderingColumns = map[string]string{
	"event_time":  "events.event_time",
	"event_type":  "events.event_type",
	"is_featured": "events.is_featured",
	"status":      "events.status",
}

// OrderClause translates an ordering parameter ("-event_time") into SQL.
// Unknown fields fall back to newest first.
func OrderClause(ordering string) string {
	field := strings.TrimSpace(ordering)
	desc := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")
	col, ok := orderingColumns[field]
	if !ok {
		return "events.event_time DESC, events.id DESC"
	}
	if desc {
		return col + " DESC, events.id DESC"
	}
	return col + " ASC, events.id ASC"
}

// Normalize clamps pagination values.
func (f *EventFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

// labelMatch lets the tag and playlist filters take either a numeric id or a name.
func labelMatch(idOrName string) (interface{}, string) {
	if id, err := strconv.ParseUint(idOrName, 10, 64); err == nil {
		return id, "id"
	}
	return idOrName, "name"
}

// scope applies every filter except ordering and paging.
func (f EventFilter) scope(db *gorm.DB) *gorm.DB {
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		db = db.Where(
			"(LOWER(events.title) LIKE ? OR LOWER(events.description) LIKE ?"+
				" OR EXISTS (SELECT 1 FROM event_playlists ep JOIN playlists p ON p.id = ep.playlist_id WHERE ep.event_id = events.id AND LOWER(p.name) LIKE ?)"+
				" OR EXISTS (SELECT 1 FROM event_tags et JOIN tags t ON t.id = et.tag_id WHERE et.event_id = events.id AND LOWER(t.name) LIKE ?)"+
				" OR EXISTS (SELECT 1 FROM event_presenters pr JOIN users u ON u.id = pr.user_id WHERE pr.event_id = events.id"+
				" AND (LOWER(u.first_name) LIKE ? OR LOWER(u.last_name) LIKE ? OR LOWER(u.username) LIKE ?)))",
			like, like, like, like, like, like, like,
		)
	}
	if f.Tag != "" {
		val, col := labelMatch(f.Tag)
		db = db.Where("EXISTS (SELECT 1 FROM event_tags et JOIN tags t ON t.id = et.tag_id WHERE et.event_id = events.id AND t."+col+" = ?)", val)
	}
	if f.Playlist != "" {
		val, col := labelMatch(f.Playlist)
		db = db.Where("EXISTS (SELECT 1 FROM event_playlists ep JOIN playlists p ON p.id = ep.playlist_id WHERE ep.event_id = events.id AND p."+col+" = ?)", val)
	}
	if f.After != nil {
		db = db.Where("events.event_time >= ?", *f.After)
	}
	if f.Before != nil {
		db = db.Where("events.event_time <= ?", *f.Before)
	}
	if f.EventType != "" {
		db = db.Where("events.event_type = ?", f.EventType)
	}
	if f.Status != "" {
		db = db.Where("events.status = ?", f.Status)
	}
	if f.IsFeatured != nil {
		db = db.Where("events.is_featured = ?", *f.IsFeatured)
	}
	return db
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify lowercases s and collapses every run of non-alphanumerics into "-".
func Slugify(s string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "event"
	}
	return slug
}
