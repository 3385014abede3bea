package model

import "time"

// EventType 事件类型
type EventType string

const (
	EventTypeSession EventType = "SESSION"
)

// EventTypeChoice is a (value, label) pair exposed by the event types endpoint.
type EventTypeChoice struct {
	Value EventType
	Label string
}

// EventTypeChoices lists every event type in display order.
var EventTypeChoices = []EventTypeChoice{
	{Value: EventTypeSession, Label: "Session"},
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, c := range EventTypeChoices {
		if c.Value == t {
			return true
		}
	}
	return false
}

// EventStatus 事件状态
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusArchived  EventStatus = "ARCHIVED"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusPublished, EventStatusArchived:
		return true
	}
	return false
}

// Tag labels events.
type Tag struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"size:100;uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"modified"`
}

func (Tag) TableName() string {
	return "tags"
}

// Playlist groups events into a series.
type Playlist struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"size:100;uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"modified"`
}

func (Playlist) TableName() string {
	return "playlists"
}

// Event is a talk or session.
type Event struct {
	ID           uint             `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatorID    uint             `json:"-" gorm:"index;not null"`
	Creator      *User            `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	Title        string           `json:"title" gorm:"size:255;not null"`
	Slug         string           `json:"slug" gorm:"size:300;uniqueIndex"`
	Description  string           `json:"description" gorm:"type:text"`
	EventTime    time.Time        `json:"event_time" gorm:"index"`
	EventType    EventType        `json:"event_type" gorm:"size:20;default:'SESSION'"`
	Status       EventStatus      `json:"status" gorm:"size:20;default:'DRAFT';index"`
	WorkstreamID *string          `json:"workstream_id" gorm:"size:100"`
	IsFeatured   bool             `json:"is_featured" gorm:"default:false"`
	Tags         []Tag            `json:"tags" gorm:"many2many:event_tags;"`
	Playlists    []Playlist       `json:"playlists" gorm:"many2many:event_playlists;"`
	Presenters   []EventPresenter `json:"presenters" gorm:"foreignKey:EventID"`
	VideoAsset   *VideoAsset      `json:"video_asset,omitempty" gorm:"foreignKey:EventID"`
	CreatedAt    time.Time        `json:"created"`
	UpdatedAt    time.Time        `json:"modified"`
}

func (Event) TableName() string {
	return "events"
}

// EventPresenter is the explicit join between an event and a presenting user.
type EventPresenter struct {
	ID      uint  `json:"-" gorm:"primaryKey;autoIncrement"`
	EventID uint  `json:"-" gorm:"uniqueIndex:idx_event_presenter;not null"`
	UserID  uint  `json:"-" gorm:"uniqueIndex:idx_event_presenter;not null"`
	User    *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (EventPresenter) TableName() string {
	return "event_presenters"
}
