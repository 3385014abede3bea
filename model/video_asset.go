package model

import "time"

// VideoStatus 视频资源状态
type VideoStatus string

const (
	// VideoStatusProcessing 处理中，初始状态
	VideoStatusProcessing VideoStatus = "PROCESSING"
	// VideoStatusReady 已就绪
	VideoStatusReady VideoStatus = "READY"
	// VideoStatusFailed 失败
	VideoStatusFailed VideoStatus = "FAILED"
)

// AllVideoStatuses lists statuses in display order.
var AllVideoStatuses = []VideoStatus{VideoStatusProcessing, VideoStatusReady, VideoStatusFailed}

// IsValid 检查状态是否有效
func (s VideoStatus) IsValid() bool {
	switch s {
	case VideoStatusProcessing, VideoStatusReady, VideoStatusFailed:
		return true
	}
	return false
}

func (s VideoStatus) String() string {
	return string(s)
}

// IsFinal 检查是否为最终状态
func (s VideoStatus) IsFinal() bool {
	return s == VideoStatusReady || s == VideoStatusFailed
}

// CanTransitionTo reports whether an ingestion run may move s to target.
// Transitions out of a final state only happen through CanResubmit.
func (s VideoStatus) CanTransitionTo(target VideoStatus) bool {
	switch s {
	case VideoStatusProcessing:
		return target == VideoStatusReady || target == VideoStatusFailed
	default:
		return false
	}
}

// CanResubmit reports whether a manual re-trigger may put the asset back to PROCESSING.
func (s VideoStatus) CanResubmit() bool {
	return s.IsFinal()
}

// VideoAsset is one video's metadata and stored binary.
type VideoAsset struct {
	ID         uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID    *uint       `json:"event_id" gorm:"index"`
	Title      string      `json:"title" gorm:"size:255;not null"`
	VideoFile  *string     `json:"-" gorm:"size:512"` // storage key
	Thumbnail  *string     `json:"-" gorm:"size:512"` // storage key
	Duration   int         `json:"duration" gorm:"default:0"`
	FileSize   int64       `json:"file_size" gorm:"default:0"`
	Status     VideoStatus `json:"status" gorm:"size:20;index;not null"`
	SourceLink string      `json:"source_link,omitempty" gorm:"size:1024"`
	ClaimToken *string     `json:"-" gorm:"size:64"`
	ClaimedAt  *time.Time  `json:"-"`
	Attempts   int         `json:"attempts" gorm:"default:0"`
	LastError  string      `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time   `json:"created"`
	UpdatedAt  time.Time   `json:"modified"`
}

func (VideoAsset) TableName() string {
	return "video_assets"
}

// HasThumbnail reports whether a thumbnail key is stored.
func (a *VideoAsset) HasThumbnail() bool {
	return a.Thumbnail != nil && *a.Thumbnail != ""
}

// AllModels returns every model for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Tag{},
		&Playlist{},
		&Event{},
		&EventPresenter{},
		&VideoAsset{},
	}
}
