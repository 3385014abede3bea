package repository

import (
	"context"
	"errors"
	"strings"

	"sessions-portal/model"

	"gorm.io/gorm"
)

// LabelRepository covers tags and playlists, the two named labels attached to events.
type LabelRepository interface {
	ListTags(ctx context.Context, linkedOnly bool) ([]model.Tag, error)
	CreateTag(ctx context.Context, tag *model.Tag) error
	FindTag(ctx context.Context, name string) (*model.Tag, error)
	GetOrCreateTag(ctx context.Context, name string) (*model.Tag, error)
	GetTagsByIDs(ctx context.Context, ids []uint) ([]model.Tag, error)

	ListPlaylists(ctx context.Context, linkedOnly bool) ([]model.Playlist, error)
	CreatePlaylist(ctx context.Context, playlist *model.Playlist) error
	FindPlaylist(ctx context.Context, name string) (*model.Playlist, error)
	GetOrCreatePlaylist(ctx context.Context, name string) (*model.Playlist, error)
	GetPlaylistsByIDs(ctx context.Context, ids []uint) ([]model.Playlist, error)
}

type gormLabelRepository struct {
	db *gorm.DB
}

func NewGormLabelRepository(db *gorm.DB) LabelRepository {
	return &gormLabelRepository{db: db}
}

// ========== 标签 ==========

func (r *gormLabelRepository) ListTags(ctx context.Context, linkedOnly bool) ([]model.Tag, error) {
	q := r.db.WithContext(ctx).Model(&model.Tag{})
	if linkedOnly {
		q = q.Where("EXISTS (SELECT 1 FROM event_tags et WHERE et.tag_id = tags.id)")
	}
	tags := make([]model.Tag, 0)
	err := q.Order("name ASC").Find(&tags).Error
	return tags, err
}

func (r *gormLabelRepository) CreateTag(ctx context.Context, tag *model.Tag) error {
	tag.Name = strings.TrimSpace(tag.Name)
	return r.db.WithContext(ctx).Create(tag).Error
}

// FindTag returns nil, nil when no tag has that name.
func (r *gormLabelRepository) FindTag(ctx context.Context, name string) (*model.Tag, error) {
	var tag model.Tag
	err := r.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *gormLabelRepository) GetOrCreateTag(ctx context.Context, name string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	var tag model.Tag
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	tag = model.Tag{Name: name}
	if err := r.db.WithContext(ctx).Create(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *gormLabelRepository) GetTagsByIDs(ctx context.Context, ids []uint) ([]model.Tag, error) {
	tags := make([]model.Tag, 0, len(ids))
	if len(ids) == 0 {
		return tags, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tags).Error
	return tags, err
}

// ========== 播放列表 ==========

func (r *gormLabelRepository) ListPlaylists(ctx context.Context, linkedOnly bool) ([]model.Playlist, error) {
	q := r.db.WithContext(ctx).Model(&model.Playlist{})
	if linkedOnly {
		q = q.Where("EXISTS (SELECT 1 FROM event_playlists ep WHERE ep.playlist_id = playlists.id)")
	}
	playlists := make([]model.Playlist, 0)
	err := q.Order("name ASC").Find(&playlists).Error
	return playlists, err
}

func (r *gormLabelRepository) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	playlist.Name = strings.TrimSpace(playlist.Name)
	return r.db.WithContext(ctx).Create(playlist).Error
}

func (r *gormLabelRepository) FindPlaylist(ctx context.Context, name string) (*model.Playlist, error) {
	var playlist model.Playlist
	err := r.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&playlist).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

func (r *gormLabelRepository) GetOrCreatePlaylist(ctx context.Context, name string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	var playlist model.Playlist
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&playlist).Error
	if err == nil {
		return &playlist, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	playlist = model.Playlist{Name: name}
	if err := r.db.WithContext(ctx).Create(&playlist).Error; err != nil {
		return nil, err
	}
	return &playlist, nil
}

func (r *gormLabelRepository) GetPlaylistsByIDs(ctx context.Context, ids []uint) ([]model.Playlist, error) {
	playlists := make([]model.Playlist, 0, len(ids))
	if len(ids) == 0 {
		return playlists, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&playlists).Error
	return playlists, err
}
