package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sessions-portal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRepository 事件数据访问接口
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id uint) (*model.Event, error)
	ExistsByTitleAndTime(ctx context.Context, title string, at time.Time) (bool, error)
	List(ctx context.Context, filter EventFilter) ([]model.Event, int64, error)
	Recommendations(ctx context.Context, eventID uint) ([]model.Event, error)
	AddPresenter(ctx context.Context, eventID, userID uint) error
}

type gormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository 创建 GORM 事件仓库
func NewGormEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Creator").
		Preload("Tags").
		Preload("Playlists").
		Preload("Presenters.User").
		Preload("VideoAsset")
}

// Create inserts the event and its associations. The slug is derived from the
// title; when it is already taken the event id is appended.
func (r *gormEventRepository) Create(ctx context.Context, event *model.Event) error {
	base := Slugify(event.Title)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&model.Event{}).Where("slug = ?", base).Count(&taken).Error; err != nil {
			return err
		}
		if taken == 0 {
			event.Slug = base
			return tx.Create(event).Error
		}

		// 先占位，拿到自增ID后再改成 base-id
		event.Slug = base + "-" + uuid.NewString()
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		event.Slug = fmt.Sprintf("%s-%d", base, event.ID)
		return tx.Model(&model.Event{}).Where("id = ?", event.ID).Update("slug", event.Slug).Error
	})
}

func (r *gormEventRepository) GetByID(ctx context.Context, id uint) (*model.Event, error) {
	var event model.Event
	err := withDetails(r.db.WithContext(ctx)).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *gormEventRepository) ExistsByTitleAndTime(ctx context.Context, title string, at time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("title = ? AND event_time = ?", title, at).
		Count(&count).Error
	return count > 0, err
}

// List returns one page of events plus the total number of matches.
func (r *gormEventRepository) List(ctx context.Context, filter EventFilter) ([]model.Event, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Event{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	events := make([]model.Event, 0, filter.PageSize)
	err := withDetails(r.db.WithContext(ctx)).
		Scopes(filter.scope).
		Order(OrderClause(filter.Ordering)).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

const latestRecommendations = 5

// Recommendations returns published events sharing a playlist, presenter or tag
// with the given event, plus the latest published events, newest first.
// Returns nil, nil when the event does not exist.
func (r *gormEventRepository) Recommendations(ctx context.Context, eventID uint) ([]model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Preload("Tags").Preload("Playlists").Preload("Presenters").
		Where("id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	ids := make(map[uint]struct{})

	similar := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("events.status = ? AND events.id <> ?", model.EventStatusPublished, event.ID)
	var clauses []string
	var args []interface{}
	if len(event.Playlists) > 0 {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM event_playlists ep WHERE ep.event_id = events.id AND ep.playlist_id IN ?)")
		args = append(args, playlistIDs(event.Playlists))
	}
	if len(event.Presenters) > 0 {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM event_presenters pr WHERE pr.event_id = events.id AND pr.user_id IN ?)")
		args = append(args, presenterIDs(event.Presenters))
	}
	if len(event.Tags) > 0 {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM event_tags et WHERE et.event_id = events.id AND et.tag_id IN ?)")
		args = append(args, tagIDs(event.Tags))
	}
	if len(clauses) > 0 {
		var similarIDs []uint
		cond := "(" + strings.Join(clauses, " OR ") + ")"
		if err := similar.Where(cond, args...).Pluck("events.id", &similarIDs).Error; err != nil {
			return nil, fmt.Errorf("similar events: %w", err)
		}
		for _, id := range similarIDs {
			ids[id] = struct{}{}
		}
	}

	var latestIDs []uint
	err = r.db.WithContext(ctx).Model(&model.Event{}).
		Where("status = ? AND id <> ?", model.EventStatusPublished, event.ID).
		Order("event_time DESC").
		Limit(latestRecommendations).
		Pluck("id", &latestIDs).Error
	if err != nil {
		return nil, fmt.Errorf("latest events: %w", err)
	}
	for _, id := range latestIDs {
		ids[id] = struct{}{}
	}

	result := make([]model.Event, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	all := make([]uint, 0, len(ids))
	for id := range ids {
		all = append(all, id)
	}
	if err := withDetails(r.db.WithContext(ctx)).Where("id IN ?", all).Find(&result).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].EventTime.Equal(result[j].EventTime) {
			return result[i].ID > result[j].ID
		}
		return result[i].EventTime.After(result[j].EventTime)
	})
	return result, nil
}

// AddPresenter links a user as presenter; linking twice is a no-op.
func (r *gormEventRepository) AddPresenter(ctx context.Context, eventID, userID uint) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.EventPresenter{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	if err != nil || count > 0 {
		return err
	}
	return r.db.WithContext(ctx).Create(&model.EventPresenter{EventID: eventID, UserID: userID}).Error
}

func tagIDs(tags []model.Tag) []uint {
	ids := make([]uint, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids
}

func playlistIDs(playlists []model.Playlist) []uint {
	ids := make([]uint, len(playlists))
	for i, p := range playlists {
		ids[i] = p.ID
	}
	return ids
}

func presenterIDs(presenters []model.EventPresenter) []uint {
	ids := make([]uint, len(presenters))
	for i, p := range presenters {
		ids[i] = p.UserID
	}
	return ids
}
