package repository

import (
	"context"
	"errors"
	"time"

	"sessions-portal/model"

	"gorm.io/gorm"
)

// ReadyUpdate is everything the ingestion run learned about a persisted asset.
type ReadyUpdate struct {
	VideoFile string
	FileSize  int64
	Duration  int
	Thumbnail string // empty keeps the current thumbnail
}

// AssetQuery selects assets for the status report.
type AssetQuery struct {
	IDs      []uint
	Since    *time.Time
	Statuses []model.VideoStatus
	Limit    int
}

// VideoAssetRepository 视频资源数据访问接口
type VideoAssetRepository interface {
	Create(ctx context.Context, asset *model.VideoAsset) error
	GetByID(ctx context.Context, id uint) (*model.VideoAsset, error)
	GetByEventID(ctx context.Context, eventID uint) (*model.VideoAsset, error)

	// 状态机
	Claim(ctx context.Context, id uint, token string) (bool, error)
	MarkReady(ctx context.Context, id uint, token string, upd ReadyUpdate) (bool, error)
	MarkFailed(ctx context.Context, id uint, token string, reason string) (bool, error)
	Resubmit(ctx context.Context, id uint) (bool, error)
	ForceResubmit(ctx context.Context, id uint) (bool, error)

	AttachToEvent(ctx context.Context, assetID, eventID uint) error
	List(ctx context.Context, q AssetQuery) ([]model.VideoAsset, error)
	StatusCounts(ctx context.Context) (map[model.VideoStatus]int64, error)
}

type gormVideoAssetRepository struct {
	db *gorm.DB
}

// NewGormVideoAssetRepository 创建 GORM 视频资源仓库
func NewGormVideoAssetRepository(db *gorm.DB) VideoAssetRepository {
	return &gormVideoAssetRepository{db: db}
}

func (r *gormVideoAssetRepository) Create(ctx context.Context, asset *model.VideoAsset) error {
	if asset.Status == "" {
		asset.Status = model.VideoStatusProcessing
	}
	return r.db.WithContext(ctx).Create(asset).Error
}

func (r *gormVideoAssetRepository) GetByID(ctx context.Context, id uint) (*model.VideoAsset, error) {
	var asset model.VideoAsset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

func (r *gormVideoAssetRepository) GetByEventID(ctx context.Context, eventID uint) (*model.VideoAsset, error) {
	var asset model.VideoAsset
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id DESC").First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// statusesWhere lists the statuses accepted by keep, used to build the WHERE
// clauses of the conditional updates below.
func statusesWhere(keep func(model.VideoStatus) bool) []model.VideoStatus {
	out := make([]model.VideoStatus, 0, len(model.AllVideoStatuses))
	for _, s := range model.AllVideoStatuses {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// Claim marks the asset as owned by one ingestion run. It only succeeds while
// the asset is PROCESSING and unclaimed; false means another run owns it or the
// asset already left PROCESSING.
func (r *gormVideoAssetRepository) Claim(ctx context.Context, id uint, token string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.VideoAsset{}).
		Where("id = ? AND status = ? AND claim_token IS NULL", id, model.VideoStatusProcessing).
		Updates(map[string]interface{}{
			"claim_token": token,
			"claimed_at":  time.Now(),
			"attempts":    gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *gormVideoAssetRepository) finish(ctx context.Context, id uint, token string, target model.VideoStatus, values map[string]interface{}) (bool, error) {
	from := statusesWhere(func(s model.VideoStatus) bool { return s.CanTransitionTo(target) })
	values["status"] = target
	values["claim_token"] = nil
	values["claimed_at"] = nil
	res := r.db.WithContext(ctx).Model(&model.VideoAsset{}).
		Where("id = ? AND status IN ? AND claim_token = ?", id, from, token).
		Updates(values)
	return res.RowsAffected == 1, res.Error
}

// MarkReady moves a claimed asset to READY with its file metadata in one update.
func (r *gormVideoAssetRepository) MarkReady(ctx context.Context, id uint, token string, upd ReadyUpdate) (bool, error) {
	values := map[string]interface{}{
		"video_file": upd.VideoFile,
		"file_size":  upd.FileSize,
		"duration":   upd.Duration,
		"last_error": "",
	}
	if upd.Thumbnail != "" {
		values["thumbnail"] = upd.Thumbnail
	}
	return r.finish(ctx, id, token, model.VideoStatusReady, values)
}

// MarkFailed moves a claimed asset to FAILED.
func (r *gormVideoAssetRepository) MarkFailed(ctx context.Context, id uint, token string, reason string) (bool, error) {
	return r.finish(ctx, id, token, model.VideoStatusFailed, map[string]interface{}{
		"last_error": reason,
	})
}

// Resubmit is the manual re-trigger: READY or FAILED back to PROCESSING.
func (r *gormVideoAssetRepository) Resubmit(ctx context.Context, id uint) (bool, error) {
	return resubmit(r.db.WithContext(ctx).Model(&model.VideoAsset{}).
		Where("id = ? AND status IN ?", id, statusesWhere(model.VideoStatus.CanResubmit)))
}

// ForceResubmit also takes back a PROCESSING asset whose run died holding the
// claim. A run that is in fact still alive loses its claim and cannot finish.
func (r *gormVideoAssetRepository) ForceResubmit(ctx context.Context, id uint) (bool, error) {
	return resubmit(r.db.WithContext(ctx).Model(&model.VideoAsset{}).Where("id = ?", id))
}

func resubmit(q *gorm.DB) (bool, error) {
	res := q.Updates(map[string]interface{}{
		"status":      model.VideoStatusProcessing,
		"claim_token": nil,
		"claimed_at":  nil,
		"last_error":  "",
	})
	return res.RowsAffected == 1, res.Error
}

// AttachToEvent links the asset to the event and unlinks whatever asset the
// event had before, keeping one asset per event.
func (r *gormVideoAssetRepository) AttachToEvent(ctx context.Context, assetID, eventID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.VideoAsset{}).
			Where("event_id = ? AND id <> ?", eventID, assetID).
			Update("event_id", nil).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.VideoAsset{}).Where("id = ?", assetID).Update("event_id", eventID).Error
	})
}

func (r *gormVideoAssetRepository) List(ctx context.Context, q AssetQuery) ([]model.VideoAsset, error) {
	db := r.db.WithContext(ctx).Model(&model.VideoAsset{})
	if len(q.IDs) > 0 {
		db = db.Where("id IN ?", q.IDs)
	}
	if q.Since != nil {
		db = db.Where("created_at >= ?", *q.Since)
	}
	if len(q.Statuses) > 0 {
		db = db.Where("status IN ?", q.Statuses)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	assets := make([]model.VideoAsset, 0)
	err := db.Order("created_at DESC, id DESC").Find(&assets).Error
	return assets, err
}

func (r *gormVideoAssetRepository) StatusCounts(ctx context.Context) (map[model.VideoStatus]int64, error) {
	var rows []struct {
		Status model.VideoStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.VideoAsset{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.VideoStatus]int64, len(model.AllVideoStatuses))
	for _, s := range model.AllVideoStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
