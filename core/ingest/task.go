// Package ingest turns a Drive link or an uploaded file into a READY video
// asset: claim, resolve, fetch, persist, probe, finish.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"sessions-portal/core/drive"
	"sessions-portal/core/failure"
	"sessions-portal/core/media"
	"sessions-portal/core/notify"
	"sessions-portal/logger"
	"sessions-portal/model"
	"sessions-portal/repository"
	"sessions-portal/storage"
)

// Fetcher is satisfied by *drive.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, fileID string) (*drive.Download, error)
}

// Deps wires a Task. Prober and Publisher may be nil.
type Deps struct {
	Assets    repository.VideoAssetRepository
	Fetcher   Fetcher
	Store     storage.Store
	Prober    media.Prober
	Publisher notify.Publisher
	TempDir   string
}

// Task 视频导入任务
type Task struct {
	assets    repository.VideoAssetRepository
	fetcher   Fetcher
	store     storage.Store
	persister *Persister
	prober    media.Prober
	publisher notify.Publisher
	tempDir   string
}

func NewTask(d Deps) *Task {
	tempDir := d.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Task{
		assets:    d.Assets,
		fetcher:   d.Fetcher,
		store:     d.Store,
		persister: NewPersister(d.Store, tempDir),
		prober:    d.Prober,
		publisher: d.Publisher,
		tempDir:   tempDir,
	}
}

// Run reports whether the asset ended READY. Failures are logged and recorded on the asset.
func (t *Task) Run(ctx context.Context, assetID uint, link string) bool {
	if err := t.Execute(ctx, assetID, link); err != nil {
		logger.Warn("video ingestion failed",
			logger.Uint("assetId", assetID),
			logger.String("kind", failure.KindOf(err).String()),
			logger.ErrorField(err))
		return false
	}
	return true
}

// Execute ingests link into the asset. The returned error carries a failure.Kind.
func (t *Task) Execute(ctx context.Context, assetID uint, link string) error {
	asset, token, err := t.claim(ctx, assetID)
	if err != nil {
		return err
	}

	fileID, ok := drive.ResolveFileID(link)
	if !ok {
		return t.fail(ctx, assetID, token, failure.Errorf(failure.Resolution, "drive.resolve", "Invalid Google Drive link: %s", link))
	}

	logger.Info("downloading video from drive",
		logger.Uint("assetId", assetID),
		logger.String("fileId", fileID))
	dl, err := t.fetcher.Fetch(ctx, fileID)
	if err != nil {
		return t.fail(ctx, assetID, token, err)
	}
	defer dl.Close()

	return t.complete(ctx, asset, token, dl.Filename, dl.Body)
}

// IngestUpload stores an uploaded file through the same persist and probe
// stages. The asset must be PROCESSING and unclaimed.
func (t *Task) IngestUpload(ctx context.Context, assetID uint, filename string, body io.Reader) error {
	asset, token, err := t.claim(ctx, assetID)
	if err != nil {
		return err
	}
	return t.complete(ctx, asset, token, filename, body)
}

func (t *Task) claim(ctx context.Context, assetID uint) (*model.VideoAsset, string, error) {
	asset, err := t.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, "", fmt.Errorf("load video asset %d: %w", assetID, err)
	}
	if asset == nil {
		return nil, "", failure.Errorf(failure.Missing, "ingest.load", "video asset %d does not exist", assetID)
	}

	token := uuid.NewString()
	ok, err := t.assets.Claim(ctx, assetID, token)
	if err != nil {
		return nil, "", fmt.Errorf("claim video asset %d: %w", assetID, err)
	}
	if !ok {
		return nil, "", failure.Errorf(failure.Conflict, "ingest.claim",
			"video asset %d is not claimable (status %s)", assetID, asset.Status)
	}
	return asset, token, nil
}

func (t *Task) complete(ctx context.Context, asset *model.VideoAsset, token, filename string, body io.Reader) error {
	stored, err := t.persister.Persist(ctx, asset.ID, filename, body)
	if err != nil {
		return t.fail(ctx, asset.ID, token, err)
	}
	defer stored.Cleanup()

	upd := repository.ReadyUpdate{VideoFile: stored.Key, FileSize: stored.Size}
	upd.Duration, upd.Thumbnail = t.probe(ctx, asset, stored.Path)

	ok, err := t.assets.MarkReady(ctx, asset.ID, token, upd)
	if err != nil {
		return fmt.Errorf("mark video asset %d ready: %w", asset.ID, err)
	}
	if !ok {
		return failure.Errorf(failure.Conflict, "ingest.finish", "video asset %d lost its claim", asset.ID)
	}
	t.dropReplaced(ctx, asset, stored.Key)

	logger.Info("video asset ready",
		logger.Uint("assetId", asset.ID),
		logger.String("file", stored.Key),
		logger.Int64("size", stored.Size),
		logger.Int("duration", upd.Duration))
	t.publish(ctx, notify.StatusEvent{AssetID: asset.ID, Status: model.VideoStatusReady})
	return nil
}

// dropReplaced deletes the previous video when a rerun stored under another key
// (the source changed its extension), so each asset keeps a single object.
func (t *Task) dropReplaced(ctx context.Context, asset *model.VideoAsset, key string) {
	if asset.VideoFile == nil || *asset.VideoFile == "" || *asset.VideoFile == key {
		return
	}
	if err := t.store.Delete(ctx, *asset.VideoFile); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("delete replaced video failed",
			logger.Uint("assetId", asset.ID),
			logger.String("file", *asset.VideoFile),
			logger.ErrorField(err))
	}
}

// probe never fails the run: errors leave duration at 0 and the thumbnail unset.
func (t *Task) probe(ctx context.Context, asset *model.VideoAsset, path string) (int, string) {
	if t.prober == nil {
		return 0, ""
	}
	duration, err := t.prober.Duration(ctx, path)
	if err != nil {
		logger.Warn("probe duration failed",
			logger.Uint("assetId", asset.ID),
			logger.ErrorField(failure.New(failure.Probe, "media.duration", err)))
		return 0, ""
	}
	if asset.HasThumbnail() {
		return duration, ""
	}

	frame, err := os.CreateTemp(t.tempDir, fmt.Sprintf("thumb-%d-*.jpg", asset.ID))
	if err != nil {
		logger.Warn("create thumbnail temp file failed", logger.ErrorField(err))
		return duration, ""
	}
	frame.Close()
	defer os.Remove(frame.Name())

	if err := t.prober.ExtractFrame(ctx, path, media.ThumbnailOffset(duration), frame.Name()); err != nil {
		logger.Warn("thumbnail extraction failed",
			logger.Uint("assetId", asset.ID),
			logger.ErrorField(failure.New(failure.Probe, "media.thumbnail", err)))
		return duration, ""
	}
	key := ThumbnailKey(asset.ID)
	if _, err := storage.SaveFile(ctx, t.store, key, frame.Name()); err != nil {
		logger.Warn("thumbnail upload failed", logger.Uint("assetId", asset.ID), logger.ErrorField(err))
		return duration, ""
	}
	return duration, key
}

func (t *Task) fail(ctx context.Context, assetID uint, token string, cause error) error {
	// 状态写入不受调用方取消影响
	writeCtx := context.WithoutCancel(ctx)
	ok, err := t.assets.MarkFailed(writeCtx, assetID, token, cause.Error())
	if err != nil {
		return errors.Join(cause, fmt.Errorf("mark video asset %d failed: %w", assetID, err))
	}
	if ok {
		t.publish(writeCtx, notify.StatusEvent{AssetID: assetID, Status: model.VideoStatusFailed, Error: cause.Error()})
	}
	return cause
}

func (t *Task) publish(ctx context.Context, ev notify.StatusEvent) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("publish status event failed", logger.Uint("assetId", ev.AssetID), logger.ErrorField(err))
	}
}
