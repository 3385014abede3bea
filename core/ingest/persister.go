package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sessions-portal/core/failure"
	"sessions-portal/storage"
)

const (
	// ChunkSize 每次写入的块大小
	ChunkSize = 8192
	// MinVideoBytes is the size floor below which a download is not a video.
	MinVideoBytes = 100
)

// Persister spools a download to a temp file and uploads it to storage.
type Persister struct {
	store   storage.Store
	tempDir string
}

func NewPersister(store storage.Store, tempDir string) *Persister {
	return &Persister{store: store, tempDir: tempDir}
}

// Persisted is a stored video whose local copy is still on disk for probing.
type Persisted struct {
	Key  string
	Size int64
	Path string
}

// Cleanup removes the local temp copy.
func (p *Persisted) Cleanup() {
	if p != nil && p.Path != "" {
		os.Remove(p.Path)
	}
}

// VideoKey is the storage key of an asset's video, stable across reruns.
func VideoKey(assetID uint, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = ".mp4"
	}
	return fmt.Sprintf("videos/%d%s", assetID, ext)
}

// ThumbnailKey is the storage key of an asset's thumbnail.
func ThumbnailKey(assetID uint) string {
	return fmt.Sprintf("thumbnails/%d.jpg", assetID)
}

// Persist copies body in ChunkSize chunks, rejects anything under
// MinVideoBytes and saves the result under VideoKey.
func (p *Persister) Persist(ctx context.Context, assetID uint, filename string, body io.Reader) (*Persisted, error) {
	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	key := VideoKey(assetID, filename)
	tmp, err := os.CreateTemp(p.tempDir, fmt.Sprintf("asset-%d-*%s", assetID, filepath.Ext(key)))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	out := &Persisted{Key: key, Path: tmp.Name()}

	size, err := copyChunks(ctx, tmp, body)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close temp file: %w", cerr)
	}
	if err != nil {
		out.Cleanup()
		return nil, err
	}
	if size < MinVideoBytes {
		out.Cleanup()
		return nil, failure.Errorf(failure.Validation, "ingest.persist",
			"downloaded file is too small to be a video (%d bytes)", size)
	}
	out.Size = size

	if _, err := storage.SaveFile(ctx, p.store, key, out.Path); err != nil {
		out.Cleanup()
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	return out, nil
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, failure.New(failure.Transport, "ingest.persist", err)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("write temp file: %w", werr)
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			var fe *failure.Error
			if errors.As(rerr, &fe) {
				return total, rerr
			}
			return total, failure.New(failure.Transport, "ingest.persist", rerr)
		}
	}
}
