package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"sessions-portal/logger"
)

// settleDelay waits for writes to a new file to stop before importing it.
const settleDelay = 500 * time.Millisecond

// Watch imports every CSV created or rewritten in dir until ctx is done.
// onDone, when set, receives each file's summary.
func (im *Importer) Watch(ctx context.Context, dir string, opts Options, onDone func(path string, sum *Summary, err error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching for CSV files", logger.String("dir", dir))

	ready := make(chan string, 16)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := event.Name
			if t, ok := pending[name]; ok {
				t.Reset(settleDelay)
				continue
			}
			pending[name] = time.AfterFunc(settleDelay, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})

		case name := <-ready:
			delete(pending, name)
			sum, err := im.ImportFile(ctx, name, opts)
			if err != nil {
				logger.Error("watched import failed", logger.String("file", name), logger.ErrorField(err))
			}
			if onDone != nil {
				onDone(name, sum, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.ErrorField(err))
		}
	}
}
