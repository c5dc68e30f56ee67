// Package importer uploads audio files dropped into a folder as tracks of
// one project.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"TrackShelf/core/delivery"
	"TrackShelf/core/library"
	"TrackShelf/core/media"
	"TrackShelf/logger"
	"TrackShelf/model"

	"github.com/fsnotify/fsnotify"
)

// DoneDir is the subfolder imported files are moved into.
const DoneDir = "imported"

// Uploader stores one file as a track.
type Uploader interface {
	Upload(ctx context.Context, up library.Upload) (*model.Track, error)
}

// Importer 监听目录，把新出现的音频文件上传为指定项目的曲目。
// 不支持并发调用。
type Importer struct {
	dir       string
	projectID string
	uploader  Uploader
	settle    time.Duration

	// uploaded files whose move into DoneDir failed; only the move is retried
	unmoved map[string]bool
}

// New creates an Importer. settle is how long a file must stay unchanged
// before it is uploaded; zero means 500ms.
func New(dir, projectID string, uploader Uploader, settle time.Duration) *Importer {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Importer{
		dir:       dir,
		projectID: projectID,
		uploader:  uploader,
		settle:    settle,
		unmoved:   make(map[string]bool),
	}
}

// ImportExisting uploads the audio files already in the folder.
func (im *Importer) ImportExisting(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return 0, fmt.Errorf("read import dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !media.IsAudioKey(e.Name()) {
			continue
		}
		uploaded, err := im.importFile(ctx, filepath.Join(im.dir, e.Name()))
		if uploaded {
			n++
		}
		if err != nil {
			logger.Warn("import failed", logger.String("file", e.Name()), logger.ErrorField(err))
		}
	}
	return n, nil
}

// Run imports what is already in the folder, then watches it until ctx is
// done.
func (im *Importer) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(im.dir, DoneDir), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", DoneDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(im.dir); err != nil {
		return fmt.Errorf("watch %s: %w", im.dir, err)
	}
	logger.Info("watching import folder",
		logger.String("dir", im.dir),
		logger.String("projectId", im.projectID))

	// 监听建立之前已存在的文件
	if _, err := im.ImportExisting(ctx); err != nil {
		return err
	}

	// path -> last time it changed
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(im.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !media.IsAudioKey(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.ErrorField(err))

		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) < im.settle {
					continue
				}
				delete(pending, path)
				if _, err := im.importFile(ctx, path); err != nil {
					logger.Warn("import failed", logger.String("file", path), logger.ErrorField(err))
				}
			}
		}
	}
}

// importFile uploads one file and moves it into DoneDir. It reports whether
// an upload happened; a file already uploaded earlier only gets moved.
func (im *Importer) importFile(ctx context.Context, path string) (bool, error) {
	if im.unmoved[path] {
		return false, im.moveDone(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return false, err
	}

	name := filepath.Base(path)
	track, err := im.uploader.Upload(ctx, library.Upload{
		ProjectID:   im.projectID,
		Filename:    name,
		ContentType: delivery.ContentTypeFor(name),
		Size:        info.Size(),
		Body:        f,
	})
	f.Close()
	if err != nil {
		return false, err
	}
	logger.Info("imported",
		logger.String("file", name),
		logger.String("trackId", track.ID),
		logger.String("filePath", track.StoragePath()))

	if err := im.moveDone(path); err != nil {
		im.unmoved[path] = true
		return true, err
	}
	return true, nil
}

func (im *Importer) moveDone(path string) error {
	doneDir := filepath.Join(im.dir, DoneDir)
	if err := os.MkdirAll(doneDir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(path, filepath.Join(doneDir, filepath.Base(path))); err != nil {
		return fmt.Errorf("move imported file: %w", err)
	}
	delete(im.unmoved, path)
	return nil
}
