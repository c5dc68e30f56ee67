package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TrackShelf/logger"
)

const defaultRepairTimeout = 10 * time.Second

// Repair outcomes reported to RepairOptions.Observe.
const (
	RepairUpdated = "updated"
	RepairSkipped = "skipped"
	RepairFailed  = "failed"
)

// TrackPathUpdater persists a track's object key.
type TrackPathUpdater interface {
	UpdateTrackFilePath(ctx context.Context, id, filePath string) error
}

// RepairLocker keeps two requests from repairing the same track at once.
type RepairLocker interface {
	TryLock(ctx context.Context, trackID string) (bool, error)
	Unlock(ctx context.Context, trackID string)
}

// RepairOptions configures a PathRepairer. Every field is optional.
type RepairOptions struct {
	Lock       RepairLocker
	Timeout    time.Duration
	OnRepaired func(trackID, oldKey, newKey string)
	Observe    func(outcome string)
}

// PathRepairer writes corrected keys back onto track records. Writes run
// detached from the request that discovered them and never report errors to
// it.
type PathRepairer struct {
	tracks TrackPathUpdater
	opts   RepairOptions
	wg     sync.WaitGroup
}

func NewPathRepairer(tracks TrackPathUpdater, opts RepairOptions) *PathRepairer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRepairTimeout
	}
	return &PathRepairer{tracks: tracks, opts: opts}
}

// Schedule starts a write-back when resolvedKey differs from recordedKey.
// It returns immediately and reports whether a write-back was started.
func (p *PathRepairer) Schedule(trackID, recordedKey, resolvedKey string) bool {
	if p == nil || p.tracks == nil || trackID == "" || resolvedKey == "" || resolvedKey == recordedKey {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("path repair panicked",
					logger.String("trackId", trackID),
					logger.Any("panic", r))
				p.observe(RepairFailed)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
		defer cancel()
		p.observe(p.repair(ctx, trackID, recordedKey, resolvedKey))
	}()
	return true
}

func (p *PathRepairer) repair(ctx context.Context, trackID, recordedKey, resolvedKey string) string {
	if p.opts.Lock != nil {
		ok, err := p.opts.Lock.TryLock(ctx, trackID)
		if err != nil {
			// 锁不可用时照常写回
			logger.Warn("repair lock unavailable", logger.String("trackId", trackID), logger.ErrorField(err))
		} else if !ok {
			return RepairSkipped
		} else {
			defer p.opts.Lock.Unlock(context.Background(), trackID)
		}
	}

	if err := p.tracks.UpdateTrackFilePath(ctx, trackID, resolvedKey); err != nil {
		logger.Warn("path repair failed",
			logger.String("trackId", trackID),
			logger.String("from", recordedKey),
			logger.String("to", resolvedKey),
			logger.ErrorField(fmt.Errorf("update file_path: %w", err)))
		return RepairFailed
	}

	logger.Info("track path repaired",
		logger.String("trackId", trackID),
		logger.String("from", recordedKey),
		logger.String("to", resolvedKey))
	if p.opts.OnRepaired != nil {
		p.opts.OnRepaired(trackID, recordedKey, resolvedKey)
	}
	return RepairUpdated
}

func (p *PathRepairer) observe(outcome string) {
	if p.opts.Observe != nil {
		p.opts.Observe(outcome)
	}
}

// Wait blocks until every scheduled write-back has finished.
func (p *PathRepairer) Wait() {
	if p != nil {
		p.wg.Wait()
	}
}
