package repository

import (
	"context"
	"strings"

	"TrackShelf/logger"
	"TrackShelf/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	GetTrack(ctx context.Context, id string) (*model.Track, error)
	ListTracksByProject(ctx context.Context, projectID string) ([]*model.Track, error)
	CreateTrack(ctx context.Context, track *model.Track) error
	UpdateTrack(ctx context.Context, id string, patch model.TrackPatch) (*model.Track, error)
	UpdateTrackFilePath(ctx context.Context, id, filePath string) error
	DeleteTrack(ctx context.Context, id string) error
}

type gormTrackRepository struct {
	db *gorm.DB
}

// NewTrackRepository creates a TrackRepository backed by GORM.
func NewTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// GetTrack reads the row as a column map so tables still carrying the old
// storage_path/name columns load through model.TrackFromRow.
func (r *gormTrackRepository) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	row := map[string]any{}
	if err := r.db.WithContext(ctx).Table(model.Track{}.TableName()).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, wrapErr(err, "get track")
	}
	return model.TrackFromRow(row), nil
}

// ListTracksByProject returns the project's tracks, most recently updated first.
func (r *gormTrackRepository) ListTracksByProject(ctx context.Context, projectID string) ([]*model.Track, error) {
	var rows []map[string]any
	err := r.db.WithContext(ctx).Table(model.Track{}.TableName()).
		Where("project_id = ?", projectID).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr(err, "list tracks")
	}
	tracks := make([]*model.Track, 0, len(rows))
	for _, row := range rows {
		tracks = append(tracks, model.TrackFromRow(row))
	}
	return tracks, nil
}

// CreateTrack inserts the track, filling in id and a default title.
func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	track.Title = strings.TrimSpace(track.Title)
	if track.Title == "" {
		track.Title = "Untitled"
	}
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return wrapErr(err, "create track")
	}
	logger.Debug("track created",
		logger.String("trackId", track.ID),
		logger.String("projectId", track.ProjectID),
		logger.String("filePath", track.StoragePath()))
	return nil
}

func (r *gormTrackRepository) UpdateTrack(ctx context.Context, id string, patch model.TrackPatch) (*model.Track, error) {
	if !patch.Empty() {
		updates := map[string]any{}
		if patch.Title != nil {
			updates["title"] = *patch.Title
		}
		if patch.BPM != nil {
			updates["bpm"] = *patch.BPM
		}
		if patch.Key != nil {
			updates["key"] = *patch.Key
		}
		if patch.Notes != nil {
			updates["notes"] = *patch.Notes
		}
		res := r.db.WithContext(ctx).Model(&model.Track{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, wrapErr(res.Error, "update track")
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetTrack(ctx, id)
}

// UpdateTrackFilePath records the key a track's audio actually lives at.
func (r *gormTrackRepository) UpdateTrackFilePath(ctx context.Context, id, filePath string) error {
	res := r.db.WithContext(ctx).Model(&model.Track{}).Where("id = ?", id).Update("file_path", filePath)
	if res.Error != nil {
		return wrapErr(res.Error, "update track file path")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormTrackRepository) DeleteTrack(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Track{})
	if res.Error != nil {
		return wrapErr(res.Error, "delete track")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
