package repository

import (
	"context"
	"strings"

	"TrackShelf/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArtistRepository defines the interface for artist data operations.
type ArtistRepository interface {
	ListArtists(ctx context.Context) ([]*model.Artist, error)
	GetArtist(ctx context.Context, id string) (*model.Artist, error)
	CreateArtist(ctx context.Context, name string) (*model.Artist, error)
	RenameArtist(ctx context.Context, id, name string) (*model.Artist, error)
	DeleteArtist(ctx context.Context, id string) error
}

type gormArtistRepository struct {
	db *gorm.DB
}

// NewArtistRepository creates an ArtistRepository backed by GORM.
func NewArtistRepository(db *gorm.DB) ArtistRepository {
	return &gormArtistRepository{db: db}
}

// ListArtists returns all artists, newest first.
func (r *gormArtistRepository) ListArtists(ctx context.Context) ([]*model.Artist, error) {
	artists := make([]*model.Artist, 0)
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&artists).Error
	return artists, wrapErr(err, "list artists")
}

func (r *gormArtistRepository) GetArtist(ctx context.Context, id string) (*model.Artist, error) {
	artist := &model.Artist{}
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(artist).Error; err != nil {
		return nil, wrapErr(err, "get artist")
	}
	return artist, nil
}

func (r *gormArtistRepository) CreateArtist(ctx context.Context, name string) (*model.Artist, error) {
	artist := &model.Artist{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(artist).Error; err != nil {
		return nil, wrapErr(err, "create artist")
	}
	return artist, nil
}

func (r *gormArtistRepository) RenameArtist(ctx context.Context, id, name string) (*model.Artist, error) {
	res := r.db.WithContext(ctx).Model(&model.Artist{}).Where("id = ?", id).Update("name", strings.TrimSpace(name))
	if res.Error != nil {
		return nil, wrapErr(res.Error, "rename artist")
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetArtist(ctx, id)
}

// DeleteArtist removes the artist together with its projects and their tracks.
func (r *gormArtistRepository) DeleteArtist(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projectIDs := tx.Model(&model.Project{}).Select("id").Where("artist_id = ?", id)
		if err := tx.Where("project_id IN (?)", projectIDs).Delete(&model.Track{}).Error; err != nil {
			return wrapErr(err, "delete artist tracks")
		}
		if err := tx.Where("artist_id = ?", id).Delete(&model.Project{}).Error; err != nil {
			return wrapErr(err, "delete artist projects")
		}
		res := tx.Where("id = ?", id).Delete(&model.Artist{})
		if res.Error != nil {
			return wrapErr(res.Error, "delete artist")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
