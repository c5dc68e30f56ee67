package repository

import (
	"context"

	"TrackShelf/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectRepository defines the interface for project data operations.
type ProjectRepository interface {
	ListProjects(ctx context.Context) ([]*model.Project, error)
	ListProjectsByArtist(ctx context.Context, artistID string) ([]*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateProject(ctx context.Context, project *model.Project) error
	UpdateProject(ctx context.Context, id string, name *string, description **string) (*model.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

type gormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a ProjectRepository backed by GORM.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &gormProjectRepository{db: db}
}

// ListProjects returns every project, most recently updated first.
func (r *gormProjectRepository) ListProjects(ctx context.Context) ([]*model.Project, error) {
	projects := make([]*model.Project, 0)
	err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&projects).Error
	return projects, wrapErr(err, "list projects")
}

func (r *gormProjectRepository) ListProjectsByArtist(ctx context.Context, artistID string) ([]*model.Project, error) {
	projects := make([]*model.Project, 0)
	err := r.db.WithContext(ctx).Where("artist_id = ?", artistID).Order("updated_at DESC").Find(&projects).Error
	return projects, wrapErr(err, "list artist projects")
}

func (r *gormProjectRepository) GetProject(ctx context.Context, id string) (*model.Project, error) {
	project := &model.Project{}
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(project).Error; err != nil {
		return nil, wrapErr(err, "get project")
	}
	return project, nil
}

// CreateProject assigns an id when the caller did not.
func (r *gormProjectRepository) CreateProject(ctx context.Context, project *model.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	return wrapErr(r.db.WithContext(ctx).Create(project).Error, "create project")
}

// UpdateProject changes name and/or description. A non-nil description
// pointer holding nil clears the description.
func (r *gormProjectRepository) UpdateProject(ctx context.Context, id string, name *string, description **string) (*model.Project, error) {
	updates := map[string]any{}
	if name != nil {
		updates["name"] = *name
	}
	if description != nil {
		updates["description"] = *description
	}
	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, wrapErr(res.Error, "update project")
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetProject(ctx, id)
}

// DeleteProject removes a project and its track rows.
func (r *gormProjectRepository) DeleteProject(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&model.Track{}).Error; err != nil {
			return wrapErr(err, "delete project tracks")
		}
		res := tx.Where("id = ?", id).Delete(&model.Project{})
		if res.Error != nil {
			return wrapErr(res.Error, "delete project")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
