package model

import "time"

// Artist owns projects.
type Artist struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Artist) TableName() string { return "artists" }

// Project groups tracks. Its id is the container segment of every object key
// of its tracks.
type Project struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	ArtistID    *string   `gorm:"type:char(36);index" json:"artist_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
