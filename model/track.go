package model

import "time"

// Track represents an uploaded audio file inside a project.
type Track struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectID string    `gorm:"type:char(36);index;not null" json:"project_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	FilePath  *string   `gorm:"column:file_path;size:767" json:"file_path"` // canonical "<projectId>/<filename>" object key
	BPM       *float64  `gorm:"column:bpm" json:"bpm"`
	Key       *string   `gorm:"column:key;size:32" json:"key"` // musical key, e.g. "F#m"
	Notes     *string   `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name.
func (Track) TableName() string { return "tracks" }

// StoragePath returns the recorded object key or "".
func (t *Track) StoragePath() string {
	if t == nil || t.FilePath == nil {
		return ""
	}
	return *t.FilePath
}

// TrackPatch holds the fields a PATCH may change. Nil means untouched.
type TrackPatch struct {
	Title *string
	BPM   *float64
	Key   *string
	Notes *string
}

// Empty reports whether the patch changes nothing.
func (p TrackPatch) Empty() bool {
	return p.Title == nil && p.BPM == nil && p.Key == nil && p.Notes == nil
}
