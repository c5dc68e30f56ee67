package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackFromRow(t *testing.T) {
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("canonical columns", func(t *testing.T) {
		track := TrackFromRow(map[string]any{
			"id":         "t1",
			"project_id": "p1",
			"title":      "Take 1",
			"file_path":  "p1/1699999999-take1.wav",
			"bpm":        float64(92),
			"key":        "Am",
			"notes":      nil,
			"created_at": created,
		})
		assert.Equal(t, "t1", track.ID)
		assert.Equal(t, "Take 1", track.Title)
		assert.Equal(t, "p1/1699999999-take1.wav", track.StoragePath())
		require.NotNil(t, track.BPM)
		assert.InDelta(t, 92, *track.BPM, 0.001)
		require.NotNil(t, track.Key)
		assert.Equal(t, "Am", *track.Key)
		assert.Nil(t, track.Notes)
		assert.Equal(t, created, track.CreatedAt)
	})

	t.Run("legacy columns", func(t *testing.T) {
		track := TrackFromRow(map[string]any{
			"id":           []byte("t2"),
			"name":         []byte("Old name"),
			"storage_path": []byte("p1/old.mp3"),
			"bpm":          []byte("120"),
			"created_at":   "2025-02-01 10:00:00",
		})
		assert.Equal(t, "t2", track.ID)
		assert.Equal(t, "Old name", track.Title)
		assert.Equal(t, "p1/old.mp3", track.StoragePath())
		require.NotNil(t, track.BPM)
		assert.InDelta(t, 120, *track.BPM, 0.001)
		assert.Equal(t, created, track.CreatedAt)
	})

	t.Run("canonical wins over legacy", func(t *testing.T) {
		track := TrackFromRow(map[string]any{
			"title":        "New",
			"name":         "Old",
			"file_path":    "p1/new.mp3",
			"storage_path": "p1/old.mp3",
		})
		assert.Equal(t, "New", track.Title)
		assert.Equal(t, "p1/new.mp3", track.StoragePath())
	})

	t.Run("no path", func(t *testing.T) {
		track := TrackFromRow(map[string]any{"file_path": nil, "storage_path": "  "})
		assert.Nil(t, track.FilePath)
		assert.Equal(t, "", track.StoragePath())
	})
}

func TestTrackPatchEmpty(t *testing.T) {
	assert.True(t, TrackPatch{}.Empty())
	title := "x"
	assert.False(t, TrackPatch{Title: &title}.Empty())
}
