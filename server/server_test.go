package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"TrackShelf/config"
	"TrackShelf/model"
	"TrackShelf/repository"
	"TrackShelf/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	srv    *Server
	store  *storage.MemoryStore
	tracks repository.TrackRepository
	blob   *httptest.Server
}

func newTestEnv(t *testing.T, mode string, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(&model.Artist{}, &model.Project{}, &model.Track{}))

	store := storage.NewMemoryStore(config.DefaultBucket)
	blob := httptest.NewServer(store)
	t.Cleanup(blob.Close)
	store.BaseURL = blob.URL

	cfg := &config.Config{
		CORSOrigin:     "*",
		StorageBucket:  config.DefaultBucket,
		DeliveryMode:   mode,
		SignedURLTTL:   time.Hour,
		ProbeTimeout:   time.Second,
		UploadMaxBytes: 10 << 20,
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	tracks := repository.NewTrackRepository(gdb)
	srv := New(Deps{
		Config:   cfg,
		Artists:  repository.NewArtistRepository(gdb),
		Projects: repository.NewProjectRepository(gdb),
		Tracks:   tracks,
		Store:    store,
		DB:       sqlDB,
	})
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, tracks: tracks, blob: blob}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func audio(n int) []byte {
	return bytes.Repeat([]byte{0x52}, n)
}

func TestStreamDirect(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)
	env.store.PutBytes("proj-1/1-take1.wav", audio(120000), "audio/wav")

	t.Run("full body", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/stream?path=proj-1/1-take1.wav", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
		assert.Equal(t, "120000", rec.Header().Get("Content-Length"))
		assert.Equal(t, "no-store, no-cache, max-age=0, must-revalidate", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "exact", rec.Header().Get("X-Resolution"))
		assert.Equal(t, "proj-1/1-take1.wav", rec.Header().Get("X-Resolved-Key"))
		assert.Len(t, rec.Body.Bytes(), 120000)
	})

	t.Run("storage url", func(t *testing.T) {
		rec := env.do(t, http.MethodGet,
			"/api/stream?path="+url.QueryEscape("https://x.supabase.co/storage/v1/object/public/music-files/proj-1/1-take1.wav"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "proj-1/1-take1.wav", rec.Header().Get("X-Resolved-Key"))
	})

	t.Run("range", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/stream?path=proj-1/1-take1.wav", nil, "Range", "bytes=0-99")
		require.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "bytes 0-99/120000", rec.Header().Get("Content-Range"))
		assert.Len(t, rec.Body.Bytes(), 100)
	})

	t.Run("download", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/download?path=proj-1/1-take1.wav&filename=My%20Mix", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `attachment; filename="My_Mix.mp3"`, rec.Header().Get("Content-Disposition"))

		rec = env.do(t, http.MethodGet, "/api/stream?path=proj-1/1-take1.wav&download=yes", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `attachment; filename="1-take1.wav"`, rec.Header().Get("Content-Disposition"))
	})
}

func TestStreamValidation(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)

	tests := []struct {
		name   string
		target string
		status int
		msg    string
	}{
		{"no params", "/api/stream", http.StatusBadRequest, "path or id query parameter is required"},
		{"blank params", "/api/stream?path=%20&id=", http.StatusBadRequest, "path or id query parameter is required"},
		{"undefined", "/api/stream?path=undefined", http.StatusBadRequest, "path must be an object key (projectId/filename.ext)"},
		{"no container", "/api/stream?path=take1.wav", http.StatusBadRequest, "path must be an object key (projectId/filename.ext)"},
		{"bad id", "/api/stream?id=123", http.StatusBadRequest, "id must be a UUID"},
		{"unknown id", "/api/stream?id=7d9f3c1e-2b4a-4c8e-9f1a-3e5d7b9c1a2f", http.StatusNotFound, "track not found"},
		{"missing object", "/api/download?path=proj-1/missing.wav", http.StatusNotFound, "file not found in storage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, errorMessage(t, rec))
		})
	}
}

func TestStreamResolvesStaleKeys(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)
	ctx := context.Background()

	t.Run("double timestamp and write-back", func(t *testing.T) {
		env.store.PutBytes("proj-1/1699999999999-take1.wav", audio(1000), "audio/wav")
		stale := "proj-1/1700000000001-1699999999999-take1.wav"
		track := &model.Track{ProjectID: "proj-1", Title: "Take 1", FilePath: &stale}
		require.NoError(t, env.tracks.CreateTrack(ctx, track))

		rec := env.do(t, http.MethodGet, "/api/stream?id="+track.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "legacy-timestamp", rec.Header().Get("X-Resolution"))
		assert.Equal(t, "2", rec.Header().Get("X-Candidates-Tried"))

		env.srv.repairer.Wait()
		got, err := env.tracks.GetTrack(ctx, track.ID)
		require.NoError(t, err)
		assert.Equal(t, "proj-1/1699999999999-take1.wav", got.StoragePath())
	})

	t.Run("listing match", func(t *testing.T) {
		env.store.PutBytes("proj-1/1699999999999-take2.wav", audio(10), "audio/wav")
		rec := env.do(t, http.MethodGet, "/api/stream?path=proj-1/take2.wav", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "listing", rec.Header().Get("X-Resolution"))
		assert.Equal(t, "proj-1/1699999999999-take2.wav", rec.Header().Get("X-Resolved-Key"))
	})

	t.Run("listing match by id and write-back", func(t *testing.T) {
		env.store.PutBytes("proj-3/2-take1.wav", audio(120000), "audio/wav")
		stale := "proj-3/1699999999-take1.wav"
		track := &model.Track{ProjectID: "proj-3", Title: "Take 1", FilePath: &stale}
		require.NoError(t, env.tracks.CreateTrack(ctx, track))

		rec := env.do(t, http.MethodGet, "/api/stream?id="+track.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "listing", rec.Header().Get("X-Resolution"))
		assert.Equal(t, "proj-3/2-take1.wav", rec.Header().Get("X-Resolved-Key"))
		assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
		assert.Equal(t, "120000", rec.Header().Get("Content-Length"))

		env.srv.repairer.Wait()
		got, err := env.tracks.GetTrack(ctx, track.ID)
		require.NoError(t, err)
		assert.Equal(t, "proj-3/2-take1.wav", got.StoragePath())
	})

	t.Run("zero byte object skipped", func(t *testing.T) {
		env.store.PutBytes("proj-2/5-6-empty.mp3", nil, "audio/mpeg")
		env.store.PutBytes("proj-2/6-empty.mp3", audio(42), "audio/mpeg")
		rec := env.do(t, http.MethodGet, "/api/stream?path=proj-2/5-6-empty.mp3", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "proj-2/6-empty.mp3", rec.Header().Get("X-Resolved-Key"))
		assert.Equal(t, "42", rec.Header().Get("Content-Length"))
	})

	t.Run("download by id uses the title", func(t *testing.T) {
		key := "proj-1/1699999999999-take1.wav"
		track := &model.Track{ProjectID: "proj-1", Title: "Final Take", FilePath: &key}
		require.NoError(t, env.tracks.CreateTrack(ctx, track))
		rec := env.do(t, http.MethodGet, "/api/download?id="+track.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `attachment; filename="Final_Take.wav"`, rec.Header().Get("Content-Disposition"))
	})
}

func TestStreamProxy(t *testing.T) {
	env := newTestEnv(t, config.DeliveryProxy)
	env.store.PutBytes("proj-1/1-take1.mp3", audio(1000), "audio/mpeg")

	rec := env.do(t, http.MethodGet, "/api/stream?path=proj-1/1-take1.mp3", nil, "Range", "bytes=0-99")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "exact", rec.Header().Get("X-Resolution"))

	rec = env.do(t, http.MethodGet, "/api/stream?path=proj-1/1-take1.mp3", nil, "Range", "bytes=5000-6000")
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
	assert.Empty(t, rec.Body.Bytes())

	rec = env.do(t, http.MethodGet, "/api/download?path=proj-1/1-take1.mp3", nil, "Range", "bytes=0-99")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="1-take1.mp3"`, rec.Header().Get("Content-Disposition"))
}

func TestStreamRedirect(t *testing.T) {
	env := newTestEnv(t, config.DeliveryRedirect)
	env.store.PutBytes("proj-1/1-take1.mp3", audio(1000), "audio/mpeg")

	rec := env.do(t, http.MethodGet, "/api/stream?path=proj-1/1-take1.mp3", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), env.blob.URL+"/proj-1/1-take1.mp3?expires="))
	assert.Equal(t, "200", rec.Header().Get("X-Probe-Status"))
	assert.Equal(t, "no-store, no-cache, max-age=0, must-revalidate", rec.Header().Get("Cache-Control"))

	// downloads are proxied so the attachment header survives
	rec = env.do(t, http.MethodGet, "/api/download?path=proj-1/1-take1.mp3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Len(t, rec.Body.Bytes(), 1000)
}

func TestLibraryFlow(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)

	rec := env.do(t, http.MethodPost, "/api/artists", strings.NewReader(`{"name":"  Nova  "}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var artist model.Artist
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artist))
	assert.Equal(t, "Nova", artist.Name)

	rec = env.do(t, http.MethodPost, "/api/projects",
		strings.NewReader(`{"name":"Demo","artist_id":"`+artist.ID+`"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var project model.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	require.NotEmpty(t, project.ID)

	rec = env.do(t, http.MethodGet, "/api/artists/"+artist.ID+"/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), project.ID)

	// upload
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("projectId", project.ID))
	fw, err := mw.CreateFormFile("file", "take1.wav")
	require.NoError(t, err)
	_, err = fw.Write(audio(2048))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec = env.do(t, http.MethodPost, "/api/uploads", &buf, "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var uploaded struct {
		Track model.Track `json:"track"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	key := uploaded.Track.StoragePath()
	assert.Equal(t, "take1", uploaded.Track.Title)
	assert.Regexp(t, `^`+project.ID+`/\d+-take1\.wav$`, key)

	rec = env.do(t, http.MethodGet, "/api/stream?id="+uploaded.Track.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2048", rec.Header().Get("Content-Length"))

	// patch
	rec = env.do(t, http.MethodPatch, "/api/tracks",
		strings.NewReader(`{"id":"`+uploaded.Track.ID+`","bpm":96,"key":"F#m","name":"Take One"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var patched model.Track
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patched))
	assert.Equal(t, "Take One", patched.Title)
	require.NotNil(t, patched.BPM)
	assert.InDelta(t, 96, *patched.BPM, 0.001)

	rec = env.do(t, http.MethodGet, "/api/projects/"+project.ID+"/tracks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []model.Track
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	// delete removes the object too
	rec = env.do(t, http.MethodDelete, "/api/tracks?id="+uploaded.Track.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = env.store.Stat(context.Background(), key)
	require.ErrorIs(t, err, storage.ErrNotFound)

	rec = env.do(t, http.MethodDelete, "/api/artists?id="+artist.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/projects/"+project.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLibraryValidation(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)
	projectID := uuid.NewString()
	missing := uuid.NewString()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		msg    string
	}{
		{"artist without name", http.MethodPost, "/api/artists", `{}`, http.StatusBadRequest, "name is required"},
		{"artist rename without name", http.MethodPatch, "/api/artists", `{"id":"a"}`, http.StatusBadRequest, "id and name are required"},
		{"artist rename bad id", http.MethodPatch, "/api/artists", `{"id":"a","name":"b"}`, http.StatusBadRequest, "id must be a UUID"},
		{"artist delete bad id", http.MethodDelete, "/api/artists?id=a", "", http.StatusBadRequest, "id must be a UUID"},
		{"artist projects bad id", http.MethodGet, "/api/artists/a/projects", "", http.StatusBadRequest, "id must be a UUID"},
		{"project get bad id", http.MethodGet, "/api/projects/proj-1", "", http.StatusBadRequest, "id must be a UUID"},
		{"project get missing", http.MethodGet, "/api/projects/" + missing, "", http.StatusNotFound, "Not found"},
		{"project patch bad id", http.MethodPatch, "/api/projects/proj-1", `{"name":"x"}`, http.StatusBadRequest, "id must be a UUID"},
		{"project delete bad id", http.MethodDelete, "/api/projects/proj-1", "", http.StatusBadRequest, "id must be a UUID"},
		{"project tracks bad id", http.MethodGet, "/api/projects/proj-1/tracks", "", http.StatusBadRequest, "id must be a UUID"},
		{"track register bad path", http.MethodPost, "/api/tracks",
			`{"projectId":"` + projectID + `","file_path":"undefined"}`,
			http.StatusBadRequest, "file_path must be an object key (projectId/filename.ext)"},
		{"track register other project", http.MethodPost, "/api/tracks",
			`{"projectId":"` + projectID + `","file_path":"` + missing + `/1-a.mp3"}`,
			http.StatusBadRequest, "file_path must be inside the project folder"},
		{"track register nested project", http.MethodPost, "/api/tracks",
			`{"projectId":"a/b","file_path":"a/b/1-a.mp3"}`,
			http.StatusBadRequest, "projectId must be a UUID"},
		{"track patch without id", http.MethodPatch, "/api/tracks", `{"bpm":90}`, http.StatusBadRequest, "id is required"},
		{"track patch bad id", http.MethodPatch, "/api/tracks", `{"id":"nope","bpm":90}`, http.StatusBadRequest, "id must be a UUID"},
		{"track patch missing", http.MethodPatch, "/api/tracks", `{"id":"` + missing + `","bpm":90}`, http.StatusNotFound, "not found"},
		{"track delete bad id", http.MethodDelete, "/api/tracks?id=../x", "", http.StatusBadRequest, "id must be a UUID"},
		{"upload url bad type", http.MethodPost, "/api/uploads/create",
			`{"projectId":"` + projectID + `","filename":"a.pdf","contentType":"application/pdf"}`,
			http.StatusBadRequest, "invalid file type, allowed: mp3, wav, m4a"},
		{"upload url traversal", http.MethodPost, "/api/uploads/create",
			`{"projectId":"../etc","filename":"a.mp3","contentType":"audio/mpeg"}`,
			http.StatusBadRequest, "projectId must be a UUID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			rec := env.do(t, tt.method, tt.target, body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, errorMessage(t, rec))
		})
	}
}

func TestUploadRejectsNestedProjectID(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)

	for _, projectID := range []string{"a/b", "../etc"} {
		t.Run(projectID, func(t *testing.T) {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			require.NoError(t, mw.WriteField("projectId", projectID))
			fw, err := mw.CreateFormFile("file", "x.mp3")
			require.NoError(t, err)
			_, err = fw.Write(audio(16))
			require.NoError(t, err)
			require.NoError(t, mw.Close())

			rec := env.do(t, http.MethodPost, "/api/uploads", &buf, "Content-Type", mw.FormDataContentType())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "projectId must be a UUID", errorMessage(t, rec))
		})
	}

	objects, err := env.store.ListPrefix(context.Background(), "", true)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestCreateUploadURL(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)
	projectID := uuid.NewString()
	rec := env.do(t, http.MethodPost, "/api/uploads/create",
		strings.NewReader(`{"projectId":"`+projectID+`","filename":"demo.m4a","contentType":"audio/mp4"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Path      string `json:"path"`
		SignedURL string `json:"signedUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Regexp(t, `^`+projectID+`/\d+-demo\.m4a$`, body.Path)
	assert.Contains(t, body.SignedURL, body.Path)
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect, func(c *config.Config) { c.UploadMaxBytes = 1024 })

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("projectId", uuid.NewString()))
	fw, err := mw.CreateFormFile("file", "big.mp3")
	require.NoError(t, err)
	_, err = fw.Write(audio(4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := env.do(t, http.MethodPost, "/api/uploads", &buf, "Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	objects, err := env.store.ListPrefix(context.Background(), "", true)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestAuthOnMutatingRoutes(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect, func(c *config.Config) { c.JWTSecret = "s3cret" })

	rec := env.do(t, http.MethodPost, "/api/artists", strings.NewReader(`{"name":"x"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authorization header is required", errorMessage(t, rec))

	rec = env.do(t, http.MethodPost, "/api/artists", strings.NewReader(`{"name":"x"}`), "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", errorMessage(t, rec))

	token, err := env.srv.verifier.GenerateToken("user-1", time.Minute)
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/api/artists", strings.NewReader(`{"name":"x"}`), "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)

	// reads stay public
	rec = env.do(t, http.MethodGet, "/api/artists", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)
	rec := env.do(t, http.MethodOptions, "/api/stream", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Range")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Resolved-Key")
}

func TestHealthDebugAndMetrics(t *testing.T) {
	env := newTestEnv(t, config.DeliveryDirect)
	env.store.PutBytes("proj-1/1-a.mp3", audio(3), "audio/mpeg")

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"database":{"ok":true},"storage":{"ok":true}}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/debug/storage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/debug/storage?projectId=proj-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Objects []storage.ObjectInfo `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Objects, 1)
	assert.Equal(t, "1-a.mp3", listing.Objects[0].Name)

	env.do(t, http.MethodGet, "/api/stream?path=proj-1/1-a.mp3", nil)
	env.do(t, http.MethodGet, "/api/stream?path=proj-1/gone.mp3", nil)

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `trackshelf_media_resolutions_total{kind="exact"} 1`)
	assert.Contains(t, body, `trackshelf_media_resolutions_total{kind="not_found"} 1`)
	assert.Contains(t, body, `trackshelf_http_requests_total{code="200",method="GET",route="/api/stream"} 1`)
	assert.Contains(t, body, "trackshelf_media_candidates_tried_count "+strconv.Itoa(1))
}
