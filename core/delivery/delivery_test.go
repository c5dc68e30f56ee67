package delivery

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TrackShelf/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("p1/a.mp3"))
	assert.Equal(t, "audio/wav", ContentTypeFor("p1/a.WAV"))
	assert.Equal(t, "audio/mp4", ContentTypeFor("p1/a.m4a"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("p1/a.flac"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("p1/noext"))
}

func TestSanitizeFilename(t *testing.T) {
	got := SanitizeFilename("../../etc/passwd")
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, "..")
	assert.False(t, strings.HasPrefix(got, "."))
	assert.True(t, strings.HasSuffix(got, ".mp3"))

	assert.Equal(t, "My_Song.wav", SanitizeFilename("My Song.wav"))
	assert.Equal(t, "take.M4A", SanitizeFilename("take.M4A"))
	assert.Equal(t, "notes.txt.mp3", SanitizeFilename("notes.txt"))
	assert.Equal(t, "audio.mp3", SanitizeFilename(""))

	long := SanitizeFilename(strings.Repeat("x", 300) + ".wav")
	assert.Len(t, long, 200)
	assert.True(t, strings.HasSuffix(long, ".wav"))

	long = SanitizeFilename(strings.Repeat("x", 300))
	assert.Len(t, long, 200)
	assert.True(t, strings.HasSuffix(long, ".mp3"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "mine.wav", DisplayName(" mine.wav ", "Title", "p1/1-a.mp3"))
	assert.Equal(t, "Take_One.wav", DisplayName("", "Take One", "p1/1-a.WAV"))
	assert.Equal(t, "1-a.mp3", DisplayName("", "", "p1/1-a.mp3"))
}

func seekableObject(key string, size int) *storage.Object {
	data := bytes.Repeat([]byte{0x42}, size)
	return &storage.Object{
		Key:  key,
		Body: struct {
			io.ReadSeeker
			io.Closer
		}{bytes.NewReader(data), io.NopCloser(nil)},
		Size: int64(size),
	}
}

func TestWriteObjectFullBody(t *testing.T) {
	obj := seekableObject("proj-1/1699999999-take1.wav", 120000)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)

	WriteObject(rec, req, obj, Diagnostics{ResolvedKey: obj.Key, Resolution: "exact", CandidatesTried: 1}, Options{})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "120000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, NoStore, rec.Header().Get("Cache-Control"))
	assert.Equal(t, obj.Key, rec.Header().Get(HeaderResolvedKey))
	assert.Equal(t, "exact", rec.Header().Get(HeaderResolution))
	assert.Equal(t, "1", rec.Header().Get(HeaderCandidatesTried))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 120000, rec.Body.Len())
}

func TestWriteObjectRange(t *testing.T) {
	obj := seekableObject("p1/a.mp3", 1000)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	req.Header.Set("Range", "bytes=0-99")

	WriteObject(rec, req, obj, Diagnostics{}, Options{})

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, 100, rec.Body.Len())
}

func TestWriteObjectStreamingBody(t *testing.T) {
	obj := &storage.Object{Key: "p1/a.m4a", Body: io.NopCloser(strings.NewReader("abcd")), Size: 4}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)

	WriteObject(rec, req, obj, Diagnostics{}, Options{Download: true, Filename: "my.m4a"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="my.m4a"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "abcd", rec.Body.String())
}

func audioUpstream(t *testing.T, size int) *httptest.Server {
	data := bytes.Repeat([]byte{0x7f}, size)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProxyRange(t *testing.T) {
	upstream := audioUpstream(t, 1000)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	req.Header.Set("Range", "bytes=0-99")

	err := Proxy(rec, req, upstream.Client(), upstream.URL+"/music-files/p1/a.mp3", "p1/a.mp3", Diagnostics{ResolvedKey: "p1/a.mp3"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, 100, rec.Body.Len())
}

func TestProxyFullBodyAndDownload(t *testing.T) {
	upstream := audioUpstream(t, 500)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	req.Header.Set("Range", "bytes=0-9")

	err := Proxy(rec, req, upstream.Client(), upstream.URL, "p1/a.wav", Diagnostics{}, Options{Download: true, Filename: "a.wav"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "500", rec.Header().Get("Content-Length"))
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="a.wav"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 500, rec.Body.Len())
}

func TestProxyUnsatisfiableRange(t *testing.T) {
	upstream := audioUpstream(t, 100)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	req.Header.Set("Range", "bytes=500-600")

	err := Proxy(rec, req, upstream.Client(), upstream.URL, "p1/a.mp3", Diagnostics{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */100", rec.Header().Get("Content-Range"))
	assert.Zero(t, rec.Body.Len())
}

func TestProxyUnsatisfiableRangeWithoutHeader(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	req.Header.Set("Range", "bytes=10-")
	require.NoError(t, Proxy(rec, req, upstream.Client(), upstream.URL, "p1/a.mp3", Diagnostics{}, Options{}))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */0", rec.Header().Get("Content-Range"))
}

func TestProxyUpstreamErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		want        int
	}{
		{"json error page", http.StatusOK, "application/json", http.StatusBadGateway},
		{"html error page", http.StatusBadRequest, "text/html; charset=utf-8", http.StatusBadGateway},
		{"server error", http.StatusInternalServerError, "text/plain", http.StatusBadGateway},
		{"not found mirrored", http.StatusNotFound, "text/plain", http.StatusNotFound},
		{"forbidden mirrored", http.StatusForbidden, "text/plain", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"Object not found"}`))
			}))
			defer upstream.Close()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
			err := Proxy(rec, req, upstream.Client(), upstream.URL, "p1/a.mp3", Diagnostics{}, Options{})

			var ue *UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.want, ue.Status)
			assert.Empty(t, rec.Header().Get("Content-Type"))
		})
	}
}

func TestRedirect(t *testing.T) {
	upstream := audioUpstream(t, 10)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)

	Redirect(rec, req, upstream.Client(), upstream.URL+"/signed?token=x", time.Second, Diagnostics{ResolvedKey: "p1/a.mp3"})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, upstream.URL+"/signed?token=x", rec.Header().Get("Location"))
	assert.Equal(t, "200", rec.Header().Get(HeaderProbeStatus))
	assert.Equal(t, "application/octet-stream", rec.Header().Get(HeaderProbeType))
	assert.Equal(t, NoStore, rec.Header().Get("Cache-Control"))
	assert.Equal(t, "p1/a.mp3", rec.Header().Get(HeaderResolvedKey))
}

func TestRedirectProbeFailureDoesNotChangeResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)

	Redirect(rec, req, http.DefaultClient, "http://127.0.0.1:1/signed", 200*time.Millisecond, Diagnostics{})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "error", rec.Header().Get(HeaderProbeStatus))
}
