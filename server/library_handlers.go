package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"TrackShelf/core/events"
	"TrackShelf/core/library"
	"TrackShelf/logger"
	"TrackShelf/model"
	"TrackShelf/repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// 内存中最多缓存 32MB 的 multipart 数据，其余写入临时文件
const multipartMemory = 32 << 20

// decodeBody decodes a JSON object into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return inputErr("invalid JSON body")
}

// checkID 记录 id 一律是 UUID，和 /api/stream?id= 的校验保持一致
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return inputErr("id must be a UUID")
	}
	return nil
}

// pathID returns the {id} route variable, validated.
func pathID(r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	return id, checkID(id)
}

func (s *Server) publish(typ events.EventType, projectID string, data any) {
	s.hub.Publish(events.Event{Type: typ, ProjectID: projectID, Data: data})
}

// 艺人

func (s *Server) ListArtistsHandler(w http.ResponseWriter, r *http.Request) {
	artists, err := s.artists.ListArtists(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	writeJSON(w, http.StatusOK, artists)
}

func (s *Server) CreateArtistHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, r, inputErr("name is required"))
		return
	}
	artist, err := s.artists.CreateArtist(r.Context(), body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(events.ArtistCreated, "", artist)
	writeJSON(w, http.StatusOK, artist)
}

func (s *Server) UpdateArtistHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.ID) == "" || strings.TrimSpace(body.Name) == "" {
		writeError(w, r, inputErr("id and name are required"))
		return
	}
	if err := checkID(body.ID); err != nil {
		writeError(w, r, err)
		return
	}
	artist, err := s.artists.RenameArtist(r.Context(), body.ID, body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(events.ArtistUpdated, "", artist)
	writeJSON(w, http.StatusOK, artist)
}

// DeleteArtistHandler deletes ?id= together with its projects and tracks.
func (s *Server) DeleteArtistHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, r, inputErr("id query param is required"))
		return
	}
	if err := checkID(id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.artists.DeleteArtist(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(events.ArtistDeleted, "", map[string]string{"id": id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) ListArtistProjectsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	projects, err := s.projects.ListProjectsByArtist(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// 项目

func (s *Server) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		ArtistID    *string `json:"artist_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, r, inputErr("name is required"))
		return
	}
	project := &model.Project{
		Name:        body.Name,
		Description: body.Description,
		ArtistID:    body.ArtistID,
	}
	if err := s.projects.CreateProject(r.Context(), project); err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(events.ProjectCreated, project.ID, project)
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	project, err := s.projects.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, notFound("Not found"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// UpdateProjectHandler changes name and/or description. "description": null
// clears the description; an absent key leaves it alone.
func (s *Server) UpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body map[string]json.RawMessage
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	var name *string
	if raw, ok := body["name"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			name = &v
		}
	}
	var description **string
	if raw, ok := body["description"]; ok {
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			writeError(w, r, inputErr("description must be a string or null"))
			return
		}
		description = &v
	}

	project, err := s.projects.UpdateProject(r.Context(), id, name, description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(events.ProjectUpdated, project.ID, project)
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.projects.DeleteProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(events.ProjectDeleted, id, map[string]string{"id": id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) ListProjectTracksHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tracks, err := s.tracks.ListTracksByProject(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	writeJSON(w, http.StatusOK, tracks)
}

// 曲目

// CreateTrackHandler registers an object that was uploaded through a signed
// upload URL.
func (s *Server) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID string `json:"projectId"`
		Title     string `json:"title"`
		Name      string `json:"name"`
		FilePath  string `json:"file_path"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.ProjectID) == "" {
		writeError(w, r, inputErr("projectId is required"))
		return
	}
	if strings.TrimSpace(body.FilePath) == "" {
		writeError(w, r, inputErr("file_path is required"))
		return
	}
	title := body.Name
	if strings.TrimSpace(title) == "" {
		title = body.Title
	}

	track, err := s.library.Register(r.Context(), body.ProjectID, title, body.FilePath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"track": track})
}

func (s *Server) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID    string   `json:"id"`
		BPM   *float64 `json:"bpm"`
		Key   *string  `json:"key"`
		Notes *string  `json:"notes"`
		Name  *string  `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.ID) == "" {
		writeError(w, r, inputErr("id is required"))
		return
	}
	if err := checkID(body.ID); err != nil {
		writeError(w, r, err)
		return
	}

	track, err := s.tracks.UpdateTrack(r.Context(), body.ID, model.TrackPatch{
		Title: body.Name,
		BPM:   body.BPM,
		Key:   body.Key,
		Notes: body.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(events.TrackUpdated, track.ProjectID, track)
	writeJSON(w, http.StatusOK, track)
}

// DeleteTrackHandler removes the track ?id= and, best effort, its object.
func (s *Server) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, r, inputErr("id is required"))
		return
	}
	if err := checkID(id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.library.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// 上传

// UploadHandler accepts multipart form data: file, projectId and an optional
// title.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.UploadMaxBytes > 0 {
		// 预留 1MB 给其他表单字段
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, library.ErrTooLarge)
			return
		}
		writeError(w, r, inputErr("file and projectId are required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, inputErr("file and projectId are required"))
		return
	}
	defer file.Close()

	track, err := s.library.Upload(r.Context(), library.Upload{
		ProjectID:   strings.TrimSpace(r.FormValue("projectId")),
		Title:       r.FormValue("title"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	writeJSON(w, http.StatusOK, map[string]any{"track": track})
}

// CreateUploadURLHandler returns {path, signedUrl} for a client-side PUT.
func (s *Server) CreateUploadURLHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID   string `json:"projectId"`
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	signed, err := s.library.CreateUploadURL(r.Context(), body.ProjectID, body.Filename, body.ContentType)
	if err != nil {
		if !errors.Is(err, library.ErrInvalidUpload) {
			err = upstream("could not create upload URL", err)
		}
		writeError(w, r, err)
		return
	}
	logger.Info("[uploads/create] signed upload url",
		logger.String("projectId", body.ProjectID),
		logger.String("path", signed.Path))
	writeJSON(w, http.StatusOK, signed)
}
