package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"TrackShelf/logger"
	"TrackShelf/storage"
)

const healthTimeout = 5 * time.Second

// DebugStorageHandler lists the objects stored under ?projectId=.
func (s *Server) DebugStorageHandler(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if projectID == "" {
		writeError(w, r, inputErr("projectId is required"))
		return
	}

	logger.Info("[debug/storage] list objects start", logger.String("projectId", projectID))
	objects, err := s.store.List(r.Context(), projectID)
	if err != nil {
		logger.Error("[debug/storage] list error", logger.String("projectId", projectID), logger.ErrorField(err))
		writeError(w, r, upstream("failed to list storage objects", err))
		return
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	logger.Info("[debug/storage] list objects success",
		logger.String("projectId", projectID),
		logger.Int("count", len(objects)))

	w.Header().Set("Cache-Control", "no-store, max-age=0")
	writeJSON(w, http.StatusOK, map[string]any{
		"projectId": projectID,
		"bucket":    s.store.Bucket(),
		"objects":   objects,
		"stats":     storage.Summarize(objects),
	})
}

type componentHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthHandler pings the record store and lists the bucket root.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	database := componentHealth{OK: true}
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			database = componentHealth{Error: err.Error()}
		}
	}

	store := componentHealth{OK: true}
	if _, err := s.store.ListPrefix(ctx, "", false); err != nil {
		store = componentHealth{Error: err.Error()}
	}

	ok := database.OK && store.OK
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	writeJSON(w, status, map[string]any{
		"ok":       ok,
		"database": database,
		"storage":  store,
	})
}
