package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"TrackShelf/config"
	"TrackShelf/core/delivery"
	"TrackShelf/core/media"
	"TrackShelf/logger"
	"TrackShelf/repository"
)

// mediaRequest 是校验后的播放/下载请求
type mediaRequest struct {
	key      string // normalized key to resolve
	trackID  string // set when addressed by id
	recorded string // file_path as stored on the track
	title    string
	download bool
	filename string
}

// StreamHandler plays (or, with download=1, downloads) a track's audio.
// Query: path=<object key or storage URL> | id=<track uuid>.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	s.serveMedia(w, r, false)
}

// DownloadHandler is StreamHandler with download forced on.
func (s *Server) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	s.serveMedia(w, r, true)
}

func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request, forceDownload bool) {
	req, err := s.parseMediaRequest(r, forceDownload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts := delivery.Options{Download: req.download}
	if req.download {
		opts.Filename = delivery.DisplayName(req.filename, req.title, req.key)
	}

	mode := s.cfg.DeliveryMode
	if mode == config.DeliveryRedirect && req.download {
		// a redirect cannot carry Content-Disposition
		mode = config.DeliveryProxy
	}

	if mode == config.DeliveryDirect {
		s.serveDirect(w, r, req, opts)
		return
	}
	s.serveSigned(w, r, req, opts, mode)
}

func (s *Server) parseMediaRequest(r *http.Request, forceDownload bool) (*mediaRequest, error) {
	q := r.URL.Query()
	rawPath := strings.TrimSpace(q.Get("path"))
	id := strings.TrimSpace(q.Get("id"))

	req := &mediaRequest{
		download: forceDownload || isTruthy(q.Get("download")),
		filename: strings.TrimSpace(q.Get("filename")),
	}

	switch {
	case rawPath != "":
		key, ok := media.Normalize(rawPath, s.store.Bucket())
		if !ok {
			return nil, inputErr("path must be an object key (projectId/filename.ext)")
		}
		req.key = key
		return req, nil
	case id != "":
		if err := checkID(id); err != nil {
			return nil, err
		}
		track, err := s.tracks.GetTrack(r.Context(), id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, notFound("track not found")
			}
			return nil, upstream("failed to load track", err)
		}
		key, ok := media.Normalize(track.StoragePath(), s.store.Bucket())
		if !ok {
			return nil, notFound("track has no audio file")
		}
		req.key = key
		req.trackID = track.ID
		req.recorded = track.StoragePath()
		req.title = track.Title
		return req, nil
	default:
		return nil, inputErr("path or id query parameter is required")
	}
}

// serveDirect 从对象存储读取并直接写回客户端
func (s *Server) serveDirect(w http.ResponseWriter, r *http.Request, req *mediaRequest, opts delivery.Options) {
	res, err := s.resolve(r.Context(), s.opened, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer res.Close()
	delivery.WriteObject(w, r, res.Object, diagnostics(res), opts)
}

// serveSigned resolves by stat, signs the resolved key, then redirects or
// proxies.
func (s *Server) serveSigned(w http.ResponseWriter, r *http.Request, req *mediaRequest, opts delivery.Options, mode string) {
	res, err := s.resolve(r.Context(), s.stated, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer res.Close()

	signedURL, err := s.store.SignedURL(r.Context(), res.Key, s.cfg.SignedURLTTL)
	if err != nil {
		writeError(w, r, upstream("could not create signed URL", err))
		return
	}

	diag := diagnostics(res)
	if mode == config.DeliveryRedirect {
		delivery.Redirect(w, r, s.client, signedURL, s.cfg.ProbeTimeout, diag)
		return
	}

	if err := delivery.Proxy(w, r, s.client, signedURL, res.Key, diag, opts); err != nil {
		var ue *delivery.UpstreamError
		if errors.As(err, &ue) {
			logger.Warn("proxy failed",
				logger.String("key", res.Key),
				logger.Int("status", ue.Status),
				logger.String("message", ue.Message))
			writeJSON(w, ue.Status, map[string]string{"error": ue.Message})
			return
		}
		writeError(w, r, err)
	}
}

// resolve finds the object for req and schedules a write-back when the track
// record does not hold the resolved key verbatim.
func (s *Server) resolve(ctx context.Context, resolver *media.Resolver, req *mediaRequest) (*media.Resolved, error) {
	res, err := resolver.Resolve(ctx, req.key)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			s.metrics.ObserveResolution("not_found", 0)
			logger.Info("media not found",
				logger.String("key", req.key),
				logger.String("trackId", req.trackID),
				logger.ErrorField(err))
			return nil, notFound("file not found in storage")
		}
		s.metrics.ObserveResolution("error", 0)
		return nil, err
	}
	s.metrics.ObserveResolution(string(res.Kind), res.Tried)

	if req.trackID != "" && res.Key != req.recorded {
		s.repairer.Schedule(req.trackID, req.recorded, res.Key)
	}
	return res, nil
}

func diagnostics(res *media.Resolved) delivery.Diagnostics {
	return delivery.Diagnostics{
		ResolvedKey:     res.Key,
		Resolution:      string(res.Kind),
		CandidatesTried: res.Tried,
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
