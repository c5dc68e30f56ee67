// Package library adds and removes tracks: it keeps the object store and the
// track records in step.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"TrackShelf/core/delivery"
	"TrackShelf/core/events"
	"TrackShelf/core/media"
	"TrackShelf/logger"
	"TrackShelf/model"
	"TrackShelf/storage"

	"github.com/google/uuid"
)

var (
	ErrInvalidUpload = errors.New("library: invalid upload")
	ErrTooLarge      = errors.New("library: file too large")
)

var allowedContentTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/mp4":   true,
	"audio/x-m4a": true,
}

// TrackStore is the part of the track repository the library writes through.
type TrackStore interface {
	GetTrack(ctx context.Context, id string) (*model.Track, error)
	CreateTrack(ctx context.Context, track *model.Track) error
	DeleteTrack(ctx context.Context, id string) error
}

// ObjectStore is the part of storage.ObjectStore the library writes through.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	SignedUploadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Bucket() string
}

// Service 曲目上传、登记与删除
type Service struct {
	store     ObjectStore
	tracks    TrackStore
	events    events.Publisher
	maxBytes  int64
	uploadTTL time.Duration
	now       func() time.Time
}

// Options configures a Service.
type Options struct {
	MaxBytes  int64         // 0 disables the size check
	UploadTTL time.Duration // lifetime of signed upload URLs
	Events    events.Publisher
}

func NewService(store ObjectStore, tracks TrackStore, opts Options) *Service {
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = 2 * time.Hour
	}
	return &Service{
		store:     store,
		tracks:    tracks,
		events:    opts.Events,
		maxBytes:  opts.MaxBytes,
		uploadTTL: opts.UploadTTL,
		now:       time.Now,
	}
}

// Upload is one incoming audio file.
type Upload struct {
	ProjectID   string
	Title       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CheckContentType accepts the audio types browsers report for mp3, wav and
// m4a. An empty or generic type is accepted when the filename has an audio
// extension.
func CheckContentType(contentType, filename string) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if allowedContentTypes[ct] {
		return nil
	}
	if (ct == "" || ct == "application/octet-stream") && media.IsAudioKey(filename) {
		return nil
	}
	return fmt.Errorf("%w: invalid file type, allowed: mp3, wav, m4a", ErrInvalidUpload)
}

// checkProjectID 新对象键的容器段必须是项目 UUID
func checkProjectID(projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return fmt.Errorf("%w: projectId is required", ErrInvalidUpload)
	}
	// uuid.Parse 也接受 {..} 与 urn:uuid: 形式，这里只收标准格式
	if id, err := uuid.Parse(projectID); err != nil || id.String() != strings.ToLower(projectID) {
		return fmt.Errorf("%w: projectId must be a UUID", ErrInvalidUpload)
	}
	return nil
}

// Upload stores the file and inserts its track. The object is removed again
// when the insert fails.
func (s *Service) Upload(ctx context.Context, up Upload) (*model.Track, error) {
	if strings.TrimSpace(up.ProjectID) == "" || up.Body == nil {
		return nil, fmt.Errorf("%w: file and projectId are required", ErrInvalidUpload)
	}
	if err := checkProjectID(up.ProjectID); err != nil {
		return nil, err
	}
	if s.maxBytes > 0 && up.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: max %s", ErrTooLarge, storage.FormatSize(s.maxBytes))
	}
	if err := CheckContentType(up.ContentType, up.Filename); err != nil {
		return nil, err
	}

	key := media.NewObjectKey(up.ProjectID, up.Filename, s.now())
	logger.Info("[uploads] start",
		logger.String("projectId", up.ProjectID),
		logger.String("filename", up.Filename),
		logger.String("filePath", key),
		logger.Int64("size", up.Size))

	if err := s.store.Put(ctx, key, up.Body, up.Size, delivery.ContentTypeFor(key)); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	track := &model.Track{
		ProjectID: up.ProjectID,
		Title:     titleFor(up.Title, up.Filename),
		FilePath:  &key,
	}
	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			logger.Error("[uploads] rollback failed, object orphaned",
				logger.String("filePath", key),
				logger.ErrorField(rmErr))
		}
		return nil, fmt.Errorf("create track: %w", err)
	}

	logger.Info("[uploads] success",
		logger.String("projectId", up.ProjectID),
		logger.String("filePath", key),
		logger.String("trackId", track.ID))
	s.publish(events.TrackCreated, track)
	return track, nil
}

// Register records a track for an object the client already uploaded. The
// object must live in the project's container.
func (s *Service) Register(ctx context.Context, projectID, title, filePath string) (*model.Track, error) {
	if err := checkProjectID(projectID); err != nil {
		return nil, err
	}
	key, ok := media.Normalize(filePath, s.store.Bucket())
	if !ok {
		return nil, fmt.Errorf("%w: file_path must be an object key (projectId/filename.ext)", ErrInvalidUpload)
	}
	if container, _ := media.SplitKey(key); !strings.EqualFold(container, projectID) {
		return nil, fmt.Errorf("%w: file_path must be inside the project folder", ErrInvalidUpload)
	}
	track := &model.Track{ProjectID: projectID, Title: titleFor(title, ""), FilePath: &key}
	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}
	s.publish(events.TrackCreated, track)
	return track, nil
}

// SignedUpload is a pre-authorized upload target.
type SignedUpload struct {
	Path      string `json:"path"`
	SignedURL string `json:"signedUrl"`
}

// CreateUploadURL reserves a key for a client-side upload.
func (s *Service) CreateUploadURL(ctx context.Context, projectID, filename, contentType string) (*SignedUpload, error) {
	if err := checkProjectID(projectID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	if err := CheckContentType(contentType, filename); err != nil {
		return nil, err
	}
	if !media.IsAudioKey(filename) {
		filename += ".mp3"
	}

	key := media.NewObjectKey(projectID, filename, s.now())
	url, err := s.store.SignedUploadURL(ctx, key, s.uploadTTL)
	if err != nil {
		return nil, fmt.Errorf("create upload url: %w", err)
	}
	return &SignedUpload{Path: key, SignedURL: url}, nil
}

// Delete removes the track row; its object is removed first on a best-effort
// basis. Legacy file_path shapes are normalized to the object key first.
func (s *Service) Delete(ctx context.Context, id string) error {
	track, err := s.tracks.GetTrack(ctx, id)
	if err != nil {
		return err
	}
	if key, ok := media.Normalize(track.StoragePath(), s.store.Bucket()); ok {
		if err := s.store.Remove(ctx, key); err != nil {
			logger.Warn("remove track object failed",
				logger.String("trackId", id),
				logger.String("filePath", key),
				logger.ErrorField(err))
		}
	} else if track.StoragePath() != "" {
		logger.Warn("track file_path is not an object key, object left in place",
			logger.String("trackId", id),
			logger.String("filePath", track.StoragePath()))
	}
	if err := s.tracks.DeleteTrack(ctx, id); err != nil {
		return err
	}
	s.publish(events.TrackDeleted, track)
	return nil
}

func (s *Service) publish(typ events.EventType, track *model.Track) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{Type: typ, ProjectID: track.ProjectID, Data: track})
}

// titleFor 优先使用显式标题，其次是去掉扩展名的文件名
func titleFor(title, filename string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base = strings.TrimSpace(base); base != "" && base != "." {
		return base
	}
	return "Untitled"
}
