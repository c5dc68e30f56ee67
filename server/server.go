package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"TrackShelf/cache"
	"TrackShelf/config"
	"TrackShelf/core/auth"
	"TrackShelf/core/events"
	"TrackShelf/core/library"
	"TrackShelf/core/media"
	"TrackShelf/db"
	"TrackShelf/logger"
	"TrackShelf/repository"
	"TrackShelf/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the record store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of a Server. DB, RepairLock, Registry and
// HTTPClient are optional.
type Deps struct {
	Config     *config.Config
	Artists    repository.ArtistRepository
	Projects   repository.ProjectRepository
	Tracks     repository.TrackRepository
	Store      storage.ObjectStore
	DB         Pinger
	RepairLock media.RepairLocker
	Registry   *prometheus.Registry
	HTTPClient *http.Client
}

// Server 持有所有处理器共享的依赖
type Server struct {
	cfg      *config.Config
	artists  repository.ArtistRepository
	projects repository.ProjectRepository
	tracks   repository.TrackRepository
	store    storage.ObjectStore
	db       Pinger

	library  *library.Service
	opened   *media.Resolver // resolves and opens the body, for direct delivery
	stated   *media.Resolver // resolves by stat only, before signing a URL
	repairer *media.PathRepairer
	hub      *events.Hub
	verifier *auth.Verifier
	metrics  *Metrics
	client   *http.Client

	router *mux.Router
}

// New wires a Server and its routes. The event hub starts running
// immediately; call Close when done.
func New(deps Deps) *Server {
	cfg := deps.Config
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	metrics := MustNewMetrics(reg)
	hub := events.NewHub(originChecker(cfg.CORSOrigin))
	go hub.Run()

	s := &Server{
		cfg:      cfg,
		artists:  deps.Artists,
		projects: deps.Projects,
		tracks:   deps.Tracks,
		store:    deps.Store,
		db:       deps.DB,
		opened:   media.NewResolver(media.StoreFetcher{Store: deps.Store}, media.ListNames(deps.Store)),
		stated:   media.NewResolver(media.StatFetcher{Store: deps.Store}, media.ListNames(deps.Store)),
		hub:      hub,
		verifier: auth.NewVerifier(cfg.JWTSecret),
		metrics:  metrics,
		client:   client,
	}
	s.library = library.NewService(deps.Store, deps.Tracks, library.Options{
		MaxBytes: cfg.UploadMaxBytes,
		Events:   hub,
	})
	s.repairer = media.NewPathRepairer(deps.Tracks, media.RepairOptions{
		Lock:       deps.RepairLock,
		OnRepaired: s.publishRepair,
		Observe:    metrics.ObserveRepair,
	})
	s.router = s.routes(reg)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the event hub and waits for pending path repairs.
func (s *Server) Close() {
	s.hub.Stop()
	s.repairer.Wait()
}

func (s *Server) routes(gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers",
				"Content-Length, Content-Range, Content-Disposition, X-Resolved-Key, X-Resolution, X-Candidates-Tried, X-Probe-Status, X-Probe-Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})
	router.Use(s.metrics.Middleware)

	requireAuth := s.verifier.Middleware(writeAuthError)
	protected := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}

	// 媒体播放与下载
	router.HandleFunc("/api/stream", s.StreamHandler).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	router.HandleFunc("/api/download", s.DownloadHandler).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)

	// 艺人
	router.HandleFunc("/api/artists", s.ListArtistsHandler).Methods(http.MethodGet)
	router.Handle("/api/artists", protected(s.CreateArtistHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/api/artists", protected(s.UpdateArtistHandler)).Methods(http.MethodPatch)
	router.Handle("/api/artists", protected(s.DeleteArtistHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/artists/{id}/projects", s.ListArtistProjectsHandler).Methods(http.MethodGet)

	// 项目
	router.HandleFunc("/api/projects", s.ListProjectsHandler).Methods(http.MethodGet)
	router.Handle("/api/projects", protected(s.CreateProjectHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/projects/{id}", s.GetProjectHandler).Methods(http.MethodGet)
	router.Handle("/api/projects/{id}", protected(s.UpdateProjectHandler)).Methods(http.MethodPatch, http.MethodOptions)
	router.Handle("/api/projects/{id}", protected(s.DeleteProjectHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/projects/{id}/tracks", s.ListProjectTracksHandler).Methods(http.MethodGet)

	// 曲目
	router.Handle("/api/tracks", protected(s.CreateTrackHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/api/tracks", protected(s.UpdateTrackHandler)).Methods(http.MethodPatch)
	router.Handle("/api/tracks", protected(s.DeleteTrackHandler)).Methods(http.MethodDelete)

	// 上传
	router.Handle("/api/uploads", protected(s.UploadHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/api/uploads/create", protected(s.CreateUploadURLHandler)).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/api/debug/storage", s.DebugStorageHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/health", s.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/events", s.hub.ServeWS).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

func (s *Server) publishRepair(trackID, oldKey, newKey string) {
	s.hub.Publish(events.Event{
		Type: events.TrackPathRepaired,
		Data: map[string]string{
			"id":        trackID,
			"old_path":  oldKey,
			"file_path": newKey,
		},
	})
}

// originChecker 按 CORS_ORIGIN 校验 WebSocket 来源
func originChecker(allowed string) func(r *http.Request) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" || allowed == "*" {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || strings.EqualFold(origin, allowed)
	}
}

// Start initializes and starts the HTTP server.
func Start(cfg *config.Config) error {
	store, err := storage.New(cfg)
	if err != nil {
		return err
	}
	if ms, ok := store.(*storage.MinioStore); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := ms.EnsureBucket(ctx, cfg.StorageRegion)
		cancel()
		if err != nil {
			logger.Warn("MinIO bucket check failed", logger.String("bucket", cfg.StorageBucket), logger.ErrorField(err))
		}
	}

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB(gdb)
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}

	var lock media.RepairLocker
	if cfg.RedisEnabled() {
		rdb, err := db.ConnectRedis(cfg)
		if err != nil {
			// Redis 只用于写回互斥，不可用时继续运行
			logger.Warn("Redis unavailable, path repair runs without a lock", logger.ErrorField(err))
		} else {
			defer rdb.Close()
			lock = cache.NewRepairLock(rdb, cache.DefaultRepairLockTTL)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := New(Deps{
		Config:     cfg,
		Artists:    repository.NewArtistRepository(gdb),
		Projects:   repository.NewProjectRepository(gdb),
		Tracks:     repository.NewTrackRepository(gdb),
		Store:      store,
		DB:         sqlDB,
		RepairLock: lock,
		Registry:   reg,
	})
	defer srv.Close()

	// 设置服务器超时
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			logger.String("addr", cfg.HTTPAddr),
			logger.String("storage", cfg.StorageDriver),
			logger.String("bucket", cfg.StorageBucket),
			logger.String("delivery", cfg.DeliveryMode),
			logger.Bool("auth", cfg.JWTSecret != ""))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	select {
	case <-stop:
	case err := <-errCh:
		return err
	}
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
