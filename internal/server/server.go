// Package server 对外暴露JSON HTTP接口
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/core"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RequestIDHeader 请求ID头部,客户端传入时沿用
const RequestIDHeader = "X-Request-ID"

// Scraper 服务依赖的调度能力
type Scraper interface {
	Run(ctx context.Context, job models.Job) (core.Outcome, error)
	Stats() models.PoolStats
	CacheLen() int
}

// Options 服务配置
type Options struct {
	Config   core.ServerConfig
	Registry *prometheus.Registry // 为空时不注册 /metrics
	Logger   zerolog.Logger
}

// Server HTTP服务
type Server struct {
	scraper Scraper
	options Options
	started time.Time
}

// New 创建服务
func New(scraper Scraper, options Options) *Server {
	return &Server{
		scraper: scraper,
		options: options,
		started: time.Now(),
	}
}

// Handler 路由和中间件
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/albums", s.handleAlbums)
	mux.HandleFunc("GET /api/album", s.handleAlbum)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.options.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.options.Registry, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = hlog.AccessHandler(accessLog)(handler)
	handler = requestID(handler)
	handler = hlog.NewHandler(s.options.Logger)(handler)
	return handler
}

// ListenAndServe 启动服务,ctx结束后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context) error {
	cfg := s.options.Config
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.options.Logger.Info().Msgf("🚀 HTTP服务已启动: http://%s", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.options.Logger.Info().Msg("收到退出信号,正在关闭HTTP服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type itemsResponse struct {
	Count int                    `json:"count"`
	Items []models.ExtractedItem `json:"items"`
	Page  int                    `json:"page,omitempty"`
}

type errorResponse struct {
	Error   models.ErrorKind `json:"error"`
	Message string           `json:"message,omitempty"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Idle          int    `json:"idle"`
	Waiting       int    `json:"waiting"`
	InUse         int    `json:"in_use"`
	Recycling     int    `json:"recycling"`
	Capacity      int    `json:"capacity"`
	WaitlistLimit int    `json:"waitlist_limit"`
	Generation    int64  `json:"generation"`
	CacheEntries  int    `json:"cache_entries"`
	Uptime        string `json:"uptime"`
}

func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:   models.KindInvalidPage,
				Message: "page必须是大于0的整数",
			})
			return
		}
		page = n
	}

	outcome, err := s.scraper.Run(r.Context(), models.NewHomeJob(page))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeItems(w, outcome, page)
}

func (s *Server) handleAlbum(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	target := query.Get("url")
	if target == "" {
		target = query.Get("u")
	}
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   models.KindMissingURL,
			Message: "缺少参数: /api/album?url=<相册地址>",
		})
		return
	}

	outcome, err := s.scraper.Run(r.Context(), models.NewAlbumJob(target))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeItems(w, outcome, 0)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.scraper.Stats()
	status := "ok"
	if stats.Closed {
		status = "closing"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		Idle:          stats.Idle,
		Waiting:       stats.Waiting,
		InUse:         stats.InUse,
		Recycling:     stats.Recycling,
		Capacity:      stats.Capacity,
		WaitlistLimit: stats.WaitlistLimit,
		Generation:    stats.Generation,
		CacheEntries:  s.scraper.CacheLen(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
	})
}

func writeItems(w http.ResponseWriter, outcome core.Outcome, page int) {
	items := outcome.Items
	if items == nil {
		items = []models.ExtractedItem{}
	}
	if outcome.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, itemsResponse{Count: len(items), Items: items, Page: page})
}

// writeError 按错误类别写出状态码和错误体
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		// 客户端已断开,不再写响应
		hlog.FromRequest(r).Debug().Err(err).Msg("客户端已断开")
		return
	}

	kind := models.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("kind", string(kind)).Msg("请求处理失败")
	}

	if kind == models.KindPoolSaturated {
		seconds := int(math.Ceil(s.options.Config.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	resp := errorResponse{Error: kind}
	var se *models.ScrapeError
	if errors.As(err, &se) {
		resp.Message = se.Message
	}
	writeJSON(w, status, resp)
}

// StatusFor 错误类别对应的HTTP状态码
func StatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindPoolSaturated, models.KindBrowserDisconnected, models.KindPoolClosed:
		return http.StatusServiceUnavailable
	case models.KindNoContentFound:
		return http.StatusBadGateway
	case models.KindNavigationTimeout:
		return http.StatusGatewayTimeout
	case models.KindInvalidURL, models.KindMissingURL, models.KindInvalidPage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestID 沿用或生成请求ID,写入响应头和请求日志
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := hlog.FromRequest(r)
		logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("请求完成")
}
