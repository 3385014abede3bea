package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sessions-portal/logger"
)

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Duration("took", time.Since(start)))
	})
}

// NewRouter mounts every endpoint of the portal.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(accessLog)

	api := router.PathPrefix("/api/v1").Subrouter()

	// 用户认证
	api.HandleFunc("/users/register", h.RegisterHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/users/login", h.LoginHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/users/login/google", h.GoogleLoginHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/users/token/refresh", h.RefreshHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/users/me", h.AuthMiddleware(h.MeHandler)).Methods(http.MethodGet, http.MethodOptions)

	// 事件
	api.HandleFunc("/events/event_types", h.EventTypesHandler).Methods(http.MethodGet)
	api.HandleFunc("/events/all", h.ListEventsHandler).Methods(http.MethodGet)
	api.HandleFunc("/events/recommendation/{event_id:[0-9]+}", h.RecommendationsHandler).Methods(http.MethodGet)
	api.HandleFunc("/events/tags", h.ListTagsHandler).Methods(http.MethodGet)
	api.HandleFunc("/events/tags", h.StaffOnly(h.CreateTagHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/events/playlists", h.ListPlaylistsHandler).Methods(http.MethodGet)
	api.HandleFunc("/events/playlists", h.StaffOnly(h.CreatePlaylistHandler)).Methods(http.MethodPost, http.MethodOptions)

	// 视频资源
	api.HandleFunc("/events/videoasset", h.StaffOnly(h.CreateAssetHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/events/videoasset/{id:[0-9]+}/resubmit", h.StaffOnly(h.ResubmitAssetHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/events/videoasset/{id:[0-9]+}/status/ws", h.AssetStatusWSHandler).Methods(http.MethodGet)
	api.HandleFunc("/events/videoasset/{event_id:[0-9]+}", h.GetEventAssetHandler).Methods(http.MethodGet)

	api.HandleFunc("/events", h.StaffOnly(h.CreateEventHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/events/{id:[0-9]+}", h.GetEventHandler).Methods(http.MethodGet)

	router.PathPrefix("/media/").HandlerFunc(h.MediaHandler).Methods(http.MethodGet, http.MethodHead)

	return router
}

// Start serves handler on addr until ctx is cancelled, then shuts down
// gracefully within five seconds.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	// 设置服务器超时（上传和视频流不设写超时）
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	// 创建一个5秒超时的上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return <-errc
}
