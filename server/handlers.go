package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"sessions-portal/cache"
	"sessions-portal/config"
	"sessions-portal/core/auth"
	"sessions-portal/core/google"
	"sessions-portal/core/notify"
	"sessions-portal/logger"
	"sessions-portal/repository"
	"sessions-portal/storage"
)

// Submitter queues an ingestion job. *dispatch.Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, assetID uint, link string) error
}

// Uploader runs the synchronous ingestion path for uploaded files. *ingest.Task satisfies it.
type Uploader interface {
	IngestUpload(ctx context.Context, assetID uint, filename string, body io.Reader) error
}

// Deps wires an APIHandler.
type Deps struct {
	Cfg        *config.Config
	Users      repository.UserRepository
	Events     repository.EventRepository
	Labels     repository.LabelRepository
	Assets     repository.VideoAssetRepository
	Store      storage.Store
	Tokens     *auth.TokenIssuer
	Google     google.Verifier
	Dispatcher Submitter
	Uploader   Uploader
	Hub        *notify.Hub
	LabelCache *cache.LabelCache
}

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg        *config.Config
	userRepo   repository.UserRepository
	eventRepo  repository.EventRepository
	labelRepo  repository.LabelRepository
	assetRepo  repository.VideoAssetRepository
	store      storage.Store
	tokens     *auth.TokenIssuer
	google     google.Verifier
	dispatcher Submitter
	uploader   Uploader
	hub        *notify.Hub
	labelCache *cache.LabelCache
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{
		cfg:        d.Cfg,
		userRepo:   d.Users,
		eventRepo:  d.Events,
		labelRepo:  d.Labels,
		assetRepo:  d.Assets,
		store:      d.Store,
		tokens:     d.Tokens,
		google:     d.Google,
		dispatcher: d.Dispatcher,
		uploader:   d.Uploader,
		hub:        d.Hub,
		labelCache: d.LabelCache,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// writeError sends {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(dst)
}

// pathID reads a numeric mux variable.
func pathID(r *http.Request, name string) (uint, bool) {
	n, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Page is the paginated list envelope.
type Page struct {
	Count    int64       `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  interface{} `json:"results"`
}

func newPage(r *http.Request, total int64, page, pageSize int, results interface{}) Page {
	p := Page{Count: total, Results: results}
	if int64(page*pageSize) < total {
		p.Next = pageLink(r, page+1)
	}
	if page > 1 {
		p.Previous = pageLink(r, page-1)
	}
	return p
}

func pageLink(r *http.Request, page int) *string {
	u := url.URL{Path: r.URL.Path}
	if r.Host != "" {
		u.Host = r.Host
		u.Scheme = "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			u.Scheme = "https"
		}
	}
	q := r.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}
