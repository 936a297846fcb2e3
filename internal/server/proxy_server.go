package server

import (
	"context"
	"net/http"
	"strings"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/service"
	"github.com/devrev/edgecdn/internal/util/workerpool"
	"go.uber.org/zap"
)

// Cache response headers
const (
	HeaderCache       = "X-Cache"
	HeaderCacheSource = "X-Cache-Source"
)

// FileCache is what the proxy serves from
type FileCache interface {
	Get(ctx context.Context, key string) (*service.CachedFile, error)
}

// ProxyServer serves cached files over HTTP
type ProxyServer struct {
	*HTTPServer
	cache FileCache
}

// NewProxyServer creates the edge cache's HTTP server
func NewProxyServer(cfg *HTTPServerConfig, cache FileCache, pool *workerpool.Pool, logger *zap.Logger, m *metrics.Metrics) *ProxyServer {
	s := &ProxyServer{
		HTTPServer: newHTTPServer(cfg, pool, logger, m),
		cache:      cache,
	}
	s.router.HandleFunc("/heartbeat", heartbeat).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/{path:.*}", s.serveFile).Methods(http.MethodGet, http.MethodHead)
	return s
}

func (s *ProxyServer) serveFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	f, err := s.cache.Get(r.Context(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if ce, ok := apierrors.AsCDNError(err); ok {
			status = ce.HTTPStatus()
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("Failed to serve file",
				zap.String("key", key),
				zap.Error(err))
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer f.File.Close()

	hit := "MISS"
	if f.Hit {
		hit = "HIT"
	}
	w.Header().Set(HeaderCache, hit)
	w.Header().Set(HeaderCacheSource, f.Source)

	info, err := f.File.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, key, info.ModTime(), f.File)
}
