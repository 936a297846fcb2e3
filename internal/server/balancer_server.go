package server

import (
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/service"
	"github.com/devrev/edgecdn/internal/util/workerpool"
	"go.uber.org/zap"
)

// Router picks a proxy for a request
type Router interface {
	Route(area int) (service.Route, error)
}

// BalancerServer redirects clients to a proxy
type BalancerServer struct {
	*HTTPServer
	routes      Router
	defaultPath string
}

// NewBalancerServer creates the load balancer's HTTP server. Requests for "/" are
// sent to defaultPath on the chosen proxy.
func NewBalancerServer(cfg *HTTPServerConfig, router Router, defaultPath string, pool *workerpool.Pool, logger *zap.Logger, m *metrics.Metrics) *BalancerServer {
	s := &BalancerServer{
		HTTPServer:  newHTTPServer(cfg, pool, logger, m),
		routes:      router,
		defaultPath: strings.TrimPrefix(defaultPath, "/"),
	}
	s.router.HandleFunc("/heartbeat", heartbeat).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/{path:.*}", s.redirect).Methods(http.MethodGet, http.MethodHead)
	return s
}

func (s *BalancerServer) redirect(w http.ResponseWriter, r *http.Request) {
	area := service.AnyArea
	if raw := r.URL.Query().Get("area"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid area", http.StatusBadRequest)
			return
		}
		area = n
	}

	route, err := s.routes.Route(area)
	if err != nil {
		status := http.StatusInternalServerError
		if ce, ok := apierrors.AsCDNError(err); ok {
			status = ce.HTTPStatus()
		}
		http.Error(w, err.Error(), status)
		return
	}

	// keep the escaping so reserved characters stay part of the path
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	if path == "" {
		path = s.defaultPath
	}
	http.Redirect(w, r, route.Proxy+path, http.StatusFound)
}
