package service

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/metrics"
	"go.uber.org/zap"
)

// AnyArea asks the router to pick an area at random
const AnyArea = -1

// Route is a routing decision
type Route struct {
	Proxy string
	Area  int
	// Alive is false when no live proxy was found and Proxy is a fallback
	Alive bool
}

// RoutingService picks a proxy for each request. Every area keeps its own
// round-robin cursor; dead proxies are skipped and a dead area hands over to the
// next one.
type RoutingService struct {
	areas    [][]string
	cursors  []atomic.Uint64
	liveness LivenessView
	intn     func(n int) int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewRoutingService creates a router over areas, each an ordered proxy list
func NewRoutingService(areas [][]string, liveness LivenessView, logger *zap.Logger, m *metrics.Metrics) (*RoutingService, error) {
	if len(areas) == 0 {
		return nil, fmt.Errorf("at least one area is required")
	}
	copied := make([][]string, len(areas))
	for i, a := range areas {
		if len(a) == 0 {
			return nil, fmt.Errorf("area %d has no proxies", i)
		}
		copied[i] = append([]string(nil), a...)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{
		areas:    copied,
		cursors:  make([]atomic.Uint64, len(areas)),
		liveness: liveness,
		intn:     rand.Intn,
		logger:   logger,
		metrics:  m,
	}, nil
}

// AreaCount returns the number of configured areas
func (s *RoutingService) AreaCount() int {
	return len(s.areas)
}

// Proxies returns every configured proxy, area by area
func (s *RoutingService) Proxies() []string {
	var out []string
	for _, a := range s.areas {
		out = append(out, a...)
	}
	return out
}

// Route chooses a proxy starting from area, or from a random area for AnyArea.
// It only fails for an area index that does not exist; with no live proxy
// anywhere it still returns the last candidate it looked at.
func (s *RoutingService) Route(area int) (Route, error) {
	n := len(s.areas)
	if area == AnyArea {
		area = s.intn(n)
	}
	if area < 0 || area >= n {
		return Route{}, apierrors.InvalidArgument(fmt.Sprintf("unknown area %d", area), nil).
			WithDetail("areas", n)
	}

	var last string
	lastArea := area
	a := area
	for attempt := 0; attempt <= n; attempt++ {
		proxies := s.areas[a]
		for i := 0; i < len(proxies); i++ {
			p := s.next(a)
			last, lastArea = p, a
			if s.liveness.IsAlive(p) {
				s.metrics.RecordRoutingDecision(a, "live")
				return Route{Proxy: p, Area: a, Alive: true}, nil
			}
		}
		a = (a + 1) % n
	}

	warning := apierrors.RoutingExhausted(area, last)
	s.logger.Warn("Routing to a proxy that is not known to be alive",
		zap.Int("area", area),
		zap.String("proxy", last),
		zap.Error(warning))
	s.metrics.RecordRoutingDecision(lastArea, "fallback")
	return Route{Proxy: last, Area: lastArea}, nil
}

// next advances area a's cursor and returns the proxy it pointed at
func (s *RoutingService) next(a int) string {
	proxies := s.areas[a]
	idx := s.cursors[a].Add(1) - 1
	return proxies[idx%uint64(len(proxies))]
}
