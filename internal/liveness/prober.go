package liveness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/devrev/edgecdn/internal/client"
)

// Heartbeat payloads accepted as a sign of life
const (
	AckMessage = "acknowledged"
	OKMessage  = "ok"
)

// HealthyPayload reports whether a heartbeat answer means alive
func HealthyPayload(msg string) bool {
	msg = strings.TrimSpace(msg)
	return msg == AckMessage || msg == OKMessage
}

// GRPCProber calls FileServer.heartbeat on origins and replicas
type GRPCProber struct {
	pool *client.Pool
}

// NewGRPCProber probes through pool's connections
func NewGRPCProber(pool *client.Pool) *GRPCProber {
	return &GRPCProber{pool: pool}
}

// Probe implements Prober
func (p *GRPCProber) Probe(ctx context.Context, addr string) error {
	c, err := p.pool.Client(addr)
	if err != nil {
		return err
	}
	msg, err := c.Heartbeat(ctx, "ping")
	if err != nil {
		return err
	}
	if !HealthyPayload(msg) {
		return fmt.Errorf("unexpected heartbeat payload %q", msg)
	}
	return nil
}

// HTTPProber requests <addr>heartbeat from proxies, where addr is a base URL
// ending in "/"
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber uses c, or http.DefaultClient when c is nil
func NewHTTPProber(c *http.Client) *HTTPProber {
	if c == nil {
		c = http.DefaultClient
	}
	return &HTTPProber{client: c}
}

// Probe implements Prober
func (p *HTTPProber) Probe(ctx context.Context, addr string) error {
	url := strings.TrimSuffix(addr, "/") + "/heartbeat"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return err
	}
	if !HealthyPayload(string(body)) {
		return fmt.Errorf("unexpected heartbeat payload %q", string(body))
	}
	return nil
}
