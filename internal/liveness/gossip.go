package liveness

import (
	"fmt"
	"sync/atomic"

	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// ProbeRequester is told about members whose state may have changed
type ProbeRequester interface {
	ProbeNow(addr string)
}

// GossipConfig holds gossip membership configuration
type GossipConfig struct {
	NodeID   string
	BindAddr string
	BindPort int
	Seeds    []string
	// ServiceAddress is what peers probe for this node, e.g. host:port of its
	// file server or the base URL of a proxy
	ServiceAddress string
}

// Gossip joins a memberlist cluster so that membership changes trigger an
// immediate heartbeat instead of waiting for the next poll. It never writes
// liveness state itself.
type Gossip struct {
	config     *GossipConfig
	memberlist *memberlist.Memberlist
	requester  ProbeRequester
	members    int32
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewGossip creates the member and joins the seeds. Failing to reach seeds is
// logged, not fatal.
func NewGossip(cfg *GossipConfig, requester ProbeRequester, logger *zap.Logger, m *metrics.Metrics) (*Gossip, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gossip{
		config:    cfg,
		requester: requester,
		logger:    logger,
		metrics:   m,
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
		mlConfig.AdvertiseAddr = cfg.BindAddr
	}
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.Delegate = g
	mlConfig.Events = &gossipEventDelegate{gossip: g}
	mlConfig.LogOutput = nil
	mlConfig.Logger = zap.NewStdLog(logger.Named("memberlist"))

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	g.memberlist = ml

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Strings("seeds", cfg.Seeds), zap.Error(err))
		} else {
			logger.Info("Joined gossip cluster", zap.Int("contacted", n))
		}
	}

	return g, nil
}

// LocalPort is the port memberlist actually bound
func (g *Gossip) LocalPort() int {
	return int(g.memberlist.LocalNode().Port)
}

// Members returns the number of live members including this node
func (g *Gossip) Members() int {
	return g.memberlist.NumMembers()
}

// Shutdown leaves the cluster
func (g *Gossip) Shutdown() error {
	return g.memberlist.Shutdown()
}

// NodeMeta implements memberlist.Delegate
func (g *Gossip) NodeMeta(limit int) []byte {
	meta := []byte(g.config.ServiceAddress)
	if len(meta) > limit {
		return meta[:limit]
	}
	return meta
}

// NotifyMsg implements memberlist.Delegate
func (g *Gossip) NotifyMsg([]byte) {}

// GetBroadcasts implements memberlist.Delegate
func (g *Gossip) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (g *Gossip) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (g *Gossip) MergeRemoteState(buf []byte, join bool) {}

func (g *Gossip) notify(event string, node *memberlist.Node) {
	addr := string(node.Meta)
	g.metrics.RecordGossipEvent(event)
	g.logger.Info("Gossip membership change",
		zap.String("event", event),
		zap.String("node_id", node.Name),
		zap.String("service_address", addr))

	if addr == "" || addr == g.config.ServiceAddress || g.requester == nil {
		return
	}
	g.requester.ProbeNow(addr)
}

// gossipEventDelegate runs with memberlist's node lock held and must not call
// back into the memberlist
type gossipEventDelegate struct {
	gossip *Gossip
}

// NotifyJoin is called when a node joins
func (d *gossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.gossip.metrics.UpdateGossipStats(int(atomic.AddInt32(&d.gossip.members, 1)))
	d.gossip.notify("join", node)
}

// NotifyLeave is called when a node leaves or is declared dead
func (d *gossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.gossip.metrics.UpdateGossipStats(int(atomic.AddInt32(&d.gossip.members, -1)))
	d.gossip.notify("leave", node)
}

// NotifyUpdate is called when a node's metadata changes
func (d *gossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.gossip.notify("update", node)
}
