package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/devrev/edgecdn/internal/chunk"
	apierrors "github.com/devrev/edgecdn/internal/errors"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const defaultMaxMessageSize = 4 * 1024 * 1024

// PoolConfig configures connections to file servers
type PoolConfig struct {
	ChunkSize        int
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// Dialer replaces the network dialer; addresses are then passed to it verbatim
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// Pool hands out one FileClient per address and owns their connections
type Pool struct {
	cfg     PoolConfig
	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	clients map[string]*FileClient
	logger  *zap.Logger
}

// NewPool creates an empty pool. Connections are opened lazily.
func NewPool(cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = 30 * time.Second
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:     cfg,
		conns:   make(map[string]*grpc.ClientConn),
		clients: make(map[string]*FileClient),
		logger:  logger,
	}
}

// Client returns the client for addr, creating its connection on first use
func (p *Pool) Client(addr string) (*FileClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[addr]; ok {
		return c, nil
	}

	maxMsg := defaultMaxMessageSize
	if need := p.cfg.ChunkSize + 1024*1024; need > maxMsg {
		maxMsg = need
	}

	target := addr
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    p.cfg.KeepaliveTime,
			Timeout: p.cfg.KeepaliveTimeout,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsg),
			grpc.MaxCallSendMsgSize(maxMsg),
		),
	}
	if p.cfg.Dialer != nil {
		target = "passthrough:///" + addr
		opts = append(opts, grpc.WithContextDialer(p.cfg.Dialer))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}

	c := &FileClient{
		addr:      addr,
		rpc:       pb.NewFileServerClient(conn),
		chunkSize: p.cfg.ChunkSize,
		logger:    p.logger,
	}
	p.conns[addr] = conn
	p.clients[addr] = c

	p.logger.Debug("Created gRPC client for file server", zap.String("target", addr))

	return c, nil
}

// Close closes all connections
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("Failed to close connection",
				zap.String("target", addr),
				zap.Error(err))
		}
	}
	p.conns = make(map[string]*grpc.ClientConn)
	p.clients = make(map[string]*FileClient)
	return nil
}

// FileClient talks to one origin or replica
type FileClient struct {
	addr      string
	rpc       pb.FileServerClient
	chunkSize int
	logger    *zap.Logger
}

// Address returns the server address
func (c *FileClient) Address() string {
	return c.addr
}

// Upload streams everything from r to the server under name and returns its reply
func (c *FileClient) Upload(ctx context.Context, r io.Reader, name string) (*pb.Reply, error) {
	stream, err := c.rpc.Put(ctx)
	if err != nil {
		return nil, apierrors.TransferError(fmt.Sprintf("failed to open upload to %s", c.addr), err)
	}

	if _, err := chunk.Send(stream, chunk.NewSplitter(r, name, c.chunkSize)); err != nil {
		if !stderrors.Is(err, io.EOF) {
			return nil, err
		}
		// the server closed the stream early; its status explains why
	}

	reply, err := stream.CloseAndRecv()
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// UploadFile uploads the file at path under name
func (c *FileClient) UploadFile(ctx context.Context, path, name string) (*pb.Reply, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apierrors.IOError("failed to open file for upload", err).WithDetail("path", path)
	}
	defer f.Close()
	return c.Upload(ctx, f, name)
}

// Fetch starts a download of name. found is false when the server sent an empty
// stream, which is how a missing file is reported. The returned reader is valid
// until ctx ends.
func (c *FileClient) Fetch(ctx context.Context, name string) (*chunk.Reader, bool, error) {
	stream, err := c.rpc.Get(ctx, &pb.Request{Name: name})
	if err != nil {
		return nil, false, apierrors.TransferError(fmt.Sprintf("failed to open download from %s", c.addr), err)
	}

	r := chunk.NewReader(stream)
	if err := r.Open(); err != nil {
		if apierrors.IsEmptyStream(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return r, true, nil
}

// Download copies name into w and reports whether the server had it
func (c *FileClient) Download(ctx context.Context, name string, w io.Writer) (bool, int64, error) {
	r, found, err := c.Fetch(ctx, name)
	if err != nil || !found {
		return found, 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		return true, n, err
	}
	return true, n, nil
}

// Heartbeat sends message and returns the server's answer
func (c *FileClient) Heartbeat(ctx context.Context, message string) (string, error) {
	resp, err := c.rpc.Heartbeat(ctx, &pb.HeartbeatRequest{Message: message})
	if err != nil {
		return "", err
	}
	return resp.GetMessage(), nil
}

// Fetch starts a download of name from addr. See FileClient.Fetch.
func (p *Pool) Fetch(ctx context.Context, addr, name string) (*chunk.Reader, bool, error) {
	c, err := p.Client(addr)
	if err != nil {
		return nil, false, err
	}
	return c.Fetch(ctx, name)
}

// Push uploads everything from r to addr under name and returns the server's reply
func (p *Pool) Push(ctx context.Context, addr string, r io.Reader, name string) (*pb.Reply, error) {
	c, err := p.Client(addr)
	if err != nil {
		return nil, err
	}
	return c.Upload(ctx, r, name)
}
