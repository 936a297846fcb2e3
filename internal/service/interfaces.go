package service

import (
	"context"
	"io"

	"github.com/devrev/edgecdn/internal/chunk"
	pb "github.com/devrev/edgecdn/pkg/proto"
)

// LivenessView is the read side of a liveness monitor
type LivenessView interface {
	IsAlive(addr string) bool
}

// Fetcher downloads files from origin or replica nodes. *client.Pool implements it.
type Fetcher interface {
	// Fetch returns found=false when the node answered with an empty stream
	Fetch(ctx context.Context, addr, name string) (*chunk.Reader, bool, error)
}

// Pusher uploads files to replica nodes. *client.Pool implements it.
type Pusher interface {
	Push(ctx context.Context, addr string, r io.Reader, name string) (*pb.Reply, error)
}
