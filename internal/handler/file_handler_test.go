package handler

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/devrev/edgecdn/internal/chunk"
	apierrors "github.com/devrev/edgecdn/internal/errors"
	pb "github.com/devrev/edgecdn/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Put(ctx context.Context, src chunk.Source) (*pb.Reply, error) {
	args := m.Called(ctx, src)
	reply, _ := args.Get(0).(*pb.Reply)
	return reply, args.Error(1)
}

func (m *mockBackend) Get(ctx context.Context, name string, sink chunk.Sink) error {
	args := m.Called(ctx, name, sink)
	return args.Error(0)
}

func (m *mockBackend) Heartbeat(ctx context.Context, message string) string {
	return m.Called(ctx, message).String(0)
}

type putStream struct {
	grpc.ServerStream
	chunks []*pb.Chunk
	reply  *pb.Reply
}

func (s *putStream) Context() context.Context { return context.Background() }

func (s *putStream) Recv() (*pb.Chunk, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *putStream) SendAndClose(r *pb.Reply) error {
	s.reply = r
	return nil
}

type getStream struct {
	grpc.ServerStream
	sent []*pb.Chunk
}

func (s *getStream) Context() context.Context { return context.Background() }

func (s *getStream) Send(c *pb.Chunk) error {
	s.sent = append(s.sent, c)
	return nil
}

func TestPutSendsBackendReply(t *testing.T) {
	backend := new(mockBackend)
	stream := &putStream{chunks: []*pb.Chunk{{Buffer: []byte("abc"), Name: "a.txt"}}}
	backend.On("Put", mock.Anything, stream).Return(&pb.Reply{Length: 3, Checksum: 7}, nil)

	h := NewFileHandler(backend, zap.NewNop())
	require.NoError(t, h.Put(stream))

	assert.Equal(t, int64(3), stream.reply.GetLength())
	assert.Equal(t, uint32(7), stream.reply.GetChecksum())
	backend.AssertExpectations(t)
}

func TestPutMapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"replication failure", apierrors.ReplicationFailure(1, "localhost:8003", errors.New("refused")), codes.Aborted},
		{"empty stream", apierrors.EmptyStream(), codes.DataLoss},
		{"plain error", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(mockBackend)
			backend.On("Put", mock.Anything, mock.Anything).Return(nil, tt.err)

			stream := &putStream{}
			err := NewFileHandler(backend, zap.NewNop()).Put(stream)
			assert.Equal(t, tt.want, status.Code(err))
			assert.Nil(t, stream.reply, "no reply after a failed put")
		})
	}
}

func TestGetPassesStreamAsSink(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Get", mock.Anything, "a.txt", mock.Anything).
		Run(func(args mock.Arguments) {
			sink := args.Get(2).(chunk.Sink)
			_ = sink.Send(&pb.Chunk{Buffer: []byte("abc"), Name: "a.txt"})
		}).
		Return(nil)

	stream := &getStream{}
	require.NoError(t, NewFileHandler(backend, nil).Get(&pb.Request{Name: "a.txt"}, stream))
	require.Len(t, stream.sent, 1)
	assert.Equal(t, "a.txt", stream.sent[0].GetName())
}

func TestGetRequiresName(t *testing.T) {
	backend := new(mockBackend)
	err := NewFileHandler(backend, nil).Get(&pb.Request{}, &getStream{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	backend.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMapsUnavailable(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Get", mock.Anything, "slow.bin", mock.Anything).Return(apierrors.Unavailable("shutting down", nil))

	err := NewFileHandler(backend, nil).Get(&pb.Request{Name: "slow.bin"}, &getStream{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestHeartbeat(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Heartbeat", mock.Anything, "ping").Return("acknowledged")

	resp, err := NewFileHandler(backend, nil).Heartbeat(context.Background(), &pb.HeartbeatRequest{Message: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "acknowledged", resp.GetMessage())
}
