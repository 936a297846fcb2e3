package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	FileServer_Put_FullMethodName       = "/cdn.FileServer/put"
	FileServer_Get_FullMethodName       = "/cdn.FileServer/get"
	FileServer_Heartbeat_FullMethodName = "/cdn.FileServer/heartbeat"
)

// FileServerClient is the client API for the FileServer service.
type FileServerClient interface {
	Put(ctx context.Context, opts ...grpc.CallOption) (FileServer_PutClient, error)
	Get(ctx context.Context, in *Request, opts ...grpc.CallOption) (FileServer_GetClient, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
}

type fileServerClient struct {
	cc grpc.ClientConnInterface
}

// NewFileServerClient binds a FileServer client to cc. Every call is sent with the
// cdnwire content-subtype.
func NewFileServerClient(cc grpc.ClientConnInterface) FileServerClient {
	return &fileServerClient{cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *fileServerClient) Put(ctx context.Context, opts ...grpc.CallOption) (FileServer_PutClient, error) {
	stream, err := c.cc.NewStream(ctx, &FileServer_ServiceDesc.Streams[0], FileServer_Put_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &fileServerPutClient{stream}, nil
}

// FileServer_PutClient is the client side of an upload stream.
type FileServer_PutClient interface {
	Send(*Chunk) error
	CloseAndRecv() (*Reply, error)
	grpc.ClientStream
}

type fileServerPutClient struct {
	grpc.ClientStream
}

func (x *fileServerPutClient) Send(m *Chunk) error {
	return x.ClientStream.SendMsg(m)
}

func (x *fileServerPutClient) CloseAndRecv() (*Reply, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(Reply)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *fileServerClient) Get(ctx context.Context, in *Request, opts ...grpc.CallOption) (FileServer_GetClient, error) {
	stream, err := c.cc.NewStream(ctx, &FileServer_ServiceDesc.Streams[1], FileServer_Get_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &fileServerGetClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// FileServer_GetClient is the client side of a download stream.
type FileServer_GetClient interface {
	Recv() (*Chunk, error)
	grpc.ClientStream
}

type fileServerGetClient struct {
	grpc.ClientStream
}

func (x *fileServerGetClient) Recv() (*Chunk, error) {
	m := new(Chunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *fileServerClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, FileServer_Heartbeat_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// FileServerServer is the server API for the FileServer service.
type FileServerServer interface {
	Put(FileServer_PutServer) error
	Get(*Request, FileServer_GetServer) error
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
}

// UnimplementedFileServerServer can be embedded for forward compatibility.
type UnimplementedFileServerServer struct{}

func (UnimplementedFileServerServer) Put(FileServer_PutServer) error {
	return status.Errorf(codes.Unimplemented, "method put not implemented")
}

func (UnimplementedFileServerServer) Get(*Request, FileServer_GetServer) error {
	return status.Errorf(codes.Unimplemented, "method get not implemented")
}

func (UnimplementedFileServerServer) Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method heartbeat not implemented")
}

// RegisterFileServerServer registers srv on s.
func RegisterFileServerServer(s grpc.ServiceRegistrar, srv FileServerServer) {
	s.RegisterService(&FileServer_ServiceDesc, srv)
}

func _FileServer_Put_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(FileServerServer).Put(&fileServerPutServer{stream})
}

// FileServer_PutServer is the server side of an upload stream.
type FileServer_PutServer interface {
	SendAndClose(*Reply) error
	Recv() (*Chunk, error)
	grpc.ServerStream
}

type fileServerPutServer struct {
	grpc.ServerStream
}

func (x *fileServerPutServer) SendAndClose(m *Reply) error {
	return x.ServerStream.SendMsg(m)
}

func (x *fileServerPutServer) Recv() (*Chunk, error) {
	m := new(Chunk)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _FileServer_Get_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(Request)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(FileServerServer).Get(m, &fileServerGetServer{stream})
}

// FileServer_GetServer is the server side of a download stream.
type FileServer_GetServer interface {
	Send(*Chunk) error
	grpc.ServerStream
}

type fileServerGetServer struct {
	grpc.ServerStream
}

func (x *fileServerGetServer) Send(m *Chunk) error {
	return x.ServerStream.SendMsg(m)
}

func _FileServer_Heartbeat_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FileServerServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FileServer_Heartbeat_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FileServerServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// FileServer_ServiceDesc describes the FileServer service for grpc.Server.
var FileServer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "cdn.FileServer",
	HandlerType: (*FileServerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "heartbeat",
			Handler:    _FileServer_Heartbeat_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "put",
			Handler:       _FileServer_Put_Handler,
			ClientStreams: true,
		},
		{
			StreamName:    "get",
			Handler:       _FileServer_Get_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "ops.proto",
}
