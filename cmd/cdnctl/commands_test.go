package main

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apierrors "github.com/devrev/edgecdn/internal/errors"
	"github.com/devrev/edgecdn/internal/handler"
	"github.com/devrev/edgecdn/internal/server"
	"github.com/devrev/edgecdn/internal/service"
	"github.com/devrev/edgecdn/internal/storage/filestore"
	"github.com/devrev/edgecdn/internal/util/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startFileServer(t *testing.T) string {
	t.Helper()
	files, err := filestore.New(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)

	pool := workerpool.New(&workerpool.Config{Name: "test", MaxWorkers: 2, QueueSize: 8, Logger: zap.NewNop()})
	srv := server.NewGRPCServer(&server.GRPCServerConfig{ChunkSize: 16, ShutdownTimeout: time.Second},
		handler.NewFileHandler(service.NewReplicaService(files, 16, 0, zap.NewNop(), nil), zap.NewNop()),
		pool, zap.NewNop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		pool.Stop(time.Second)
	})
	return lis.Addr().String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"cdnctl", "--timeout", "5s", "--chunk-size", "16"}, args...))
	return out.String(), err
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	addr := startFileServer(t)

	src := filepath.Join(t.TempDir(), "page.html")
	content := bytes.Repeat([]byte("<p>edge</p>"), 20)
	require.NoError(t, os.WriteFile(src, content, 0644))

	out, err := run(t, "upload", "--origin", addr, src)
	require.NoError(t, err)
	assert.Contains(t, out, "OK page.html")

	dst := t.TempDir()
	out, err = run(t, "download", "--node", addr, "--out", dst, "page.html")
	require.NoError(t, err)
	assert.Contains(t, out, "OK page.html")

	got, err := os.ReadFile(filepath.Join(dst, "page.html"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUploadWithKey(t *testing.T) {
	addr := startFileServer(t)

	src := filepath.Join(t.TempDir(), "local.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	_, err := run(t, "upload", "--origin", addr, "--key", "docs/readme.txt", src)
	require.NoError(t, err)

	out, err := run(t, "download", "--node", addr, "--out", "-", "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestDownloadMissing(t *testing.T) {
	addr := startFileServer(t)

	_, err := run(t, "download", "--node", addr, "--out", t.TempDir(), "nope.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMissingArguments(t *testing.T) {
	_, err := run(t, "upload")
	assert.ErrorIs(t, err, ErrNotEnoughArgs)

	_, err = run(t, "download")
	assert.ErrorIs(t, err, ErrNotEnoughArgs)
}

func TestHeartbeatAlive(t *testing.T) {
	addr := startFileServer(t)

	out, err := run(t, "heartbeat", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "ALIVE "+addr)
}

type fixedRoute struct {
	proxy string
	err   error
	areas []int
}

func (f *fixedRoute) Route(area int) (service.Route, error) {
	f.areas = append(f.areas, area)
	if f.err != nil {
		return service.Route{}, f.err
	}
	return service.Route{Proxy: f.proxy, Area: 0, Alive: true}, nil
}

func TestResolveRoute(t *testing.T) {
	routes := &fixedRoute{proxy: "http://edge-1:5001/"}
	lb := server.NewBalancerServer(&server.HTTPServerConfig{}, routes, "index.html", nil, zap.NewNop(), nil)
	ts := httptest.NewServer(lb.Handler())
	defer ts.Close()

	target, err := resolveRoute(context.Background(), ts.Client(), ts.URL+"/", "img/logo.png", 1)
	require.NoError(t, err)
	assert.Equal(t, "http://edge-1:5001/img/logo.png", target)

	target, err = resolveRoute(context.Background(), ts.Client(), ts.URL, "", -1)
	require.NoError(t, err)
	assert.Equal(t, "http://edge-1:5001/index.html", target)

	assert.Equal(t, []int{1, service.AnyArea}, routes.areas)
}

func TestResolveRouteReportsBalancerErrors(t *testing.T) {
	routes := &fixedRoute{err: apierrors.InvalidArgument("unknown area 7", nil)}
	lb := server.NewBalancerServer(&server.HTTPServerConfig{}, routes, "index.html", nil, zap.NewNop(), nil)
	ts := httptest.NewServer(lb.Handler())
	defer ts.Close()

	_, err := resolveRoute(context.Background(), ts.Client(), ts.URL, "x", 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	_, err = resolveRoute(context.Background(), ts.Client(), "://bad", "x", 0)
	assert.Error(t, err)
}
