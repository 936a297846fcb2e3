package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "8001")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "localhost:8001", cfg.OriginAddress())
	assert.Equal(t, 60*time.Second, cfg.TTLDuration())
	assert.Equal(t, 2*time.Second, cfg.ReplicaDelay)
	assert.Equal(t, time.Duration(0), cfg.ReplicationTimeout)
	assert.Equal(t, 1024*1024, cfg.ChunkSize)
	assert.Equal(t, ExpiryBackendFile, cfg.ExpiryBackend)
	assert.NotEmpty(t, cfg.NodeID)
	assert.Empty(t, cfg.BackupAddresses())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "5001")
	t.Setenv("ORIGIN_HOST", "origin")
	t.Setenv("ORIGIN_PORT", "9001")
	t.Setenv("BACKUP_PORTS", "8002, 8003,replica-3:8004")
	t.Setenv("TTL", "30")
	t.Setenv("REPLICA_DELAY", "250ms")
	t.Setenv("CACHE_DIR", "/tmp/cache")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "origin:9001", cfg.OriginAddress())
	assert.Equal(t, []string{"localhost:8002", "localhost:8003", "replica-3:8004"}, cfg.BackupAddresses())
	assert.Equal(t, 30*time.Second, cfg.TTLDuration())
	assert.Equal(t, 250*time.Millisecond, cfg.ReplicaDelay)
	assert.Equal(t, "/tmp/cache", cfg.CacheDir)
	assert.NoError(t, cfg.ValidateFor(RoleProxy))
}

func TestLoadAreasFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8000")
	t.Setenv("NUM_AREAS", "2")
	t.Setenv("AREA0_PROXIES", "5001,5002")
	t.Setenv("AREA1_PROXIES", "http://edge-b:5003")
	t.Setenv("DEFAULT_PATH", "home.html")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Areas, 2)
	assert.Equal(t, []string{"http://localhost:5001/", "http://localhost:5002/"}, cfg.Areas[0])
	assert.Equal(t, []string{"http://edge-b:5003/"}, cfg.Areas[1])
	assert.Equal(t, "home.html", cfg.DefaultPath)
	assert.NoError(t, cfg.ValidateFor(RoleBalancer))
}

func TestLoadAreasFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.yaml")
	doc := `
areas:
  - name: east
    proxies: ["5001", "edge-e2:5002"]
  - name: west
    proxies: ["https://edge-w1/"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	t.Setenv("PORT", "8000")
	t.Setenv("AREAS_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Areas, 2)
	assert.Equal(t, []string{"http://localhost:5001/", "http://edge-e2:5002/"}, cfg.Areas[0])
	assert.Equal(t, []string{"https://edge-w1/"}, cfg.Areas[1])
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8002\nstorage_dir: /data/replica\n"), 0644))
	t.Setenv("STORAGE_DIR", "/override")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, "/override", cfg.StorageDir, "environment wins over the file")
	assert.NoError(t, cfg.ValidateFor(RoleReplica))
}

func TestValidateFor(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:          8000,
			ChunkSize:     1024,
			StorageDir:    "files/",
			CacheDir:      "cache/",
			TTL:           10,
			OriginPort:    8001,
			PollInterval:  time.Second,
			ProbeTimeout:  time.Second,
			ExpiryBackend: ExpiryBackendFile,
			Areas:         [][]string{{"http://localhost:5001/"}},
		}
	}

	tests := []struct {
		name    string
		role    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"origin ok", RoleOrigin, func(*Config) {}, false},
		{"bad port", RoleOrigin, func(c *Config) { c.Port = 0 }, true},
		{"replica without storage", RoleReplica, func(c *Config) { c.StorageDir = "" }, true},
		{"proxy zero ttl", RoleProxy, func(c *Config) { c.TTL = 0 }, true},
		{"proxy unknown backend", RoleProxy, func(c *Config) { c.ExpiryBackend = "etcd" }, true},
		{"proxy redis without addr", RoleProxy, func(c *Config) { c.ExpiryBackend = ExpiryBackendRedis }, true},
		{"balancer no areas", RoleBalancer, func(c *Config) { c.Areas = nil }, true},
		{"balancer empty area", RoleBalancer, func(c *Config) { c.Areas = [][]string{{}} }, true},
		{"unknown role", "gateway", func(*Config) {}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.ValidateFor(tt.role)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeProxies(t *testing.T) {
	got := NormalizeProxies([]string{" 5001 ", "", "host:80", "http://a/", "https://b"})
	assert.Equal(t, []string{"http://localhost:5001/", "http://host:80/", "http://a/", "https://b/"}, got)
}

func TestServiceAddress(t *testing.T) {
	cfg := &Config{AdvertiseHost: "edge-1", Port: 5001}
	assert.Equal(t, "http://edge-1:5001/", cfg.ServiceAddress(RoleProxy))
	assert.Equal(t, "edge-1:5001", cfg.ServiceAddress(RoleReplica))
}
