// Package config provides configuration management for CDN nodes.
//
// Every option is read from a flat environment variable (PORT, ORIGIN_PORT, ...)
// and may also come from a YAML file named by CONFIG_PATH. Environment wins.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devrev/edgecdn/internal/logging"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Node roles
const (
	RoleOrigin   = "origin"
	RoleReplica  = "replica"
	RoleProxy    = "proxy"
	RoleBalancer = "balancer"
)

// Expiry backends
const (
	ExpiryBackendFile  = "file"
	ExpiryBackendRedis = "redis"
)

// Config holds all configuration for a CDN node
type Config struct {
	NodeID string `mapstructure:"node_id"`
	Port   int    `mapstructure:"port"`

	OriginHost  string `mapstructure:"origin_host"`
	OriginPort  int    `mapstructure:"origin_port"`
	BackupHost  string `mapstructure:"backup_host"`
	BackupPorts string `mapstructure:"backup_ports"`

	StorageDir string `mapstructure:"storage_dir"`
	CacheDir   string `mapstructure:"cache_dir"`
	TTL        int    `mapstructure:"ttl"` // seconds

	NumAreas    int    `mapstructure:"num_areas"`
	AreasFile   string `mapstructure:"areas_file"`
	DefaultPath string `mapstructure:"default_path"`

	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	ReplicaDelay       time.Duration `mapstructure:"replica_delay"`
	ReplicationTimeout time.Duration `mapstructure:"replication_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`

	ChunkSize      int     `mapstructure:"chunk_size"`
	MaxWorkers     int     `mapstructure:"max_workers"`
	QueueSize      int     `mapstructure:"queue_size"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	MetricsPort    int     `mapstructure:"metrics_port"`

	ExpiryBackend string `mapstructure:"expiry_backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	GossipEnabled  bool   `mapstructure:"gossip_enabled"`
	GossipBindPort int    `mapstructure:"gossip_bind_port"`
	GossipSeeds    string `mapstructure:"gossip_seeds"`
	AdvertiseHost  string `mapstructure:"advertise_host"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Areas is filled from AREAS_FILE or AREA<i>_PROXIES; each proxy is a base
	// URL ending in "/"
	Areas [][]string `mapstructure:"-"`
}

// AreasDocument is the layout of AREAS_FILE
type AreasDocument struct {
	Areas []AreaSpec `yaml:"areas"`
}

// AreaSpec lists the proxies of one area
type AreaSpec struct {
	Name    string   `yaml:"name"`
	Proxies []string `yaml:"proxies"`
}

// Load reads configuration from the environment and, if set, the YAML file at
// configPath
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.NodeID == "" {
		host, _ := os.Hostname()
		cfg.NodeID = fmt.Sprintf("%s-%d", host, cfg.Port)
	}

	areas, err := loadAreas(v, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.Areas = areas

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv picks it up on Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "")
	v.SetDefault("port", 0)

	v.SetDefault("origin_host", "localhost")
	v.SetDefault("origin_port", 8001)
	v.SetDefault("backup_host", "localhost")
	v.SetDefault("backup_ports", "")

	v.SetDefault("storage_dir", "files/")
	v.SetDefault("cache_dir", "cache/")
	v.SetDefault("ttl", 60)

	v.SetDefault("num_areas", 0)
	v.SetDefault("areas_file", "")
	v.SetDefault("default_path", "index.html")

	v.SetDefault("poll_interval", "2s")
	v.SetDefault("probe_timeout", "1s")
	v.SetDefault("replica_delay", "2s")
	v.SetDefault("replication_timeout", "0s")
	v.SetDefault("shutdown_timeout", "10s")

	v.SetDefault("chunk_size", 1024*1024)
	v.SetDefault("max_workers", 16)
	v.SetDefault("queue_size", 256)
	v.SetDefault("rate_limit_rps", 0.0)
	v.SetDefault("rate_limit_burst", 100)
	v.SetDefault("metrics_port", 0)

	v.SetDefault("expiry_backend", ExpiryBackendFile)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("gossip_enabled", false)
	v.SetDefault("gossip_bind_port", 7946)
	v.SetDefault("gossip_seeds", "")
	v.SetDefault("advertise_host", "localhost")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
}

func loadAreas(v *viper.Viper, cfg *Config) ([][]string, error) {
	if cfg.AreasFile != "" {
		return LoadAreasFile(cfg.AreasFile)
	}

	areas := make([][]string, 0, cfg.NumAreas)
	for i := 0; i < cfg.NumAreas; i++ {
		key := fmt.Sprintf("area%d_proxies", i)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
		proxies := NormalizeProxies(SplitList(v.GetString(key)))
		areas = append(areas, proxies)
	}
	return areas, nil
}

// LoadAreasFile reads an area table from a YAML document
func LoadAreasFile(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read areas file: %w", err)
	}

	var doc AreasDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse areas file: %w", err)
	}

	areas := make([][]string, 0, len(doc.Areas))
	for _, a := range doc.Areas {
		areas = append(areas, NormalizeProxies(a.Proxies))
	}
	return areas, nil
}

// OriginAddress is the host:port of the origin's RPC server
func (c *Config) OriginAddress() string {
	return net.JoinHostPort(c.OriginHost, strconv.Itoa(c.OriginPort))
}

// BackupAddresses is the backup roster in configured order. Bare ports are
// joined with BackupHost.
func (c *Config) BackupAddresses() []string {
	entries := SplitList(c.BackupPorts)
	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e, ":") {
			addrs = append(addrs, e)
		} else {
			addrs = append(addrs, net.JoinHostPort(c.BackupHost, e))
		}
	}
	return addrs
}

// Seeds returns the gossip seed list
func (c *Config) Seeds() []string {
	return SplitList(c.GossipSeeds)
}

// TTLDuration is the cache freshness window
func (c *Config) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// Logging returns the logger configuration
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		File:   c.LogFile,
	}
}

// ServiceAddress is how peers address this node in the given role: host:port
// for file servers, a base URL for proxies and balancers
func (c *Config) ServiceAddress(role string) string {
	hostPort := net.JoinHostPort(c.AdvertiseHost, strconv.Itoa(c.Port))
	switch role {
	case RoleProxy, RoleBalancer:
		return "http://" + hostPort + "/"
	}
	return hostPort
}

// ListenAddress is the address a node's main server binds to
func (c *Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ValidateFor checks the options a given role depends on
func (c *Config) ValidateFor(role string) error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}

	switch role {
	case RoleOrigin:
		if c.StorageDir == "" {
			return fmt.Errorf("STORAGE_DIR is required")
		}
		if c.ReplicationTimeout < 0 {
			return fmt.Errorf("replication timeout must not be negative")
		}
	case RoleReplica:
		if c.StorageDir == "" {
			return fmt.Errorf("STORAGE_DIR is required")
		}
		if c.ReplicaDelay < 0 {
			return fmt.Errorf("replica delay must not be negative")
		}
	case RoleProxy:
		if c.CacheDir == "" {
			return fmt.Errorf("CACHE_DIR is required")
		}
		if c.TTL <= 0 {
			return fmt.Errorf("TTL must be positive")
		}
		if c.OriginPort <= 0 || c.OriginPort > 65535 {
			return fmt.Errorf("invalid origin port: %d", c.OriginPort)
		}
		if c.PollInterval <= 0 || c.ProbeTimeout <= 0 {
			return fmt.Errorf("poll interval and probe timeout must be positive")
		}
		switch c.ExpiryBackend {
		case ExpiryBackendFile:
		case ExpiryBackendRedis:
			if c.RedisAddr == "" {
				return fmt.Errorf("REDIS_ADDR is required for the redis expiry backend")
			}
		default:
			return fmt.Errorf("unknown expiry backend: %s", c.ExpiryBackend)
		}
	case RoleBalancer:
		if len(c.Areas) == 0 {
			return fmt.Errorf("at least one area is required (NUM_AREAS or AREAS_FILE)")
		}
		for i, a := range c.Areas {
			if len(a) == 0 {
				return fmt.Errorf("area %d has no proxies", i)
			}
		}
		if c.PollInterval <= 0 || c.ProbeTimeout <= 0 {
			return fmt.Errorf("poll interval and probe timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown role: %s", role)
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeProxies turns proxy entries into base URLs ending in "/". A bare port
// means a proxy on localhost.
func NormalizeProxies(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, err := strconv.Atoi(e); err == nil {
			e = "localhost:" + e
		}
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			e = "http://" + e
		}
		if !strings.HasSuffix(e, "/") {
			e += "/"
		}
		out = append(out, e)
	}
	return out
}
