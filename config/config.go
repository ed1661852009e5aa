// Package config reads server and client configuration from a JSON (or YAML) file,
// following the ancestor's small FileConfig-plus-ReadConfigFile pattern
// (server/config.go), with flag.FlagSet overlays for command-line overrides.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures a FileAccessServer (SPEC_FULL.md §6 "Configuration").
type ServerConfig struct {
	ListenPort int    `json:"listenPort" yaml:"listenPort"`
	Strategy   string `json:"strategy" yaml:"strategy"` // "AT_LEAST_ONCE" | "AT_MOST_ONCE"

	// Directional loss simulation, both in [0,1].
	SendProb float64 `json:"sendProb" yaml:"sendProb"`
	RecvProb float64 `json:"recvProb" yaml:"recvProb"`

	WorkerPoolSize int `json:"workerPoolSize" yaml:"workerPoolSize"`

	// ReplyCacheCapacity is parsed with datasize the way the ancestor parses stash
	// capacity strings ("64MB") in RegisterNode; replycache.Cache enforces it as
	// a total-byte budget on cached Responses, evicting the oldest entries first
	// once it would be exceeded.
	ReplyCacheCapacity string `json:"replyCacheCapacity" yaml:"replyCacheCapacity"`
	// ReplyCacheTTLMs is 0 by default, meaning "retain for process lifetime" per
	// the spec's default. A positive value opts into bounded retention.
	ReplyCacheTTLMs int64 `json:"replyCacheTTLMs" yaml:"replyCacheTTLMs"`

	// PersistReplies enables the optional, off-by-default reply cache snapshot
	// described in SPEC_FULL.md §6. Not required for correctness.
	PersistReplies bool   `json:"persistReplies" yaml:"persistReplies"`
	PersistPath    string `json:"persistPath" yaml:"persistPath"`

	FilesystemRoot string `json:"filesystemRoot" yaml:"filesystemRoot"`
}

// ReplyCacheCapacityBytes parses ReplyCacheCapacity, defaulting to 64MB.
func (c ServerConfig) ReplyCacheCapacityBytes() uint64 {
	if strings.TrimSpace(c.ReplyCacheCapacity) == "" {
		return uint64(64 * datasize.MB)
	}
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(c.ReplyCacheCapacity)); err != nil {
		return uint64(64 * datasize.MB)
	}
	return v.Bytes()
}

// ReplyCacheTTL is the parsed duration form of ReplyCacheTTLMs; zero means "no
// expiry", matching the spec's default lifetime.
func (c ServerConfig) ReplyCacheTTL() time.Duration {
	if c.ReplyCacheTTLMs <= 0 {
		return 0
	}
	return time.Duration(c.ReplyCacheTTLMs) * time.Millisecond
}

// ClientConfig configures a ClientService (SPEC_FULL.md §6 "Configuration").
type ClientConfig struct {
	ServerAddress string `json:"serverAddress" yaml:"serverAddress"`
	ServerPort    int    `json:"serverPort" yaml:"serverPort"`

	ReceiveTimeoutMs int64 `json:"receiveTimeoutMs" yaml:"receiveTimeoutMs"`
	MaxRetries       int   `json:"maxRetries" yaml:"maxRetries"`

	FreshnessIntervalMs int64 `json:"freshnessIntervalMs" yaml:"freshnessIntervalMs"`

	SendProb float64 `json:"sendProb" yaml:"sendProb"`
	RecvProb float64 `json:"recvProb" yaml:"recvProb"`

	// RequestIdStrategy selects between the two ids.Generator implementations
	// (SPEC_FULL.md §11): "xor" (default) or "uuid".
	RequestIdStrategy string `json:"requestIdStrategy" yaml:"requestIdStrategy"`
}

func (c ClientConfig) ReceiveTimeout() time.Duration {
	return time.Duration(c.ReceiveTimeoutMs) * time.Millisecond
}

func (c ClientConfig) FreshnessInterval() time.Duration {
	return time.Duration(c.FreshnessIntervalMs) * time.Millisecond
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenPort:         9090,
		Strategy:           "AT_MOST_ONCE",
		SendProb:           1.0,
		RecvProb:           1.0,
		WorkerPoolSize:     8,
		ReplyCacheCapacity: "64MB",
		FilesystemRoot:     ".",
	}
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerAddress:       "127.0.0.1",
		ServerPort:          9090,
		ReceiveTimeoutMs:    2000,
		MaxRetries:          5,
		FreshnessIntervalMs: 10_000,
		SendProb:            1.0,
		RecvProb:            1.0,
		RequestIdStrategy:   "xor",
	}
}

// ReadServerConfigFile loads a ServerConfig from a JSON or YAML file, chosen by
// extension, the way the ancestor's ReadConfigFile loads FileConfig from JSON.
// A missing file yields defaults rather than failing, since every field has a
// sane default and local development commonly runs without a config file at all.
func ReadServerConfigFile(path string) (ServerConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return ServerConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := unmarshalByExt(path, data, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ReadClientConfigFile is ReadServerConfigFile's client-side counterpart.
func ReadClientConfigFile(path string) (ClientConfig, error) {
	cfg := defaultClientConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := unmarshalByExt(path, data, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func unmarshalByExt(path string, data []byte, v interface{}) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// BindServerFlags registers command-line overrides for cfg on fs, following the
// same "config file plus flag overlay" split used across the corpus's cmd/ entry
// points. Call after ReadServerConfigFile, before fs.Parse.
func BindServerFlags(fs *flag.FlagSet, cfg *ServerConfig) {
	fs.IntVar(&cfg.ListenPort, "port", cfg.ListenPort, "UDP listen port")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "AT_LEAST_ONCE or AT_MOST_ONCE")
	fs.Float64Var(&cfg.SendProb, "send-prob", cfg.SendProb, "probability a server reply is actually sent")
	fs.Float64Var(&cfg.RecvProb, "recv-prob", cfg.RecvProb, "probability an inbound datagram is actually processed")
	fs.IntVar(&cfg.WorkerPoolSize, "workers", cfg.WorkerPoolSize, "request dispatch worker pool size")
	fs.StringVar(&cfg.ReplyCacheCapacity, "reply-cache-capacity", cfg.ReplyCacheCapacity, "approximate reply cache capacity, e.g. 64MB")
	fs.Int64Var(&cfg.ReplyCacheTTLMs, "reply-cache-ttl-ms", cfg.ReplyCacheTTLMs, "0 keeps entries for the process lifetime")
	fs.BoolVar(&cfg.PersistReplies, "persist-replies", cfg.PersistReplies, "snapshot the reply cache to disk (operational aid only)")
	fs.StringVar(&cfg.PersistPath, "persist-path", cfg.PersistPath, "path for the optional reply cache snapshot")
	fs.StringVar(&cfg.FilesystemRoot, "root", cfg.FilesystemRoot, "root directory the flat file namespace is served from")
}

// BindClientFlags is BindServerFlags' client-side counterpart.
func BindClientFlags(fs *flag.FlagSet, cfg *ClientConfig) {
	fs.StringVar(&cfg.ServerAddress, "server", cfg.ServerAddress, "server address")
	fs.IntVar(&cfg.ServerPort, "port", cfg.ServerPort, "server UDP port")
	fs.Int64Var(&cfg.ReceiveTimeoutMs, "timeout-ms", cfg.ReceiveTimeoutMs, "socket receive timeout in milliseconds")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "maximum retry rounds per invocation")
	fs.Int64Var(&cfg.FreshnessIntervalMs, "freshness-ms", cfg.FreshnessIntervalMs, "client cache freshness window in milliseconds")
	fs.Float64Var(&cfg.SendProb, "send-prob", cfg.SendProb, "probability a client send is actually attempted")
	fs.Float64Var(&cfg.RecvProb, "recv-prob", cfg.RecvProb, "probability a client receive is actually attempted")
	fs.StringVar(&cfg.RequestIdStrategy, "id-strategy", cfg.RequestIdStrategy, "xor or uuid")
}
