// Package config holds the runtime configuration of every component.
//
// Resolution order, lowest to highest precedence:
//  1. built-in defaults (the well-known ports from the deployment docs)
//  2. an optional YAML file named by the CONFIG_FILE environment variable
//  3. individual environment variables
//
// Every endpoint address, the server's own name and the persistence
// directory are environment-addressable so the same binaries run unchanged
// under docker-compose or on bare hosts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default endpoints. Bind addresses use the wildcard form, dial addresses
// assume localhost; both are routinely overridden in deployments.
const (
	DefaultBrokerFront = "tcp://*:5555"
	DefaultBrokerBack  = "tcp://*:5556"
	DefaultProxyXSub   = "tcp://*:5557"
	DefaultProxyXPub   = "tcp://*:5558"
	DefaultRefBind     = "tcp://*:6000"

	DefaultBrokerFrontDial = "tcp://localhost:5555"
	DefaultBrokerBackDial  = "tcp://localhost:5556"
	DefaultProxyXSubDial   = "tcp://localhost:5557"
	DefaultProxyXPubDial   = "tcp://localhost:5558"
)

// Broker configures the request/reply router.
type Broker struct {
	Front       string `yaml:"front"`
	Back        string `yaml:"back"`
	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// Proxy configures the pub/sub switch.
type Proxy struct {
	XSub        string `yaml:"xsub"`
	XPub        string `yaml:"xpub"`
	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// Ref configures the reference (registry) service.
type Ref struct {
	Bind        string `yaml:"bind"`
	PersistDir  string `yaml:"persist_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// Server configures one application server instance.
type Server struct {
	Name       string `yaml:"name"`
	Broker     string `yaml:"broker"` // broker back endpoint (REP dials here)
	ProxyXSub  string `yaml:"proxy_xsub"`
	ProxyXPub  string `yaml:"proxy_xpub"`
	RefAddr    string `yaml:"ref_addr"`
	PersistDir string `yaml:"persist_dir"`

	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	SyncEvery        int `yaml:"sync_every"`

	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// HeartbeatInterval returns the heartbeat cadence as a duration.
func (s Server) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatSeconds) * time.Second
}

// Bot configures the automated traffic generator.
type Bot struct {
	Name            string `yaml:"name"`
	Broker          string `yaml:"broker"` // broker front endpoint
	ProxyXPub       string `yaml:"proxy_xpub"`
	Channel         string `yaml:"channel"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Debug           bool   `yaml:"debug"`
}

// Interval returns the publish cadence as a duration.
func (b Bot) Interval() time.Duration {
	return time.Duration(b.IntervalSeconds) * time.Second
}

// File is the optional YAML document grouping every component's section.
type File struct {
	Broker *Broker `yaml:"broker,omitempty"`
	Proxy  *Proxy  `yaml:"proxy,omitempty"`
	Ref    *Ref    `yaml:"ref,omitempty"`
	Server *Server `yaml:"server,omitempty"`
	Bot    *Bot    `yaml:"bot,omitempty"`
}

// Load parses a YAML configuration file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &f, nil
}

// loadOptional returns the CONFIG_FILE document when one is named, an empty
// document otherwise. A named but unreadable file is a hard error: silently
// running on defaults when the operator pointed at a file hides mistakes.
func loadOptional() (*File, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return &File{}, nil
	}
	return Load(path)
}

// BrokerFromEnv resolves the broker configuration.
func BrokerFromEnv() (Broker, error) {
	cfg := Broker{Front: DefaultBrokerFront, Back: DefaultBrokerBack}

	file, err := loadOptional()
	if err != nil {
		return cfg, err
	}
	if file.Broker != nil {
		overlayString(&cfg.Front, file.Broker.Front)
		overlayString(&cfg.Back, file.Broker.Back)
		overlayString(&cfg.MetricsAddr, file.Broker.MetricsAddr)
		cfg.Debug = cfg.Debug || file.Broker.Debug
	}

	cfg.Front = envOrDefault("BROKER_FRONT", cfg.Front)
	cfg.Back = envOrDefault("BROKER_BACK", cfg.Back)
	cfg.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	return cfg, nil
}

// ProxyFromEnv resolves the proxy configuration.
func ProxyFromEnv() (Proxy, error) {
	cfg := Proxy{XSub: DefaultProxyXSub, XPub: DefaultProxyXPub}

	file, err := loadOptional()
	if err != nil {
		return cfg, err
	}
	if file.Proxy != nil {
		overlayString(&cfg.XSub, file.Proxy.XSub)
		overlayString(&cfg.XPub, file.Proxy.XPub)
		overlayString(&cfg.MetricsAddr, file.Proxy.MetricsAddr)
		cfg.Debug = cfg.Debug || file.Proxy.Debug
	}

	cfg.XSub = envOrDefault("XSUB_ADDR", cfg.XSub)
	cfg.XPub = envOrDefault("XPUB_ADDR", cfg.XPub)
	cfg.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	return cfg, nil
}

// RefFromEnv resolves the reference service configuration.
func RefFromEnv() (Ref, error) {
	cfg := Ref{Bind: DefaultRefBind, PersistDir: "./data"}

	file, err := loadOptional()
	if err != nil {
		return cfg, err
	}
	if file.Ref != nil {
		overlayString(&cfg.Bind, file.Ref.Bind)
		overlayString(&cfg.PersistDir, file.Ref.PersistDir)
		overlayString(&cfg.MetricsAddr, file.Ref.MetricsAddr)
		cfg.Debug = cfg.Debug || file.Ref.Debug
	}

	cfg.Bind = envOrDefault("REF_BIND", cfg.Bind)
	cfg.PersistDir = envOrDefault("PERSIST_DIR", cfg.PersistDir)
	cfg.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	return cfg, nil
}

// ServerFromEnv resolves one application server's configuration. The server
// name defaults to a time-derived value the way the deployment scripts do,
// so unnamed test instances never collide on rank registration.
func ServerFromEnv() (Server, error) {
	cfg := Server{
		Name:             fmt.Sprintf("server-%03d", time.Now().Unix()%1000),
		Broker:           DefaultBrokerBackDial,
		ProxyXSub:        DefaultProxyXSubDial,
		ProxyXPub:        DefaultProxyXPubDial,
		RefAddr:          "tcp://localhost:6000",
		PersistDir:       "./data",
		HeartbeatSeconds: 5,
		SyncEvery:        10,
	}

	file, err := loadOptional()
	if err != nil {
		return cfg, err
	}
	if file.Server != nil {
		overlayString(&cfg.Name, file.Server.Name)
		overlayString(&cfg.Broker, file.Server.Broker)
		overlayString(&cfg.ProxyXSub, file.Server.ProxyXSub)
		overlayString(&cfg.ProxyXPub, file.Server.ProxyXPub)
		overlayString(&cfg.RefAddr, file.Server.RefAddr)
		overlayString(&cfg.PersistDir, file.Server.PersistDir)
		overlayInt(&cfg.HeartbeatSeconds, file.Server.HeartbeatSeconds)
		overlayInt(&cfg.SyncEvery, file.Server.SyncEvery)
		overlayString(&cfg.MetricsAddr, file.Server.MetricsAddr)
		cfg.Debug = cfg.Debug || file.Server.Debug
	}

	cfg.Name = envOrDefault("SERVER_NAME", cfg.Name)
	cfg.Broker = envOrDefault("BROKER_ENDPOINT", cfg.Broker)
	cfg.ProxyXSub = envOrDefault("PROXY_XSUB", cfg.ProxyXSub)
	cfg.ProxyXPub = envOrDefault("PROXY_XPUB", cfg.ProxyXPub)
	cfg.RefAddr = refAddrFromEnv(cfg.RefAddr)
	cfg.PersistDir = envOrDefault("PERSIST_DIR", cfg.PersistDir)
	cfg.HeartbeatSeconds = envInt("HEARTBEAT_INTERVAL", cfg.HeartbeatSeconds)
	cfg.SyncEvery = envInt("SYNC_EVERY", cfg.SyncEvery)
	cfg.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	return cfg, nil
}

// BotFromEnv resolves the traffic generator's configuration.
func BotFromEnv() (Bot, error) {
	cfg := Bot{
		Name:            fmt.Sprintf("bot-%03d", time.Now().Unix()%1000),
		Broker:          DefaultBrokerFrontDial,
		ProxyXPub:       DefaultProxyXPubDial,
		Channel:         "general",
		IntervalSeconds: 2,
	}

	file, err := loadOptional()
	if err != nil {
		return cfg, err
	}
	if file.Bot != nil {
		overlayString(&cfg.Name, file.Bot.Name)
		overlayString(&cfg.Broker, file.Bot.Broker)
		overlayString(&cfg.ProxyXPub, file.Bot.ProxyXPub)
		overlayString(&cfg.Channel, file.Bot.Channel)
		overlayInt(&cfg.IntervalSeconds, file.Bot.IntervalSeconds)
		cfg.Debug = cfg.Debug || file.Bot.Debug
	}

	cfg.Name = envOrDefault("BOT_NAME", cfg.Name)
	cfg.Broker = envOrDefault("BROKER_FRONT", cfg.Broker)
	cfg.ProxyXPub = envOrDefault("PROXY_XPUB", cfg.ProxyXPub)
	cfg.Channel = envOrDefault("BOT_CHANNEL", cfg.Channel)
	cfg.IntervalSeconds = envInt("BOT_INTERVAL", cfg.IntervalSeconds)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	return cfg, nil
}

// refAddrFromEnv accepts either a full REF_ADDR endpoint or the legacy
// REF_HOST/REF_PORT pair used by the docker-compose files.
func refAddrFromEnv(fallback string) string {
	if v := os.Getenv("REF_ADDR"); v != "" {
		return v
	}
	host := os.Getenv("REF_HOST")
	port := os.Getenv("REF_PORT")
	if host == "" && port == "" {
		return fallback
	}
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6000"
	}
	return fmt.Sprintf("tcp://%s:%s", host, port)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
