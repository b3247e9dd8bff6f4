// Package config holds server configuration bound from environment
// variables, an optional YAML file, and command line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the uibridge host server.
type ServerConfig struct {
	Port           int
	MetricsPort    int
	LogLevel       string
	RedisAddr      string
	AllowedOrigins []string
	ResizePolicy   string
	RequestTimeout time.Duration
}

// BindFlags populates the struct with defaults from environment variables
// and binds command line flags. A config file loaded between BindFlags and
// flag.Parse overlays the env defaults while explicit flags still win.
func (c *ServerConfig) BindFlags() {
	c.bindFlags(flag.CommandLine)
}

func (c *ServerConfig) bindFlags(fs *flag.FlagSet) {
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	c.Port = port
	mp, _ := strconv.Atoi(getEnv("METRICS_PORT", "0"))
	c.MetricsPort = mp
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.RedisAddr = getEnv("REDIS_ADDR", "")
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	c.ResizePolicy = getEnv("RESIZE_POLICY", "both")
	rt, _ := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "60s"))
	c.RequestTimeout = rt

	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	fs.IntVar(&c.MetricsPort, "metrics-port", c.MetricsPort, "Prometheus metrics listen port; 0 serves metrics on the public port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: trace, debug, info, warn, error")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis address for the render-data store; empty keeps render data in memory")
	fs.StringVar(&c.ResizePolicy, "resize-policy", c.ResizePolicy, "which surface axes follow size-change messages: both, width, height or none")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "maximum duration an action handler may run")
	fs.Var(originsValue{c}, "allowed-origins", "comma separated list of origins allowed to attach surfaces")
}

// originsValue binds the allowed-origins flag to the config slice.
type originsValue struct{ c *ServerConfig }

func (o originsValue) String() string {
	if o.c == nil {
		return ""
	}
	return strings.Join(o.c.AllowedOrigins, ",")
}

func (o originsValue) Set(v string) error {
	o.c.AllowedOrigins = splitList(v)
	return nil
}

// fileConfig mirrors ServerConfig for YAML decoding; durations are strings
// in the file.
type fileConfig struct {
	Port           *int     `yaml:"port"`
	MetricsPort    *int     `yaml:"metrics_port"`
	LogLevel       string   `yaml:"log_level"`
	RedisAddr      string   `yaml:"redis_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ResizePolicy   string   `yaml:"resize_policy"`
	RequestTimeout string   `yaml:"request_timeout"`
}

// LoadFile overlays values from a YAML config file. Keys absent from the
// file keep their current values.
func (c *ServerConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.MetricsPort != nil {
		c.MetricsPort = *fc.MetricsPort
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	if fc.AllowedOrigins != nil {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.ResizePolicy != "" {
		c.ResizePolicy = fc.ResizePolicy
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("parse config: request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
