// Package config loads the server configuration from defaults, an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named
const DefaultPath = "/etc/httpd.conf"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ThreadLimit     int           `yaml:"thread_limit"`
	DocumentRoot    string        `yaml:"document_root"`
	QueueSize       int           `yaml:"queue_size"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ServerName      string        `yaml:"server_name"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LingerTimeout   time.Duration `yaml:"linger_timeout"`
}

func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            80,
		ThreadLimit:     256,
		DocumentRoot:    "/var/www/html",
		ServerName:      "server",
		LogLevel:        "info",
		LogFormat:       "console",
		ShutdownTimeout: 30 * time.Second,
		LingerTimeout:   500 * time.Millisecond,
	}
}

// Load starts from the defaults and applies the file at path, then the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := cfg.parse(path, data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	default:
		return c.parseTokens(string(data))
	}
}

// parseTokens reads the plain format: whitespace separated words where
// "thread_limit N" and "document_root PATH" are recognised and every other
// word is skipped.
func (c *Config) parseTokens(data string) error {
	words := strings.Fields(data)
	for i := 0; i < len(words); i++ {
		switch words[i] {
		case "thread_limit":
			if i+1 >= len(words) {
				return fmt.Errorf("thread_limit: missing value")
			}
			i++
			n, err := strconv.Atoi(words[i])
			if err != nil {
				return fmt.Errorf("thread_limit %q: %w", words[i], err)
			}
			c.ThreadLimit = n

		case "document_root":
			if i+1 >= len(words) {
				return fmt.Errorf("document_root: missing value")
			}
			i++
			c.DocumentRoot = words[i]
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HTTPD_HOST"); ok && v != "" {
		c.Host = v
	}
	if v, ok := lookup("HTTPD_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTPD_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ThreadLimit < 1 {
		errs = append(errs, fmt.Errorf("thread_limit must be at least 1, got %d", c.ThreadLimit))
	}
	if c.DocumentRoot == "" {
		errs = append(errs, errors.New("document_root is empty"))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 || c.LingerTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q: %w", c.LogLevel, err))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q: want console or json", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Address is the listen address in host:port form
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
