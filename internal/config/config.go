// Package config loads capture.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "capture.yaml"

// Counter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full configuration of a capture run.
type Config struct {
	Host           string    `mapstructure:"host"`
	Port           int       `mapstructure:"port"`
	Output         string    `mapstructure:"output"`
	RunID          string    `mapstructure:"run_id"`
	RunIDDirty     bool      `mapstructure:"run_id_dirty"`
	Repo           string    `mapstructure:"repo"`
	Storage        Storage   `mapstructure:"storage"`
	Sessions       []Session `mapstructure:"sessions"`
	Target         Target    `mapstructure:"target"`
	Counter        Counter   `mapstructure:"counter"`
	Metrics        bool      `mapstructure:"metrics"`
	Log            Log       `mapstructure:"log"`
	MaxUploadBytes int64     `mapstructure:"max_upload_bytes"`
	MCPPort        int       `mapstructure:"mcp_port"`
	Parallel       int       `mapstructure:"parallel"`
	Browser        Browser   `mapstructure:"browser"`
}

// Session configures one browser session.
type Session struct {
	ID       string `mapstructure:"id"`
	Headless bool   `mapstructure:"headless"`
	Width    int    `mapstructure:"width"`
	Height   int    `mapstructure:"height"`
}

// Target is the test page the sessions open.
type Target struct {
	URL      string `mapstructure:"url"`
	TestPage string `mapstructure:"test_page"`
	Filter   string `mapstructure:"filter"`
}

// Counter selects the sequence counter backend.
type Counter struct {
	Backend string `mapstructure:"backend"`
	Redis   Redis  `mapstructure:"redis"`
}

// Redis holds the connection settings of the redis counter.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Storage controls how screenshots are written.
type Storage struct {
	DirMode  os.FileMode `mapstructure:"dir_mode"`
	FileMode os.FileMode `mapstructure:"file_mode"`
	Sync     bool        `mapstructure:"sync"`
}

// Log configures the application logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Browser configures how chromedp starts or reaches the browser.
type Browser struct {
	ExecPath  string `mapstructure:"exec_path"`
	RemoteURL string `mapstructure:"remote_url"`
	NoSandbox bool   `mapstructure:"no_sandbox"`
}

func defaults() map[string]any {
	return map[string]any{
		"host":   "localhost",
		"port":   4300,
		"output": "screenshots",
		"repo":   ".",
		"storage": map[string]any{
			"dir_mode":  0o755,
			"file_mode": 0o644,
			"sync":      true,
		},
		"target": map[string]any{
			"url":       "http://localhost:4200",
			"test_page": "tests/index.html?hidepassed",
		},
		"counter": map[string]any{
			"backend": BackendMemory,
			"redis": map[string]any{
				"addr":   "localhost:6379",
				"prefix": "capture:",
			},
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}

// Default returns the configuration used when no file exists.
func Default() (*Config, error) {
	return decode(defaults())
}

// Load reads path and merges it over the defaults. A missing DefaultFile is
// not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data merged over the defaults.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", DefaultFile, err)
	}
	if sessions, ok := raw["sessions"].([]any); ok {
		raw["sessions"] = normalizeSessions(sessions)
	}
	return decode(merge(defaults(), raw))
}

// normalizeSessions accepts bare ids ("- chrome") and fills in the session
// defaults.
func normalizeSessions(in []any) []any {
	out := make([]any, 0, len(in))
	for _, item := range in {
		s := map[string]any{"headless": true}
		switch v := item.(type) {
		case map[string]any:
			for k, val := range v {
				s[k] = val
			}
		default:
			s["id"] = fmt.Sprint(v)
		}
		out = append(out, s)
	}
	return out
}

func decode(raw map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// merge overlays src onto dst, descending into nested maps.
func merge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				dst[k] = merge(dm, sm)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// Validate checks the settings the runner cannot recover from.
func (c *Config) Validate() error {
	if len(c.Sessions) == 0 {
		return errors.New("at least one session is required")
	}
	seen := make(map[string]bool, len(c.Sessions))
	for i, s := range c.Sessions {
		if s.ID == "" {
			return fmt.Errorf("session %d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate session id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Width < 0 || s.Height < 0 {
			return fmt.Errorf("session %q: negative window size", s.ID)
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Counter.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown counter backend %q", c.Counter.Backend)
	}
	if c.Counter.Redis.TTL < 0 {
		return fmt.Errorf("negative redis ttl %s", c.Counter.Redis.TTL)
	}
	if c.Storage.DirMode&0o700 != 0o700 {
		return fmt.Errorf("storage dir_mode %#o must let the owner enter and write", c.Storage.DirMode)
	}
	if c.Storage.FileMode&0o600 != 0o600 {
		return fmt.Errorf("storage file_mode %#o must let the owner read and write", c.Storage.FileMode)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// SessionIDs lists the configured session ids in order.
func (c *Config) SessionIDs() []string {
	ids := make([]string, len(c.Sessions))
	for i, s := range c.Sessions {
		ids[i] = s.ID
	}
	return ids
}

// TargetURL joins the target base URL and the test page.
func (c *Config) TargetURL() string {
	base, page := c.Target.URL, c.Target.TestPage
	switch {
	case base == "":
		return ""
	case page == "":
		return base
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	for len(page) > 0 && page[0] == '/' {
		page = page[1:]
	}
	return base + "/" + page
}
