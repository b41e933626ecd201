// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	LRS    LRSConfig    `toml:"lrs"`
	Query  QueryConfig  `toml:"query"`
	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

// LRSConfig maps connection and paging settings. Unset fields keep flag defaults.
type LRSConfig struct {
	BaseURL      *string   `toml:"base-url"`
	Username     *string   `toml:"username"`
	Password     *string   `toml:"password"`
	ActivityBase *string   `toml:"activity-base"`
	Timeout      *Duration `toml:"timeout"`
	Retries      *int      `toml:"retries"`
	MaxPages     *int      `toml:"max-pages"`
	MaxDuration  *Duration `toml:"max-duration"`
	Concurrency  *int      `toml:"concurrency"`
	Dedup        *string   `toml:"dedup"`
}

// QueryConfig maps default query selections.
type QueryConfig struct {
	Lang *string `toml:"lang"`
	Type *string `toml:"type"`
	Mode *string `toml:"mode"`
}

// CacheConfig maps the statement cache settings.
type CacheConfig struct {
	Backend *string   `toml:"backend"`
	Size    *int      `toml:"size"`
	TTL     *Duration `toml:"ttl"`
	Path    *string   `toml:"path"`
	URL     *string   `toml:"url"`
}

// ServerConfig maps the HTTP API settings.
type ServerConfig struct {
	Addr        *string  `toml:"addr"`
	CORSOrigins []string `toml:"cors-origins"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// Duration decodes TOML strings such as "30s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	return cfg, nil
}

// Template is the commented file written by `lrsdash config`.
const Template = `# lrsdash configuration
# Uncomment a value to enable it. Environment variables override the [lrs]
# credentials, and CLI flags override everything.

[lrs]
# base-url = "https://lrs.example.org/xapi/statements"
# username = ""
# password = ""
# activity-base = "https://data.curiouslearning.org/xAPI/activities"
# timeout = "30s"          # Per request
# retries = 2              # Retries for 429/5xx and network errors
# max-pages = 1000         # Paging stops with an error beyond this
# max-duration = "5m"      # Overall deadline for one paged query
# concurrency = 4          # Parallel per-actor queries
# dedup = "none"           # none or statement-id

[query]
# lang = "english"
# type = "letter-sound"
# mode = "range"           # range or actors (items only; survey always uses actors)

[cache]
# backend = "memory"       # none, memory, sqlite or redis
# size = 64
# ttl = "15m"
# path = ""                # sqlite file, defaults to the XDG cache dir
# url = "redis://localhost:6379/0"

[server]
# addr = ":8080"
# cors-origins = ["*"]

[log]
# level = "info"
# format = "text"          # text or json
`
