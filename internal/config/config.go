// Package config holds the typed configuration surface, loaded once from a
// JSON-with-comments file plus required environment variables, and the
// verbosity-gated logger. A plain struct read through a comment-stripping
// reader, not a config framework.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	jsonco "github.com/tinode/jsonco"
)

// Defaults, named after their configuration file keys.
const (
	DefaultBacklog      = 1
	DefaultBlockFor     = 86400
	DefaultMaxMsgLength = 1000
	DefaultPageInbox    = 20
	DefaultPageOutbox   = 20
	DefaultPort         = 4113
	DefaultRateLimitM   = 12
	DefaultRateLimitH   = 90
)

// Config is the process-wide, read-only-after-init configuration surface.
type Config struct {
	LogFile      string `json:"log_file"`
	Backlog      int    `json:"backlog"`
	BlockFor     int    `json:"block_for"`
	MaxMsgLength int    `json:"max_msg_length"`
	PageInbox    int    `json:"page_inbox"`
	PageOutbox   int    `json:"page_outbox"`
	Port         uint16 `json:"port"`
	RateLimitM   int    `json:"rate_limit_m"`
	RateLimitH   int    `json:"rate_limit_h"`

	// Verbosity is not a JSON key: it's controlled exclusively by -q/-v on
	// the command line. Kept here because every other process-wide option
	// lives on this struct too.
	Verbosity int `json:"-"`

	// Env holds the required startup environment variables. Populated by
	// RequireEnv, never by the JSON file.
	Env Env `json:"-"`
}

// Env is the set of environment variables required at startup.
type Env struct {
	RootAPIKey string
	RootPass   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
}

// Defaults returns the configuration with every documented default applied
// and verbosity at 0.
func Defaults() *Config {
	return &Config{
		LogFile:      "-",
		Backlog:      DefaultBacklog,
		BlockFor:     DefaultBlockFor,
		MaxMsgLength: DefaultMaxMsgLength,
		PageInbox:    DefaultPageInbox,
		PageOutbox:   DefaultPageOutbox,
		Port:         DefaultPort,
		RateLimitM:   DefaultRateLimitM,
		RateLimitH:   DefaultRateLimitH,
	}
}

// LoadFile fills cfg from a JSON-with-comments file, leaving any key absent
// from the file at its current (default) value — unlike encoding/json
// against a zero-valued struct, absent keys here never silently reset a
// previously-loaded value because LoadFile is only ever called once, right
// after Defaults().
func (cfg *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = jsonco.New(f)
	dec := json.NewDecoder(r)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Dump renders the effective configuration, used by --dump-config.
func (cfg *Config) Dump(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// RequireEnv reads every required environment variable, reporting each
// unset one through onMissing. A missing required envvar is fatal: there
// is no recovery, and no partial response is ever emitted because the
// process has not started accepting connections yet.
func RequireEnv(onMissing func(name string)) Env {
	get := func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			onMissing(name)
		}
		return v
	}
	return Env{
		RootAPIKey: get("ROOT_API_KEY"),
		RootPass:   get("ROOT_PASSWORD"),
		DBHost:     get("DB_HOST"),
		DBPort:     get("DB_PORT"),
		DBName:     get("DB_NAME"),
		DBUser:     get("DB_USER"),
		DBPassword: get("DB_PASSWORD"),
	}
}
