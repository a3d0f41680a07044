/*
Package config assembles a Config from environment variables and command
flags for cmd/tinycloud-node's serve command.

The teacher has no config package of its own: cmd/warren/main.go reads
cobra flags directly into each subcommand's local variables and never
centralizes them. No pack repo carries a config library (no viper, no
envconfig) for this package to adopt instead, so this follows the
teacher's own ambient choice and stays on the standard library —
flag values are passed in by the caller (cmd/tinycloud-node), this
package only owns defaulting, environment-variable fallback, and the
one piece of real parsing (the hex-encoded server secret).
*/
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/keys"
)

// Config controls how cmd/tinycloud-node assembles a core.Core and its
// HTTP server.
type Config struct {
	// ListenAddr is the §6 HTTP surface's bind address.
	ListenAddr string
	// MetricsAddr serves /metrics, /health, /ready, /live, mirroring the
	// teacher's separate metrics listener.
	MetricsAddr string
	// MetaDBPath is passed to metadb.Open.
	MetaDBPath string
	// BlobStorePath roots the filesystem blob store; empty uses an
	// in-memory store (development/test only).
	BlobStorePath string
	// MaxSpaceBytes bounds per-space blob storage; zero is unlimited.
	MaxSpaceBytes int64
	// Secret seeds every space's host did:key.
	Secret [keys.SecretSize]byte
	// LogLevel and LogJSON configure pkg/log.Init.
	LogLevel string
	LogJSON  bool
}

// Default returns a Config with every field set to its development
// default — an in-memory metadata store and blob store, a well-known
// (insecure) all-zero secret, and plaintext logging at info level.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: "127.0.0.1:9090",
		MetaDBPath:  ":memory:",
		LogLevel:    "info",
	}
}

// secretEnvVar is read by ApplyEnv when --secret is left empty, so an
// operator can avoid the secret appearing in `ps` output.
const secretEnvVar = "TINYCLOUD_SECRET"

// ApplyEnv overlays TINYCLOUD_* environment variables onto cfg, for
// values the caller's flags left at their zero value. Flags always win
// over the environment.
func ApplyEnv(cfg Config) Config {
	if cfg.MetaDBPath == "" {
		if v := os.Getenv("TINYCLOUD_METADB_PATH"); v != "" {
			cfg.MetaDBPath = v
		}
	}
	if cfg.BlobStorePath == "" {
		if v := os.Getenv("TINYCLOUD_BLOBSTORE_PATH"); v != "" {
			cfg.BlobStorePath = v
		}
	}
	if cfg.ListenAddr == "" {
		if v := os.Getenv("TINYCLOUD_LISTEN_ADDR"); v != "" {
			cfg.ListenAddr = v
		}
	}
	return cfg
}

// ParseSecret decodes a hex-encoded 32-byte server secret, falling back
// to the TINYCLOUD_SECRET environment variable when hexSecret is empty.
// An empty result after both is an error — running with a zero secret
// is a development-only default set by Default, never silently assumed
// here.
func ParseSecret(hexSecret string) ([keys.SecretSize]byte, error) {
	if hexSecret == "" {
		hexSecret = os.Getenv(secretEnvVar)
	}
	if hexSecret == "" {
		var zero [keys.SecretSize]byte
		return zero, fmt.Errorf("config: no server secret provided (--secret or %s)", secretEnvVar)
	}
	raw, err := hex.DecodeString(hexSecret)
	if err != nil {
		var zero [keys.SecretSize]byte
		return zero, fmt.Errorf("config: decode secret: %w", err)
	}
	return keys.ParseSecret(raw)
}
