// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"os"
	"time"

	"github.com/basictheprogram/crossfire-nexxus/internal/logger"
	"github.com/basictheprogram/crossfire-nexxus/internal/vars"
	"github.com/jessevdk/go-flags"
)

// Config represents the complete application flags configuration.
type Config struct {
	Server    Server        `group:"Server Options" env-namespace:"NEXXUS"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"NEXXUS_DB"`
	Registry  Registry      `group:"Registry Options" namespace:"registry" env-namespace:"NEXXUS_REGISTRY"`
	Security  Security      `group:"Security Options" namespace:"security" env-namespace:"NEXXUS_SECURITY"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"NEXXUS_RATE_LIMIT"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"NEXXUS_GEOIP"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"NEXXUS_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	Address     string        `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	MaxBodySize int64         `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"4096"`
	TrustProxy  bool          `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
	GuardCount  int           `long:"guard-count" env:"GUARD_COUNT" description:"Transport-level per-IP burst guard: requests per window, 0 disables" default:"0"`
	GuardWindow time.Duration `long:"guard-window" env:"GUARD_WINDOW" description:"Transport-level per-IP burst guard: window duration" default:"1m"`
}

// Storage holds database configuration and one-shot maintenance flags.
type Storage struct {
	Path          string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"nexxus.db"`
	PruneStale    int    `long:"prune-stale" description:"Delete servers not updated for the given number of seconds, then exit" default:"0"`
	GenerateCount int    `long:"gen-fake-data" hidden:"true"`
}

// Registry holds read-path visibility configuration.
type Registry struct {
	StaleWindow int `long:"stale-window" env:"STALE_WINDOW" description:"Seconds since last update before a server is hidden from the active listing" default:"3600"`
}

// Security holds the settings that select and parameterize the request checks.
// The blacklist checks are on by default; the credential checks activate when
// their secret is configured.
type Security struct {
	APIKey                   string `long:"api-key" env:"API_KEY" description:"Expected X-API-Key value; enables the API key check when set"`
	HMACSecret               string `long:"hmac-secret" env:"HMAC_SECRET" description:"Shared secret for the X-Signature HMAC check; enables it when set"`
	DisableIPBlacklist       bool   `long:"disable-ip-blacklist" env:"DISABLE_IP_BLACKLIST" description:"Disable the IP blacklist check"`
	DisableHostnameBlacklist bool   `long:"disable-hostname-blacklist" env:"DISABLE_HOSTNAME_BLACKLIST" description:"Disable the hostname blacklist check"`
}

// RateLimit holds fixed-window rate limiting configuration.
type RateLimit struct {
	Threshold int64         `long:"threshold" env:"THRESHOLD" description:"Requests allowed per window per IP, 0 disables the check" default:"5"`
	Window    time.Duration `long:"window" env:"WINDOW" description:"Fixed window duration" default:"1m"`
	RedisURL  string        `long:"redis-url" env:"REDIS_URL" description:"Redis URL for shared counters; in-process counters when empty"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"nexxus.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Disable country resolution entirely"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return &cfg
}
