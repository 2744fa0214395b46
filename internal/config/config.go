package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable named in the environment/config key table:
// crawl pacing and hardening limits, the internal control server's bind
// and access restrictions, Redis connection settings, and logging.
type Config struct {
	DataDir string // directory for the Store file and snapshot outputs

	MaxChecksPerSecond  int           // max_checks_per_second, global dispatch rate
	MaxConcurrentChecks int           // max_concurrent_checks, in-flight ceiling
	MaxChecksPerHostDay int           // max_checks_per_host_per_day, per-target rolling 24h cap
	TickInterval        time.Duration // dispatch loop period
	CheckerDeadline     time.Duration // checker_deadline, total wall-clock per check
	WatchdogGrace       time.Duration // grace window between SIGTERM and SIGKILL

	ConnectTimeout   time.Duration // connect_timeout
	ReadTimeout      time.Duration // read_timeout
	MaxRedirects     int           // max_redirects, same-origin hops
	MaxBodyBytes     int64         // max_body_bytes
	MaxPeersPerCheck int           // max_peers_per_check

	SnapshotInterval time.Duration // snapshot_interval
	AliveWindow      time.Duration // alive_window, listing eligibility

	RobotsUserAgent string // exclusion-rules product token
	InfoURL         string // URL advertised in the HTTP User-Agent string
	SoftwareMapFile string // path to the Software Map yaml, empty = built-in defaults only

	ListenPort      string        // control server bind, ex: ":9090"
	ShutdownTimeout time.Duration // graceful shutdown deadline

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Redis
	RedisAddr             string
	RedisUser             string
	RedisPassword         string
	RedisPasswordRequired bool
	RedisDB               int
	RedisDT               time.Duration
	RedisRT               time.Duration
	RedisWT               time.Duration
	RedisMaxWait          time.Duration
	RedisPingTimeout      time.Duration
	RedisPoolSize         int
	RedisConnectTimeout   time.Duration
	RedisRetryInterval    time.Duration
	RedisWarnThreshold    int

	AllowedHosts []string // restrict control server to specific Host headers
	AllowedCIDRS []string // restrict control server to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		DataDir: getenv("FEDIWATCH_DATA_DIR", "/var/lib/fediwatch"),

		MaxChecksPerSecond:  getenvInt("FEDIWATCH_MAX_CHECKS_PER_SECOND", 1),
		MaxConcurrentChecks: getenvInt("FEDIWATCH_MAX_CONCURRENT_CHECKS", 512),
		MaxChecksPerHostDay: getenvInt("FEDIWATCH_MAX_CHECKS_PER_HOST_PER_DAY", 2),
		TickInterval:        mustDuration("FEDIWATCH_TICK_INTERVAL", time.Second),
		CheckerDeadline:     mustDuration("FEDIWATCH_CHECKER_DEADLINE", 60*time.Second),
		WatchdogGrace:       mustDuration("FEDIWATCH_WATCHDOG_GRACE", 2*time.Second),

		ConnectTimeout:   mustDuration("FEDIWATCH_CONNECT_TIMEOUT", 10*time.Second),
		ReadTimeout:      mustDuration("FEDIWATCH_READ_TIMEOUT", 30*time.Second),
		MaxRedirects:     getenvInt("FEDIWATCH_MAX_REDIRECTS", 5),
		MaxBodyBytes:     getenvInt64("FEDIWATCH_MAX_BODY_BYTES", 4*1024*1024),
		MaxPeersPerCheck: getenvInt("FEDIWATCH_MAX_PEERS_PER_CHECK", 20000),

		SnapshotInterval: mustDuration("FEDIWATCH_SNAPSHOT_INTERVAL", 30*time.Minute),
		AliveWindow:      mustDuration("FEDIWATCH_ALIVE_WINDOW", 7*24*time.Hour),

		RobotsUserAgent: getenv("FEDIWATCH_ROBOTS_USER_AGENT", "MinoruFediverseCrawler"),
		InfoURL:         getenv("FEDIWATCH_INFO_URL", ""),
		SoftwareMapFile: getenv("FEDIWATCH_SOFTWARE_MAP_FILE", ""),

		ListenPort:      getenv("FEDIWATCH_LISTEN_PORT", ":9090"),
		ShutdownTimeout: mustDuration("FEDIWATCH_SHUTDOWN_TIMEOUT", 5*time.Second),

		LogLevel:  getenv("FEDIWATCH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("FEDIWATCH_PRETTY_LOG", false),

		RedisAddr:             requireEnv("FEDIWATCH_REDIS_ADDR"),
		RedisUser:             getenv("FEDIWATCH_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("FEDIWATCH_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("FEDIWATCH_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("FEDIWATCH_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		AllowedHosts: parseAllowedIPs(getenv("FEDIWATCH_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("FEDIWATCH_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("FEDIWATCH_TRUST_PROXY", false),
	}

	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: FEDIWATCH_REDIS_PASSWORD is required when FEDIWATCH_REDIS_PASSWORD_REQUIRED=true")
	}

	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func requireEnvSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return splitAndTrim(v)
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
