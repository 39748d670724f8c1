package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// WatchdogInterval is how often a running dump refreshes its job record.
// JobLivenessWindow must be longer, or live jobs are swept as stale.
const WatchdogInterval = 2 * time.Second

// MinTempStreamIdleTimeout bounds TEMP_STREAM_IDLE_TIMEOUT from below.
const MinTempStreamIdleTimeout = time.Second

type Config struct {
	CoreDatabaseURL   string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string
	LogFormat         string
	ServiceName       string

	// BackupRootDir is the local storage root; artifacts go to <root>/backups.
	BackupRootDir string
	// CertDir receives per-connection TLS materials before a subprocess runs.
	CertDir string
	// PGBinDir optionally pins where pg_dump, pg_restore and psql live.
	PGBinDir   string
	S3Endpoint string
	// SecretsKey is a base64 32-byte key sealing stored passwords. Empty
	// stores them in the clear.
	SecretsKey string

	// Optional TLS for the API listener; a client CA enables mutual TLS.
	HTTPTLSCert     string
	HTTPTLSKey      string
	HTTPTLSClientCA string
	// WSOriginPatterns lists extra browser origins (path.Match patterns
	// on the host) allowed to open restore websockets.
	WSOriginPatterns []string

	SchedulerInterval       time.Duration
	TempStreamIdleTimeout   time.Duration
	JobLivenessWindow       time.Duration
	DownloadRateBytesPerSec int64
	MaxTempStreams          int
	MinFreeBytes            int64
	SchedulerEnabled        bool

	parseErrors []string
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:   getEnv("CORE_DATABASE_URL", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		ServiceName:       getEnv("SERVICE_NAME", "pgbackup"),
		BackupRootDir:     getEnv("BACKUP_ROOT_DIR", "/var/lib/pgbackup"),
		PGBinDir:          getEnv("PG_BIN_DIR", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		SecretsKey:        getEnv("SECRETS_KEY", ""),
		HTTPTLSCert:       getEnv("HTTP_TLS_CERT", ""),
		HTTPTLSKey:        getEnv("HTTP_TLS_KEY", ""),
		HTTPTLSClientCA:   getEnv("HTTP_TLS_CLIENT_CA", ""),
	}
	cfg.CertDir = getEnv("BACKUP_CERT_DIR", filepath.Join(cfg.BackupRootDir, "certs"))

	cfg.SchedulerInterval = cfg.duration("SCHEDULER_INTERVAL", 15*time.Minute)
	cfg.TempStreamIdleTimeout = cfg.duration("TEMP_STREAM_IDLE_TIMEOUT", 60*time.Second)
	cfg.JobLivenessWindow = cfg.duration("JOB_LIVENESS_WINDOW", 5*time.Second)
	cfg.DownloadRateBytesPerSec = cfg.int64("DOWNLOAD_RATE_BYTES_PER_SEC", 50_000)
	cfg.MaxTempStreams = int(cfg.int64("MAX_TEMP_STREAMS", 16))
	cfg.MinFreeBytes = cfg.int64("MIN_FREE_BYTES", 100_000_000)
	cfg.SchedulerEnabled = getEnv("SCHEDULER_ENABLED", "true") != "false"
	cfg.WSOriginPatterns = splitList(getEnv("WS_ORIGIN_PATTERNS", ""))

	return cfg, nil
}

// Validate checks that the fields required by the given component are set.
func (c *Config) Validate(component string) error {
	var missing []string
	switch component {
	case "backupd":
		if c.CoreDatabaseURL == "" {
			missing = append(missing, "CORE_DATABASE_URL")
		}
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		if c.BackupRootDir == "" {
			missing = append(missing, "BACKUP_ROOT_DIR")
		}
	case "migrate":
		if c.CoreDatabaseURL == "" {
			missing = append(missing, "CORE_DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown component %q", component)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required config: %s", component, strings.Join(missing, ", "))
	}
	if len(c.parseErrors) > 0 {
		return fmt.Errorf("%s: invalid config: %s", component, strings.Join(c.parseErrors, "; "))
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("%s: SCHEDULER_INTERVAL must be positive", component)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("%s: LOG_FORMAT must be json or console", component)
	}
	if c.DownloadRateBytesPerSec <= 0 {
		return fmt.Errorf("%s: DOWNLOAD_RATE_BYTES_PER_SEC must be positive", component)
	}
	if c.JobLivenessWindow <= WatchdogInterval {
		return fmt.Errorf("%s: JOB_LIVENESS_WINDOW must be longer than the %s watchdog interval", component, WatchdogInterval)
	}
	if c.TempStreamIdleTimeout < MinTempStreamIdleTimeout {
		return fmt.Errorf("%s: TEMP_STREAM_IDLE_TIMEOUT must be at least %s", component, MinTempStreamIdleTimeout)
	}
	return nil
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return d
}

func (c *Config) int64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return n
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
