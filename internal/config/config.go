// config package holds the exporter configuration. Values come from the
// environment (optionally seeded from a .env file) and can be overridden by
// command line flags.
package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Verbose is set from the global --verbose flag.
var Verbose bool

const (
	EnvSensorPath          = "CO2_SENSOR_PATH"
	EnvListenAddrs         = "CO2_METRICS_LISTEN_ADDRS"
	EnvReadTimeout         = "CO2_READ_TIMEOUT"
	EnvTLSCertificate      = "CO2_TLS_CERT"
	EnvTLSKey              = "CO2_TLS_KEY"
	EnvTLSClientCADir      = "CO2_TLS_CLIENT_CA_DIR"
	EnvTLSCrl              = "CO2_TLS_CRL"
	EnvRemoteWriteURL      = "CO2_REMOTE_WRITE_URL"
	EnvRemoteWriteInterval = "CO2_REMOTE_WRITE_INTERVAL"
	EnvTelegramToken       = "TELEGRAM_TOKEN"
	EnvTelegramChats       = "TELEGRAM_ALLOWED_CHATS"
)

type Config struct {
	SensorPath  string
	ListenAddrs []string
	ReadTimeout time.Duration

	// Optional TLS.
	TLSCertificate string
	TLSKey         string
	TLSClientCADir string
	TLSCrl         string

	// Optional remote-write push.
	RemoteWriteURL      string
	RemoteWriteInterval time.Duration

	// Optional telegram bot.
	TelegramToken        string
	TelegramAllowedChats []int64
}

func Default() Config {
	return Config{
		SensorPath:          "/dev/ttyAMA0",
		ListenAddrs:         []string{"localhost:1202"},
		ReadTimeout:         200 * time.Millisecond,
		RemoteWriteInterval: 15 * time.Second,
	}
}

// Load reads the configuration from the environment on top of Default.
func Load() (Config, error) {
	c := Default()
	c.SensorPath = EnvOr(EnvSensorPath, c.SensorPath)
	if addrs := EnvOr(EnvListenAddrs, ""); addrs != "" {
		c.ListenAddrs = strings.Fields(addrs)
	}

	var err error
	if c.ReadTimeout, err = envDuration(EnvReadTimeout, c.ReadTimeout); err != nil {
		return Config{}, err
	}
	if c.RemoteWriteInterval, err = envDuration(EnvRemoteWriteInterval, c.RemoteWriteInterval); err != nil {
		return Config{}, err
	}

	c.TLSCertificate = EnvOr(EnvTLSCertificate, "")
	c.TLSKey = EnvOr(EnvTLSKey, "")
	c.TLSClientCADir = EnvOr(EnvTLSClientCADir, "")
	c.TLSCrl = EnvOr(EnvTLSCrl, "")
	c.RemoteWriteURL = EnvOr(EnvRemoteWriteURL, "")
	c.TelegramToken = EnvOr(EnvTelegramToken, "")

	if c.TelegramAllowedChats, err = ParseChatIDs(EnvOr(EnvTelegramChats, "")); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", EnvTelegramChats, err)
	}
	return c, nil
}

// Validate checks option combinations that cannot work.
func (c Config) Validate() error {
	if c.SensorPath == "" {
		return fmt.Errorf("sensor path cannot be empty")
	}
	if len(c.ListenAddrs) == 0 {
		return fmt.Errorf("at least one listen address is required")
	}
	if (c.TLSCertificate == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS certificate and key must be given together")
	}
	if c.TLSCertificate == "" && (c.TLSClientCADir != "" || c.TLSCrl != "") {
		return fmt.Errorf("client certificate verification requires TLS")
	}
	if c.TLSCrl != "" && c.TLSClientCADir == "" {
		return fmt.Errorf("a CRL requires a trusted client CA directory")
	}
	return nil
}

func (c Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Using sensor at: %s\n", c.SensorPath)
	sb.WriteString("Listening on addresses:")
	for _, addr := range c.ListenAddrs {
		fmt.Fprintf(&sb, " %s", addr)
	}
	sb.WriteString("\n")
	return sb.String()
}

// ResolveListenAddrs expands host names into one address per resolved IP, so
// that e.g. localhost is served on both loopback families.
func ResolveListenAddrs(ctx context.Context, addrs []string) ([]string, error) {
	seen := map[string]bool{}
	resolved := []string{}
	add := func(addr string) {
		if !seen[addr] {
			seen[addr] = true
			resolved = append(resolved, addr)
		}
	}

	for _, addr := range addrs {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid listen address '%s': %w", addr, err)
		}
		if host == "" || net.ParseIP(host) != nil {
			add(addr)
			continue
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve listen address '%s': %w", addr, err)
		}
		for _, ip := range ips {
			add(net.JoinHostPort(ip.String(), port))
		}
	}
	return resolved, nil
}

// ParseChatIDs parses a comma separated list of telegram chat IDs.
func ParseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnvOr returns the trimmed env value or def when empty.
func EnvOr(key, def string) string {
	v := strings.TrimSpace(strings.Trim(os.Getenv(key), `"`))
	if v == "" {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := EnvOr(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
