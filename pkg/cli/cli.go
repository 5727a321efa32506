package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ServeOptions holds the serve command's flags. Each flag falls back to an
// environment variable.
type ServeOptions struct {
	Debug bool

	// ConfigPath points at an optional YAML file.
	ConfigPath string
	// ListenAddress overrides server.listenAddress when set.
	ListenAddress string

	SendTimeout     string
	ShutdownTimeout string
}

func (o ServeOptions) Print(log *zap.SugaredLogger) {
	log.Infow("Serve options",
		"debug", o.Debug,
		"config_path", o.ConfigPath,
		"listen_address", o.ListenAddress,
		"send_timeout", o.SendTimeout,
		"shutdown_timeout", o.ShutdownTimeout,
	)
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	duration := def
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			duration = d
		} else {
			return duration, fmt.Errorf("invalid %s %q; using default %s: %w", name, value, def.String(), err)
		}
	}

	return duration, nil
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
