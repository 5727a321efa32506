package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultListenAddress      = ":3000"
	DefaultMailHost           = "smtp.gmail.com"
	DefaultMailPort           = 465
	DefaultSenderName         = "NekoMail"
	DefaultQueueSize          = 100
	DefaultMaxMessagesPerConn = 10
	DefaultIdleTimeout        = 30 * time.Second
	DefaultSendTimeout        = 10 * time.Second
)

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRS to trust for X-Forwarded-For headers (e.g., ["10.0.0.0/8", "127.0.0.1"])
}

// Mail configures the outbound SMTP relay.
type Mail struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// SenderAddress defaults to User, which is what Gmail expects.
	SenderAddress      string `yaml:"senderAddress"`
	SenderName         string `yaml:"senderName"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`

	QueueSize          int           `yaml:"queueSize"`
	MaxMessagesPerConn int           `yaml:"maxMessagesPerConnection"`
	IdleTimeout        time.Duration `yaml:"idleTimeout"`
	SendTimeout        time.Duration `yaml:"sendTimeout"`
}

type Policy struct {
	// BlockedDomains extends the built-in recipient deny list.
	BlockedDomains []string `yaml:"blockedDomains"`
}

type Config struct {
	Server Server `yaml:"server"`
	Mail   Mail   `yaml:"mail"`
	Policy Policy `yaml:"policy"`
}

// Load reads the configuration from path and applies environment overrides.
// A missing file is not an error when path is empty or equals the default
// "./config.yaml"; the service then runs on environment and defaults only.
// The path can also be set via NEKOMAIL_CONFIG_PATH.
func Load(configPath ...string) (Config, error) {
	var config Config

	path := ""
	if len(configPath) > 0 {
		path = configPath[0]
	}
	if path == "" {
		path = os.Getenv("NEKOMAIL_CONFIG_PATH")
	}
	explicit := path != ""
	if !explicit {
		path = "./config.yaml"
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &config); err != nil {
			return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return config, fmt.Errorf("trying to open nekomail config file %s: %w", path, err)
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return config, err
	}
	return config, nil
}

// applyEnv overrides file values with the variables the service has always
// understood (EMAIL_USER, EMAIL_PASS, SMTP_HOST, SMTP_PORT, PORT) and the
// NEKOMAIL_* family.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Mail.User, "EMAIL_USER", "NEKOMAIL_MAIL_USER")
	str(&c.Mail.Password, "EMAIL_PASS", "NEKOMAIL_MAIL_PASSWORD")
	str(&c.Mail.Host, "SMTP_HOST", "NEKOMAIL_MAIL_HOST")
	str(&c.Mail.SenderAddress, "NEKOMAIL_SENDER_ADDRESS")
	str(&c.Server.TLSCertFile, "NEKOMAIL_TLS_CERT_FILE")
	str(&c.Server.TLSKeyFile, "NEKOMAIL_TLS_KEY_FILE")

	for _, k := range []string{"SMTP_PORT", "NEKOMAIL_MAIL_PORT"} {
		if v, ok := lookup(k); ok && v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", k, v, err)
			}
			c.Mail.Port = port
			break
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.ListenAddress = ":" + v
	}
	str(&c.Server.ListenAddress, "NEKOMAIL_LISTEN_ADDRESS")

	if v, ok := lookup("NEKOMAIL_BLOCKED_DOMAINS"); ok && v != "" {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				c.Policy.BlockedDomains = append(c.Policy.BlockedDomains, d)
			}
		}
	}
	if v, ok := lookup("NEKOMAIL_TRUSTED_PROXIES"); ok && v != "" {
		c.Server.TrustedProxies = strings.Split(v, ",")
	}
	return nil
}

// Defaults fills unset fields with the built-in values.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.Mail.Host == "" {
		c.Mail.Host = DefaultMailHost
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = DefaultMailPort
	}
	if c.Mail.SenderAddress == "" {
		c.Mail.SenderAddress = c.Mail.User
	}
	if c.Mail.SenderName == "" {
		c.Mail.SenderName = DefaultSenderName
	}
	if c.Mail.QueueSize <= 0 {
		c.Mail.QueueSize = DefaultQueueSize
	}
	if c.Mail.MaxMessagesPerConn <= 0 {
		c.Mail.MaxMessagesPerConn = DefaultMaxMessagesPerConn
	}
	if c.Mail.IdleTimeout <= 0 {
		c.Mail.IdleTimeout = DefaultIdleTimeout
	}
	if c.Mail.SendTimeout <= 0 {
		c.Mail.SendTimeout = DefaultSendTimeout
	}
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Mail.User == "" {
		errs = append(errs, errors.New("mail user is required (EMAIL_USER)"))
	}
	if c.Mail.Password == "" {
		errs = append(errs, errors.New("mail password is required (EMAIL_PASS)"))
	}
	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		errs = append(errs, fmt.Errorf("mail port %d out of range", c.Mail.Port))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("tlsCertFile and tlsKeyFile must be set together"))
	}
	return errors.Join(errs...)
}
