package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TLS modes
const (
	TLSOff        = "off"
	TLSSelfSigned = "selfsigned"
	TLSFile       = "file"
	TLSACME       = "acme"
)

// ACMEChallengePort is where ACME servers send HTTP-01 validation requests.
const ACMEChallengePort = 80

type Config struct {
	Host             string
	HTTPPort         int
	HTTPSPort        int
	TLSMode          string
	Domain           string
	CertPath         string
	KeyPath          string
	ACMEEmail        string
	ACMEStaging      bool
	ACMEDirectoryURL string // Custom ACME directory URL (empty = Let's Encrypt)
	ACMERenewalDays  int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	LogLevel         string
}

// Load reads the configuration from the environment. Variables found in envFiles
// (default ".env") are applied first without overriding the real environment.
func Load(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing .env file is normal.
		_ = godotenv.Load(f)
	}

	return &Config{
		Host:             getEnv("HOST", "0.0.0.0"),
		HTTPPort:         getEnvInt("HTTP_PORT", 80),
		HTTPSPort:        getEnvInt("HTTPS_PORT", 443),
		TLSMode:          strings.ToLower(getEnv("TLS_MODE", TLSOff)),
		Domain:           getEnv("DOMAIN", "localhost"),
		CertPath:         getEnv("CERT_PATH", "./certs/cert.pem"),
		KeyPath:          getEnv("KEY_PATH", "./certs/key.pem"),
		ACMEEmail:        getEnv("ACME_EMAIL", ""),
		ACMEStaging:      getEnv("ACME_STAGING", "true") == "true",
		ACMEDirectoryURL: getEnv("ACME_DIRECTORY_URL", ""),
		ACMERenewalDays:  getEnvInt("ACME_RENEWAL_DAYS", 30),
		ReadTimeout:      getEnvDuration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:     getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:      getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
	}
}

// Validate checks port ranges and the TLS mode.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTPPort)
	}
	if c.HTTPSPort < 0 || c.HTTPSPort > 65535 {
		return fmt.Errorf("invalid HTTPS port %d", c.HTTPSPort)
	}
	switch c.TLSMode {
	case TLSOff, TLSSelfSigned, TLSFile:
	case TLSACME:
		if c.Domain == "" || c.Domain == "localhost" {
			return fmt.Errorf("TLS mode %q needs a public DOMAIN", c.TLSMode)
		}
		// HTTP-01 validation always connects to port 80.
		if c.HTTPPort != ACMEChallengePort {
			return fmt.Errorf("TLS mode %q needs HTTP_PORT %d for HTTP-01 challenges, got %d", c.TLSMode, ACMEChallengePort, c.HTTPPort)
		}
	default:
		return fmt.Errorf("unknown TLS mode %q", c.TLSMode)
	}
	return nil
}

// TLSEnabled reports whether an HTTPS listener should be started.
func (c *Config) TLSEnabled() bool {
	return c.TLSMode != "" && c.TLSMode != TLSOff
}

// HTTPAddr is the listen address of the plain HTTP listener.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// HTTPSAddr is the listen address of the HTTPS listener.
func (c *Config) HTTPSAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPSPort)
}

// PrivilegedPort reports whether binding the HTTP port usually needs root.
func (c *Config) PrivilegedPort() bool {
	return c.HTTPPort > 0 && c.HTTPPort < 1024
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
