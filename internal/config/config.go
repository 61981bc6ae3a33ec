// Package config loads process settings from STOREFRONT_* environment
// variables. A Config is built once at startup and passed by value.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	minSecretLen = 32
)

type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	Env       string
	LogLevel  string
	LogFormat string

	// SessionSecret signs session tokens.
	SessionSecret string

	AdminEmail        string
	AdminPassword     string
	AdminPasswordHash string

	PostmarkToken string
	FromEmail     string

	// TrustProxy honors CF-Connecting-IP and X-Forwarded-For for client
	// addresses. Only enable it behind a proxy that overwrites them.
	TrustProxy bool

	invalid []error
}

// Load reads the configuration through getenv, usually os.Getenv, and
// fills in defaults.
func Load(getenv func(string) string) Config {
	c := Config{
		Port:              getenv("STOREFRONT_PORT"),
		DBPath:            getenv("STOREFRONT_DB_PATH"),
		BaseURL:           strings.TrimRight(getenv("STOREFRONT_BASE_URL"), "/"),
		Env:               strings.ToLower(strings.TrimSpace(getenv("STOREFRONT_ENV"))),
		LogLevel:          getenv("STOREFRONT_LOG_LEVEL"),
		LogFormat:         getenv("STOREFRONT_LOG_FORMAT"),
		SessionSecret:     getenv("STOREFRONT_SESSION_SECRET"),
		AdminEmail:        getenv("STOREFRONT_ADMIN_EMAIL"),
		AdminPassword:     getenv("STOREFRONT_ADMIN_PASSWORD"),
		AdminPasswordHash: getenv("STOREFRONT_ADMIN_PASSWORD_HASH"),
		PostmarkToken:     getenv("STOREFRONT_POSTMARK_TOKEN"),
		FromEmail:         getenv("STOREFRONT_FROM_EMAIL"),
	}
	if v := strings.TrimSpace(getenv("STOREFRONT_TRUST_PROXY")); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			c.invalid = append(c.invalid, fmt.Errorf("STOREFRONT_TRUST_PROXY: %q is not a boolean", v))
		}
		c.TrustProxy = trust
	}
	return c.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.DBPath == "" {
		c.DBPath = "storefront.db"
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%s", c.Port)
	}
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	return c
}

// Production reports whether cookies must be HTTPS-only.
func (c Config) Production() bool {
	return c.Env == EnvProduction
}

// Validate reports every setting the server cannot start without.
func (c Config) Validate() error {
	errs := append([]error(nil), c.invalid...)
	if len(c.SessionSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("STOREFRONT_SESSION_SECRET must be at least %d bytes", minSecretLen))
	}
	if strings.TrimSpace(c.AdminEmail) == "" {
		errs = append(errs, errors.New("STOREFRONT_ADMIN_EMAIL is required"))
	}
	if c.AdminPassword == "" && c.AdminPasswordHash == "" {
		errs = append(errs, errors.New("one of STOREFRONT_ADMIN_PASSWORD or STOREFRONT_ADMIN_PASSWORD_HASH is required"))
	}
	if c.Production() && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, errors.New("STOREFRONT_BASE_URL must use https in production"))
	}
	return errors.Join(errs...)
}
