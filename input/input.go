package input

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/marcelsud/tower-poller/schedule"
)

/* Input is a single named polling configuration
 * It is built once by the loader and never mutated afterwards
 */

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultBackoffBase    = 5 * time.Second
	DefaultBackoffCap     = 6
	DefaultAPIPath        = "/api/v1"
)

// Config describes one input: where to poll, how often, and with which credentials
type Config struct {
	Name             string
	Host             string
	Username         string
	Password         string
	VerifySSL        bool
	Category         Category
	ExtraQueryParams url.Values
	RequestTimeout   time.Duration
	BackoffBase      time.Duration
	BackoffCap       int
	Schedule         schedule.Spec
	LogLevel         LogLevel
	APIPath          string
}

// WithDefaults fills unset numeric and path fields.
// Category and LogLevel are left alone so an unknown value still fails Validate.
func (c Config) WithDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.BackoffCap > schedule.MaxBackoffCap {
		c.BackoffCap = schedule.MaxBackoffCap
	}
	if c.APIPath == "" {
		c.APIPath = DefaultAPIPath
	}
	return c
}

// Validate checks the fields an input cannot run without.
// Every failure is a *ConfigurationError naming the offending field.
func (c Config) Validate() error {
	fail := func(field string, err error) error {
		return &ConfigurationError{Input: c.Name, Field: field, Err: err}
	}
	if strings.TrimSpace(c.Name) == "" {
		return fail("name", errors.New("is required"))
	}
	if strings.TrimSpace(c.Host) == "" {
		return fail("host", errors.New("is required"))
	}
	if _, err := c.BaseURL(); err != nil {
		return fail("host", err)
	}
	if c.Username == "" {
		return fail("username", errors.New("is required"))
	}
	if c.Password == "" {
		return fail("password", errors.New("is required"))
	}
	if err := c.Category.Validate(); err != nil {
		return fail("event_type", err)
	}
	if err := c.LogLevel.Validate(); err != nil {
		return fail("log_level", err)
	}
	if c.Schedule.IsZero() {
		return fail("interval", errors.New("is required"))
	}
	return nil
}

// BaseURL returns scheme://host[:port] for the input.
// A host without a scheme is assumed to speak https.
func (c Config) BaseURL() (*url.URL, error) {
	raw := strings.TrimRight(strings.TrimSpace(c.Host), "/")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing host: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host name")
	}
	return u, nil
}
