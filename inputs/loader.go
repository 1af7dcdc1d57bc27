package inputs

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marcelsud/tower-poller/input"
	"github.com/marcelsud/tower-poller/schedule"
	"gopkg.in/yaml.v3"
)

/* Loader manages input configuration from inputs.yaml
 * Invalid inputs are reported and skipped; valid ones are kept
 */

// File represents the structure of inputs.yaml
type File struct {
	Inputs []Record `yaml:"inputs"`
}

// Record represents a single input in the YAML file
type Record struct {
	Name             string `yaml:"name" validate:"required"`
	TowerHost        string `yaml:"tower_host" validate:"required"`
	Username         string `yaml:"username" validate:"required"`
	Password         string `yaml:"password" validate:"required_without=PasswordEnv"`
	PasswordEnv      string `yaml:"password_env"`                 // Optional: read the password from this variable
	VerifySSL        *bool  `yaml:"verify_ssl"`                   // Default: true
	EventType        string `yaml:"event_type"`                   // Default: job_events
	Interval         string `yaml:"interval" validate:"required"` // Seconds, Go duration or cron expression
	ExtraQueryParams string `yaml:"extra_query_params"`           // url-encoded, e.g. "job__name=deploy"
	LogLevel         string `yaml:"log_level"`                    // Default: warning
	RequestTimeout   string `yaml:"request_timeout"`              // Default: 30s
	BackoffBase      string `yaml:"backoff_base"`                 // Default: 5s
	BackoffCap       int    `yaml:"backoff_cap" validate:"gte=0,lte=16"`
	APIPath          string `yaml:"api_path" validate:"omitempty,startswith=/"`
}

// Loader holds the loaded inputs
type Loader struct {
	inputs   map[string]input.Config
	validate *validator.Validate
	getenv   func(string) string
}

// NewLoader creates a new input loader
func NewLoader() *Loader {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Loader{
		inputs:   make(map[string]input.Config),
		validate: v,
		getenv:   os.Getenv,
	}
}

// Load reads and parses the inputs file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading inputs file: %w", err)
	}
	return l.Parse(data)
}

// Parse loads inputs from YAML. Every valid input is kept; the returned error
// joins one *input.ConfigurationError per rejected input.
func (l *Loader) Parse(data []byte) error {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing inputs YAML: %w", err)
	}

	var errs []error
	for i, rec := range file.Inputs {
		cfg, err := l.build(rec)
		if err != nil {
			var cfgErr *input.ConfigurationError
			if errors.As(err, &cfgErr) && cfgErr.Input == "" {
				cfgErr.Input = fmt.Sprintf("#%d", i+1)
			}
			errs = append(errs, err)
			continue
		}
		if _, exists := l.inputs[cfg.Name]; exists {
			errs = append(errs, &input.ConfigurationError{Input: cfg.Name, Field: "name", Err: errors.New("duplicate input name")})
			continue
		}
		l.inputs[cfg.Name] = cfg
	}
	return errors.Join(errs...)
}

func (l *Loader) build(rec Record) (input.Config, error) {
	fail := func(field string, err error) error {
		return &input.ConfigurationError{Input: rec.Name, Field: field, Err: err}
	}

	if err := l.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return input.Config{}, fail(fe.Field(), fmt.Errorf("failed %q validation", fe.Tag()))
		}
		return input.Config{}, fail("", err)
	}

	password := rec.Password
	if rec.PasswordEnv != "" {
		password = l.getenv(rec.PasswordEnv)
		if password == "" {
			return input.Config{}, fail("password_env", fmt.Errorf("variable %s is empty", rec.PasswordEnv))
		}
	}

	spec, err := schedule.Parse(rec.Interval)
	if err != nil {
		return input.Config{}, fail("interval", err)
	}

	extra, err := url.ParseQuery(rec.ExtraQueryParams)
	if err != nil {
		return input.Config{}, fail("extra_query_params", err)
	}

	verify := true
	if rec.VerifySSL != nil {
		verify = *rec.VerifySSL
	}

	timeout, err := parseDuration(rec.RequestTimeout)
	if err != nil {
		return input.Config{}, fail("request_timeout", err)
	}
	base, err := parseDuration(rec.BackoffBase)
	if err != nil {
		return input.Config{}, fail("backoff_base", err)
	}

	cfg := input.Config{
		Name:             rec.Name,
		Host:             rec.TowerHost,
		Username:         rec.Username,
		Password:         password,
		VerifySSL:        verify,
		Category:         input.NewCategory(rec.EventType),
		ExtraQueryParams: extra,
		RequestTimeout:   timeout,
		BackoffBase:      base,
		BackoffCap:       rec.BackoffCap,
		Schedule:         spec,
		LogLevel:         input.NewLogLevel(rec.LogLevel),
		APIPath:          rec.APIPath,
	}.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return input.Config{}, err
	}
	return cfg, nil
}

// parseDuration returns zero for an empty value so defaults apply
func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// Get retrieves an input by name
func (l *Loader) Get(name string) (input.Config, error) {
	cfg, exists := l.inputs[name]
	if !exists {
		return input.Config{}, fmt.Errorf("input not found: %s", name)
	}
	return cfg, nil
}

// List returns all loaded inputs sorted by name
func (l *Loader) List() []input.Config {
	out := make([]input.Config, 0, len(l.inputs))
	for _, cfg := range l.inputs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Exists checks if an input name exists
func (l *Loader) Exists(name string) bool {
	_, exists := l.inputs[name]
	return exists
}
