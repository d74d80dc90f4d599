package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/siteuptime/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBaseURL        = "https://www.siteuptime.com"
	DefaultUserAgent      = "siteuptime-reporter"
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultTrimPercentage = 1.0
	DefaultFormat         = FormatText
	DefaultRetention      = 90 * 24 * time.Hour
	DefaultLogLevel       = "info"
)

// Output formats.
const (
	FormatText       = "text"
	FormatPrometheus = "prometheus"
)

// Relative window modes, used when no explicit dates are configured.
const (
	WindowPreviousMonth = "previous_month"
	WindowMonthToDate   = "month_to_date"
)

// Config is the top-level configuration of the reporter.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Reporter ReporterConfig `yaml:"reporter"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ReporterConfig holds everything one report run needs.
type ReporterConfig struct {
	// Site configures the monitoring dashboard the failure history is read from.
	Site SiteConfig `yaml:"site"`

	// Window is the reporting date range.
	Window WindowConfig `yaml:"window"`

	// TrimPercentage is the share of services (per side) dropped before the
	// trimmed average is computed. Typical values are 1.0 and 2.0.
	TrimPercentage float64 `yaml:"trim_percentage" validate:"gt=0,lte=50"`

	// Output selects how the report is rendered.
	Output OutputConfig `yaml:"output"`

	// Storage configures the optional run archive.
	Storage StorageConfig `yaml:"storage"`

	// Webhooks receive a short summary after every run.
	Webhooks []WebhookConfig `yaml:"webhooks" validate:"dive"`

	// Schedule is a cron expression used by the schedule command, e.g. "@monthly"
	// or "0 6 1 * *". Empty disables scheduling.
	Schedule string `yaml:"schedule"`
}

// SiteConfig describes the dashboard and how to authenticate to it.
type SiteConfig struct {
	// BaseURL is the scheme and host of the dashboard, without a trailing path.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Username is the login e-mail address (safe to store in config).
	Username string `yaml:"username"`

	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`

	// MaxRetries is how many times a transient failure is retried.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`

	// Debug stops service discovery after the first listing page.
	Debug bool `yaml:"debug"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// Password returns the dashboard password resolved from the environment.
// Returns empty string if PasswordEnv is unset or the variable is not found.
func (s SiteConfig) Password() string {
	if s.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(s.PasswordEnv)
}

// TLSConfig holds TLS dial options for the dashboard connection.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// WindowConfig is the reporting window. Explicit Start/End dates win over
// Relative; with neither set the previous calendar month is reported.
type WindowConfig struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Relative string `yaml:"relative" validate:"omitempty,oneof=previous_month month_to_date"`
}

// Resolve returns the concrete window for a run starting at now.
func (w WindowConfig) Resolve(now time.Time) (types.Window, error) {
	if w.Start != "" || w.End != "" {
		start, err := types.ParseDate(w.Start)
		if err != nil {
			return types.Window{}, fmt.Errorf("window.start: %w", err)
		}
		end, err := types.ParseDate(w.End)
		if err != nil {
			return types.Window{}, fmt.Errorf("window.end: %w", err)
		}
		win := types.NewWindow(start, end)
		return win, win.Validate()
	}
	if w.Relative == WindowMonthToDate {
		return types.MonthToDate(now), nil
	}
	return types.PreviousMonth(now), nil
}

// OutputConfig selects the report format.
type OutputConfig struct {
	// Format is one of: text | prometheus.
	Format string `yaml:"format" validate:"oneof=text prometheus"`

	// Textfile, when set, additionally writes the Prometheus exposition of the
	// report to this path (for the node_exporter textfile collector).
	Textfile string `yaml:"textfile"`
}

// StorageConfig configures the run archive.
type StorageConfig struct {
	// Backend selects the storage implementation: sqlite. Empty disables archiving.
	Backend string `yaml:"backend" validate:"omitempty,oneof=sqlite"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path" validate:"required_with=Backend"`

	// Retention is how long archived runs are kept before deletion.
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// Enabled reports whether runs are archived.
func (s StorageConfig) Enabled() bool { return s.Backend != "" }

// WebhookConfig defines one summary delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type" validate:"oneof=slack teams http"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env" validate:"required"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is also the
// config used when no file is given on the command line.
func Default() *Config {
	return &Config{
		Reporter: ReporterConfig{
			Site: SiteConfig{
				BaseURL:        DefaultBaseURL,
				UserAgent:      DefaultUserAgent,
				RequestTimeout: DefaultRequestTimeout,
				MaxRetries:     DefaultMaxRetries,
			},
			TrimPercentage: DefaultTrimPercentage,
			Output:         OutputConfig{Format: DefaultFormat},
			Storage:        StorageConfig{Retention: DefaultRetention},
		},
		Logging: LoggingConfig{Level: DefaultLogLevel},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report field paths the way they are spelled in the YAML file.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks required fields, ranges and enums, then the window dates.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describe(verrs[0])
		}
		return err
	}

	w := cfg.Reporter.Window
	if (w.Start == "") != (w.End == "") {
		return fmt.Errorf("reporter.window: start and end must be set together")
	}
	if w.Start != "" {
		if _, err := w.Resolve(time.Time{}); err != nil {
			return fmt.Errorf("reporter.%w", err)
		}
	}
	if cfg.Reporter.Site.PasswordEnv != "" && cfg.Reporter.Site.Username == "" {
		return fmt.Errorf("reporter.site.username is required when password_env is set")
	}
	return nil
}

// describe turns a validator error into a message naming the YAML path.
func describe(fe validator.FieldError) error {
	path := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Errorf("%s is required", path)
	case "oneof":
		return fmt.Errorf("%s: unknown value %q (want one of: %s)", path, fe.Value(), fe.Param())
	case "url":
		return fmt.Errorf("%s: %q is not a valid URL", path, fe.Value())
	default:
		return fmt.Errorf("%s: must satisfy %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
}
