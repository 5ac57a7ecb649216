package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment names recognised by WithEnvironment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds logger settings loaded from the environment.
type Config struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"queuekit"`
	Level   string `env:"LOG_LEVEL"`
	Format  string `env:"LOG_FORMAT"`
}

// Format represents logger output format.
type Format string

const (
	// FormatJSON outputs structured logs for production log aggregation systems.
	FormatJSON Format = "json"
	// FormatText outputs human-readable logs for development debugging.
	FormatText Format = "text"
)

// Option configures logger creation.
type Option func(*config)

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithFormat sets the output format. It panics on anything but FormatJSON
// or FormatText; use FromConfig for values read from the environment.
func WithFormat(f Format) Option {
	return func(c *config) {
		switch f {
		case FormatJSON, FormatText:
			c.format = f
		default:
			panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
		}
	}
}

func WithTextFormatter() Option {
	return func(c *config) {
		c.format = FormatText
	}
}

func WithJSONFormatter() Option {
	return func(c *config) {
		c.format = FormatJSON
	}
}

// WithOutput sets where records are written. A nil writer is ignored.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithHandlerOptions replaces the handler options, including the level.
func WithHandlerOptions(opts *slog.HandlerOptions) Option {
	return func(c *config) {
		if opts != nil {
			c.handlerOptions = opts
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) {
		if len(attrs) > 0 {
			c.attrs = append(c.attrs, attrs...)
		}
	}
}

// WithContextExtractors registers extractors run for every record. Nil
// extractors are skipped.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithContextValue logs ctx.Value(key) under name whenever it is set.
func WithContextValue(name string, key any) Option {
	return func(c *config) {
		if name == "" || key == nil {
			return
		}
		c.extractors = append(c.extractors, func(ctx context.Context) (slog.Attr, bool) {
			if v := ctx.Value(key); v != nil {
				return slog.Any(name, v), true
			}
			return slog.Attr{}, false
		})
	}
}

// envPreset holds the level and format an environment starts from.
type envPreset struct {
	name   string
	level  slog.Level
	format Format
}

var (
	devPreset     = envPreset{name: EnvDevelopment, level: slog.LevelDebug, format: FormatText}
	stagingPreset = envPreset{name: EnvStaging, level: slog.LevelInfo, format: FormatJSON}
	prodPreset    = envPreset{name: EnvProduction, level: slog.LevelInfo, format: FormatJSON}
)

// apply tags every record with the service and environment. An empty
// service leaves the config untouched.
func (p envPreset) apply(service string) Option {
	return func(c *config) {
		if service == "" {
			return
		}
		c.level = p.level
		c.format = p.format
		if c.output == nil {
			c.output = os.Stdout
		}
		c.attrs = append(c.attrs,
			slog.String("service", service),
			slog.String("env", p.name),
		)
	}
}

// WithDevelopment logs text at debug level.
func WithDevelopment(service string) Option { return devPreset.apply(service) }

// WithStaging logs JSON at info level.
func WithStaging(service string) Option { return stagingPreset.apply(service) }

// WithProduction logs JSON at info level.
func WithProduction(service string) Option { return prodPreset.apply(service) }

// WithEnvironment picks the preset for env. Anything unrecognised is treated
// as development.
func WithEnvironment(env string, service string) Option {
	switch strings.ToLower(env) {
	case EnvProduction, "prod":
		return prodPreset.apply(service)
	case EnvStaging, "stage":
		return stagingPreset.apply(service)
	default:
		return devPreset.apply(service)
	}
}

// FromConfig applies environment defaults first, then explicit level and format overrides.
// Unknown levels fall back to the environment default.
func FromConfig(cfg Config) Option {
	return func(c *config) {
		WithEnvironment(cfg.Env, cfg.Service)(c)
		if cfg.Level != "" {
			var l slog.Level
			if err := l.UnmarshalText([]byte(cfg.Level)); err == nil {
				c.level = l
			}
		}
		switch Format(strings.ToLower(cfg.Format)) {
		case FormatJSON:
			c.format = FormatJSON
		case FormatText:
			c.format = FormatText
		}
	}
}

// SetAsDefault makes l the logger behind the slog package functions.
func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

type config struct {
	level          slog.Level
	format         Format
	output         io.Writer
	attrs          []slog.Attr
	handlerOptions *slog.HandlerOptions
	extractors     []ContextExtractor
}

func defaultConfig() *config {
	return &config{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
}

// New builds a logger from opts. Without options it writes JSON at info level
// to stdout. Records pass through a ContextHandler so extractors can add
// attributes taken from the context of each call.
func New(opts ...Option) *slog.Logger {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := cfg.handlerOptions
	if handlerOpts == nil {
		handlerOpts = &slog.HandlerOptions{Level: cfg.level}
	}

	var h slog.Handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	if cfg.format == FormatText {
		h = slog.NewTextHandler(cfg.output, handlerOpts)
	}
	if len(cfg.attrs) > 0 {
		h = h.WithAttrs(cfg.attrs)
	}
	return slog.New(NewContextHandler(h, cfg.extractors...))
}
