package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache keeps one parsed value per configuration type and prefix.
type cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	globalCache = &cache{entries: make(map[string]*entry)}

	defaultEnvLoaded sync.Once
)

// Option configures a Load call.
type Option func(*options)

type options struct {
	prefix string
}

// WithPrefix prepends prefix to every env key of the struct, so one config
// type can be loaded for several instances ("MAIL_REDIS_", "QUEUE_REDIS_").
// Each prefix is cached separately.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// Load parses environment variables into v using its env and envDefault
// struct tags.
//
// The default .env file is read once on first use; variables already set in
// the process environment win over it. A configuration type is parsed once
// per prefix and later calls copy the cached value. A failed parse is not
// cached, so the caller can fix the environment and try again.
//
// Example:
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	key := o.prefix + getTypeName[T]()

	globalCache.mu.Lock()
	e, ok := globalCache.entries[key]
	if !ok {
		e = &entry{}
		globalCache.entries[key] = e
	}
	globalCache.mu.Unlock()

	e.once.Do(func() {
		var parsed T
		if err := env.ParseWithOptions(&parsed, env.Options{Prefix: o.prefix}); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = parsed
	})

	if e.err != nil {
		globalCache.mu.Lock()
		if globalCache.entries[key] == e {
			delete(globalCache.entries, key)
		}
		globalCache.mu.Unlock()
		return e.err
	}

	cached, ok := e.value.(T)
	if !ok {
		return ErrInvalidConfigType
	}
	*v = cached
	return nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// LoadEnv reads the given .env files into the process environment. Earlier
// files and variables that are already set take precedence. Call it before
// the first Load of the types that depend on the files.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// MustLoadEnv works like LoadEnv but panics on failure.
func MustLoadEnv(files ...string) {
	if err := LoadEnv(files...); err != nil {
		panic(err)
	}
}

// ResetCache drops every cached configuration. Meant for tests.
func ResetCache() {
	globalCache.mu.Lock()
	globalCache.entries = make(map[string]*entry)
	globalCache.mu.Unlock()
}

func getTypeName[T any]() string {
	t := reflect.TypeFor[T]()
	return t.PkgPath() + "." + t.String()
}
