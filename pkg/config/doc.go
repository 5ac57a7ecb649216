// Package config loads process configuration from environment variables.
//
// It combines github.com/joho/godotenv, which reads optional .env files, with
// github.com/caarlos0/env/v11, which parses the environment into structs
// annotated with env and envDefault tags. Every config struct in this module
// (queue.Config, redis.Config, pg.Config, email.Config, httpserver.Config) is
// loaded this way.
//
// # Usage
//
//	var rcfg redis.Config
//	config.MustLoad(&rcfg)
//
//	// Same type, different keys: MAIL_REDIS_HOST, MAIL_REDIS_PORT, ...
//	var mail redis.Config
//	if err := config.Load(&mail, config.WithPrefix("MAIL_")); err != nil {
//		return err
//	}
//
// Extra .env files can be read with LoadEnv before the first Load. Values
// already present in the environment are never overwritten.
//
// # Caching
//
// Each type is parsed once per prefix; later calls copy the cached value.
// Failed parses are not cached. ResetCache clears everything, which tests use
// after changing the environment.
//
// # Error Handling
//
//   - ErrParsingConfig: a value is malformed or a required variable is missing
//   - ErrLoadingEnvFile: LoadEnv could not read a file
//   - ErrNilPointer: nil passed to Load
package config
