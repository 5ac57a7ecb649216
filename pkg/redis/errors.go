package redis

import "errors"

var (
	ErrInvalidConfig                = errors.New("invalid redis configuration")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
	ErrProviderClosed               = errors.New("redis connection provider is closed")

	errMissingHost = errors.New("host is required")
	errMissingPort = errors.New("port must be between 1 and 65535")
)
