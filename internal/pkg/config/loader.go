// Package config provides fail-open environment loading for the worker
// binary. An unset variable silently yields the default; a value that fails
// to parse or validate also yields the default, but with a warning the
// caller is expected to log and count. Loading never aborts startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Result is the outcome of loading one environment value. Value is always
// usable: either the parsed environment value or the caller's default.
type Result[T any] struct {
	Value           T
	Warnings        []string
	FallbackApplied bool
}

func fellBack[T any](key, raw string, cause error, def T) Result[T] {
	return Result[T]{
		Value: def,
		Warnings: []string{fmt.Sprintf("invalid %s=%q: %v, using default %v",
			key, raw, cause, def)},
		FallbackApplied: true,
	}
}

// String loads a string from the environment, validated when a validator is
// given. An empty or unset variable returns the default without a warning.
func String(key, def string, validate func(string) error) Result[string] {
	raw := os.Getenv(key)
	if raw == "" {
		return Result[string]{Value: def}
	}
	if validate != nil {
		if err := validate(raw); err != nil {
			return fellBack(key, raw, err, def)
		}
	}
	return Result[string]{Value: raw}
}

// Int loads an integer from the environment.
func Int(key string, def int, validate func(int) error) Result[int] {
	raw := os.Getenv(key)
	if raw == "" {
		return Result[int]{Value: def}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fellBack(key, raw, fmt.Errorf("not an integer"), def)
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return fellBack(key, raw, err, def)
		}
	}
	return Result[int]{Value: v}
}

// Duration loads a Go duration string ("30s", "2m", "1h30m") from the
// environment.
func Duration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	raw := os.Getenv(key)
	if raw == "" {
		return Result[time.Duration]{Value: def}
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fellBack(key, raw, err, def)
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return fellBack(key, raw, err, def)
		}
	}
	return Result[time.Duration]{Value: v}
}
