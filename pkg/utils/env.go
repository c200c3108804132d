package utils

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env.<mode> if present, falling back to .env. Missing files
// are reported to the caller; every config key has a default regardless.
func LoadEnv(mode string) error {
	if mode != "" {
		if err := godotenv.Load(".env." + mode); err == nil {
			return nil
		}
	}
	return godotenv.Load()
}

// GetEnv returns the raw environment value for key
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetStringOrDefault returns the environment value or def when unset/empty
func GetStringOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// GetIntEnv returns the environment value as int64, zero when unset
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetIntOrDefault returns the environment value as int or def when unset/empty
func GetIntOrDefault(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return cast.ToInt(v)
	}
	return def
}

// GetFloatOrDefault returns the environment value as float64 or def when unset/empty
func GetFloatOrDefault(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return cast.ToFloat64(v)
	}
	return def
}

// GetBoolOrDefault returns the environment value as bool or def when unset/empty
func GetBoolOrDefault(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return cast.ToBool(v)
	}
	return def
}
