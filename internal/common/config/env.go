package config

import (
	"os"
	"strconv"
)

// Env helpers supply flag defaults, so every flag can also be set from the
// environment.

func EnvString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func EnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func EnvUint32(key string, fallback uint32) uint32 {
	if v, err := strconv.ParseUint(os.Getenv(key), 10, 32); err == nil {
		return uint32(v)
	}
	return fallback
}

func EnvInt64(key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return fallback
}
