// Package config carries per-client construction options. A Config is a
// flat string-keyed map so the public surface stays vendor-neutral; each
// adapter extracts and validates its own keys at construction and fails
// fast on what it is missing.
//
// Recognized keys:
//
//	api_key       vendor API identifier (always required)
//	access_token  pre-obtained token (manual auth mode)
//	client_id     account login id (auto auth mode)
//	pin           account PIN (auto auth mode)
//	totp_secret   TOTP seed (auto auth mode)
//	auth_mode     "manual" | "auto" (defaults to the vendor's preference)
//	cache_session persist the session across restarts when truthy
//	session_store "file" | "s3" session backend (default "file")
//	s3_bucket     bucket for the s3 session backend
//	s3_endpoint   custom endpoint for S3-compatible providers (R2, MinIO)
//	s3_access_key static credential id for the s3 session backend
//	s3_secret_key static credential secret for the s3 session backend
//	on_stale      "fail" | "warn" refresh-failure policy
//	cache_dir     directory for the instrument DB and session files
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tradetools/ttconnect/domain"
)

// Config is a flat option map passed at client construction.
type Config map[string]any

// DefaultCacheDir is used when neither the config nor TT_CACHE_DIR names
// a cache directory.
const DefaultCacheDir = "cache"

// String returns the value for key coerced to a string, or "" when the
// key is absent.
func (c Config) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// StringOr returns the value for key, or def when absent or empty.
func (c Config) StringOr(key, def string) string {
	if s := c.String(key); s != "" {
		return s
	}
	return def
}

// Bool returns the value for key interpreted as a boolean. Strings parse
// via strconv; absent or unparseable values are false.
func (c Config) Bool(key string) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}

// Has reports whether key is present with a non-empty value.
func (c Config) Has(key string) bool {
	return c.String(key) != ""
}

// Require returns an error naming the first missing key.
func (c Config) Require(keys ...string) error {
	for _, key := range keys {
		if !c.Has(key) {
			return fmt.Errorf("config: %q is required", key)
		}
	}
	return nil
}

// AuthMode returns the configured auth mode, or def when unset. An
// unrecognized value is returned as-is so the caller can reject it with
// a precise message.
func (c Config) AuthMode(def domain.AuthMode) domain.AuthMode {
	if raw := c.String("auth_mode"); raw != "" {
		return domain.AuthMode(strings.ToLower(raw))
	}
	return def
}

// OnStale returns the configured staleness policy, defaulting to fail.
func (c Config) OnStale() domain.OnStale {
	if raw := c.String("on_stale"); raw != "" {
		return domain.OnStale(strings.ToLower(raw))
	}
	return domain.OnStaleFail
}

// CacheDir returns the cache directory: the config's cache_dir, else
// TT_CACHE_DIR, else DefaultCacheDir.
func (c Config) CacheDir() string {
	if dir := c.String("cache_dir"); dir != "" {
		return dir
	}
	if dir := os.Getenv("TT_CACHE_DIR"); dir != "" {
		return dir
	}
	return DefaultCacheDir
}

// FromEnv builds a Config for a broker from environment variables,
// loading .env first when present. Keys follow {BROKER}_{KEY} naming:
// ZERODHA_API_KEY, ANGELONE_TOTP_SECRET, and so on.
func FromEnv(brokerID string) Config {
	_ = godotenv.Load()

	prefix := strings.ToUpper(brokerID) + "_"
	cfg := Config{}
	for _, key := range []string{
		"api_key", "access_token", "client_id", "pin", "totp_secret",
		"auth_mode", "cache_session", "session_store",
		"s3_bucket", "s3_endpoint", "s3_access_key", "s3_secret_key",
		"on_stale",
	} {
		if value := os.Getenv(prefix + strings.ToUpper(key)); value != "" {
			cfg[key] = value
		}
	}
	if dir := os.Getenv("TT_CACHE_DIR"); dir != "" {
		cfg["cache_dir"] = dir
	}
	return cfg
}
