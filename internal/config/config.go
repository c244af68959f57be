// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時にLoadで1回だけ組み立て、以降はイミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Fetch
	FetchTimeout         time.Duration
	FetchMaxSize         int64
	FetchMaxConcurrent   int
	FetchInterval        time.Duration
	FetchRefreshInterval time.Duration

	// Retention
	ArticleRetentionDays int

	// Rate Limit
	RateLimitGeneral    int
	RateLimitLikeToggle int

	// Feed
	PageSize int

	// Logging
	LogRetentionDays int

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを組み立てる。
// 必須環境変数が欠けている場合は、欠落キーをまとめてエラーで報告する。
// 任意項目はパース不能な値を黙ってデフォルトに落とす。
func Load() (*Config, error) {
	var req required

	cfg := &Config{
		DatabaseURL:        req.get("DATABASE_URL"),
		GoogleClientID:     req.get("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: req.get("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  req.get("GOOGLE_REDIRECT_URL"),
		SessionSecret:      req.get("SESSION_SECRET"),
		BaseURL:            req.get("BASE_URL"),
	}
	if len(req.missing) > 0 {
		return nil, fmt.Errorf("必須環境変数が設定されていません: %v", req.missing)
	}

	cfg.SessionMaxAge = envInt("SESSION_MAX_AGE", 86400)
	cfg.FetchTimeout = envDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = envInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = envInt("FETCH_MAX_CONCURRENT", 10)
	cfg.FetchInterval = envDuration("FETCH_INTERVAL", 5*time.Minute)
	cfg.FetchRefreshInterval = envDuration("FETCH_REFRESH_INTERVAL", time.Hour)
	cfg.ArticleRetentionDays = envInt("ARTICLE_RETENTION_DAYS", 180)
	cfg.RateLimitGeneral = envInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLikeToggle = envInt("RATE_LIMIT_LIKE_TOGGLE", 30)
	cfg.PageSize = envInt("PAGE_SIZE", 20)
	cfg.LogRetentionDays = envInt("LOG_RETENTION_DAYS", 14)
	cfg.ServerPort = envString("SERVER_PORT", "8080")
	cfg.MetricsPort = envString("METRICS_PORT", "9090")
	cfg.CookieDomain = envString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = envString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// Secure属性は配信元URLのスキームから導出する
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// required は必須環境変数の取得と欠落キーの収集をまとめる。
type required struct {
	missing []string
}

func (r *required) get(key string) string {
	v := os.Getenv(key)
	if v == "" {
		r.missing = append(r.missing, key)
	}
	return v
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if i, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return i
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if i, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return i
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}
