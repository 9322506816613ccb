package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	RefreshTokenTTLHours  int
	SweepIntervalMinutes  int
	TelegramToken         string
	TelegramChatID        int64
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	accessTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "15"))
	if err != nil || accessTTL < 1 {
		accessTTL = 15
	}
	refreshTTL, err := strconv.Atoi(getEnv("REFRESH_TOKEN_TTL_HOURS", "720"))
	if err != nil || refreshTTL < 1 {
		refreshTTL = 720
	}
	sweepInterval, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_MINUTES", "10"))
	if err != nil || sweepInterval < 1 {
		sweepInterval = 10
	}
	chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: accessTTL,
		RefreshTokenTTLHours:  refreshTTL,
		SweepIntervalMinutes:  sweepInterval,
		TelegramToken:         strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:        chatID,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
