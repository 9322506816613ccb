package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gomhangpro/backend/internal/cache"
	"gomhangpro/backend/internal/config"
	"gomhangpro/backend/internal/httpapi"
	"gomhangpro/backend/internal/notify"
	"gomhangpro/backend/internal/service"
	"gomhangpro/backend/internal/store"
	"gomhangpro/backend/internal/store/memory"
	pgstore "gomhangpro/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, relying on process environment")
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	staffCache := cache.StaffCache(cache.NewMemoryStaffCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStaffCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process staff cache", err)
		} else {
			staffCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("staff cache: redis")
		}
	} else {
		log.Println("staff cache: in-process")
	}

	notifier := notify.Noop()
	if cfg.TelegramToken != "" {
		telegram, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("telegram unavailable (%v), notifications disabled", err)
		} else {
			notifier = telegram
			log.Println("notifier: telegram")
		}
	}

	svc := service.New(repo, notifier)
	auth := httpapi.NewAuthManager(cfg.AuthSecret,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		time.Duration(cfg.RefreshTokenTTLHours)*time.Hour,
		repo, staffCache)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go runSweepLoop(sweepCtx, svc, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)

	go func() {
		log.Printf("gom hang backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	sweepCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// runSweepLoop closes expired shifts on a schedule so stale floats do not
// survive past midnight even when nobody reads the shift endpoints.
func runSweepLoop(ctx context.Context, svc *service.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := svc.SweepExpiredShifts(sweepCtx); err != nil {
				log.Printf("scheduled sweep failed: %v", err)
			}
			cancel()
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
