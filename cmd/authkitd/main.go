package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/adminsuite/authkit"
	"github.com/adminsuite/authkit/httpapi"
	"github.com/adminsuite/authkit/pgstore"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := loadEnv()

	ctx := context.Background()

	database, err := pgstore.Open(ctx, cfg.databaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis %s: %v", cfg.redisAddr, err)
	}

	authCfg := authkit.DefaultConfig()
	authCfg.Token.Secret = []byte(cfg.jwtSecret)

	svc, err := authkit.New().
		WithConfig(authCfg).
		WithRedis(rdb).
		WithUserStore(pgstore.New(database)).
		WithAuditSink(authkit.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatalf("build auth service: %v", err)
	}
	defer svc.Close()

	router := httpapi.NewRouter(svc, authCfg, httpapi.CookieConfig{Secure: cfg.cookieSecure})

	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("authkitd listening on :%s", cfg.port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server exited")
}

type envConfig struct {
	port          string
	databaseURL   string
	redisAddr     string
	redisPassword string
	jwtSecret     string
	cookieSecure  bool
}

func loadEnv() envConfig {
	cfg := envConfig{
		port:          envOr("PORT", "8080"),
		databaseURL:   os.Getenv("DATABASE_URL"),
		redisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		redisPassword: os.Getenv("REDIS_PASSWORD"),
		jwtSecret:     os.Getenv("JWT_SECRET"),
	}
	cfg.cookieSecure, _ = strconv.ParseBool(envOr("COOKIE_SECURE", "true"))

	if cfg.databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if len(cfg.jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 bytes")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	dir := envOr("MIGRATIONS_DIR", "pgstore/migrations")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory %s not found", dir)
	}
	if err := goose.Up(database, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
