package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/planhub/planhub/internal/auth"
	"github.com/planhub/planhub/internal/db"
	"github.com/planhub/planhub/internal/drive"
	httpsvr "github.com/planhub/planhub/internal/http"
	"github.com/planhub/planhub/internal/localfs"
	mcpsvr "github.com/planhub/planhub/internal/mcp"
	"github.com/planhub/planhub/internal/memo"
	"github.com/planhub/planhub/internal/registry"
	"github.com/planhub/planhub/internal/tools"
	"github.com/planhub/planhub/internal/weather"
)

var version = "dev"

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	database, err := db.New(requireEnv("DATABASE_URL"))
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	maxUploadBytes := int64(drive.DefaultMaxUploadBytes)
	if raw := strings.TrimSpace(os.Getenv("DRIVE_UPLOAD_MAX_BYTES")); raw != "" {
		v, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || v <= 0 {
			logger.Error("invalid DRIVE_UPLOAD_MAX_BYTES", "value", raw)
			os.Exit(1)
		}
		maxUploadBytes = v
	}
	driveClient := drive.NewClient(drive.Config{
		Tokens:         drive.NewStaticTokenSource(os.Getenv("GOOGLE_DRIVE_ACCESS_TOKEN")),
		MaxUploadBytes: maxUploadBytes,
	})

	dataDir := envOrDefault("PLANHUB_DATA_DIR", "./data")
	documents, err := localfs.NewStore(envOrDefault("DOCUMENTS_DIR", filepath.Join(dataDir, "documents")))
	if err != nil {
		logger.Error("documents store init failed", "err", err)
		os.Exit(1)
	}

	memoMax := memo.DefaultMaxHistory
	if raw := strings.TrimSpace(os.Getenv("MEMO_MAX_HISTORY")); raw != "" {
		v, parseErr := strconv.Atoi(raw)
		if parseErr != nil || v < 1 {
			logger.Error("invalid MEMO_MAX_HISTORY", "value", raw)
			os.Exit(1)
		}
		memoMax = v
	}
	memos, err := memo.NewStore(envOrDefault("MEMO_PATH", filepath.Join(dataDir, "memory.json")), memoMax)
	if err != nil {
		logger.Error("memo store init failed", "err", err)
		os.Exit(1)
	}

	dispatcher := tools.New(tools.Config{
		Registry:  registry.NewService(database),
		Drive:     driveClient,
		Documents: documents,
		Memos:     memos,
		Weather:   weather.NewClient(weather.Config{APIKey: os.Getenv("OPENWEATHER_API_KEY")}),
		Logger:    logger,
		Audit:     database,
	})

	var verifier auth.TokenVerifier
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		verifier = auth.NewJWTVerifier([]byte(secret))
		logger.Info("bearer auth enabled")
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, api is open")
	}

	mcpServer := mcpsvr.NewServer(dispatcher, version, logger)

	addr := envOrDefault("LISTEN_ADDR", "0.0.0.0:8080")
	server := httpsvr.NewServer(httpsvr.Config{
		Addr:       addr,
		Dispatcher: dispatcher,
		Audit:      database,
		Verifier:   verifier,
		MCPHandler: mcpsvr.NewHTTPHandler(mcpServer),
		Logger:     logger,
	})

	logger.Info("effective config",
		"addr", addr,
		"drive_upload_max_bytes", maxUploadBytes,
		"memo_max_history", memoMax,
		"version", version,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	server.Shutdown(ctx)
	logger.Info("shutdown complete")
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required env var missing", "key", key)
		os.Exit(1)
	}
	return v
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
