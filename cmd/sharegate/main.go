package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JesseYan/gm-share-tool/internal/cache"
	"github.com/JesseYan/gm-share-tool/internal/config"
	"github.com/JesseYan/gm-share-tool/internal/pipeline"
	"github.com/JesseYan/gm-share-tool/internal/rpc"
	"github.com/JesseYan/gm-share-tool/internal/server"
	"github.com/JesseYan/gm-share-tool/internal/session"
	"github.com/JesseYan/gm-share-tool/internal/share"
	"github.com/JesseYan/gm-share-tool/internal/telemetry"
	"github.com/JesseYan/gm-share-tool/internal/wechat"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("gm-share-tool", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.NewRedisStore(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer store.Close()

	sessions := session.NewManager(store, cfg.Site.SessionCookie)
	invoker := rpc.NewClient(cfg.RPC.BaseURL)

	var clientOpts []wechat.ClientOption
	if cfg.WeChat.BaseURL != "" {
		clientOpts = append(clientOpts, wechat.WithBaseURL(cfg.WeChat.BaseURL))
	}
	client := wechat.NewClient(cfg.WeChat.AppID, cfg.WeChat.AppSecret, clientOpts...)
	credentials := wechat.NewCredentialCache(store, client, logger)
	authorizer := wechat.NewAuthorizer(client, wechat.ScopeUserInfo, logger)

	engine := pipeline.NewEngine(logger, cfg.Site.LoginURL, cfg.Server.Debug)

	srv := server.New(cfg.Server.Port, logger)
	err = share.Register(srv.Router, share.Deps{
		Engine:        engine,
		Sessions:      sessions,
		RPC:           invoker,
		Client:        client,
		Credentials:   credentials,
		Authorizer:    authorizer,
		Pages:         cache.NewPageCache(store),
		URLBase:       cfg.Site.URLBase,
		ChannelCookie: cfg.Site.ChannelCookie,
	})
	if err != nil {
		log.Fatalf("Failed to register views: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.String("error", err.Error()))
		}
	}
}
