package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/date-rehearsal/backend/internal/config"
	"github.com/zhouzirui/date-rehearsal/backend/internal/handler"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	emotionservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/emotion"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	avatarStore := avatar.NewMemoryStore(avatar.Seed())
	chatService := chat.NewService(avatarStore)

	emotionClient, err := emotionservice.NewClientFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize emotion client: %v", err)
	}
	log.Printf("Emotion backend %q ready, polling every %s", cfg.Emotion.Backend, cfg.Emotion.PollInterval)

	sessions := rehearsal.NewManager(chatService, emotionClient, rehearsal.Config{
		PollInterval:   cfg.Emotion.PollInterval,
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		LevelRefresh:   cfg.Audio.LevelRefresh,
		EndedRetention: cfg.Server.SessionRetention,
	})
	defer sessions.Close()

	router := handler.NewRouter(avatarStore, sessions, cfg.Emotion)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Date rehearsal backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
