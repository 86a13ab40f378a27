package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/zlog"

	"snacklock/internal/api/handlers/notification"
	"snacklock/internal/api/router"
	"snacklock/internal/api/server"
	"snacklock/internal/config"
	notifrepo "snacklock/internal/repository/notification"
	"snacklock/internal/repository/selfie"
	notifsvc "snacklock/internal/service/notification"
	"snacklock/internal/worker"
	"snacklock/pkg/email"
	"snacklock/pkg/llm"
	"snacklock/pkg/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	repo := notifrepo.NewRepository(cfg.Queue.Path)
	if err := repo.Ensure(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to prepare queue storage")
	}

	selfies := selfie.NewStore(cfg.Selfies.Dir)
	if err := selfies.Ensure(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to prepare selfie storage")
	}

	emailClient := email.NewClient(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
		cfg.Email.Subject,
	)
	telegramClient := telegram.NewClient(cfg.Telegram.Token)
	llmClient := llm.NewClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.ImageModel,
		cfg.LLM.TextModel,
		cfg.LLM.Timeout,
	)

	deliverers := map[string]worker.Deliverer{
		"email":    emailClient,
		"telegram": telegramClient,
	}

	dispatcher := worker.NewDispatcher(repo, llmClient, deliverers, cfg.Retry)
	service := notifsvc.NewService(repo, selfies, dispatcher)
	handler := notification.NewHandler(service, dispatcher, val, cfg)

	go dispatcher.Run(ctx, cfg.Dispatch.Interval)

	r := router.New(handler)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}
}
