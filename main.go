package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/asistente-auditoria/widget/adapters/backend"
	"github.com/asistente-auditoria/widget/adapters/hasher"
	widgethttp "github.com/asistente-auditoria/widget/adapters/http"
	"github.com/asistente-auditoria/widget/adapters/markdown"
	"github.com/asistente-auditoria/widget/adapters/message_broker"
	"github.com/asistente-auditoria/widget/adapters/telegram"
	"github.com/asistente-auditoria/widget/adapters/websocket"
	"github.com/asistente-auditoria/widget/usecase"
	"github.com/asistente-auditoria/widget/utils/config"
	"github.com/asistente-auditoria/widget/utils/log"
)

func main() {
	defer log.Sync()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	qa, err := backend.NewClient(cfg.BackendURL)
	if err != nil {
		log.With().Fatal("Invalid backend configuration", zap.Error(err))
	}
	machine, err := usecase.NewMachine(markdown.NewRenderer(), hasher.New(), cfg.MaxSuggestions)
	if err != nil {
		log.With().Fatal("Failed to build conversation machine", zap.Error(err))
	}
	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()
	sessions := usecase.NewSessionFactory(machine, qa, broker, usecase.WithRequestTimeout(cfg.BackendTimeout))

	server := websocket.NewServer(sessions, websocket.WithEventRate(cfg.WSEventsPerSec, cfg.WSEventBurst))
	server.RunWebsocketHub(ctx)

	widgetHandler := widgethttp.NewWidgetHandler(server.GetHub(), cfg.MaxSessions)

	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramBotToken, sessions)
		if err != nil {
			log.With().Error("Telegram front end disabled", zap.Error(err))
		} else {
			go bot.Run(ctx)
		}
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
		},
		MaxAge: 86400,
	}))
	e.Use(middleware.BodyLimit("20MB"))

	wsGroup := e.Group("/ws")
	wsGroup.Use(widgetHandler.ConcurrencyLimitMiddleware)
	wsGroup.GET("", server.Handler)

	api := e.Group("/api/v1")
	api.GET("/health", widgetHandler.HealthCheck)
	api.GET("/catalog", widgetHandler.Catalog)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.With().Error("Shutdown failed", zap.Error(err))
		}
	}()

	log.With().Info("Starting server",
		zap.String("addr", ":"+cfg.Port),
		zap.String("backend", cfg.BackendURL))
	if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.With().Fatal("Server error", zap.Error(err))
	}
}
