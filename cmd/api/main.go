package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"relay-chat/internal/config"
	"relay-chat/internal/db"
	"relay-chat/internal/email"
	apihttp "relay-chat/internal/http"
	"relay-chat/internal/llm"
	"relay-chat/internal/repository"
	"relay-chat/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)
	chatRepo := repository.NewPgChatRepository(pool)

	var emailSender email.Sender
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			if cfg.IsProduction() {
				logger.Fatal("smtp sender init failed", zap.Error(err))
			}
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}
	if emailSender == nil {
		if cfg.IsProduction() {
			logger.Fatal("email transport required in production")
		}
		emailSender = email.NewLogSender(logger)
	}

	otpLimiter := service.NewOTPRateLimiter(10*time.Minute, 5)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory limiter", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, 10*time.Minute, 5)
		}
		cancel()
	}

	tokenSvc, err := service.NewTokenService(
		logger,
		cfg.JWTAccessSecret,
		cfg.JWTRefreshSecret,
		cfg.JWTEmailSecret,
		cfg.JWTAccessTTL,
		cfg.JWTRefreshTTL,
		cfg.JWTEmailTTL,
		cfg.IsProduction(),
	)
	if err != nil {
		logger.Fatal("token service init failed", zap.Error(err))
	}

	verifySvc := service.NewVerifyService(logger, userRepo, tokenSvc, emailSender, otpLimiter, cfg.AppBaseURL, cfg.IsProduction())
	authSvc := service.NewAuthService(logger, userRepo, tokenSvc, verifySvc)

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	if cfg.LLMAPIKey == "" {
		logger.Warn("llm api key not configured, chat relay will refuse requests")
	}

	cookieCfg := apihttp.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
		MaxAge: int(cfg.JWTRefreshTTL.Seconds()),
	}
	authHandler := apihttp.NewAuthHandler(logger, authSvc, verifySvc, cookieCfg, cfg.IsProduction())
	chatHandler := apihttp.NewChatHandler(logger, chatRepo, llmClient)
	router := apihttp.NewRouter(logger, tokenSvc, authHandler, chatHandler, func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return db.Ping(pingCtx, pool)
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
