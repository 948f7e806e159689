package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brightline-clinics/voice-scheduler/internal/api/router"
	"github.com/brightline-clinics/voice-scheduler/internal/appointments"
	"github.com/brightline-clinics/voice-scheduler/internal/calls"
	appconfig "github.com/brightline-clinics/voice-scheduler/internal/config"
	"github.com/brightline-clinics/voice-scheduler/internal/http/handlers"
	"github.com/brightline-clinics/voice-scheduler/internal/observability/metrics"
	"github.com/brightline-clinics/voice-scheduler/internal/patients"
	"github.com/brightline-clinics/voice-scheduler/internal/schedule"
	"github.com/brightline-clinics/voice-scheduler/internal/voiceagent"
	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voice-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	hours, err := schedule.ParseBusinessHours(cfg.BusinessHours, cfg.BusinessTimezone)
	if err != nil {
		logger.Error("invalid business hours config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := connectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := connectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	schedulingMetrics := metrics.NewSchedulingMetrics(nil)

	patientRepo := patients.NewPostgresRepository(pool)
	apptRepo := appointments.NewPostgresRepository(pool)
	sessionStore := calls.NewSessionStore(rdb, cfg.SessionTTL)
	callLog := calls.NewCallLogStore(pool, logger)
	locker := calls.NewBookingLocker(rdb, cfg.BookingLockTTL)

	service := appointments.NewService(apptRepo, patientRepo, appointments.ServiceConfig{
		Hours:              hours,
		DefaultDurationMin: cfg.DefaultDurationMin,
		BufferMinutes:      cfg.BufferMinutes,
		SlotStepMinutes:    cfg.SlotStepMinutes,
		DialPrefix:         cfg.DefaultDialPrefix,
	}, logger,
		appointments.WithLocker(locker),
		appointments.WithMetrics(schedulingMetrics),
	)

	agent, err := voiceagent.New(voiceagent.Config{
		BaseURL: cfg.VoiceAgentBaseURL,
		APIKey:  cfg.VoiceAgentAPIKey,
		AgentID: cfg.VoiceAgentID,
		Timeout: cfg.VoiceAgentTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("voice agent client init failed", "error", err)
		os.Exit(1)
	}

	voiceWebhook := handlers.NewVoiceWebhookHandler(handlers.VoiceWebhookConfig{
		Agent:         agent,
		Sessions:      sessionStore,
		CallLog:       callLog,
		Patients:      patientRepo,
		Logger:        logger,
		WebhookSecret: cfg.TelephonyWebhookSecret,
		PublicBaseURL: cfg.PublicBaseURL,
		DialPrefix:    cfg.DefaultDialPrefix,
		AgentTimeout:  cfg.VoiceAgentTimeout,
	})
	toolCalls := handlers.NewToolCallHandler(handlers.ToolCallConfig{
		Service:        service,
		Sessions:       sessionStore,
		CallLog:        callLog,
		Hours:          hours,
		TransferNumber: cfg.TransferNumber,
		Logger:         logger,
		Metrics:        schedulingMetrics,
	})
	adminAppointments := handlers.NewAdminAppointmentsHandler(apptRepo, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Metrics:            schedulingMetrics,
		VoiceWebhook:       voiceWebhook,
		ToolCalls:          toolCalls,
		AdminAppointments:  adminAppointments,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func connectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
