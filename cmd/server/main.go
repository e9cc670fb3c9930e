package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailguard/backend/internal/config"
	"mailguard/backend/internal/health"
	"mailguard/backend/internal/logger"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/ratelimit"
	"mailguard/backend/internal/security"
	"mailguard/backend/internal/service"
	"mailguard/backend/internal/storage"
	"mailguard/backend/internal/storage/memory"
	redisstore "mailguard/backend/internal/storage/redis"
	httptransport "mailguard/backend/internal/transport/http"
)

// main 启动出站邮件安全网关服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting mailguard server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("storage", cfg.Storage.Type),
	)

	// 初始化发送记录存储
	var sendLog storage.SendLog
	var redisClient *redisstore.Client
	if cfg.Storage.Type == "redis" {
		redisClient, err = redisstore.NewClient(&cfg.Redis, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		sendLog = redisstore.NewSendLog(redisClient)
		log.Info("using redis send log", zap.String("address", cfg.Redis.Address))
	} else {
		sendLog = memory.NewStore()
		log.Info("using in-memory send log (single instance mode)")
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化健康检查
	healthChecker := health.NewHealthChecker(sendLog, log)

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0)) // 512MB
	alertManager.AddRule(monitoring.SendLogHealthRule(sendLog))

	log.Info("monitoring system initialized")

	// 初始化安全组件
	gate := security.NewEmailValidationGate()
	scorer := security.NewSpamScorerWithThreshold(cfg.Spam.Threshold)
	blacklist := security.NewBlacklistCheckerWithDomains(cfg.Security.ExtraBlacklist)

	// 初始化速率跟踪器与出站服务
	tracker := ratelimit.NewTracker(sendLog, cfg.RateLimit.Config(), log)
	transport := service.NewLogTransport(log)
	outbound := service.NewOutboundService(gate, blacklist, scorer, tracker, transport, metrics, alertManager, cfg, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		Gate:          gate,
		SpamScorer:    scorer,
		Blacklist:     blacklist,
		Tracker:       tracker,
		Outbound:      outbound,
		Metrics:       metrics,
		AlertManager:  alertManager,
		HealthChecker: healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 告警监控 goroutine
	group.Go(func() error {
		log.Info("starting alert monitoring")
		alertManager.StartMonitoring(groupCtx, 1*time.Minute)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if err := sendLog.Close(); err != nil {
			log.Warn("send log close warning", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
