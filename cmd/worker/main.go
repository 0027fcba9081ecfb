package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"attenddash/internal/config"
	"attenddash/internal/dashboard"
	"attenddash/internal/logger"
	"attenddash/internal/observability"
	"attenddash/internal/queue"
	"attenddash/internal/session"
	"attenddash/internal/store"
	"attenddash/internal/upstream"
)

// Worker consumes refresh jobs and rebuilds cached dashboard snapshots so the
// next stats request is served warm.
func main() {
	cfg := config.Load()

	l, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		l.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	cache := store.NewSnapshotCache(redisClient.Client, cfg.SnapshotTTL)

	var jobs queue.Queue
	if cfg.QueueBackend == "memory" {
		jobs = queue.NewInMemory(64)
	} else {
		jobs = queue.NewRedisQueue(redisClient.Client, "attendance:refresh")
	}

	var signer upstream.Signer = upstream.NopSigner{}
	if cfg.SignatureKey != "" {
		signer = upstream.NewHMACSigner(cfg.SignatureKey)
	}
	client := upstream.New(upstream.Config{
		BaseURL:   cfg.UpstreamBaseURL,
		Timeout:   cfg.UpstreamTimeout,
		Signer:    signer,
		SignLogin: cfg.SignLogin,
	})

	dash := dashboard.NewService(client, cache, l, dashboard.Options{
		PageLimit: cfg.PageLimit,
		MaxPages:  cfg.MaxPages,
	})

	messages, err := jobs.Consume(ctx)
	if err != nil {
		l.Fatal("queue consume init failed", zap.Error(err))
	}

	l.Info("worker started, waiting for refresh jobs")
	for job := range messages {
		processJob(ctx, l, dash, job)
	}

	l.Info("worker stopped")
}

func processJob(ctx context.Context, l *zap.Logger, dash *dashboard.Service, job queue.Job) {
	jobLog := l.With(zap.String("job_id", job.ID))

	sess, err := session.FromToken(job.Token)
	if err != nil {
		jobLog.Warn("refresh job without token, skipping")
		observability.RefreshJobs().WithLabelValues("invalid").Inc()
		return
	}
	if err := sess.Valid(time.Now()); err != nil {
		jobLog.Info("refresh job token expired, skipping", zap.String("subject", sess.Subject))
		observability.RefreshJobs().WithLabelValues("expired").Inc()
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	started := time.Now()
	if _, err := dash.Load(jobCtx, sess); err != nil {
		jobLog.Warn("snapshot refresh failed", zap.String("subject", sess.Subject), zap.Error(err))
		observability.RefreshJobs().WithLabelValues("failed").Inc()
		return
	}

	jobLog.Info("snapshot refreshed",
		zap.String("subject", sess.Subject),
		zap.Duration("took", time.Since(started)),
	)
	observability.RefreshJobs().WithLabelValues("ok").Inc()
}
