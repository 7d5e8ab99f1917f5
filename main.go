package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/fer-service/internal/config"
	"github.com/example/fer-service/internal/grpcserver"
	"github.com/example/fer-service/internal/handlers"
	"github.com/example/fer-service/internal/imageprocessor"
	"github.com/example/fer-service/internal/inference"
	"github.com/example/fer-service/internal/logging"
	"github.com/example/fer-service/internal/metrics"
	"github.com/example/fer-service/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	preprocessor, err := imageprocessor.New(cfg.ResizeFilter, cfg.MaxImagePixels)
	if err != nil {
		logger.Fatal("invalid preprocessing configuration", zap.Error(err))
	}

	m := metrics.New()
	loader := inference.NewLoader(inference.NewONNXLoadFunc(inference.ONNXOptions{
		ModelPath:    cfg.ModelPath,
		MetadataPath: cfg.MetadataPath,
		InputName:    cfg.InputName,
		OutputName:   cfg.OutputName,
		LibraryPath:  cfg.RuntimeLibPath,
	}, logger), logger)
	loader.OnSettled(func(state inference.State) {
		m.SetModelReady(state == inference.StateReady)
	})

	var announce func()
	if addr := cfg.GRPCAddr(); addr != "" {
		healthSrv := startGRPCHealth(ctx, addr, loader, logger)
		defer healthSrv.Stop()
		announce = healthSrv.Drain
	}

	loader.Start(ctx)
	defer func() {
		if err := loader.Close(); err != nil {
			logger.Warn("failed to release model", zap.Error(err))
		}
	}()

	var publisher usecase.Publisher
	if cfg.RedisAddr != "" {
		redisClient := initRedis(ctx, cfg.RedisAddr, logger)
		defer redisClient.Close()
		publisher = usecase.NewRedisPublisher(redisClient)
	}

	predictions := usecase.NewPredictionUseCase(loader, preprocessor, m, logger)
	feedback := usecase.NewFeedbackUseCase(publisher, cfg.FeedbackChannel, m, logger)
	defer feedback.Close()

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.Dependencies{
		Predictor:     predictions,
		Feedback:      feedback,
		Readiness:     loader,
		Metrics:       m,
		MaxUploadSize: cfg.MaxUploadBytes,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("expression classifier API listening",
		zap.String("addr", cfg.HTTPAddr()),
		zap.String("model_path", cfg.ModelPath))
	err = runHTTP(server, shutdownPlan{Timeout: cfg.ShutdownTimeout, Announce: announce}, logger)
	if err != nil {
		logger.Error("server failed", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// startGRPCHealth serves the gRPC health protocol on addr.
func startGRPCHealth(ctx context.Context, addr string, loader *inference.Loader, logger *zap.Logger) *grpcserver.Server {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to listen for gRPC health", zap.Error(err), zap.String("addr", addr))
	}

	srv := grpcserver.New(logger)
	srv.Track(ctx, loader)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Error("gRPC health service stopped", zap.Error(err))
		}
	}()
	return srv
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Feedback fan-out is best effort; the client reconnects on its own.
		zapLogger.Warn("redis not reachable, feedback events may be dropped", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

// shutdownPlan controls how runHTTP listens and drains.
type shutdownPlan struct {
	Timeout  time.Duration
	Listener net.Listener
	Signals  <-chan os.Signal
	// Announce runs when a signal arrives, before in-flight requests drain.
	Announce func()
}

func runHTTP(server *http.Server, plan shutdownPlan, logger *zap.Logger) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(server, plan.Listener) }()

	signals := plan.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	var sig os.Signal
	select {
	case err := <-serveErr:
		return err
	case s, ok := <-signals:
		if !ok {
			return <-serveErr
		}
		sig = s
	}

	logger.Info("received shutdown signal, draining requests",
		zap.String("signal", sig.String()),
		zap.Duration("timeout", plan.Timeout))
	if plan.Announce != nil {
		plan.Announce()
	}

	ctx, cancel := context.WithTimeout(context.Background(), plan.Timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logger.Warn("drain timed out, closing remaining connections")
		_ = server.Close()
	}
	return <-serveErr
}

func listenAndServe(server *http.Server, lis net.Listener) error {
	var err error
	if lis != nil {
		err = server.Serve(lis)
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
