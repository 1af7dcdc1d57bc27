package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/tower-poller/checkpoint"
	checkpointfile "github.com/marcelsud/tower-poller/checkpoint/file"
	checkpointpostgres "github.com/marcelsud/tower-poller/checkpoint/postgres"
	checkpointredis "github.com/marcelsud/tower-poller/checkpoint/redis"
	"github.com/marcelsud/tower-poller/config"
	"github.com/marcelsud/tower-poller/input"
	"github.com/marcelsud/tower-poller/inputs"
	"github.com/marcelsud/tower-poller/internal/http/chi"
	"github.com/marcelsud/tower-poller/metrics"
	"github.com/marcelsud/tower-poller/runner"
	"github.com/marcelsud/tower-poller/sink"
	sinkredis "github.com/marcelsud/tower-poller/sink/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TIMEOUT = 30 * time.Second

/* tower-poller - polls every configured input and emits records to the sink
 * Imports only go down: main wires config, storage, sink, runners and the admin API
 */

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().
		Level(input.NewLogLevel(cfg.LogLevel).Zerolog())

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil && cfg.CheckpointBackend != "redis" {
		defer redisClient.Close()
	}

	store, err := newStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	out, streamClient := newSink(cfg, redisClient)

	loader := inputs.NewLoader()
	loadErr := loader.Load(cfg.InputsFile)
	if loadErr != nil {
		logger.Error().Err(loadErr).Msg("some inputs were rejected")
	}

	orchestrator := runner.NewOrchestrator(store, out, logger, cfg.ShutdownGrace,
		runner.WithCommitTimeout(cfg.CommitTimeout))
	for _, in := range loader.List() {
		if err := orchestrator.Add(in); err != nil {
			logger.Error().Err(err).Str("input", in.Name).Msg("input rejected")
		}
	}
	if len(orchestrator.Statuses()) == 0 {
		if loadErr != nil {
			return fmt.Errorf("no valid inputs in %s: %w", cfg.InputsFile, loadErr)
		}
		return fmt.Errorf("no inputs configured in %s", cfg.InputsFile)
	}

	collector := metrics.NewRunnerCollector(orchestrator, streamClient)
	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		return err
	}
	defer exporter.Shutdown(context.Background())

	health, _ := store.(chi.HealthChecker)

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      chi.AdminHandlers(ctx, orchestrator, collector, exporter.Handler(), health),
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("admin API stopped")
		}
	}()

	runErr := orchestrator.Run(ctx)
	if err := <-errShutdown; err != nil {
		logger.Error().Err(err).Msg("admin API shutdown")
	}
	return runErr
}

// newRedisClient connects once when either the checkpoint store or the sink
// uses redis; both share the connection
func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.CheckpointBackend != "redis" && cfg.Sink != "redis" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return client, nil
}

func newStore(ctx context.Context, cfg *config.Config, client *redis.Client) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case "redis":
		return checkpointredis.NewStoreWithClient(client), nil
	case "postgres":
		return checkpointpostgres.NewStore(ctx, cfg.PostgresURL)
	default:
		return checkpointfile.NewStore(cfg.CheckpointDir)
	}
}

// newSink returns the configured sink and, for redis streams, the client
// that writes to them
func newSink(cfg *config.Config, client *redis.Client) (sink.Writer, *redis.Client) {
	if cfg.Sink != "redis" {
		return sink.NewJSONLines(os.Stdout), nil
	}
	return sinkredis.NewStream(client, cfg.SinkStreamMaxLen), client
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		errShutdown <- nil
	default:
		errShutdown <- fmt.Errorf("forcing closing the server: %w", err)
	}
}
