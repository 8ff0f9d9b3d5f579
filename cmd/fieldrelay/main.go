// Package main implements the fieldrelay entry point. One binary carries all
// three roles of the relay: the broker that fans envelopes out between peers,
// a publisher that embeds text and sends it into the field, and a listener
// that accumulates the shared field buffer and renders projections.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/antonypamo/ProSavantEngine/broker"
	"github.com/antonypamo/ProSavantEngine/client"
	"github.com/antonypamo/ProSavantEngine/config"
	"github.com/antonypamo/ProSavantEngine/embedding"
	"github.com/antonypamo/ProSavantEngine/metric"
	"github.com/antonypamo/ProSavantEngine/projection"
)

const (
	Version = "0.1.0"
	appName = "fieldrelay"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	// Flags outrank both file and environment.
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	if cliCfg.BrokerURL != "" {
		cfg.Client.BrokerURL = cliCfg.BrokerURL
	}
	if cliCfg.UserID != "" {
		cfg.Client.UserID = cliCfg.UserID
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cliCfg.Mode {
	case modeServe:
		return runBroker(ctx, cfg, cliCfg, logger)
	case modePublish:
		return runPublish(ctx, cfg, cliCfg, logger)
	case modeListen:
		return runListen(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown mode %q", cliCfg.Mode)
	}
}

// runBroker hosts the relay, optionally alongside a Prometheus endpoint, until
// the context is cancelled.
func runBroker(ctx context.Context, cfg *config.Config, cliCfg *CLIConfig, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()

	b, err := broker.New(broker.Config{
		Addr:            cfg.Broker.Addr,
		Path:            cfg.Broker.Path,
		SendTimeout:     cfg.Broker.SendTimeout,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	logger.Info("relay listening", "addr", b.Addr().String(), "path", cfg.Broker.Path)

	g, gctx := errgroup.WithContext(ctx)

	var metricsServer *metric.Server
	if cfg.Metrics.Port > 0 {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		g.Go(metricsServer.Start)
		logger.Info("metrics available", "address", metricsServer.Address())
	}

	g.Go(func() error {
		<-gctx.Done()
		if metricsServer != nil {
			if err := metricsServer.Stop(); err != nil {
				logger.Warn("metrics server stop", "error", err)
			}
		}
		return b.Stop(cliCfg.ShutdownTimeout)
	})

	err = g.Wait()
	logger.Info("relay stopped")
	return err
}

// runPublish embeds each line of stdin (or the -text flag once) and publishes
// the resulting envelopes.
func runPublish(ctx context.Context, cfg *config.Config, cliCfg *CLIConfig, logger *slog.Logger) error {
	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		return err
	}

	pub, err := client.NewPublisher(client.PublisherConfig{
		BrokerURL:        cfg.Client.BrokerURL,
		UserID:           cfg.Client.UserID,
		HandshakeTimeout: cfg.Client.HandshakeTimeout,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	publish := func(text string) error {
		vector, err := embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		if err := pub.Publish(ctx, text, vector); err != nil {
			return err
		}
		logger.Info("published", "user", cfg.Client.UserID, "text", text,
			"model", embedder.Model(), "dimensions", len(vector))
		return nil
	}

	if cliCfg.Text != "" {
		return publish(cliCfg.Text)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := publish(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// runListen subscribes to the relay, accumulates the field buffer, and writes
// one projected frame per message to stdout once enough points exist.
func runListen(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sub, err := client.NewSubscriber(client.SubscriberConfig{
		BrokerURL:        cfg.Client.BrokerURL,
		HandshakeTimeout: cfg.Client.HandshakeTimeout,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	listener, err := client.NewListener(client.ListenerConfig{
		Subscriber: sub,
		Renderer:   projection.NewPipeline(os.Stdout, logger),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := listener.Start(ctx); err != nil {
		return err
	}
	logger.Info("listening", "broker_url", cfg.Client.BrokerURL)

	select {
	case <-ctx.Done():
		listener.Stop()
		<-listener.Done()
	case <-listener.Done():
	}

	if err := listener.Err(); err != nil {
		return err
	}
	logger.Info("listener stopped", "buffered", listener.Buffer().Len())
	return nil
}

// buildEmbedder selects the embedding producer from configuration.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) (embedding.Embedder, error) {
	switch cfg.Embedder.Kind {
	case "http":
		return embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:           cfg.Embedder.BaseURL,
			Model:             cfg.Embedder.Model,
			APIKey:            cfg.Embedder.APIKey,
			Dimensions:        cfg.Embedder.Dimensions,
			RequestsPerSecond: cfg.Embedder.RateLimit,
			Logger:            logger,
		})
	default:
		return embedding.NewLexicalEmbedder(cfg.Embedder.Dimensions), nil
	}
}
