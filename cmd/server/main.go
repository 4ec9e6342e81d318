package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/openhtm/htmserve/internal/engine"
	"github.com/openhtm/htmserve/internal/registry"
	"github.com/openhtm/htmserve/internal/server"
)

func main() {
	flags := ParseFlags()

	logger := setupLogger(flags.LogLevel, flags.LogFormat)

	logger.WithFields(logrus.Fields{
		"version":   Version,
		"commit":    GitCommit,
		"buildDate": BuildDate,
	}).Info("Starting HTM predictive model server")

	config, err := server.LoadConfig(flags.ConfigFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	applyFlags(config, flags)

	reg, err := registry.New(&registry.Config{EngineFactory: engine.Factory()}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create model registry")
	}

	srv, err := server.New(config, reg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(context.Background())
	}()

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Fatal("Server failed")
		}
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}

// applyFlags layers command-line flags over the file-based configuration.
func applyFlags(config *server.Config, flags *Flags) {
	config.Host = flags.Host
	config.Port = flags.Port
	config.MetricsPort = flags.MetricsPort
	config.EnableMetrics = flags.EnableMetrics
	config.EnableCORS = flags.EnableCORS
	if flags.TLSCert != "" {
		config.TLSCertFile = flags.TLSCert
	}
	if flags.TLSKey != "" {
		config.TLSKeyFile = flags.TLSKey
	}
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
