package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/speechcoach/internal/audio"
	"github.com/skypro1111/speechcoach/internal/capture"
	"github.com/skypro1111/speechcoach/internal/config"
	"github.com/skypro1111/speechcoach/internal/encoder"
	"github.com/skypro1111/speechcoach/internal/metrics"
	"github.com/skypro1111/speechcoach/internal/remote"
	"github.com/skypro1111/speechcoach/internal/report"
	"github.com/skypro1111/speechcoach/internal/session"
	"github.com/skypro1111/speechcoach/internal/upload"
)

// pipeline holds every component built from one configuration
type pipeline struct {
	cfg           *config.Config
	logger        *slog.Logger
	registry      *prometheus.Registry
	metrics       *metrics.Metrics
	remote        *remote.Client
	notifications *session.NotificationLog
	session       *session.Session
	closeLog      func() error
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func credentials(cfg *config.Config) remote.Credentials {
	return remote.Credentials{Email: cfg.Auth.Email, Token: cfg.Auth.Token}
}

// newDevice selects the capture device named by the configuration
func newDevice(cfg config.CaptureConfig, logger *slog.Logger) (capture.Device, error) {
	switch cfg.Driver {
	case "replay":
		return &capture.ReplayDevice{Path: cfg.ReplayFile, ChunkSize: cfg.ChunkSize}, nil
	case "ffmpeg":
		return &capture.FFmpegDevice{
			Path:         cfg.FFmpegPath,
			InputFormat:  cfg.InputFormat,
			AudioFormat:  cfg.AudioFormat,
			VideoDevice:  cfg.VideoDevice,
			AudioDevice:  cfg.AudioDevice,
			ChunkSize:    cfg.ChunkSize,
			StartTimeout: cfg.GetStartTimeoutDuration(),
			Logger:       logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture driver %q", cfg.Driver)
	}
}

func newExtractor(cfg config.AudioConfig, logger *slog.Logger) *audio.Extractor {
	return audio.NewExtractor(audio.ExtractorConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Downmix:     audio.DownmixPolicy(cfg.Downmix),
	}, logger)
}

// buildPipeline wires the capture session and its collaborators
func buildPipeline(configPath string) (*pipeline, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, closeLog := initLogger(cfg.Logging)
	logger.Info("Configuration loaded",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
		slog.String("capture_driver", cfg.Capture.Driver),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.Int("bitrate_kbps", cfg.Audio.BitrateKbps),
		slog.String("log_level", cfg.Logging.Level),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics(registry)

	rc, err := remote.NewClient(remote.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.GetTimeoutDuration(),
		UserAgent: serviceName + "/" + serviceVersion,
	}, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	device, err := newDevice(cfg.Capture, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	notifications := session.NewNotificationLog(50)
	logNotifier := session.NotifierFunc(func(n session.Notification) {
		fmt.Fprintf(os.Stderr, "%s failed: %s\n", n.Op, n.Message)
	})

	s, err := session.New(session.Deps{
		Capture:   capture.NewSession(device, capture.Options{QueueSize: cfg.Capture.QueueSize}, logger),
		Extractor: newExtractor(cfg.Audio, logger),
		Encoder:   encoder.New(nil, cfg.Audio.BitrateKbps, logger),
		Uploader:  upload.NewClient(rc, logger),
		Reports:   report.NewFetcher(rc, logger),
		Notifier:  session.Tee(notifications, logNotifier),
		Metrics:   appMetrics,
		Logger:    logger,
	}, session.Options{
		Credentials:   credentials(cfg),
		DefaultTitle:  cfg.API.DefaultTitle,
		ContainerMIME: cfg.Capture.ContainerMIME,
	})
	if err != nil {
		closeLog()
		return nil, err
	}

	return &pipeline{
		cfg:           cfg,
		logger:        logger,
		registry:      registry,
		metrics:       appMetrics,
		remote:        rc,
		notifications: notifications,
		session:       s,
		closeLog:      closeLog,
	}, nil
}
