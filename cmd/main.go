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

	"github.com/spf13/cobra"

	"github.com/EchoMAV/PiStreamer/internal/api"
	"github.com/EchoMAV/PiStreamer/internal/camera"
	"github.com/EchoMAV/PiStreamer/internal/config"
	"github.com/EchoMAV/PiStreamer/internal/database"
	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/offload"
	"github.com/EchoMAV/PiStreamer/internal/router"
	"github.com/EchoMAV/PiStreamer/internal/runner"
	"github.com/EchoMAV/PiStreamer/internal/s3"
	"github.com/EchoMAV/PiStreamer/internal/stream"
	"github.com/EchoMAV/PiStreamer/internal/vision"
	"github.com/EchoMAV/PiStreamer/internal/watchdog"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "pistreamer",
		Short:        "Onboard video payload controller",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log.Level, verbose || cfg.Log.Verbose); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.For("main")
	log.Info("init...")

	t, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	deps := runner.Deps{
		Config:     cfg.Stream,
		Camera:     camera.NewProcessDevice(cfg.Camera.FFmpeg, cfg.Camera.Input, cfg.Camera.Format),
		Spawner:    stream.NewExecSpawner(cfg.Stream.Encoder),
		Transport:  t,
		Tracker:    vision.NewTemplateTracker(),
		Stabilizer: vision.NewShiftStabilizer(),
	}

	// Инициализация каталога медиа
	var media api.MediaStore
	if cfg.Postgres.DSN != "" {
		db, err := database.New(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.Init(); err != nil {
			return fmt.Errorf("failed to init database: %w", err)
		}
		deps.Catalog = db
		media = db

		// Горутина для выгрузки медиа в s3
		if cfg.Minio.Endpoint != "" {
			minioClient, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Secure)
			if err != nil {
				return err
			}
			dispatcher := offload.NewDispatcher(db, minioClient, cfg.Minio.Bucket, cfg.Minio.UploadInterval)
			go dispatcher.Run(ctx)

			// Горутина для возврата зависших выгрузок в очередь
			go watchdog.New(db, cfg.Minio.StuckAfter).Start(ctx)
		}
	} else {
		log.Warn("postgres dsn not set, media catalog disabled")
	}

	r := runner.New(deps)
	r.SetRouter(router.New(r))

	if cfg.API.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.API.Listen,
			Handler:           api.NewRouter(api.NewHandlers(r, media)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infof("starting API server on %s", cfg.API.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("API server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorf("API shutdown: %v", err)
			}
		}()
	}

	err = r.Run(ctx)
	log.Info("завершение работы")
	return err
}
