package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parcel-tracker/internal/config"
	apphttp "parcel-tracker/internal/http"
	"parcel-tracker/internal/qr"
	"parcel-tracker/internal/repository"
	"parcel-tracker/internal/repository/postgres"
	"parcel-tracker/internal/repository/sqlite"
	"parcel-tracker/internal/service"
	"parcel-tracker/internal/session"
	"parcel-tracker/internal/storage"
)

type repositories struct {
	db       *sql.DB
	users    repository.UserRepository
	tracking repository.TrackingRepository
	sessions repository.SessionRepository
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer repos.db.Close()

	if err := repos.users.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := repos.tracking.Init(ctx); err != nil {
		logger.Fatalf("init tracking repository: %v", err)
	}
	if err := repos.sessions.Init(ctx); err != nil {
		logger.Fatalf("init session repository: %v", err)
	}

	userService := service.NewUserService(repos.users, cfg.Security.BcryptCost)
	trackingService := service.NewTrackingService(repos.tracking)

	if cfg.Admin.Password != "" {
		created, err := userService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password)
		if err != nil {
			logger.Fatalf("seed admin: %v", err)
		}
		if created {
			logger.Infof("created admin account %s", cfg.Admin.Username)
		}
	}

	var store session.Store = repos.sessions
	if cfg.Session.Store == "memory" {
		store = session.NewMemoryStore()
	}
	sessions, err := session.NewManager(store, session.Config{
		CookieName: cfg.Session.CookieName,
		Secret:     cfg.Session.Secret,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	}, logger)
	if err != nil {
		logger.Fatalf("setup sessions: %v", err)
	}
	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval)

	decoder := qr.NewHTTPDecoder(cfg.QR.URL, cfg.QR.Timeout)
	scanService := service.NewScanService(decoder, trackingService, logger)

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	reportService := service.NewReportService(trackingService, storageSvc, service.ReportOptions{
		Bucket:     cfg.Storage.Bucket,
		KeyPrefix:  cfg.Storage.KeyPrefix,
		PresignTTL: cfg.Storage.PresignTTL,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		userService,
		trackingService,
		scanService,
		reportService,
		sessions,
		logger,
		apphttp.Options{
			PublicDir: cfg.Server.PublicDir,
			RateLimit: apphttp.RateLimitConfig{
				Requests: cfg.RateLimit.Requests,
				Window:   cfg.RateLimit.Window,
				Burst:    cfg.RateLimit.Burst,
			},
			DB: repos.db,
		},
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func openRepositories(ctx context.Context, cfg config.Config) (*repositories, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &repositories{
			db:       db,
			users:    postgres.NewUserRepository(db),
			tracking: postgres.NewTrackingRepository(db),
			sessions: postgres.NewSessionRepository(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return &repositories{
			db:       db,
			users:    sqlite.NewUserRepository(db),
			tracking: sqlite.NewTrackingRepository(db),
			sessions: sqlite.NewSessionRepository(db),
		}, nil
	}
}

// buildStorage returns nil when no bucket is configured; report export is
// then unavailable.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("storage bucket not configured, report export disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
