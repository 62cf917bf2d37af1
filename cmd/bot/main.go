package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/dto"
	"github.com/noah-isme/davomat-bot/internal/handler"
	"github.com/noah-isme/davomat-bot/internal/middleware"
	"github.com/noah-isme/davomat-bot/internal/models"
	"github.com/noah-isme/davomat-bot/internal/repository"
	"github.com/noah-isme/davomat-bot/internal/service"
	"github.com/noah-isme/davomat-bot/internal/transport"
	"github.com/noah-isme/davomat-bot/pkg/cache"
	"github.com/noah-isme/davomat-bot/pkg/config"
	"github.com/noah-isme/davomat-bot/pkg/database"
	"github.com/noah-isme/davomat-bot/pkg/jobs"
	"github.com/noah-isme/davomat-bot/pkg/logger"
	reqidmiddleware "github.com/noah-isme/davomat-bot/pkg/middleware/requestid"
)

func main() {
	printToken := flag.Bool("print-gateway-token", false, "mint a transport bearer token and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid timezone", "timezone", cfg.Timezone, "error", err)
	}

	directory := repository.NewFileDirectory(cfg.Directory.RosterPath, cfg.Directory.SchedulePath, cfg.Directory.AdminsPath)
	authSvc := service.NewAuthService(directory, cfg.JWT.Secret, cfg.JWT.Expiration, logr)

	if *printToken {
		tok, err := authSvc.IssueGatewayToken()
		if err != nil {
			logr.Sugar().Fatalw("failed to mint gateway token", "error", err)
		}
		fmt.Println(tok)
		return
	}

	ledgerStore, cleanup, err := buildLedgerStore(cfg)
	if err != nil {
		logr.Sugar().Fatalw("failed to init ledger store", "error", err)
	}
	defer cleanup()

	sessions, sessionCleanup, err := buildSessionStore(cfg)
	if err != nil {
		logr.Sugar().Fatalw("failed to init session store", "error", err)
	}
	defer sessionCleanup()

	metricsSvc := service.NewMetricsService()
	ledgerSvc := service.NewLedgerService(ledgerStore, cfg.Ledger.StorageTimeout, logr)
	calendarSvc := service.NewCalendarService(ledgerSvc, logr)
	aggregatorSvc := service.NewAggregatorService(ledgerSvc, logr, func() time.Time { return time.Now().In(location) })
	sender := transport.NewHTTPSender(cfg.Transport, logr)
	reportSvc := service.NewReportService(directory, directory, aggregatorSvc, sender, metricsSvc, logr, cfg.Reports.StorageDir)

	sessionSvc := service.NewSessionService(service.SessionServiceDeps{
		Ledger:    ledgerSvc,
		Calendar:  calendarSvc,
		Sessions:  sessions,
		Directory: directory,
		Auth:      authSvc,
		Reports:   reportSvc,
		Sender:    sender,
		Metrics:   metricsSvc,
		Validate:  validator.New(),
		Logger:    logr,
		Location:  location,
	})

	queue := jobs.NewQueue("updates", func(ctx context.Context, job jobs.Job) error {
		upd, ok := job.Payload.(dto.Update)
		if !ok {
			logr.Warn("unexpected job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
			return nil
		}
		return sessionSvc.HandleUpdate(ctx, upd)
	}, jobs.QueueConfig{
		Workers:    cfg.Queue.Workers,
		BufferSize: cfg.Queue.BufferSize,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
		Logger:     logr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	updateHandler := handler.NewUpdateHandler(queue)
	reportHandler := handler.NewReportHandler(reportSvc)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	api.POST("/updates", updateHandler.Receive)
	if cfg.Reports.Enabled {
		api.GET("/reports/absences.csv", reportHandler.SummaryCSV)
		api.GET("/reports/absences.pdf", reportHandler.SummaryPDF)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}

// ledgerBackend matches the store surface the ledger service consumes.
type ledgerBackend interface {
	Load(ctx context.Context, key models.SheetKey) (models.Sheet, error)
	Save(ctx context.Context, key models.SheetKey, sheet models.Sheet) error
	UpsertRecord(ctx context.Context, key models.SheetKey, student string, rec models.AttendanceRecord) error
	Keys(ctx context.Context) ([]models.SheetKey, error)
	Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error)
}

func buildLedgerStore(cfg *config.Config) (ledgerBackend, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresLedger(db), func() { _ = db.Close() }, nil
	default:
		store, err := repository.NewFileLedger(cfg.Ledger.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// sessionBackend matches the session store surface the state machine consumes.
type sessionBackend interface {
	Get(ctx context.Context, operatorID int64) (models.Session, error)
	Put(ctx context.Context, operatorID int64, sess models.Session) error
	Delete(ctx context.Context, operatorID int64) error
}

func buildSessionStore(cfg *config.Config) (sessionBackend, func(), error) {
	switch cfg.Sessions.Backend {
	case config.SessionBackendRedis:
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisSessionStore(client, cfg.Sessions.TTL), func() { _ = client.Close() }, nil
	default:
		return repository.NewMemorySessionStore(), func() {}, nil
	}
}
