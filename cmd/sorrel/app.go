package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Ramsey-B/sorrel/config"
	"github.com/Ramsey-B/sorrel/internal/handlers"
	"github.com/Ramsey-B/sorrel/internal/repositories/document"
	"github.com/Ramsey-B/sorrel/internal/repositories/inspection"
	"github.com/Ramsey-B/sorrel/internal/repositories/maintenance"
	"github.com/Ramsey-B/sorrel/internal/repositories/ncr"
	"github.com/Ramsey-B/sorrel/internal/repositories/processingrun"
	"github.com/Ramsey-B/sorrel/internal/repositories/quarantine"
	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/middleware"
	"github.com/Ramsey-B/sorrel/pkg/pipeline"
	"github.com/Ramsey-B/sorrel/pkg/redis"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
	"github.com/Ramsey-B/sorrel/pkg/tracing/exporters"
)

// app owns the long-lived infrastructure and hands it to the startup
// sequencer as named dependencies.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db             *database.DatabaseInstance
	redis          *redis.Client
	producer       *kafka.Producer
	tracerProvider *sdktrace.TracerProvider
	server         *echo.Echo
	health         *handlers.HealthChecker
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{cfg: cfg, logger: logger}
}

// dependency adapts start/stop funcs to the startup.Dependency interface
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func (a *app) tracingDependency() *dependency {
	return &dependency{
		name: "tracing",
		start: func(ctx context.Context) error {
			var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{}
			if a.cfg.OTLPEnabled {
				otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
					Endpoint: a.cfg.OTLPEndpoint,
					Protocol: a.cfg.OTLPProtocol,
					Insecure: a.cfg.OTLPInsecure,
					Timeout:  10 * time.Second,
				})
				if err != nil {
					return err
				}
				exporter = otlp
			}

			a.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(sdkresource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceName(a.cfg.AppName),
					semconv.ServiceVersion(a.cfg.Version),
				)),
			)
			otel.SetTracerProvider(a.tracerProvider)
			tracing.SetTracer(a.tracerProvider.Tracer(a.cfg.AppName))
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.tracerProvider == nil {
				return nil
			}
			return a.tracerProvider.Shutdown(ctx)
		},
	}
}

func (a *app) databaseDependency() *dependency {
	return &dependency{
		name: "database",
		start: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.Config{
				ConnectionString: a.cfg.DatabaseConnectionString(),
				MaxOpenConns:     a.cfg.DatabaseMaxOpenConns,
				MaxIdleConns:     a.cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime:  a.cfg.DatabaseConnMaxLifetime,
			}, a.logger)
			if err != nil {
				return err
			}
			a.db = db

			driver, err := migratepg.WithInstance(db.DB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}

			migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
				MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
				Version:             uint(a.cfg.DatabaseMigrationVersion),
				Force:               a.cfg.DatabaseMigrationForce,
			})
			return migrations.Migrate(a.cfg.DatabaseName, driver)
		},
		stop: func(ctx context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	}
}

func (a *app) redisDependency() *dependency {
	return &dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			client, err := redis.NewClient(redis.Config{
				Host:     a.cfg.RedisHost,
				Port:     a.cfg.RedisPort,
				Password: a.cfg.RedisPassword,
				DB:       a.cfg.RedisDB,
			}, a.logger)
			if err != nil {
				return err
			}
			a.redis = client
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.redis == nil {
				return nil
			}
			return a.redis.Close()
		},
	}
}

func (a *app) kafkaDependency() *dependency {
	return &dependency{
		name: "kafka",
		start: func(ctx context.Context) error {
			a.producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      a.cfg.KafkaBrokers,
				Topic:        a.cfg.KafkaTopic,
				BatchSize:    a.cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.cfg.KafkaRequiredAcks,
				Compression:  a.cfg.KafkaCompression,
			}, a.logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close()
		},
	}
}

func (a *app) serverDependency() *dependency {
	return &dependency{
		name:      "http-server",
		dependsOn: []string{"database"},
		start: func(ctx context.Context) error {
			documents := document.NewRepository(a.db, a.logger)
			runs := processingrun.NewRepository(a.db, a.logger)
			inspections := inspection.NewRepository(a.db, a.logger)
			ncrs := ncr.NewRepository(a.db, a.logger)
			events := maintenance.NewRepository(a.db, a.logger)
			quarantined := quarantine.NewRepository(a.db, a.logger)

			// interface vars stay nil when the backing service is disabled
			var emitter pipeline.Emitter
			if a.producer != nil {
				emitter = a.producer
			}
			var distLocker pipeline.DistributedLocker
			if a.redis != nil {
				distLocker = redis.NewLocker(a.redis, "")
			}

			orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
				Documents:   documents,
				Runs:        runs,
				Inspections: inspections,
				NCRs:        ncrs,
				Maintenance: events,
				Quarantine:  quarantined,
				Tx:          pipeline.NewSQLTxRunner(a.db, a.logger),
				Emitter:     emitter,
				DistLocker:  distLocker,
				Logger:      a.logger,
			}, pipeline.Config{
				StageTimeout: a.cfg.PipelineStageTimeout,
				MaxAttempts:  a.cfg.PipelineMaxAttempts,
				RetryBackoff: a.cfg.PipelineRetryBackoff,
				Concurrency:  a.cfg.PipelineConcurrency,
				LockTTL:      a.cfg.PipelineLockTTL,
			})

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.Server.ReadTimeout = time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second
			e.Server.WriteTimeout = time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second
			e.Server.IdleTimeout = time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second
			e.Server.MaxHeaderBytes = a.cfg.MaxHeaderBytes
			e.HTTPErrorHandler = middleware.Error(a.logger)
			e.Use(otelecho.Middleware(a.cfg.AppName))
			e.Use(middleware.Context())
			e.Use(middleware.Logger(a.logger))

			var pinger handlers.Pinger
			if a.redis != nil {
				pinger = a.redis
			}
			a.health = handlers.NewHealthChecker(a.db, pinger, a.cfg.Version)
			a.health.Register(e)

			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			api := e.Group("/api/v1")
			handlers.NewDocumentHandler(documents, runs, quarantined, orchestrator, a.cfg.UploadDir, a.logger).Register(api)
			handlers.NewInspectionHandler(inspections, events, a.logger).Register(api)
			handlers.NewNCRHandler(ncrs, a.logger).Register(api)
			handlers.NewOpsHandler(runs, quarantined, orchestrator, a.logger).Register(api)

			a.server = e

			go func() {
				if err := e.Start(fmt.Sprintf(":%d", a.cfg.Port)); err != nil && err != http.ErrServerClosed {
					a.logger.WithError(err).Error("HTTP server stopped")
				}
			}()

			a.health.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.server == nil {
				return nil
			}
			a.health.SetReady(false)
			return a.server.Shutdown(ctx)
		},
	}
}
