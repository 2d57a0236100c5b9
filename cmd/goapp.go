package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Geniuskaa/kids_competition/internal/config"
	"github.com/Geniuskaa/kids_competition/internal/logging"
	"github.com/Geniuskaa/kids_competition/pkg/database"
	"github.com/Geniuskaa/kids_competition/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.uber.org/zap"
)

const (
	service     = "kids-competition"
	environment = "production"
	id          = 1
)

func main() {
	conf, err := config.NewConfig(config.DefaultConfigFile)
	if err != nil {
		panic("Error with reading config: " + err.Error())
	}

	if err := execute(net.JoinHostPort(conf.App.Host, conf.App.Port), conf); err != nil {
		os.Exit(1)
	}
}

func execute(addr string, conf *config.Entity) (err error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, atom, err := logging.New(conf.Log)
	if err != nil {
		panic("Error with creating logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if conf.Jag.Dsn != "" {
		tp, err := tracerProvider(conf.Jag.Dsn)
		if err != nil {
			logger.Error("Error when setting up tracer", zap.Error(err))
			return err
		}
		otel.SetTracerProvider(tp)

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	pool := database.PoolCreation(ctx, logger, conf) // Panics if something gone wrong
	db := database.NewPostgres(pool)
	defer db.Close()

	if err := db.Migrate(ctx, false); err != nil {
		logger.Error("schema migration failed", zap.Error(err))
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := chi.NewRouter()
	application := server.NewServer(ctx, logger, mux, db, conf)
	application.Init(atom, reg)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	if err := application.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", zap.Error(err))
		return err
	}

	logger.Info("Service stopped")
	return nil
}

func tracerProvider(url string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(service),
			attribute.String("environment", environment),
			attribute.Int64("ID", id),
		)),
	)
	return tp, nil
}
