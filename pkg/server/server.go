package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Geniuskaa/kids_competition/internal/config"
	"github.com/Geniuskaa/kids_competition/pkg/bracket"
	"github.com/Geniuskaa/kids_competition/pkg/database"
	"github.com/Geniuskaa/kids_competition/pkg/mail"
	"github.com/Geniuskaa/kids_competition/pkg/sports/karate"
	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type mailChecker interface {
	CheckMails(ctx context.Context) <-chan error
	ChangeCountOfMailsPerReq(count uint32)
}

type Server struct {
	ctx    context.Context
	logger *zap.Logger
	mux    *chi.Mux
	db     *database.Postgres
	serv   *http.Server
	cfg    *config.Entity
}

func NewServer(ctx context.Context, logger *zap.Logger, mux *chi.Mux, db *database.Postgres, conf *config.Entity) *Server {
	return &Server{ctx: ctx, logger: logger, mux: mux, db: db, cfg: conf}
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	s.mux.ServeHTTP(writer, request)
}

func (s *Server) Init(atom zap.AtomicLevel, reg *prometheus.Registry) {
	karateServ := karate.NewService(karate.NewRepository(s.db), bracket.Default(), s.logger, reg)
	mailServ := mail.NewService(s.cfg.Mail, s.logger, karateServ)

	s.routes(atom, reg, karateServ, mailServ)

	// Количество писем за проверку и уровень логов меняются без перезапуска
	s.cfg.OnChange(func(fresh *config.Entity, e fsnotify.Event) {
		s.logger.Info("Config file changed", zap.String("file", e.Name))
		mailServ.ChangeCountOfMailsPerReq(fresh.Mail.CountOfMails)

		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(fresh.Log.Level)); err == nil {
			atom.SetLevel(lvl)
		}
	})
}

func (s *Server) routes(atom zap.AtomicLevel, reg *prometheus.Registry, karateServ competitionService, mailServ mailChecker) {
	metrics := newHTTPMetrics(reg)

	s.mux.Use(middleware.RequestID, s.recoverer)

	s.mux.Route("/internal", func(r chi.Router) {
		r.Handle("/log-level", atom)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	})

	// Проверка почты идёт в фоне, ответ приходит сразу
	s.mux.With(metrics.middleware).Get("/mail", func(writer http.ResponseWriter, request *http.Request) {
		errs := mailServ.CheckMails(s.ctx)
		go func() {
			for err := range errs {
				s.logger.Error("mail check failed", zap.Error(err))
			}
		}()
		writer.WriteHeader(http.StatusAccepted)
		_, _ = writer.Write([]byte("Проверка почты запущена"))
	})

	s.mux.With(metrics.middleware).Mount("/", NewHandler(s.logger, karateServ, s.cfg.App.ReportsDir).Routes())
}

func (s *Server) Start(addr string) error {
	s.serv = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Service successfully started", zap.String("addr", addr))
	return s.serv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.serv == nil {
		return nil
	}
	return s.serv.Shutdown(ctx)
}

func (s *Server) recoverer(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				writer.WriteHeader(http.StatusInternalServerError)
				_, _ = writer.Write([]byte("Something going wrong..."))
				s.logger.Error("panic occurred", zap.Error(fmt.Errorf("%v", err)),
					zap.String("path", request.URL.Path), zap.String("request_id", middleware.GetReqID(request.Context())))
			}
		}()
		handler.ServeHTTP(writer, request)
	})
}
