// Package server exposes the credit protocol over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trustlend/core/protocol"
	"trustlend/observability"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Auth      AuthConfig
	RateLimit RateLimit
	// AllowedOrigins lists host patterns permitted to open the event
	// websocket from another origin. Empty means same-origin only.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server wires HTTP routes onto a protocol engine.
type Server struct {
	engine  *protocol.Engine
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	origins []string

	router http.Handler
}

// New constructs a configured HTTP router.
func New(engine *protocol.Engine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server: protocol engine required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "creditd.server"))
	srv := &Server{
		engine:  engine,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
		origins: append([]string(nil), cfg.AllowedOrigins...),
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(), "creditd")
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)

		api.Get("/params", s.getParams)
		api.Get("/reputation/top", s.getTopAccounts)
		api.Get("/reputation/{account}", s.getReputation)
		api.Get("/accounts/{account}/credit", s.getCredit)
		api.Get("/accounts/{account}/circles", s.getUserCircles)
		api.Get("/accounts/{account}/loans", s.getBorrowerLoans)
		api.Get("/accounts/{account}/balance", s.getBalance)
		api.Get("/payouts/{ref}", s.getPayout)
		api.Get("/circles/{id}", s.getCircle)
		api.Get("/circles/{id}/vouches/{account}", s.getVouches)
		api.Get("/circles/{id}/invitations/{account}", s.getInvitation)
		api.Get("/loans", s.listLoans)
		api.Get("/loans/{id}", s.getLoan)
		api.Get("/pool", s.getPool)
		api.Get("/lenders/{account}", s.getLender)
		api.Get("/exports/loans", s.exportLoans)
		api.Get("/events/ws", s.streamEvents)

		api.Group(func(w chi.Router) {
			w.Use(s.auth.Middleware(ScopeWrite))
			w.Post("/reputation/mint", s.mint)
			w.Post("/circles", s.createCircle)
			w.Post("/circles/{id}/invite", s.inviteMember)
			w.Post("/circles/{id}/accept", s.acceptInvitation)
			w.Post("/circles/{id}/vouch", s.vouch)
			w.Post("/pool/deposit", s.deposit)
			w.Post("/pool/withdraw", s.withdraw)
			w.Post("/loans", s.borrow)
			w.Post("/loans/{id}/repay", s.repay)
			w.Post("/loans/{id}/default", s.markDefaulted)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.Middleware(ScopeAdmin))
			admin.Get("/pauses", s.getPauses)
			admin.Post("/pauses", s.setPaused)
			admin.Post("/owner", s.setOwner)
			admin.Post("/capabilities", s.setCapability)
			admin.Post("/updaters", s.setUpdater)
			admin.Post("/reputation/delta", s.applyDelta)
			admin.Post("/circles/{id}/slash", s.slashCircle)
			admin.Post("/fees/withdraw", s.withdrawFees)
		})
	})
	return r
}

// observe records request counts and latency under the matched route
// pattern so path parameters do not explode label cardinality.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.API().Observe(route, r.Method, status, time.Since(start))
	})
}

func recordThrottle(reason string) {
	observability.API().RecordThrottle(reason)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := translateError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	writeError(w, status, body)
}
