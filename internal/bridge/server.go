// Package bridge is the local HTTP and websocket surface between the spin
// controller and the web renderer. The renderer calls REST routes for user
// actions and listens on /api/v1/ws for state, strip motion, invoices,
// haptics and notices.
package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/drawlog"
	"github.com/MJE43/stargift-miniapp/internal/leaderboard"
	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/miniapp"
	"github.com/MJE43/stargift-miniapp/internal/spin"
)

// AuthContext holds the Telegram init data of the session.
type AuthContext interface {
	InitData() string
	SetInitData(initData string)
}

// Options wires a Server. Controller, Catalog, Chances, Hub, Renderer and
// Invoices are required. Leaderboard, Auth and Draws may be nil; their
// routes then answer 503.
type Options struct {
	Controller  *spin.Controller
	Catalog     *catalog.Catalog
	Chances     *catalog.ChanceTable
	Hub         *Hub
	Renderer    *Renderer
	Invoices    *InvoiceDesk
	Leaderboard *leaderboard.Cache
	Auth        AuthContext
	Draws       *drawlog.Store
	// Session scopes /draws to the running journal when set.
	Session uuid.UUID

	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	ctrl     *spin.Controller
	cat      *catalog.Catalog
	chances  *catalog.ChanceTable
	hub      *Hub
	renderer *Renderer
	invoices *InvoiceDesk
	board    *leaderboard.Cache
	auth     AuthContext
	draws    *drawlog.Store
	session  uuid.UUID
	origins  []string

	validate  *validator.Validate
	log       *slog.Logger
	startTime time.Time

	httpServer  *http.Server
	unsubscribe func()
}

func NewServer(opts Options) *Server {
	s := &Server{
		ctrl:      opts.Controller,
		cat:       opts.Catalog,
		chances:   opts.Chances,
		hub:       opts.Hub,
		renderer:  opts.Renderer,
		invoices:  opts.Invoices,
		board:     opts.Leaderboard,
		auth:      opts.Auth,
		draws:     opts.Draws,
		session:   opts.Session,
		origins:   opts.AllowedOrigins,
		validate:  validator.New(),
		log:       sl.OrDiscard(opts.Logger).With(slog.String("component", "bridge")),
		startTime: time.Now(),
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.hub.AllowOrigins(s.origins)
	s.hub.hello = func() []Event {
		return []Event{{Type: EventState, Data: s.ctrl.Snapshot()}}
	}
	s.unsubscribe = s.ctrl.Subscribe(func(snap spin.Snapshot) {
		s.hub.Broadcast(Event{Type: EventState, Data: snap})
	})
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", miniapp.HeaderInitData},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.initData)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", s.hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/state", s.handleState)
			r.Get("/tiers", s.handleTiers)
			r.Put("/tier", s.handleSetTier)
			r.Put("/viewport", s.handleViewport)
			r.Post("/spin", s.handleSpin)
			r.Post("/result/dismiss", s.handleDismiss)
			r.Post("/demo/disable", s.handleDisableDemo)
			r.Post("/invoices/{id}/status", s.handleInvoiceStatus)

			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/profile", s.handleProfile)

			r.Get("/draws", s.handleDraws)
			r.Get("/draws/distribution", s.handleDistribution)
			r.Get("/draws/export.csv", s.handleExport)

			r.Post("/animations/recolor", s.handleRecolor)
		})
	})

	return r
}

// Start binds addr and serves in a goroutine. It returns once the socket
// is bound.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("bridge listening", slog.String("address", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("bridge server failed", sl.Err(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and disconnects renderers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// initData adopts the init data header as the session auth context.
func (s *Server) initData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth != nil {
			if v := r.Header.Get(miniapp.HeaderInitData); v != "" && v != s.auth.InitData() {
				s.auth.SetInitData(v)
				s.log.Debug("auth context changed", slog.String("request_id", middleware.GetReqID(r.Context())))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	log = log.With(slog.String("component", "middleware/logger"))

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			entry := log.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				entry.Info("request completed",
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.String("duration", time.Since(start).String()),
				)
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
