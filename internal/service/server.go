package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/larder/internal/allocator"
	"github.com/mmynk/larder/internal/auth"
	"github.com/mmynk/larder/internal/coordinator"
	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/internal/ledger"
	"github.com/mmynk/larder/internal/middleware"
	"github.com/mmynk/larder/internal/repository"
	"github.com/mmynk/larder/internal/storage"
)

// Options configures NewServer.
type Options struct {
	JWTSecret string
	TokenTTL  time.Duration
	Logger    *slog.Logger
	Now       func() time.Time

	// BcryptCost overrides the password hashing cost when non-zero.
	BcryptCost int

	// SessionTTL is how long a recipe session may sit idle before it is
	// dropped. Defaults to DefaultSessionTTL.
	SessionTTL time.Duration
}

// DefaultSessionTTL bounds abandoned recipe sessions.
const DefaultSessionTTL = 2 * time.Hour

// Server holds the wired components behind the HTTP handler.
type Server struct {
	Users       *repository.Users
	Households  *repository.Households
	Invitations *repository.Invitations
	FoodItems   *repository.FoodItems
	Ledger      *ledger.Ledger
	Coordinator *coordinator.Coordinator
	Allocator   *allocator.Allocator
	JWT         *auth.JWTManager

	mux        *http.ServeMux
	stopFollow func()
	stopExpiry context.CancelFunc
}

// NewServer wires every service over store.
func NewServer(store storage.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Users:       repository.NewUsers(store, logger),
		Households:  repository.NewHouseholds(store, logger),
		Invitations: repository.NewInvitations(store, logger),
		FoodItems:   repository.NewFoodItems(store, logger),
		JWT:         auth.NewJWTManager(opts.JWTSecret, opts.TokenTTL),
		mux:         http.NewServeMux(),
	}
	s.Ledger = ledger.New(s.Households, logger)
	s.Coordinator = coordinator.New(coordinator.Deps{
		Users:       s.Users,
		Households:  s.Households,
		Invitations: s.Invitations,
		FoodItems:   s.FoodItems,
		Ledger:      s.Ledger,
		Identity:    identity.FromContext{},
		Logger:      logger,
		Now:         opts.Now,
	})
	s.Allocator = allocator.New(s.Households, s.FoodItems, s.Ledger, identity.FromContext{}, logger)
	s.stopFollow = s.Coordinator.FollowSelection()

	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	var expiryCtx context.Context
	expiryCtx, s.stopExpiry = context.WithCancel(context.Background())
	go s.Allocator.ExpireEvery(expiryCtx, ttl/4, ttl)

	authenticator := auth.NewPasswordAuthenticator(store, s.Users)
	if opts.BcryptCost != 0 {
		authenticator.WithCost(opts.BcryptCost)
	}

	public := connect.WithInterceptors(
		middleware.MetricsInterceptor(),
		middleware.OptionalAuth(s.JWT),
		middleware.LoggingInterceptor(logger),
	)
	private := connect.WithInterceptors(
		middleware.MetricsInterceptor(),
		middleware.RequireAuth(s.JWT),
		middleware.LoggingInterceptor(logger),
	)

	var routes []Route
	routes = append(routes, NewAuthService(authenticator, s.JWT, logger).Routes(public)...)
	routes = append(routes, NewHouseholdService(s.Coordinator, logger).Routes(private)...)
	routes = append(routes, NewPantryService(s.Coordinator, logger).Routes(private)...)
	routes = append(routes, NewCookingService(s.Allocator, logger).Routes(private)...)
	for _, r := range routes {
		s.mux.Handle(r.Path, r.Handler)
	}

	s.mux.Handle("GET /watch/food", NewWatchHandler(store, s.Households, s.JWT, logger))
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/"+Package+".") {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("larder\n"))
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops background work and releases the facades' cache
// subscriptions.
func (s *Server) Close() {
	s.stopExpiry()
	s.stopFollow()
	s.Users.Stop()
	s.Households.Stop()
	s.Invitations.Stop()
	s.FoodItems.Stop()
}
