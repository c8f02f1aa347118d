// Package httpapi serves the JSON API used by the web client, plus the static
// pages.
package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/divvy/internal/auth"
	"github.com/mmynk/divvy/internal/middleware"
	"github.com/mmynk/divvy/internal/service"
)

const defaultMaxUpload = 10 << 20

// Server holds the handler dependencies.
type Server struct {
	bills     *service.BillService
	authn     auth.Authenticator
	jwt       *auth.JWTManager
	guard     *middleware.OwnerGuard
	staticDir string
	maxUpload int64
}

// Options configures a Server.
type Options struct {
	// StaticDir holds index.html, participant.html and their assets.
	StaticDir string

	// MaxUploadBytes limits receipt uploads.
	MaxUploadBytes int64
}

// New creates a Server.
func New(bills *service.BillService, authn auth.Authenticator, jwtManager *auth.JWTManager, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	return &Server{
		bills:     bills,
		authn:     authn,
		jwt:       jwtManager,
		guard:     middleware.NewOwnerGuard(authn, jwtManager),
		staticDir: opts.StaticDir,
		maxUpload: opts.MaxUploadBytes,
	}
}

// Guard returns the owner guard shared with the RPC transport.
func (s *Server) Guard() *middleware.OwnerGuard {
	return s.guard
}

// Router builds the routes. Callers may mount more handlers on the result.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/", s.servePage("index.html"))
	r.Get("/bill/{billID}", s.servePage("participant.html"))
	if s.staticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Open to everyone holding the share link.
		r.Group(func(r chi.Router) {
			r.Use(s.guard.Identify)
			r.Get("/status", s.handleStatus)
			r.Post("/auth", s.handleAuth)
			r.Get("/auth/check", s.handleAuthCheck)
			r.Get("/bill/{billID}/participant", s.handleParticipant)
			r.Post("/bill/{billID}/join", s.handleJoin)
			r.Post("/bill/{billID}/self-assign", s.handleSelfAssign)
			r.Get("/calculate-splits/{billID}", s.handleCalculateSplits)
		})

		// Owner only when an app password is set.
		r.Group(func(r chi.Router) {
			r.Use(s.guard.RequireOwner)
			r.Get("/bills", s.handleListBills)
			r.Post("/create-bill", s.handleCreateBill)
			r.Post("/scan-bill", s.handleScanBill)
			r.Get("/bill/{billID}", s.handleGetBill)
			r.Delete("/bill/{billID}", s.handleDeleteBill)
			r.Post("/bill/{billID}/status", s.handleSetStatus)
			r.Post("/restore-bill", s.handleRestoreBill)
			r.Post("/update-title", s.handleUpdateTitle)
			r.Post("/update-fintoc-username", s.handleUpdatePaymentHandle)
			r.Post("/add-person", s.handleAddPerson)
			r.Post("/remove-person", s.handleRemovePerson)
			r.Post("/assign-item", s.handleAssignItem)
			r.Post("/update-tip-tax", s.handleUpdateTipTax)
			r.Post("/add-item", s.handleAddItem)
			r.Delete("/item/{billID}/{itemID}", s.handleDeleteItem)
			r.Post("/lock-bill", s.handleLockBill)
			r.Post("/mark-paid", s.handleMarkPaid)
			r.Post("/refresh-bill/{billID}", s.handleRefreshBill)
			r.Post("/refresh-all-bills", s.handleRefreshAll)
		})
	})

	return r
}

func (s *Server) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.staticDir == "" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(s.staticDir, name))
	}
}
