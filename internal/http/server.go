package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"cassa/internal/auth"
	"cassa/internal/cache"
	"cassa/internal/core"
	"cassa/internal/entries"
	"cassa/internal/log"
	"cassa/internal/middleware/ratelimit"
	"cassa/internal/middleware/security"
	"cassa/internal/middleware/trace"
)

// Groups is the membership side of the API.
type Groups interface {
	CreateGroup(ctx context.Context, actor core.Actor, name string) (core.Group, error)
	ListGroups(ctx context.Context, userID string) ([]core.Group, error)
	Membership(ctx context.Context, groupID, userID string) (core.Member, error)
	CreateInvite(ctx context.Context, actor core.Actor, groupID, email string) (core.Invite, string, error)
	AcceptInvite(ctx context.Context, actor core.Actor, token string) (core.Member, error)
}

// Workspaces hands out loaded group workspaces.
type Workspaces interface {
	Get(ctx context.Context, groupID string) (*entries.Workspace, error)
	Invalidate(ctx context.Context, groupID string) error
}

// Exporter writes a group's month to the spreadsheet.
type Exporter interface {
	Enabled() bool
	Export(ctx context.Context, groupID string, year, month int) (string, error)
}

// ChangeNotifier announces stored mutations to other instances.
type ChangeNotifier interface {
	Changed(ctx context.Context, groupID, table, op, recordID, actorID string)
}

// Deps are the collaborators of the server. Summaries, Exporter, Changes and
// Ready are optional.
type Deps struct {
	Groups     Groups
	Workspaces Workspaces
	Verifier   *auth.Verifier
	Summaries  cache.Cache[core.MonthSummary]
	Exporter   Exporter
	Changes    ChangeNotifier
	Ready      func(ctx context.Context) error
	Logger     *log.Logger
	RateLimit  ratelimit.Config
	Now        func() time.Time
}

type Server struct {
	http.Server

	groups     Groups
	workspaces Workspaces
	summaries  cache.Cache[core.MonthSummary]
	exporter   Exporter
	changes    ChangeNotifier
	ready      func(ctx context.Context) error
	logger     *log.Logger
	now        func() time.Time

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = log.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	detector := security.NewDetector()
	s := &Server{
		groups:     d.Groups,
		workspaces: d.Workspaces,
		summaries:  d.Summaries,
		exporter:   d.Exporter,
		changes:    d.Changes,
		ready:      d.Ready,
		logger:     d.Logger.WithComponent(log.ComponentHTTP),
		now:        d.Now,
		limiter:    ratelimit.NewLimiter(d.RateLimit),
		tracer:     trace.NewMiddleware(d.Logger, detector.ExtractClientIP),
		detector:   detector,
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(d.Verifier),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(v *auth.Verifier) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Write(w)
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(auth.Middleware(v, s.logger))

	api.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	api.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/invites/accept", s.handleAcceptInvite).Methods(http.MethodPost)

	g := api.PathPrefix("/groups/{groupID}").Subrouter()
	g.Use(s.requireMember)

	g.HandleFunc("/invites", s.handleCreateInvite).Methods(http.MethodPost)
	g.HandleFunc("/members", s.handleListMembers).Methods(http.MethodGet)
	g.HandleFunc("/members/{id}", s.handleUpdateMember).Methods(http.MethodPatch)
	g.HandleFunc("/members/{id}", s.handleRemoveMember).Methods(http.MethodDelete)

	g.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	g.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	g.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)

	g.HandleFunc("/income", s.handleListIncome).Methods(http.MethodGet)
	g.HandleFunc("/income", s.handleCreateIncome).Methods(http.MethodPost)
	g.HandleFunc("/income/{id}", s.handleUpdateIncome).Methods(http.MethodPatch)
	g.HandleFunc("/income/{id}", s.handleDeleteIncome).Methods(http.MethodDelete)

	g.HandleFunc("/recurring-income", s.handleListRecurring).Methods(http.MethodGet)
	g.HandleFunc("/recurring-income", s.handleCreateRecurring).Methods(http.MethodPost)
	g.HandleFunc("/recurring-income/upcoming", s.handleUpcomingRecurring).Methods(http.MethodGet)
	g.HandleFunc("/recurring-income/{id}", s.handleUpdateRecurring).Methods(http.MethodPatch)
	g.HandleFunc("/recurring-income/{id}", s.handleDeleteRecurring).Methods(http.MethodDelete)
	g.HandleFunc("/recurring-income/{id}/toggle", s.handleToggleRecurring).Methods(http.MethodPost)

	g.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	g.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	g.HandleFunc("/tasks/{id}", s.handleUpdateTask).Methods(http.MethodPatch)
	g.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods(http.MethodDelete)
	g.HandleFunc("/tasks/{id}/complete", s.handleCompleteTask).Methods(http.MethodPost)
	g.HandleFunc("/tasks/{id}/reopen", s.handleReopenTask).Methods(http.MethodPost)

	g.HandleFunc("/cards", s.handleListCards).Methods(http.MethodGet)
	g.HandleFunc("/cards", s.handleCreateCard).Methods(http.MethodPost)
	g.HandleFunc("/cards/{id}", s.handleUpdateCard).Methods(http.MethodPatch)
	g.HandleFunc("/cards/{id}", s.handleDeleteCard).Methods(http.MethodDelete)

	g.HandleFunc("/bills", s.handleListBills).Methods(http.MethodGet)
	g.HandleFunc("/bills/paid", s.handleMarkBillPaid).Methods(http.MethodPost)
	g.HandleFunc("/bills/unpaid", s.handleMarkBillUnpaid).Methods(http.MethodPost)

	g.HandleFunc("/installments", s.handleListInstallments).Methods(http.MethodGet)
	g.HandleFunc("/installments", s.handleCreatePlan).Methods(http.MethodPost)
	g.HandleFunc("/installments/upcoming", s.handleUpcomingInstallments).Methods(http.MethodGet)
	g.HandleFunc("/installments/overdue", s.handleOverdueInstallments).Methods(http.MethodGet)
	g.HandleFunc("/installments/{id}/paid", s.handleMarkInstallmentPaid).Methods(http.MethodPost)
	g.HandleFunc("/installments/{id}/unpaid", s.handleMarkInstallmentUnpaid).Methods(http.MethodPost)
	g.HandleFunc("/installments/{id}", s.handleDeleteInstallment).Methods(http.MethodDelete)

	g.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	g.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	g.HandleFunc("/export", s.handleExport).Methods(http.MethodPost)

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "Too many requests, slow down").Write(w)
	}

	var h http.Handler = r
	h = s.limiter.Middleware(s.detector.ExtractClientIP, onLimit)(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.detector.Middleware(s.logger)(h)
	h = s.tracer.Handler(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ServiceUnavailableError("Not ready").Write(w)
			return
		}
	}
	NewHTMXResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
