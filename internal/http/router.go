package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blenvi/blenvi/internal/catalog"
	"github.com/blenvi/blenvi/internal/service/auth"
	"github.com/blenvi/blenvi/internal/service/discussion"
	"github.com/blenvi/blenvi/internal/service/integration"
	"github.com/blenvi/blenvi/internal/service/overview"
	"github.com/blenvi/blenvi/internal/service/route"
	"github.com/blenvi/blenvi/internal/service/session"
	"github.com/blenvi/blenvi/internal/ws"
)

// Dependencies groups the collaborators the router serves.
type Dependencies struct {
	Logger         *slog.Logger
	Auth           auth.Service
	Catalog        *catalog.Catalog
	Sessions       *session.Registry
	Integrations   integration.Service
	Discussion     discussion.Service
	Overview       overview.Service
	Hub            *ws.Hub
	Limiter        RateLimiter
	DBHealth       func(context.Context) error
	SSEHeartbeat   time.Duration
	AllowedOrigins []string
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *mux.Router
	logger       *slog.Logger
	auth         auth.Service
	catalog      *catalog.Catalog
	sessions     *session.Registry
	integrations integration.Service
	discussion   discussion.Service
	overview     overview.Service
	resolver     route.Resolver
	hub          *ws.Hub
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	dbHealth     func(context.Context) error
	heartbeat    time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	storeOps           *prometheus.CounterVec
}

const (
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Dependencies) *Router {
	r := &Router{
		mux:          mux.NewRouter(),
		logger:       deps.Logger,
		auth:         deps.Auth,
		catalog:      deps.Catalog,
		sessions:     deps.Sessions,
		integrations: deps.Integrations,
		discussion:   deps.Discussion,
		overview:     deps.Overview,
		hub:          deps.Hub,
		limiter:      deps.Limiter,
		dbHealth:     deps.DBHealth,
		heartbeat:    deps.SSEHeartbeat,
	}
	var (
		teams route.TeamLookup
		defs  route.IntegrationLookup
	)
	if deps.Catalog != nil {
		teams = deps.Catalog
	}
	if d := deps.Integrations.Definitions(); d != nil {
		defs = d
	}
	r.resolver = route.NewResolver(teams, defs)
	r.upgrader = websocket.Upgrader{CheckOrigin: originChecker(deps.AllowedOrigins)}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = 15 * time.Second
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	m := r.mux
	m.NotFoundHandler = r.audit(func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) })
	m.MethodNotAllowedHandler = r.audit(func(w http.ResponseWriter, _ *http.Request) { r.methodNotAllowed(w) })

	m.HandleFunc("/healthz", r.audit(r.handleHealthz)).Methods(http.MethodGet)
	m.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	m.HandleFunc("/auth/signup", r.audit(r.limited("/auth/signup", policySignup, rateScopeClient, r.handleSignup))).Methods(http.MethodPost)
	m.HandleFunc("/auth/login", r.audit(r.limited("/auth/login", policyLogin, rateScopeClient, r.handleLogin))).Methods(http.MethodPost)
	m.HandleFunc("/auth/refresh", r.audit(r.limited("/auth/refresh", policyLogin, rateScopeClient, r.handleRefresh))).Methods(http.MethodPost)
	m.HandleFunc("/auth/password/reset", r.audit(r.limited("/auth/password/reset", policyPassword, rateScopeClient, r.handlePasswordReset))).Methods(http.MethodPost)
	m.HandleFunc("/auth/password/update", r.audit(r.limited("/auth/password/update", policyPassword, rateScopeClient, r.handlePasswordUpdate))).Methods(http.MethodPost)
	m.HandleFunc("/auth/logout", r.audit(r.authLimited("/auth/logout", policyUserWrite, r.handleLogout))).Methods(http.MethodPost)
	m.HandleFunc("/auth/me", r.audit(r.authLimited("/auth/me", policyUserRead, r.handleMe))).Methods(http.MethodGet)

	m.HandleFunc("/workspace/teams", r.audit(r.authLimited("/workspace/teams", policyUserRead, r.handleTeams))).Methods(http.MethodGet)
	m.HandleFunc("/workspace/selection", r.audit(r.authLimited("/workspace/selection", policyUserRead, r.handleSelection))).Methods(http.MethodGet)
	m.HandleFunc("/workspace/selection/team", r.audit(r.authLimited("/workspace/selection/team", policyUserWrite, r.handleSelectTeam))).Methods(http.MethodPost)
	m.HandleFunc("/workspace/selection/project", r.audit(r.authLimited("/workspace/selection/project", policyUserWrite, r.handleSelectProject))).Methods(http.MethodPost)

	dashboard := r.audit(r.authLimited("/dashboard", policyUserRead, r.handleDashboard))
	m.HandleFunc("/dashboard/{team}/{project}", dashboard).Methods(http.MethodGet)
	m.HandleFunc("/dashboard/{team}/{project}/{route}", dashboard).Methods(http.MethodGet)
	m.HandleFunc("/dashboard/{team}/{project}/{route}/{slug}", dashboard).Methods(http.MethodGet)

	m.HandleFunc("/account/profile", r.audit(r.authLimited("/account/profile", policyUserRead, r.handleGetProfile))).Methods(http.MethodGet)
	m.HandleFunc("/account/profile", r.audit(r.authLimited("/account/profile", policyUserWrite, r.handleUpdateProfile))).Methods(http.MethodPatch)
	m.HandleFunc("/account/profile/edit", r.audit(r.authLimited("/account/profile/edit", policyUserWrite, r.handleEditProfile))).Methods(http.MethodPost)
	m.HandleFunc("/account/profile/save", r.audit(r.authLimited("/account/profile/save", policyUserWrite, r.handleSaveProfile))).Methods(http.MethodPost)
	m.HandleFunc("/account/profile/cancel", r.audit(r.authLimited("/account/profile/cancel", policyUserWrite, r.handleCancelProfile))).Methods(http.MethodPost)
	m.HandleFunc("/account/avatar", r.audit(r.authLimited("/account/avatar", policyUserWrite, r.handleAvatarPreview))).Methods(http.MethodPost)
	m.HandleFunc("/account/avatar", r.audit(r.authLimited("/account/avatar", policyUserWrite, r.handleRemoveAvatar))).Methods(http.MethodDelete)
	m.HandleFunc("/account/avatar/dialog", r.audit(r.authLimited("/account/avatar/dialog", policyUserWrite, r.handleAvatarDialog))).Methods(http.MethodPost)
	m.HandleFunc("/account/avatar/confirm", r.audit(r.authLimited("/account/avatar/confirm", policyUserWrite, r.handleConfirmAvatar))).Methods(http.MethodPost)

	m.HandleFunc("/integrations", r.audit(r.authLimited("/integrations", policyUserRead, r.handleListIntegrations))).Methods(http.MethodGet)
	m.HandleFunc("/integrations/{slug}", r.audit(r.authLimited("/integrations/{slug}", policyUserRead, r.handleGetDefinition))).Methods(http.MethodGet)

	project := m.PathPrefix("/teams/{team}/projects/{project}").Subrouter()
	project.HandleFunc("/integrations/{slug}", r.audit(r.projectLimited("integration_config_read", policyUserRead, rateScopeMember, r.handleGetIntegrationConfig))).Methods(http.MethodGet)
	project.HandleFunc("/integrations/{slug}", r.audit(r.projectLimited("integration_config", policyIntegrationOp, rateScopeProject, r.handleSaveIntegrationConfig))).Methods(http.MethodPut)
	project.HandleFunc("/integrations/{slug}/test", r.audit(r.projectLimited("integration_test", policyIntegrationOp, rateScopeProject, r.handleTestIntegration))).Methods(http.MethodPost)
	project.HandleFunc("/discussion", r.audit(r.projectLimited("discussion_list", policyUserRead, rateScopeMember, r.handleListDiscussion))).Methods(http.MethodGet)
	project.HandleFunc("/discussion", r.audit(r.projectLimited("discussion", policyDiscussion, rateScopeMember, r.handlePostDiscussion))).Methods(http.MethodPost)
	project.HandleFunc("/discussion/{id}/replies", r.audit(r.projectLimited("discussion_reply", policyDiscussion, rateScopeMember, r.handleReplyDiscussion))).Methods(http.MethodPost)
	project.HandleFunc("/discussion/{id}/reactions", r.audit(r.projectLimited("discussion_react", policyDiscussion, rateScopeMember, r.handleReactDiscussion))).Methods(http.MethodPost)

	m.HandleFunc("/ws/events", r.audit(r.authLimited("/ws/events", policyRealtime, r.handleEventsWS))).Methods(http.MethodGet)
	m.HandleFunc("/events", r.audit(r.authLimited("/events", policyRealtime, r.handleEventsSSE))).Methods(http.MethodGet)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if r.sessions != nil {
		components["sessions"] = map[string]any{"open": r.sessions.Len()}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		routeLabel := routeTemplate(req)
		r.recordRequestMetrics(req.Method, routeLabel, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", routeLabel,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// routeTemplate returns the matched mux template so metrics stay low
// cardinality.
func routeTemplate(req *http.Request) string {
	if current := mux.CurrentRoute(req); current != nil {
		if tpl, err := current.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
