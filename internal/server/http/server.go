// Package http exposes the operator API, the ingestion endpoints, the tool
// surface, and the live feed over one router.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/authz"
	"github.com/logtide/logtide/internal/hub"
	"github.com/logtide/logtide/internal/mcp"
	"github.com/logtide/logtide/internal/service"
	"github.com/logtide/logtide/internal/session"
)

const requestTimeout = 30 * time.Second

// Pinger reports backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the server's dependencies.
type Options struct {
	Log      *zap.Logger
	Sessions *session.Session

	Auth     service.AuthService
	Users    service.UserAdminService
	Projects service.ProjectService
	Channels service.ChannelService
	Query    service.QueryService
	Tokens   service.TokenService
	Push     service.PushService
	Ingest   service.IngestService

	Tools *mcp.Service
	Hub   *hub.Hub
	Authz *authz.Authorizer

	DB    Pinger
	Redis Pinger

	IngestRatePerSec float64
	IngestBurst      int

	// UpdatesURL overrides the release lookup endpoint, for tests.
	UpdatesURL string
}

// Server is the HTTP surface.
type Server struct {
	log      *zap.Logger
	sessions *session.Session

	auth     service.AuthService
	users    service.UserAdminService
	projects service.ProjectService
	channels service.ChannelService
	query    service.QueryService
	tokens   service.TokenService
	push     service.PushService
	ingest   service.IngestService

	tools *mcp.Service
	hub   *hub.Hub
	authz *authz.Authorizer

	db    Pinger
	redis Pinger

	ingestLimiter *keyLimiter
	updatesURL    string
	httpc         *http.Client
}

// New constructs the server.
func New(opts Options) *Server {
	updatesURL := opts.UpdatesURL
	if updatesURL == "" {
		updatesURL = "https://api.github.com/repos/logtide/logtide/releases/latest"
	}
	rps := opts.IngestRatePerSec
	if rps <= 0 {
		rps = 100
	}
	burst := opts.IngestBurst
	if burst <= 0 {
		burst = 200
	}
	return &Server{
		log:           opts.Log,
		sessions:      opts.Sessions,
		auth:          opts.Auth,
		users:         opts.Users,
		projects:      opts.Projects,
		channels:      opts.Channels,
		query:         opts.Query,
		tokens:        opts.Tokens,
		push:          opts.Push,
		ingest:        opts.Ingest,
		tools:         opts.Tools,
		hub:           opts.Hub,
		authz:         opts.Authz,
		db:            opts.DB,
		redis:         opts.Redis,
		ingestLimiter: newKeyLimiter(rps, burst),
		updatesURL:    updatesURL,
		httpc:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(recoverer(s.log))
	r.Use(requestLogger(s.log))

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	// Live feed. No request timeout: the connection is long-lived.
	r.HandleFunc("/ws/logs", s.handleWS).Methods(http.MethodGet)

	// Producer ingestion, keyed by X-API-Key.
	ingest := r.PathPrefix("/api/v1/logs").Subrouter()
	ingest.Use(withTimeout(requestTimeout))
	ingest.Use(s.apiKeyAuth)
	ingest.HandleFunc("", s.handleIngest).Methods(http.MethodPost)
	ingest.HandleFunc("/batch", s.handleIngestBatch).Methods(http.MethodPost)

	// Tool surface, keyed by mcp_ bearer.
	tools := r.PathPrefix("/mcp/tools").Subrouter()
	tools.Use(withTimeout(requestTimeout))
	tools.HandleFunc("/{name}", s.handleToolCall).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(withTimeout(requestTimeout))

	// Unauthenticated: the two login stages.
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/2fa/verify-login", s.handleVerifyLogin2FA).Methods(http.MethodPost)

	// Session-authenticated operator API.
	sess := api.NewRoute().Subrouter()
	sess.Use(s.sessionAuth)

	sess.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	sess.HandleFunc("/auth/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	sess.HandleFunc("/auth/password", s.handleChangePassword).Methods(http.MethodPut)

	sess.HandleFunc("/2fa/setup", s.handleSetup2FA).Methods(http.MethodPost)
	sess.HandleFunc("/2fa/verify", s.handleVerifySetup2FA).Methods(http.MethodPost)
	sess.HandleFunc("/2fa/disable", s.handleDisable2FA).Methods(http.MethodPost)
	sess.HandleFunc("/2fa/regenerate", s.handleRegenerateBackupCodes).Methods(http.MethodPost)
	sess.HandleFunc("/2fa/status", s.handleStatus2FA).Methods(http.MethodGet)

	sess.HandleFunc("/admin/projects", s.handleListProjects).Methods(http.MethodGet)
	sess.HandleFunc("/admin/projects", s.handleCreateProject).Methods(http.MethodPost)
	sess.HandleFunc("/admin/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	sess.HandleFunc("/admin/projects/{id}", s.handleUpdateProject).Methods(http.MethodPut)
	sess.HandleFunc("/admin/projects/{id}", s.handleDeleteProject).Methods(http.MethodDelete)
	sess.HandleFunc("/admin/projects/{id}/active", s.handleSetProjectActive).Methods(http.MethodPut)
	sess.HandleFunc("/admin/projects/{id}/rotate-key", s.handleRotateKey).Methods(http.MethodPost)
	sess.HandleFunc("/admin/projects/{id}/members", s.handleListMembers).Methods(http.MethodGet)
	sess.HandleFunc("/admin/projects/{id}/members", s.handleAddMember).Methods(http.MethodPost)
	sess.HandleFunc("/admin/projects/{id}/members/{uid}", s.handleUpdateMember).Methods(http.MethodPut)
	sess.HandleFunc("/admin/projects/{id}/members/{uid}", s.handleRemoveMember).Methods(http.MethodDelete)

	sess.HandleFunc("/admin/projects/{id}/channels", s.handleListChannels).Methods(http.MethodGet)
	sess.HandleFunc("/admin/projects/{id}/channels", s.handleCreateChannel).Methods(http.MethodPost)
	sess.HandleFunc("/admin/projects/{id}/channels/{cid}", s.handleUpdateChannel).Methods(http.MethodPut)
	sess.HandleFunc("/admin/projects/{id}/channels/{cid}", s.handleDeleteChannel).Methods(http.MethodDelete)
	sess.HandleFunc("/admin/projects/{id}/channels/{cid}/test", s.handleTestChannel).Methods(http.MethodPost)
	sess.HandleFunc("/admin/projects/{id}/channels/{cid}/history", s.handleChannelHistory).Methods(http.MethodGet)

	sess.HandleFunc("/logs", s.handleListLogs).Methods(http.MethodGet)
	sess.HandleFunc("/logs", s.handleDeleteLogs).Methods(http.MethodDelete)
	sess.HandleFunc("/logs/recent", s.handleRecentLogs).Methods(http.MethodGet)
	sess.HandleFunc("/logs/{id}", s.handleGetLog).Methods(http.MethodGet)

	sess.HandleFunc("/stats/overview", s.handleStatsOverview).Methods(http.MethodGet)
	sess.HandleFunc("/stats/projects/{id}", s.handleProjectStats).Methods(http.MethodGet)

	sess.HandleFunc("/push/vapid-public-key", s.handleVAPIDKey).Methods(http.MethodGet)
	sess.HandleFunc("/push/subscribe", s.handlePushSubscribe).Methods(http.MethodPost)
	sess.HandleFunc("/push/unsubscribe", s.handlePushUnsubscribe).Methods(http.MethodPost)
	sess.HandleFunc("/push/subscriptions", s.handlePushList).Methods(http.MethodGet)
	sess.HandleFunc("/push/test", s.handlePushTest).Methods(http.MethodPost)

	sess.HandleFunc("/updates/check", s.handleUpdatesCheck).Methods(http.MethodGet)

	// Admin-only subtrees.
	admin := sess.NewRoute().Subrouter()
	admin.Use(s.adminOnly)
	admin.HandleFunc("/admin/users", s.handleListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/admin/users", s.handleCreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/admin/users/{id}", s.handleUpdateUser).Methods(http.MethodPut)
	admin.HandleFunc("/admin/users/{id}", s.handleDeleteUser).Methods(http.MethodDelete)

	admin.HandleFunc("/admin/mcp-tokens", s.handleListTokens).Methods(http.MethodGet)
	admin.HandleFunc("/admin/mcp-tokens", s.handleCreateToken).Methods(http.MethodPost)
	admin.HandleFunc("/admin/mcp-tokens/{id}", s.handleGetToken).Methods(http.MethodGet)
	admin.HandleFunc("/admin/mcp-tokens/{id}", s.handleUpdateToken).Methods(http.MethodPut)
	admin.HandleFunc("/admin/mcp-tokens/{id}", s.handleDeleteToken).Methods(http.MethodDelete)
	admin.HandleFunc("/admin/mcp-tokens/{id}/activity", s.handleTokenActivity).Methods(http.MethodGet)

	return r
}
