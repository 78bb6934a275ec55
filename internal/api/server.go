package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/darmiel/warrant/internal/api/middleware"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/service"
	"github.com/darmiel/warrant/internal/tasks"
)

type Server struct {
	broker      *service.Broker
	taskManager *tasks.Manager
	auditor     core.Auditor
	gatherer    prometheus.Gatherer
}

// NewServer creates the HTTP surface of the broker. gatherer may be nil, in
// which case the default registry is exposed.
func NewServer(
	broker *service.Broker,
	taskManager *tasks.Manager,
	gatherer prometheus.Gatherer,
) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		broker:      broker,
		taskManager: taskManager,
		auditor:     broker.Auditor,
		gatherer:    gatherer,
	}
}

func (s *Server) Routes(adminKey []byte) http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+ReadyRoute, s.handleReady)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	mux.Handle("GET "+MetricsRoute, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// credential routes
	mux.HandleFunc("POST "+ExchangeRoute, s.handleExchange)
	mux.HandleFunc("POST "+AuthorizeRoute, s.handleAuthorize)

	// admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET "+ListAuditsRoute, s.handleAdminAudit)
	adminMux.HandleFunc("GET "+ListSessionsRoute, s.handleAdminSessions)
	adminMux.HandleFunc("POST "+ExplainRoute, s.handleExplain)
	adminMux.HandleFunc("POST "+RevokeRoute, s.handleRevoke)
	adminMux.HandleFunc("GET "+ListRolesRoute, s.handleListRoles)
	adminMux.HandleFunc("GET "+RoleRoute, s.handleGetRole)
	adminMux.HandleFunc("PUT "+RoleRoute, s.handlePutRole)
	adminMux.HandleFunc("GET "+LintRolesRoute, s.handleLintRoles)
	if s.taskManager != nil {
		adminMux.HandleFunc("GET "+ListTasksRoute, s.handleListTasks)
		adminMux.HandleFunc("POST "+TriggerTaskRoute, s.handleTriggerTask)
		adminMux.HandleFunc("GET "+LogsForTaskRoute, s.handleLogsForTask)
	}
	mux.Handle(AdminParent, middleware.AdminAuth(adminKey)(adminMux))

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(HealthCheckRoute, ReadyRoute, MetricsRoute)(
				mux)))
}
