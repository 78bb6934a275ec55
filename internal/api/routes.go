package api

const (
	HealthCheckRoute = "/healthz"
	ReadyRoute       = "/readyz"
	AboutRoute       = "/icanhazwarrant"
	MetricsRoute     = "/metrics"

	ExchangeRoute  = "/v1/exchange"
	AuthorizeRoute = "/v1/authorize"

	AdminParent       = "/v1/admin/"
	ListAuditsRoute   = AdminParent + "audits"
	ListSessionsRoute = AdminParent + "sessions"
	ExplainRoute      = AdminParent + "explain"
	RevokeRoute       = AdminParent + "revoke"

	ListRolesRoute = AdminParent + "roles"
	RoleRoute      = AdminParent + "roles/{id}"
	LintRolesRoute = AdminParent + "lint"

	TaskParent       = AdminParent + "tasks/"
	ListTasksRoute   = TaskParent
	TriggerTaskRoute = TaskParent + "{name}/trigger"
	LogsForTaskRoute = TaskParent + "{name}/logs"
)
