package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/audit"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/service"
)

// handleAdminAudit processes requests to retrieve audit events.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	// filters
	q := r.URL.Query()
	limitStr := q.Get("limit")

	filterCorrelationID := q.Get("correlation_id")
	filterSessionID := q.Get("session_id")
	filterSubject := q.Get("subject")
	filterExpr := q.Get("filter")

	limit := 50
	if limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v <= 0 {
			logger.Warn().Err(err).Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	match := func(core.AuditEvent) bool { return true }
	if filterExpr != "" {
		compiled, err := audit.CompileFilter(filterExpr)
		if err != nil {
			logger.Warn().Err(err).Msg("invalid filter expression")
			presenter.Error(w, r, "invalid filter expression: "+err.Error(), http.StatusBadRequest)
			return
		}
		match = compiled
	}

	var (
		events []core.AuditEvent
		err    error
	)
	if filterCorrelationID != "" || filterSessionID != "" || filterSubject != "" || filterExpr != "" {
		logger.Debug().Msg("applying audit filters")
		events, err = s.auditor.Find(func(event core.AuditEvent) bool {
			if filterCorrelationID != "" && event.CorrelationID != filterCorrelationID {
				return false
			}
			if filterSessionID != "" && event.SessionID != filterSessionID {
				return false
			}
			if filterSubject != "" && event.Subject != filterSubject {
				return false
			}
			return match(event)
		}, limit)
	} else {
		events, err = s.auditor.GetRecent(limit)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit events")
		presenter.Err(w, r, core.NewError(core.KindAuditSinkUnavailable, err))
		return
	}

	presenter.JSON(w, r, events, http.StatusOK)
}

// handleAdminSessions lists credentials issued by this instance which did not expire yet.
func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.broker.ActiveSessions(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to retrieve active sessions")
		presenter.Error(w, r, "failed to retrieve active sessions", http.StatusInternalServerError)
		return
	}
	presenter.JSON(w, r, sessions, http.StatusOK)
}

// handleExplain evaluates a token against a role without issuing anything.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var payload service.ExplainRequest
	if err := DecodePayload(r, &payload, false); err != nil {
		presenter.Error(w, r, "invalid request payload", http.StatusBadRequest)
		return
	}

	trace, err := s.broker.Explain(r.Context(), payload)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, trace, http.StatusOK)
}

// handleRevoke puts a session on the deny-list.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var payload service.RevokeRequest
	if err := DecodePayload(r, &payload, false); err != nil {
		presenter.Error(w, r, "invalid request payload", http.StatusBadRequest)
		return
	}

	resp, err := s.broker.Revoke(r.Context(), payload)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, resp, http.StatusOK)
}
