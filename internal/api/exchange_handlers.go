package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/service"
)

// handleExchange trades a workload identity token for a credential.
// The token is read from the body, or from the Authorization header if the body has none.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload service.ExchangeRequest
	if err := DecodePayload(r, &payload, false); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to decode exchange request payload")
		// an undecodable body is still audited as a malformed exchange
		payload = service.ExchangeRequest{}
	}
	if payload.Token == "" {
		payload.Token = bearerToken(r)
	}

	resp, err := s.broker.Exchange(ctx, payload)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, resp, http.StatusCreated)
}

// handleAuthorize checks a credential against an action and resource.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload service.AuthorizeRequest
	if err := DecodePayload(r, &payload, false); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to decode authorize request payload")
		presenter.Err(w, r, core.NewError(core.KindMalformedRequest, err))
		return
	}
	if payload.Credential == "" {
		payload.Credential = bearerToken(r)
	}

	resp, err := s.broker.Authorize(ctx, payload)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, resp, http.StatusOK)
}
