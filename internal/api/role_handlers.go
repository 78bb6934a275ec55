package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/source"
	"github.com/darmiel/warrant/internal/validation"
)

type RoleList struct {
	Revision uint64       `json:"revision"`
	Roles    []*core.Role `json:"roles"`
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	snap := s.broker.Roles.Snapshot()
	presenter.JSON(w, r, RoleList{
		Revision: snap.Revision,
		Roles:    snap.Roles(),
	}, http.StatusOK)
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, ok := s.broker.Roles.Snapshot().Role(r.PathValue("id"))
	if !ok {
		presenter.Err(w, r, core.NewError(core.KindRoleNotFound, nil))
		return
	}
	presenter.JSON(w, r, role, http.StatusOK)
}

// handlePutRole publishes a role document (YAML or JSON) as a new version.
func (s *Server) handlePutRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	role, err := readRoleDocument(r.Body, id)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("role", id).Msg("rejected role document")
		presenter.Error(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	published, err := s.broker.PublishRole(ctx, role)
	if err != nil {
		if core.KindOf(err) == core.KindMalformedRequest {
			// validation errors go back to the operator
			presenter.Error(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, published, http.StatusOK)
}

// handleLintRoles reports configuration smells of all published roles.
func (s *Server) handleLintRoles(w http.ResponseWriter, r *http.Request) {
	known := s.broker.KnownIssuers()
	findings := make([]validation.Finding, 0)
	for _, role := range s.broker.Roles.Snapshot().Roles() {
		findings = append(findings, validation.Lint(role, known)...)
	}
	presenter.JSON(w, r, findings, http.StatusOK)
}

func readRoleDocument(body io.Reader, id string) (core.Role, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPayloadBytes))
	if err != nil {
		return core.Role{}, fmt.Errorf("reading role document: %w", err)
	}
	roles, err := source.ParseRoles(data)
	if err != nil {
		return core.Role{}, err
	}
	if len(roles) != 1 {
		return core.Role{}, errors.New("exactly one role must be published at a time")
	}
	role := roles[0]
	if role.ID == "" {
		role.ID = id
	}
	if role.ID != id {
		return core.Role{}, fmt.Errorf("role id '%s' does not match path '%s'", role.ID, id)
	}
	return role, nil
}
