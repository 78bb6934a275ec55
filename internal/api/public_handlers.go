package api

import (
	"net/http"
	"time"

	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/buildinfo"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type ReadinessResponse struct {
	Ready          bool      `json:"ready"`
	PolicyRevision uint64    `json:"policy_revision"`
	PolicyLoadedAt time.Time `json:"policy_loaded_at"`
	Roles          int       `json:"roles"`
	Issuers        int       `json:"issuers"`
}

// handleReady reports 503 until a first set of roles has been loaded, so
// instances do not receive exchanges they can only deny.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := s.broker.Roles.Snapshot()
	resp := ReadinessResponse{
		Ready:          snap.Revision > 0,
		PolicyRevision: snap.Revision,
		PolicyLoadedAt: snap.LoadedAt,
		Roles:          len(snap.Roles()),
		Issuers:        len(s.broker.KnownIssuers()),
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	presenter.JSON(w, r, resp, status)
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, buildinfo.GetBuildInfo(), http.StatusOK)
}
