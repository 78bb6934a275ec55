package api

import (
	"errors"
	"net/http"

	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/tasks"
)

type TriggerTaskResponse struct {
	Status string `json:"status"`
	Task   string `json:"task"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, s.taskManager.ListStatus(), http.StatusOK)
}

// handleTriggerTask starts a run of a task without waiting for it. Progress
// is visible through the task's status and logs.
func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.taskManager.Trigger(name); err != nil {
		s.taskError(w, r, err)
		return
	}
	presenter.JSON(w, r, TriggerTaskResponse{
		Status: "triggered",
		Task:   name,
	}, http.StatusAccepted)
}

func (s *Server) handleLogsForTask(w http.ResponseWriter, r *http.Request) {
	logs, err := s.taskManager.GetLogs(r.PathValue("name"))
	if err != nil {
		s.taskError(w, r, err)
		return
	}
	presenter.JSON(w, r, logs, http.StatusOK)
}

func (s *Server) taskError(w http.ResponseWriter, r *http.Request, err error) {
	var unknown tasks.UnknownTaskError
	switch {
	case errors.As(err, &unknown):
		presenter.Error(w, r, err.Error(), http.StatusNotFound)
	case errors.Is(err, tasks.ErrAlreadyRunning):
		presenter.Error(w, r, err.Error(), http.StatusConflict)
	default:
		presenter.Error(w, r, err.Error(), http.StatusInternalServerError)
	}
}
