package tasks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyRunning is returned by Trigger while a previous run has not finished.
var ErrAlreadyRunning = errors.New("task is already running")

// UnknownTaskError is returned for names which were never registered.
type UnknownTaskError struct {
	Name  string
	Known []string
}

func (e UnknownTaskError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("no task named %q, none are registered", e.Name)
	}
	return fmt.Sprintf("no task named %q, registered: %s", e.Name, strings.Join(e.Known, ", "))
}
