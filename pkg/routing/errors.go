package routing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDeploymentNotFound matches every DeploymentNotFoundError via errors.Is.
var ErrDeploymentNotFound = errors.New("deployment not found")

// DeploymentNotFoundError is returned when an event has no active deployment
// under the requested name or type.
type DeploymentNotFoundError struct {
	// EventID is the event whose catalog was searched.
	EventID string

	// Name is the requested deployment name or model type.
	Name string

	// Available contains the event's deployment names, sorted and distinct.
	Available []string
}

// Error implements the error interface. The text is shown to callers.
func (e *DeploymentNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("The requested deployment %q was not found. The event has no available deployments.", e.Name)
	}
	return fmt.Sprintf("The requested deployment %q was not found. Available deployments are: %s",
		e.Name, strings.Join(e.Available, ", "))
}

// Is implements error matching for errors.Is().
func (e *DeploymentNotFoundError) Is(target error) bool {
	return target == ErrDeploymentNotFound
}
