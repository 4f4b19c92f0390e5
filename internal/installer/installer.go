package installer

import (
	"context"
	"fmt"

	"github.com/metal-toolbox/osie-runner/internal/model"
)

//go:generate mockgen -source installer.go -destination=../fixtures/mock_installer.go -package=fixtures

// Installer runs the external OS installer.
//
// Run returns nil when the installer exited zero, an *ExitError when it exited non-zero
// and any other error when the installer could not be run at all.
type Installer interface {
	Run(ctx context.Context, inv *Invocation) error
}

// Invocation describes a single installer run.
type Invocation struct {
	// HardwareID identifies the machine, it is set as the installer hostname.
	HardwareID string

	// InstanceID identifies the run, for a preinstall or wipe this is the hardware id.
	InstanceID string

	Entrypoint model.Entrypoint

	// Args are appended to the entrypoint command.
	Args []string

	// Env is merged into the installer environment.
	Env map[string]string
}

// ExitError is returned when the installer exited with a non-zero code.
type ExitError struct {
	Entrypoint model.Entrypoint
	Code       int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("installer %s exited with code %d", e.Entrypoint, e.Code)
}
