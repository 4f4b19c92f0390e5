package model

const (
	AppName = "osie-runner"

	LogLevelInfo  = 0
	LogLevelDebug = 1
	LogLevelTrace = 2
)

// State is the lifecycle state name carried in a desired state document.
type State string

const (
	// StatePreinstalling is set while a machine without an assignment gets an OS pre-imaged.
	StatePreinstalling State = "preinstalling"

	// StateProvisioning is set once the machine is assigned to an instance.
	StateProvisioning State = "provisioning"

	// StateCheckEnv is never dispatched, it is written to the metadata file
	// to run the installer in its restricted check environment mode.
	StateCheckEnv State = "osie.internal.check-env"
)

// Entrypoint is the installer script selected by operation name.
type Entrypoint string

const (
	EntrypointWipe         Entrypoint = "wipe.sh"
	EntrypointFlavorRunner Entrypoint = "flavor-runner.sh"
)

// Files in the state directory shared with the installer.
const (
	MetadataFile  = "metadata"
	UserdataFile  = "userdata"
	CleanupFile   = "cleanup.sh"
	LoopFile      = "loop.sh"
	ExtractedFile = "disks-partioned-image-extracted"

	// StateDirMount is where the state directory is mounted inside the installer container.
	StateDirMount = "/statedir"
)

// CleanupScript reboots the host once the runner exits.
const CleanupScript = "#!/usr/bin/env sh\nreboot\n"
