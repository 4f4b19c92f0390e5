package installer

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/metal-toolbox/osie-runner/internal/metrics"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultImage = "osie:x86_64"
	DefaultHome  = "/home/packet"

	engineReadyAttempts = 10

	// outputDrainTimeout bounds the wait for the installer output once the container exited.
	outputDrainTimeout = 5 * time.Second
)

var (
	ErrDocker = errors.New("docker installer error")
)

// DockerOptions configure the Docker installer.
type DockerOptions struct {
	// Image is the installer container image.
	Image string

	// Home is the directory holding the installer entrypoint scripts in the image.
	Home string

	// HostStateDir is the host side path of the state directory mounted into the installer.
	HostStateDir string

	// RLogHost receives the installer logs.
	RLogHost string

	// Stdout and Stderr receive the installer output, they default to the process stdout, stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Docker runs the installer as a privileged, host networked container.
type Docker struct {
	cli    *client.Client
	opts   DockerOptions
	logger *logrus.Entry
}

// NewDocker returns a Docker installer with a client configured from the environment.
func NewDocker(opts DockerOptions, logger *logrus.Entry) (*Docker, error) {
	if opts.HostStateDir == "" {
		return nil, errors.Wrap(ErrDocker, "host state directory not defined")
	}

	if opts.Image == "" {
		opts.Image = DefaultImage
	}

	if opts.Home == "" {
		opts.Home = DefaultHome
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(ErrDocker, err.Error())
	}

	return &Docker{cli: cli, opts: opts, logger: logger}, nil
}

// Close closes the docker client.
func (d *Docker) Close() error {
	return d.cli.Close()
}

// Run implements the Installer interface.
func (d *Docker) Run(ctx context.Context, inv *Invocation) (err error) {
	startTS := time.Now()

	defer func() {
		metrics.RegisterInstallerRun(inv.Entrypoint, err, time.Since(startTS))
	}()

	if err := d.waitReady(ctx); err != nil {
		return err
	}

	cfg, hostCfg := containerConfig(d.opts, inv)
	name := "osie-" + uuid.New().String()

	le := d.logger.WithFields(logrus.Fields{
		"container":  name,
		"entrypoint": inv.Entrypoint,
		"hardwareID": inv.HardwareID,
		"instanceID": inv.InstanceID,
	})

	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return errors.Wrap(ErrDocker, "create: "+err.Error())
	}

	defer func() {
		// the installer may have been interrupted, the removal gets its own context.
		rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if rerr := d.cli.ContainerRemove(rctx, created.ID, container.RemoveOptions{Force: true}); rerr != nil {
			le.WithError(rerr).Warn("installer container remove error")
		}
	}()

	attached, err := d.cli.ContainerAttach(ctx, created.ID, container.AttachOptions{Stream: true, Stdout: true, Stderr: true})
	if err != nil {
		return errors.Wrap(ErrDocker, "attach: "+err.Error())
	}
	defer attached.Close()

	waitCh, errCh := d.cli.ContainerWait(ctx, created.ID, container.WaitConditionNextExit)

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return errors.Wrap(ErrDocker, "start: "+err.Error())
	}

	le.Debug("installer container started")

	copied := copyOutput(le, attached.Reader, d.opts.Stdout, d.opts.Stderr)

	select {
	case resp := <-waitCh:
		if !awaitOutput(copied, outputDrainTimeout) {
			le.Warn("installer output was not drained in time")
		}

		if resp.Error != nil {
			return errors.Wrap(ErrDocker, "wait: "+resp.Error.Message)
		}

		if resp.StatusCode != 0 {
			return &ExitError{Entrypoint: inv.Entrypoint, Code: int(resp.StatusCode)}
		}

		return nil
	case err := <-errCh:
		return errors.Wrap(ErrDocker, "wait: "+err.Error())
	}
}

// copyOutput demultiplexes the attached container stream into stdout, stderr,
// the returned channel is closed once the stream ends.
func copyOutput(le *logrus.Entry, stream io.Reader, stdout, stderr io.Writer) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		if _, err := stdcopy.StdCopy(stdout, stderr, stream); err != nil {
			le.WithError(err).Trace("installer output stream closed")
		}
	}()

	return done
}

// awaitOutput returns false when the output copy did not complete within the timeout.
func awaitOutput(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// waitReady blocks until the docker engine answers a ping.
func (d *Docker) waitReady(ctx context.Context) error {
	// nolint:gomnd // time duration definitions are clear as is.
	delay := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
	}

	var err error
	for attempt := 1; attempt <= engineReadyAttempts; attempt++ {
		if _, err = d.cli.Ping(ctx); err == nil {
			return nil
		}

		wait := delay.Duration()
		d.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait.String(),
			"err":     err,
		}).Debug("docker engine not ready")

		select {
		case <-ctx.Done():
			return errors.Wrap(ErrDocker, ctx.Err().Error())
		case <-time.After(wait):
		}
	}

	return errors.Wrap(ErrDocker, "engine not ready: "+err.Error())
}

// containerConfig returns the container configuration for an installer invocation.
func containerConfig(opts DockerOptions, inv *Invocation) (*container.Config, *container.HostConfig) {
	env := []string{
		"container_uuid=" + inv.InstanceID,
		"RLOGHOST=" + opts.RLogHost,
	}

	keys := make([]string, 0, len(inv.Env))
	for k := range inv.Env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+inv.Env[k])
	}

	cmd := append([]string{path.Join(opts.Home, string(inv.Entrypoint))}, inv.Args...)

	cfg := &container.Config{
		Hostname: inv.HardwareID,
		Image:    opts.Image,
		Env:      env,
		Cmd:      cmd,
	}

	hostCfg := &container.HostConfig{
		Privileged:  true,
		NetworkMode: container.NetworkMode("host"),
		Binds: []string{
			"/dev:/dev",
			"/dev/console:/dev/console",
			"/lib/firmware:/lib/firmware:ro",
			opts.HostStateDir + ":" + model.StateDirMount,
		},
	}

	return cfg, hostCfg
}
