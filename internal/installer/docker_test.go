package installer

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerConfig(t *testing.T) {
	opts := DockerOptions{
		Image:        DefaultImage,
		Home:         DefaultHome,
		HostStateDir: "/var/lib/osie/statedir",
		RLogHost:     "tinkerbell.example",
	}

	inv := &Invocation{
		HardwareID: "hw-1",
		InstanceID: "instance-1",
		Entrypoint: model.EntrypointFlavorRunner,
		Args:       []string{"-M", "/statedir/metadata", "-u", "/statedir/userdata"},
		Env: map[string]string{
			"TRACEPARENT":        "00-abc-def-01",
			"PACKET_BOOTDEV_MAC": "00:00:00:00:00:01",
		},
	}

	cfg, hostCfg := containerConfig(opts, inv)

	assert.Equal(t, "hw-1", cfg.Hostname)
	assert.Equal(t, "osie:x86_64", cfg.Image)
	assert.Equal(t,
		[]string{"/home/packet/flavor-runner.sh", "-M", "/statedir/metadata", "-u", "/statedir/userdata"},
		[]string(cfg.Cmd),
	)
	assert.Equal(t,
		[]string{
			"container_uuid=instance-1",
			"RLOGHOST=tinkerbell.example",
			"PACKET_BOOTDEV_MAC=00:00:00:00:00:01",
			"TRACEPARENT=00-abc-def-01",
		},
		cfg.Env,
	)

	assert.True(t, hostCfg.Privileged)
	assert.Equal(t, container.NetworkMode("host"), hostCfg.NetworkMode)
	assert.Equal(t,
		[]string{
			"/dev:/dev",
			"/dev/console:/dev/console",
			"/lib/firmware:/lib/firmware:ro",
			"/var/lib/osie/statedir:/statedir",
		},
		hostCfg.Binds,
	)
}

func TestContainerConfigWipe(t *testing.T) {
	cfg, _ := containerConfig(
		DockerOptions{Image: DefaultImage, Home: DefaultHome, HostStateDir: "/statedir"},
		&Invocation{HardwareID: "hw-1", InstanceID: "hw-1", Entrypoint: model.EntrypointWipe},
	)

	assert.Equal(t, []string{"/home/packet/wipe.sh"}, []string(cfg.Cmd))
	assert.Contains(t, cfg.Env, "container_uuid=hw-1")
}

func TestExitError(t *testing.T) {
	err := &ExitError{Entrypoint: model.EntrypointWipe, Code: 2}
	assert.Equal(t, "installer wipe.sh exited with code 2", err.Error())
}

func TestCopyOutputDrainsTail(t *testing.T) {
	pr, pw := io.Pipe()

	go func() {
		_, _ = stdcopy.NewStdWriter(pw, stdcopy.Stdout).Write([]byte("partitioning disks\n"))
		_, _ = stdcopy.NewStdWriter(pw, stdcopy.Stderr).Write([]byte("error: image checksum mismatch\n"))
		pw.Close()
	}()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	done := copyOutput(logrus.NewEntry(logrus.New()), pr, stdout, stderr)

	require.True(t, awaitOutput(done, 5*time.Second))
	assert.Equal(t, "partitioning disks\n", stdout.String())
	assert.Equal(t, "error: image checksum mismatch\n", stderr.String())
}

func TestAwaitOutputTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	done := copyOutput(logrus.NewEntry(logrus.New()), pr, io.Discard, io.Discard)

	assert.False(t, awaitOutput(done, 10*time.Millisecond))
}
