package app

import (
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jeremywohl/flatten"
	"github.com/metal-toolbox/osie-runner/internal/installer"
	"github.com/metal-toolbox/osie-runner/internal/notify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	envPrefix = "osie_runner"

	DefaultCmdlineFile = "/proc/cmdline"
	DefaultStateDir    = "/statedir/"
)

var (
	ErrConfig = errors.New("configuration error")
)

// Configuration holds application configuration read from a YAML or set by env variables.
//
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level"`

	// LogJSON renders logs as JSON, set with LOG_RENDER_JSON.
	LogJSON bool `mapstructure:"log_json"`

	// CmdlineFile is read for the tinkerbell, facility and traceparent boot parameters.
	CmdlineFile string `mapstructure:"cmdline_file"`

	// StateDir is the state directory as seen by the runner.
	StateDir string `mapstructure:"statedir"`

	// StateDirHost is the state directory path on the docker host, set with STATEDIR_HOST.
	StateDirHost string `mapstructure:"statedir_host"`

	// RLogHost receives the installer logs, set with RLOGHOST.
	RLogHost string `mapstructure:"rloghost"`

	// BootdevMAC is handed to install runs, set with PACKET_BOOTDEV_MAC.
	BootdevMAC string `mapstructure:"bootdev_mac"`

	Installer InstallerOptions `mapstructure:"installer"`
	Hegel     HegelOptions     `mapstructure:"hegel"`
	Notify    NotifyOptions    `mapstructure:"notify"`
	Metrics   MetricsOptions   `mapstructure:"metrics"`
	NATS      NATSOptions      `mapstructure:"nats"`
	OTEL      OTELOptions      `mapstructure:"otel"`
}

type InstallerOptions struct {
	Image string `mapstructure:"image"`
	Home  string `mapstructure:"home"`
}

type HegelOptions struct {
	// Authority overrides the facility SRV discovery.
	Authority string `mapstructure:"authority"`
}

type NotifyOptions struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsOptions struct {
	// Endpoint enables the prometheus metrics listener when set.
	Endpoint string `mapstructure:"endpoint"`
}

// NATSOptions enable the NATS event mirror when the URL is set.
type NATSOptions struct {
	URL            string        `mapstructure:"url"`
	CredsFile      string        `mapstructure:"creds_file"`
	Subject        string        `mapstructure:"subject"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// OTELOptions are passed on to the installer, set with OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE.
type OTELOptions struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure string `mapstructure:"insecure"`
}

// envAliases are the environment variables the provisioning environment sets,
// they are accepted along with the prefixed variable names.
var envAliases = map[string]string{
	"log_json":      "LOG_RENDER_JSON",
	"statedir_host": "STATEDIR_HOST",
	"rloghost":      "RLOGHOST",
	"bootdev_mac":   "PACKET_BOOTDEV_MAC",
	"otel.endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otel.insecure": "OTEL_EXPORTER_OTLP_INSECURE",
}

// LoadConfiguration loads application configuration
//
// Reads in the cfgFile when available and overrides from environment variables.
func (a *App) LoadConfiguration(cfgFile string) error {
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if cfgFile != "" {
		fh, err := os.Open(cfgFile)
		if err != nil {
			return errors.Wrap(ErrConfig, err.Error())
		}
		defer fh.Close()

		if err = a.v.ReadConfig(fh); err != nil {
			return errors.Wrap(ErrConfig, "ReadConfig error:"+err.Error())
		}
	}

	a.setDefaults()

	if err := a.envBindVars(); err != nil {
		return errors.Wrap(ErrConfig, "env var bind error:"+err.Error())
	}

	if err := a.v.Unmarshal(a.Config); err != nil {
		return errors.Wrap(ErrConfig, "Unmarshal error: "+err.Error())
	}

	if err := a.Config.validate(); err != nil {
		return errors.Wrap(ErrConfig, err.Error())
	}

	return nil
}

func (a *App) setDefaults() {
	a.v.SetDefault("log_level", "info")
	a.v.SetDefault("log_json", false)
	a.v.SetDefault("statedir_host", "")
	a.v.SetDefault("rloghost", "")
	a.v.SetDefault("bootdev_mac", "")
	a.v.SetDefault("hegel.authority", "")
	a.v.SetDefault("metrics.endpoint", "")
	a.v.SetDefault("nats.url", "")
	a.v.SetDefault("nats.creds_file", "")
	a.v.SetDefault("otel.endpoint", "")
	a.v.SetDefault("otel.insecure", "")
	a.v.SetDefault("cmdline_file", DefaultCmdlineFile)
	a.v.SetDefault("statedir", DefaultStateDir)
	a.v.SetDefault("installer.image", installer.DefaultImage)
	a.v.SetDefault("installer.home", installer.DefaultHome)
	a.v.SetDefault("notify.timeout", notify.DefaultTimeout)
	a.v.SetDefault("nats.subject", notify.DefaultSubject)
	a.v.SetDefault("nats.connect_timeout", 60*time.Second) // nolint:gomnd // time duration value is clear as is.
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (a *App) envBindVars() error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(a.Config, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten config")
	}

	for k := range flat {
		if err := a.v.BindEnv(k); err != nil {
			return errors.Wrap(ErrConfig, "env var bind error: "+err.Error())
		}
	}

	for k, env := range envAliases {
		if err := a.v.BindEnv(k, env); err != nil {
			return errors.Wrap(ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

// validate returns all the configuration errors found.
func (c *Configuration) validate() error {
	var merr *multierror.Error

	switch c.LogLevel {
	case "", "info", "debug", "trace":
	default:
		merr = multierror.Append(merr, errors.New("log_level: expected one of info, debug, trace, got "+c.LogLevel))
	}

	if c.CmdlineFile == "" {
		merr = multierror.Append(merr, errors.New("cmdline_file: required"))
	}

	if c.StateDir == "" {
		merr = multierror.Append(merr, errors.New("statedir: required"))
	}

	if c.Installer.Image == "" {
		merr = multierror.Append(merr, errors.New("installer.image: required"))
	}

	if c.Installer.Home == "" {
		merr = multierror.Append(merr, errors.New("installer.home: required"))
	}

	if c.Notify.Timeout <= 0 {
		merr = multierror.Append(merr, errors.New("notify.timeout: expected a positive duration"))
	}

	if c.NATS.CredsFile != "" && c.NATS.URL == "" {
		merr = multierror.Append(merr, errors.New("nats.creds_file: set without nats.url"))
	}

	return merr.ErrorOrNil()
}

// RLogHostOrDefault returns the installer log destination, defaulting to the tinkerbell host.
func (c *Configuration) RLogHostOrDefault(tinkerbellHost string) string {
	if c.RLogHost != "" {
		return c.RLogHost
	}

	return tinkerbellHost
}
