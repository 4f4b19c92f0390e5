package cmd

import (
	"context"
	"log"
	"net/url"
	"os"

	"github.com/metal-toolbox/osie-runner/internal/app"
	"github.com/metal-toolbox/osie-runner/internal/cmdline"
	"github.com/metal-toolbox/osie-runner/internal/hegel"
	"github.com/metal-toolbox/osie-runner/internal/installer"
	"github.com/metal-toolbox/osie-runner/internal/metrics"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/metal-toolbox/osie-runner/internal/notify"
	"github.com/metal-toolbox/osie-runner/internal/reconcile"
	"github.com/metal-toolbox/osie-runner/internal/runner"
	"github.com/metal-toolbox/osie-runner/internal/statedir"
	"github.com/metal-toolbox/osie-runner/internal/version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Subscribe to hegel and reconcile this machine to its desired provisioning state",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := runReconciler(cmd.Context()); err != nil {
			log.Fatal(err)
		}
	},
}

var (
	ErrStateDirHost = errors.New("STATEDIR_HOST env var is missing, unable to proceed")
)

// nolint:gocyclo // setup is sequential
func runReconciler(ctx context.Context) error {
	agent, err := app.New(ctx, cfgFile, logLevel())
	if err != nil {
		return err
	}

	cfg := agent.Config

	// serve metrics endpoint
	if cfg.Metrics.Endpoint != "" {
		metrics.ListenAndServe(cfg.Metrics.Endpoint)
		version.ExportBuildInfoMetric()
	}

	kopts, err := cmdline.Read(cfg.CmdlineFile)
	if err != nil {
		return err
	}

	tinkerbell, err := kopts.Require("tinkerbell")
	if err != nil {
		return err
	}

	facility, _ := kopts.Value("facility")

	ctx, otelShutdown := agent.InitTracing(ctx, kopts)
	defer otelShutdown(ctx)

	// cancel on SIGINT, SIGTERM
	ctx, cancel := agent.Context(ctx)
	defer cancel()

	phoneHomeURL, err := notify.PhoneHomeURL(tinkerbell)
	if err != nil {
		return err
	}

	tinkerbellURL, err := url.Parse(tinkerbell)
	if err != nil {
		return errors.Wrap(app.ErrConfig, "tinkerbell URL: "+err.Error())
	}

	logger := agent.Logger.WithFields(logrus.Fields{"facility": facility})

	notifiers := notify.Multi{notify.NewPhoneHome(phoneHomeURL, cfg.Notify.Timeout, logger)}

	if cfg.NATS.URL != "" {
		mirror, err := notify.NewNATS(
			notify.NATSOptions{
				URL:            cfg.NATS.URL,
				CredsFile:      cfg.NATS.CredsFile,
				Subject:        cfg.NATS.Subject,
				ConnectTimeout: cfg.NATS.ConnectTimeout,
			},
			facility,
			logger,
		)

		if err != nil {
			logger.WithError(err).Warn("nats event mirror disabled")
		} else {
			defer mirror.Close()

			notifiers = append(notifiers, mirror)
		}
	}

	if cfg.StateDirHost == "" {
		notifiers.Notify(ctx, model.NewFailureEvent(ErrStateDirHost.Error()))
		return ErrStateDirHost
	}

	store, err := statedir.New(cfg.StateDir)
	if err != nil {
		return err
	}

	docker, err := installer.NewDocker(
		installer.DockerOptions{
			Image:        cfg.Installer.Image,
			Home:         cfg.Installer.Home,
			HostStateDir: cfg.StateDirHost,
			RLogHost:     cfg.RLogHostOrDefault(tinkerbellURL.Hostname()),
			Stdout:       os.Stdout,
			Stderr:       os.Stderr,
		},
		logger.WithField("component", "installer"),
	)
	if err != nil {
		return err
	}

	defer docker.Close()

	engine := reconcile.New(
		logger.WithField("component", "reconcile"),
		notifiers,
		store,
		docker,
		reconcile.Options{
			PhoneHomeURL: phoneHomeURL,
			BootdevMAC:   cfg.BootdevMAC,
			OTLPEndpoint: cfg.OTEL.Endpoint,
			OTLPInsecure: cfg.OTEL.Insecure,
		},
	)

	client := hegel.New(
		hegel.Options{Facility: facility, Authority: cfg.Hegel.Authority},
		logger.WithField("component", "hegel"),
	)

	logger.WithFields(logrus.Fields{
		"tinkerbell": tinkerbell,
		"statedir":   store.Base(),
		"version":    version.Current().AppVersion,
	}).Info("osie-runner starting")

	return runner.New(logger, client, engine, notifiers).Run(ctx)
}

func init() {
	rootCmd.AddCommand(cmdRun)
}
