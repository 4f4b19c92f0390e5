package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// App holds attributes for the osie-runner application
type App struct {
	// viper instance holding the loaded configuration.
	v *viper.Viper
	// osie-runner configuration.
	Config *Configuration
	// TermCh is the channel to terminate the app based on a signal
	TermCh chan os.Signal
	// Logger is the app logger
	Logger *logrus.Logger
}

// New returns returns a new instance of the osie-runner app
func New(_ context.Context, cfgFile string, loglevel int) (*App, error) {
	app := &App{
		v:      viper.New(),
		Config: &Configuration{},
		Logger: logrus.New(),
		TermCh: make(chan os.Signal, 1),
	}

	if err := app.LoadConfiguration(cfgFile); err != nil {
		return nil, err
	}

	app.Logger.Level = logLevel(loglevel, app.Config.LogLevel)

	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if app.Config.LogJSON {
		formatter = &logrus.JSONFormatter{}
	}

	app.Logger.SetFormatter(
		&runtime.Formatter{ChildFormatter: formatter},
	)

	// register for SIGINT, SIGTERM
	signal.Notify(app.TermCh, syscall.SIGINT, syscall.SIGTERM)

	return app, nil
}

// logLevel returns the more verbose of the flag and configured levels.
func logLevel(flagLevel int, configured string) logrus.Level {
	switch {
	case flagLevel == model.LogLevelTrace, configured == "trace":
		return logrus.TraceLevel
	case flagLevel == model.LogLevelDebug, configured == "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Context returns a context canceled when a termination signal is received.
func (a *App) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		select {
		case <-a.TermCh:
			a.Logger.Info("got TERM signal, exiting...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
