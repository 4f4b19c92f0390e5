// Package reconcile converges the machine to the desired state pushed by hegel.
package reconcile

import (
	"context"
	"os"
	"path"
	"time"

	"github.com/metal-toolbox/osie-runner/internal/installer"
	"github.com/metal-toolbox/osie-runner/internal/metrics"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/metal-toolbox/osie-runner/internal/notify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	pkgName = "internal/reconcile"
)

var (
	// ErrFatal is returned for failures the agent does not recover from,
	// the caller is expected to exit.
	ErrFatal = errors.New("fatal reconciliation error")

	// ErrHandler is returned for failures that are reported and skipped.
	ErrHandler = errors.New("reconciliation handler error")
)

// Outcome tells the caller whether to keep consuming desired state documents.
type Outcome int

const (
	Continue Outcome = iota
	Exit
)

func (o Outcome) String() string {
	if o == Exit {
		return "exit"
	}

	return "continue"
}

// Store is the state directory shared with the installer.
type Store interface {
	WriteFile(name string, content []byte, mode os.FileMode) error
	Remove(name string) error
	Exists(name string) bool
	IsExecutable(name string) bool
}

// Options are the runtime parameters of the Engine.
type Options struct {
	// PhoneHomeURL is written into the installer metadata.
	PhoneHomeURL string

	// BootdevMAC is passed to install runs as PACKET_BOOTDEV_MAC.
	BootdevMAC string

	// OTLPEndpoint and OTLPInsecure are passed on to the installer.
	OTLPEndpoint string
	OTLPInsecure string
}

type handlerFunc func(ctx context.Context, ds *model.DesiredState) (Outcome, error)

// Engine dispatches desired state documents to the handler for their state.
type Engine struct {
	logger    *logrus.Entry
	notifier  notify.Notifier
	store     Store
	installer installer.Installer
	opts      Options
	handlers  map[model.State]handlerFunc
}

// New returns a reconciliation Engine.
func New(logger *logrus.Entry, notifier notify.Notifier, store Store, inst installer.Installer, opts Options) *Engine {
	e := &Engine{
		logger:    logger,
		notifier:  notifier,
		store:     store,
		installer: inst,
		opts:      opts,
	}

	e.handlers = map[model.State]handlerFunc{
		model.StatePreinstalling: e.preinstalling,
		model.StateProvisioning:  e.provisioning,
	}

	return e
}

// Handles returns true when a handler is registered for the state.
func (e *Engine) Handles(state model.State) bool {
	_, ok := e.handlers[state]
	return ok
}

// Handle runs the handler for the document state.
//
// Handler errors are reported as failure events, only errors wrapping ErrFatal are returned.
func (e *Engine) Handle(ctx context.Context, ds *model.DesiredState) (Outcome, error) {
	le := e.logger.WithFields(logrus.Fields{"hardwareID": ds.ID, "state": ds.State})

	handler, exists := e.handlers[ds.State]
	if !exists {
		le.Info("no handler for state")
		return Continue, nil
	}

	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"reconcile.Handle",
		trace.WithAttributes(
			attribute.String("hardwareID", ds.ID),
			attribute.String("instanceID", ds.InstanceID()),
			attribute.String("state", string(ds.State)),
		),
	)
	defer span.End()

	startTS := time.Now()

	outcome, err := handler(ctx, ds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		le.WithError(err).Error("handler failed")
		e.notifier.Notify(ctx, model.NewFailureEvent(err.Error()))

		if errors.Is(err, ErrFatal) {
			metrics.RegisterHandlerRun(ds.State, "fatal", time.Since(startTS))
			return Exit, err
		}

		metrics.RegisterHandlerRun(ds.State, "error", time.Since(startTS))

		return Continue, nil
	}

	span.SetAttributes(attribute.String("outcome", outcome.String()))
	metrics.RegisterHandlerRun(ds.State, outcome.String(), time.Since(startTS))

	return outcome, nil
}

// Wipe runs the installer disk wipe for the machine, any failure is fatal.
func (e *Engine) Wipe(ctx context.Context, ds *model.DesiredState) error {
	e.logger.WithField("hardwareID", ds.ID).Info("wiping disks")

	inv := &installer.Invocation{
		HardwareID: ds.ID,
		InstanceID: ds.ID,
		Entrypoint: model.EntrypointWipe,
		Env:        e.env(false),
	}

	if err := e.run(ctx, inv); err != nil {
		return errors.Wrap(ErrFatal, "wipe: "+err.Error())
	}

	return nil
}

// install runs the flavor runner with the given args.
func (e *Engine) install(ctx context.Context, hardwareID, instanceID string, args []string) error {
	return e.run(ctx, &installer.Invocation{
		HardwareID: hardwareID,
		InstanceID: instanceID,
		Entrypoint: model.EntrypointFlavorRunner,
		Args:       args,
		Env:        e.env(true),
	})
}

func (e *Engine) run(ctx context.Context, inv *installer.Invocation) error {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"installer.Run",
		trace.WithAttributes(
			attribute.String("entrypoint", string(inv.Entrypoint)),
			attribute.String("instanceID", inv.InstanceID),
		),
	)
	defer span.End()

	// the traceparent is injected after the span started so the installer
	// spans are children of this one.
	inv.Env = e.withTraceparent(ctx, inv.Env)

	err := e.installer.Run(ctx, inv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// env returns the installer environment, TRACEPARENT is set on run.
func (e *Engine) env(install bool) map[string]string {
	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": e.opts.OTLPEndpoint,
		"OTEL_EXPORTER_OTLP_INSECURE": e.opts.OTLPInsecure,
	}

	if install {
		env["PACKET_BOOTDEV_MAC"] = e.opts.BootdevMAC
	}

	return env
}

func (e *Engine) withTraceparent(ctx context.Context, env map[string]string) map[string]string {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)

	if env == nil {
		env = map[string]string{}
	}

	env["TRACEPARENT"] = carrier.Get("traceparent")

	return env
}

// installArgs returns the flavor runner args for the files in the state directory.
func installArgs(withUserdata bool) []string {
	args := []string{"-M", path.Join(model.StateDirMount, model.MetadataFile)}
	if withUserdata {
		args = append(args, "-u", path.Join(model.StateDirMount, model.UserdataFile))
	}

	return args
}
