package app

import (
	"context"
	"os"
	"strings"

	"github.com/bombsimon/logrusr/v2"
	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/metal-toolbox/osie-runner/internal/cmdline"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	traceparentKey = "traceparent"
	traceparentEnv = "TRACEPARENT"
)

// Traceparent returns the W3C traceparent handed to the runner,
// the kernel cmdline value takes precedence over the TRACEPARENT env var.
func Traceparent(c cmdline.Cmdline) string {
	if tp, ok := c.Value(traceparentKey); ok {
		return tp
	}

	return strings.TrimSpace(os.Getenv(traceparentEnv))
}

// ContextWithTraceparent returns a context with the remote span described by the traceparent,
// an empty or invalid traceparent leaves the context as is.
func ContextWithTraceparent(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}

	return propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier{traceparentKey: traceparent})
}

// InitTracing sets up the OpenTelemetry exporter and returns the context to
// trace the run with along with the shutdown func.
func (a *App) InitTracing(ctx context.Context, c cmdline.Cmdline) (context.Context, func(context.Context)) {
	// otel logs its internal errors through logr
	otel.SetLogger(logrusr.New(a.Logger))

	ctx, shutdown := otelinit.InitOpenTelemetry(ctx, model.AppName)

	traceparent := Traceparent(c)
	if traceparent != "" {
		a.Logger.WithField(traceparentKey, traceparent).Debug("continuing trace")
	}

	return ContextWithTraceparent(ctx, traceparent), shutdown
}
