package app

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/metal-toolbox/osie-runner/internal/cmdline"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		flagLevel  int
		configured string
		expected   logrus.Level
	}{
		{"defaults to info", model.LogLevelInfo, "", logrus.InfoLevel},
		{"debug flag", model.LogLevelDebug, "info", logrus.DebugLevel},
		{"trace flag", model.LogLevelTrace, "", logrus.TraceLevel},
		{"configured debug", model.LogLevelInfo, "debug", logrus.DebugLevel},
		{"configured trace wins over debug flag", model.LogLevelDebug, "trace", logrus.TraceLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, logLevel(tc.flagLevel, tc.configured))
		})
	}
}

const testTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestTraceparent(t *testing.T) {
	t.Setenv("TRACEPARENT", " 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01 ")

	c := cmdline.Cmdline("console=ttyS1,115200 traceparent=" + testTraceparent + " facility=ewr1")
	assert.Equal(t, testTraceparent, Traceparent(c))

	c = cmdline.Cmdline("console=ttyS1,115200 facility=ewr1")
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", Traceparent(c))

	t.Setenv("TRACEPARENT", "")
	assert.Equal(t, "", Traceparent(c))
}

func TestContextWithTraceparent(t *testing.T) {
	ctx := ContextWithTraceparent(context.Background(), testTraceparent)

	sc := trace.SpanContextFromContext(ctx)
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	ctx = ContextWithTraceparent(context.Background(), "")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())

	ctx = ContextWithTraceparent(context.Background(), "garbage")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}

func TestContextCanceledOnSignal(t *testing.T) {
	a := &App{Logger: logrus.New(), TermCh: make(chan os.Signal, 1)}

	ctx, cancel := a.Context(context.Background())
	defer cancel()

	a.TermCh <- syscall.SIGTERM
	<-ctx.Done()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
