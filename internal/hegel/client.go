package hegel

import (
	"context"
	"crypto/tls"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/metal-toolbox/osie-runner/internal/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	pkgName = "internal/hegel"

	// hegel.Hegel service methods, the response message carries the
	// JSON document in field 1 which decodes as a StringValue.
	getMethod       = "/hegel.Hegel/Get"
	subscribeMethod = "/hegel.Hegel/Subscribe"

	// DefaultCallTimeout bounds the Get call on each connection attempt.
	DefaultCallTimeout = 30 * time.Second
)

var (
	ErrConnect   = errors.New("hegel connect error")
	ErrSubscribe = errors.New("hegel subscription error")

	subscribeStreamDesc = &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}
)

// Subscriber delivers the desired state documents for this machine.
type Subscriber interface {
	// Connect blocks until the current document is fetched and the
	// subscription is open, retrying forever.
	Connect(ctx context.Context) ([]byte, error)
	// Next returns the next pushed document, on a stream failure the
	// client reconnects and returns the freshly fetched document instead.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Options configures the hegel Client.
type Options struct {
	// Facility is used to discover the hegel authority.
	Facility string
	// Authority overrides discovery when set.
	Authority string
	// TransportCredentials defaults to TLS with the system roots.
	TransportCredentials credentials.TransportCredentials
	// DialOptions are appended to the default dial options.
	DialOptions []grpc.DialOption
	Schedule    Schedule
	CallTimeout time.Duration
}

// Client is a hegel subscription client.
type Client struct {
	opts     Options
	resolver *Resolver
	logger   *logrus.Entry
	sleep    func(ctx context.Context, d time.Duration) error

	sm   sw.StateMachine
	conn *connection

	cc     *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
}

// transitionArgs is passed to the connection statemachine transitions.
type transitionArgs struct {
	attempt   int
	authority string
	err       error
}

// New returns a hegel Client, Connect must be called before Next.
func New(opts Options, logger *logrus.Entry) *Client {
	if opts.Schedule == nil {
		opts.Schedule = DefaultSchedule
	}

	if opts.CallTimeout == 0 {
		opts.CallTimeout = DefaultCallTimeout
	}

	if opts.TransportCredentials == nil {
		opts.TransportCredentials = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c := &Client{
		opts:     opts,
		resolver: NewResolver(),
		logger:   logger,
		sleep:    sleep,
		conn:     &connection{state: StateDisconnected},
	}

	c.sm = newConnectionStateMachine(c.transitioned)

	return c
}

// State returns the current connection state.
func (c *Client) State() sw.State {
	return c.conn.State()
}

func (c *Client) transitioned(s sw.StateSwitch, a sw.TransitionArgs) error {
	args, ok := a.(*transitionArgs)
	if !ok {
		return errors.Wrap(ErrConnect, "unexpected transition args type")
	}

	le := c.logger.WithFields(logrus.Fields{
		"from":      s.State(),
		"authority": args.authority,
		"attempt":   args.attempt,
	})

	if args.err != nil {
		le = le.WithError(args.err)
	}

	le.Debug("hegel connection transition")

	return nil
}

func (c *Client) transition(t sw.TransitionType, args *transitionArgs) {
	if err := c.sm.Run(t, c.conn, args); err != nil {
		c.logger.WithError(err).WithField("transition", t).Warn("hegel connection transition error")
	}
}

func (c *Client) authority(ctx context.Context) string {
	if c.opts.Authority != "" {
		return c.opts.Authority
	}

	return c.resolver.Authority(ctx, c.opts.Facility)
}

func (c *Client) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(c.opts.TransportCredentials),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second, // nolint:gomnd // keepalive ping interval
			Timeout:             5 * time.Second,  // nolint:gomnd // keepalive ack timeout
			PermitWithoutStream: true,
		}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}

	return append(opts, c.opts.DialOptions...)
}

// Connect implements the Subscriber interface.
func (c *Client) Connect(ctx context.Context) ([]byte, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "hegel.Connect")
	defer span.End()

	for attempt := 0; ; attempt++ {
		authority := c.authority(ctx)
		c.transition(TransitionDial, &transitionArgs{attempt: attempt, authority: authority})

		if delay := c.opts.Schedule.Delay(attempt); delay > 0 {
			c.logger.WithFields(logrus.Fields{
				"authority": authority,
				"attempt":   attempt,
				"delay":     delay.String(),
			}).Info("waiting before hegel connection attempt")

			if err := c.sleep(ctx, delay); err != nil {
				return nil, errors.Wrap(ErrConnect, err.Error())
			}
		}

		doc, err := c.dial(ctx, authority)
		metrics.RegisterConnectAttempt(err)

		if err == nil {
			span.SetAttributes(
				attribute.String("hegel.authority", authority),
				attribute.Int("hegel.attempts", attempt+1),
			)

			c.transition(TransitionEstablished, &transitionArgs{attempt: attempt, authority: authority})
			c.logger.WithField("authority", authority).Info("connected to hegel")

			return doc, nil
		}

		if ctx.Err() != nil {
			return nil, errors.Wrap(ErrConnect, ctx.Err().Error())
		}

		c.logger.WithError(err).WithFields(logrus.Fields{
			"authority": authority,
			"attempt":   attempt,
		}).Warn("hegel connection attempt failed")
	}
}

// dial opens a channel to the authority, fetches the current document and opens the subscription.
func (c *Client) dial(ctx context.Context, authority string) ([]byte, error) {
	cc, err := grpc.NewClient(authority, c.dialOptions()...)
	if err != nil {
		return nil, errors.Wrap(ErrConnect, err.Error())
	}

	getCtx, getCancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer getCancel()

	resp := &wrapperspb.StringValue{}
	if err := cc.Invoke(getCtx, getMethod, &emptypb.Empty{}, resp); err != nil {
		cc.Close()
		return nil, errors.Wrap(ErrConnect, "Get: "+err.Error())
	}

	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := cc.NewStream(streamCtx, subscribeStreamDesc, subscribeMethod)
	if err != nil {
		cancel()
		cc.Close()

		return nil, errors.Wrap(ErrConnect, "Subscribe: "+err.Error())
	}

	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		cancel()
		cc.Close()

		return nil, errors.Wrap(ErrConnect, "Subscribe: "+err.Error())
	}

	if err := stream.CloseSend(); err != nil {
		cancel()
		cc.Close()

		return nil, errors.Wrap(ErrConnect, "Subscribe: "+err.Error())
	}

	c.release()
	c.cc, c.stream, c.cancel = cc, stream, cancel

	return []byte(resp.GetValue()), nil
}

// Next implements the Subscriber interface.
func (c *Client) Next(ctx context.Context) ([]byte, error) {
	if c.stream == nil {
		return nil, errors.Wrap(ErrSubscribe, "not connected")
	}

	resp := &wrapperspb.StringValue{}

	err := c.recv(ctx, resp)
	if err == nil {
		return []byte(resp.GetValue()), nil
	}

	if ctx.Err() != nil {
		return nil, errors.Wrap(ErrSubscribe, ctx.Err().Error())
	}

	c.logger.WithError(err).Warn("hegel subscription lost, reconnecting")
	c.transition(TransitionLost, &transitionArgs{err: err})
	c.release()

	return c.Connect(ctx)
}

// recv returns when a message is received, the stream fails or ctx is canceled.
func (c *Client) recv(ctx context.Context, msg *wrapperspb.StringValue) error {
	errCh := make(chan error, 1)
	stream := c.stream

	go func() {
		errCh <- stream.RecvMsg(msg)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		// unblocks RecvMsg
		c.release()
		<-errCh

		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.cancel != nil {
		c.cancel()
	}

	if c.cc != nil {
		if err := c.cc.Close(); err != nil {
			c.logger.WithError(err).Debug("hegel channel close error")
		}
	}

	c.cc, c.stream, c.cancel = nil, nil, nil
}

// Close implements the Subscriber interface.
func (c *Client) Close() error {
	c.release()

	return nil
}
